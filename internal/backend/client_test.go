package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/api/", WithAPIToken("tok"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestListProductsNormalisesPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_, _ = w.Write([]byte(`[
			{"id": 7, "name": "Ametyst", "price": "327,50", "stock": 3, "category_id": 2,
			 "media": [{"url": "http://img/1.jpg", "type": "image"}, {"url": "http://img/v.mp4", "type": "video"}],
			 "variants": [{"id": 71, "variant_name": "M", "wrist_size": "17", "price_czk": 0, "stock": "2"}]},
			{"name": "no id", "price": 10},
			{"id": "8", "name": "Růženín", "price": 289.5, "stock": null}
		]`))
	})

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected products without id to be dropped, got %d", len(products))
	}

	first := products[0]
	if first.ID != "7" || first.Price != 32750 || first.Stock == nil || *first.Stock != 3 {
		t.Fatalf("unexpected first product %+v", first)
	}
	if first.CategoryID != "2" || first.ImageURL != "http://img/1.jpg" || len(first.Images) != 1 {
		t.Fatalf("unexpected media mapping %+v", first)
	}
	if len(first.Variants) != 1 || first.Variants[0].ID != "71" || first.Variants[0].WristSize != "17" {
		t.Fatalf("unexpected variants %+v", first.Variants)
	}
	if first.Variants[0].Stock == nil || *first.Variants[0].Stock != 2 {
		t.Fatalf("expected variant stock 2, got %v", first.Variants[0].Stock)
	}

	item, err := first.Item("71")
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if item.Price != 32750 {
		t.Fatalf("expected variant without price to inherit 327.50, got %s", item.Price)
	}

	if products[1].Stock != nil {
		t.Fatalf("expected unknown stock, got %d", *products[1].Stock)
	}
	if products[1].Price != 28950 {
		t.Fatalf("expected 289.50, got %s", products[1].Price)
	}
}

func TestGetProductNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if _, err := client.GetProduct(context.Background(), "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCategoriesServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := client.ListCategories(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestCreateOrderSuccess(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if key := r.Header.Get("Idempotency-Key"); key != "idem-1" {
			t.Errorf("unexpected idempotency key %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok": true, "orderId": 55, "vs": "123456", "status": "awaiting_payment"}`))
	})

	receipt, err := client.CreateOrder(context.Background(), OrderRequest{
		Name:           "Jana",
		Email:          "jana@example.cz",
		Address:        "Praha",
		VS:             "123456",
		TotalCZK:       money.FromKoruna(416),
		ShippingCZK:    money.FromKoruna(89),
		ShippingMode:   domain.ShippingPost,
		Items:          []OrderItem{{ProductID: "7", Name: "Ametyst", Quantity: 1, Price: money.FromKoruna(327)}},
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if receipt.OrderID != "55" || receipt.VS != "123456" || receipt.Status != "awaiting_payment" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got["totalCzk"] != 416.0 || got["shippingMode"] != "post" || got["vs"] != "123456" {
		t.Fatalf("unexpected body %v", got)
	}
	items, _ := got["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", got["items"])
	}
}

func TestCreateOrderLargeReceipt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0, 90)
		for i := 0; i < 90; i++ {
			items = append(items, map[string]any{
				"product_id": i + 1,
				"variant_id": nil,
				"name":       fmt.Sprintf("Náramek s dlouhým názvem číslo %d", i+1),
				"quantity":   1,
				"remaining":  4,
			})
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"orderId":           901,
			"vs":                "123456",
			"status":            "awaiting_payment",
			"decremented_items": items,
		})
	})

	receipt, err := client.CreateOrder(context.Background(), OrderRequest{VS: "123456", Items: []OrderItem{{ProductID: "1", Quantity: 1}}})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if receipt.OrderID != "901" || receipt.VS != "123456" || receipt.Status != "awaiting_payment" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestCreateOrderUnreadableReceiptStillSucceeds(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok": true, "orderId": 12, "decremented_items": [`))
	})

	receipt, err := client.CreateOrder(context.Background(), OrderRequest{VS: "654321"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if receipt.VS != "654321" {
		t.Fatalf("expected VS fallback to the request, got %+v", receipt)
	}
}

func TestCreateOrderRejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "stock", status: http.StatusBadRequest, body: `{"ok": false, "error": "Na skladě zbývá jen 1 ks pro Ametyst"}`, message: "Na skladě zbývá jen 1 ks pro Ametyst"},
		{name: "duplicate vs", status: http.StatusConflict, body: `{"message": "Objednávka s tímto VS už existuje."}`, message: "Objednávka s tímto VS už existuje."},
		{name: "no body", status: http.StatusBadRequest, body: ``, message: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.CreateOrder(context.Background(), OrderRequest{VS: "111111"})
			var rejected *OrderRejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("expected *OrderRejectedError, got %v", err)
			}
			if rejected.Status != tc.status || rejected.Message != tc.message {
				t.Fatalf("unexpected rejection %+v", rejected)
			}
			if errors.Is(err, ErrBackendUnavailable) {
				t.Fatalf("rejection must not be reported as unavailable")
			}
		})
	}
}

func TestCreateOrderUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok": false, "error": "db down"}`))
	})
	if _, err := client.CreateOrder(context.Background(), OrderRequest{VS: "111111"}); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	closed, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := closed.CreateOrder(context.Background(), OrderRequest{VS: "111111"}); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable for transport failure, got %v", err)
	}
}

func TestDemoCatalog(t *testing.T) {
	client, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if !client.Demo() {
		t.Fatalf("expected demo mode without base URL")
	}

	products, err := client.ListProducts(context.Background())
	if err != nil || len(products) == 0 {
		t.Fatalf("expected demo products, got %d (%v)", len(products), err)
	}
	for _, p := range products {
		if p.ID == "" || p.Price <= 0 {
			t.Fatalf("demo product not normalised: %+v", p)
		}
	}

	product, err := client.GetProduct(context.Background(), "102")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Price != 28950 {
		t.Fatalf("expected 289.50, got %s", product.Price)
	}
	if _, err := client.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	categories, err := client.ListCategories(context.Background())
	if err != nil || len(categories) != 3 {
		t.Fatalf("expected 3 demo categories, got %d (%v)", len(categories), err)
	}

	receipt, err := client.CreateOrder(context.Background(), OrderRequest{VS: "654321"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if receipt.VS != "654321" || receipt.OrderID == "" {
		t.Fatalf("unexpected demo receipt %+v", receipt)
	}
}
