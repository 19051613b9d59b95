package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/catalog"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/format"
	"github.com/Lakyn80/naramkova-moda/internal/money"
	"github.com/Lakyn80/naramkova-moda/internal/platform/httpx"
	"github.com/Lakyn80/naramkova-moda/internal/platform/requestctx"
)

// ItemResolver turns a product id and optional variant id into a cart item.
type ItemResolver interface {
	Item(ctx context.Context, productID, variantID string) (domain.Item, error)
}

// CartProvider returns the cart of a session.
type CartProvider interface {
	Cart(ctx context.Context, sessionID string) *cart.Store
}

// CartHandlers exposes the session cart.
type CartHandlers struct {
	carts CartProvider
	items ItemResolver
	fee   money.Amount
}

// NewCartHandlers constructs cart handlers charging fee for postal shipping.
func NewCartHandlers(carts CartProvider, items ItemResolver, fee money.Amount) *CartHandlers {
	return &CartHandlers{carts: carts, items: items, fee: fee}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Post("/items/{lineKey}/increase", h.increaseItem)
	r.Post("/items/{lineKey}/decrease", h.decreaseItem)
	r.Delete("/items/{lineKey}", h.removeItem)
	r.Put("/shipping", h.setShipping)
}

type cartResponse struct {
	Items        []domain.CartLine   `json:"items"`
	ShippingMode domain.ShippingMode `json:"shippingMode"`
	Totals       domain.OrderTotals  `json:"totals"`
	Display      displayTotals       `json:"display"`
	ItemCount    int                 `json:"itemCount"`
	Persisted    bool                `json:"persisted"`
}

type displayTotals struct {
	Subtotal    string `json:"subtotal"`
	ShippingFee string `json:"shippingFee"`
	GrandTotal  string `json:"grandTotal"`
}

type addItemRequest struct {
	ProductID flexibleID `json:"productId"`
	VariantID flexibleID `json:"variantId"`
	Quantity  *int       `json:"quantity"`
}

type shippingRequest struct {
	Mode string `json:"mode"`
}

func (h *CartHandlers) sessionCart(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a session cookie is required", http.StatusUnauthorized))
		return nil, false
	}
	return h.carts.Cart(ctx, sessionID), true
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	h.writeCart(w, r, c, nil)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	productID := strings.TrimSpace(string(req.ProductID))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	quantity := 1
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "quantity must be at least 1", http.StatusBadRequest))
			return
		}
		quantity = *req.Quantity
	}

	item, err := h.items.Item(ctx, productID, string(req.VariantID))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		case errors.Is(err, domain.ErrVariantNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound))
		default:
			requestctx.Logger(ctx).Warn("resolve cart item failed", zap.String("product_id", productID), zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusBadGateway).Retryable())
		}
		return
	}

	key, err := cart.LineKey(item)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unidentifiable_item", "item has no id or name", http.StatusUnprocessableEntity))
		return
	}
	if item.Stock != nil && *item.Stock == 0 {
		// A sold-out item already in the cart is still applied so its line drops out.
		if _, inCart := c.Line(key); !inCart {
			httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", "item is sold out", http.StatusConflict))
			return
		}
	}
	h.writeCart(w, r, c, c.Add(ctx, item, quantity))
}

func (h *CartHandlers) increaseItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).Increase)
}

func (h *CartHandlers) decreaseItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).Decrease)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).Remove)
}

func (h *CartHandlers) mutateLine(w http.ResponseWriter, r *http.Request, op func(*cart.Store, context.Context, domain.Item) error) {
	ctx := r.Context()
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	line, found := c.Line(lineKeyParam(r))
	if !found {
		httpx.WriteError(ctx, w, httpx.NewError("line_not_found", "cart line not found", http.StatusNotFound))
		return
	}
	h.writeCart(w, r, c, op(c, ctx, line.Item()))
}

// lineKeyParam returns the decoded {lineKey} segment. chi matches on the raw
// path when it carries escapes such as %2F, leaving the parameter encoded.
func lineKeyParam(r *http.Request) string {
	key := chi.URLParam(r, "lineKey")
	if r.URL.RawPath == "" {
		return key
	}
	if decoded, err := url.PathUnescape(key); err == nil {
		return decoded
	}
	return key
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	h.writeCart(w, r, c, c.Clear(r.Context()))
}

func (h *CartHandlers) setShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	var req shippingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := c.SetShippingMode(ctx, domain.ShippingMode(req.Mode))
	if errors.Is(err, cart.ErrUnknownShippingMode) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_shipping_mode", "mode must be post or pickup", http.StatusBadRequest))
		return
	}
	h.writeCart(w, r, c, err)
}

// writeCart renders the cart. A persistence failure is reported in the body;
// the in-memory cart already holds the change.
func (h *CartHandlers) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Store, mutationErr error) {
	ctx := r.Context()
	if mutationErr != nil {
		requestctx.Logger(ctx).Warn("cart change not persisted", zap.Error(mutationErr))
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartResponse(c.Snapshot(), h.fee, format.ParseLanguage(r.Header.Get("Accept-Language")), mutationErr == nil))
}

func buildCartResponse(snap cart.Snapshot, fee money.Amount, lang language.Tag, persisted bool) cartResponse {
	totals := cart.ComputeTotals(snap.Lines, snap.ShippingMode, fee)
	count := 0
	for _, l := range snap.Lines {
		count += l.Quantity
	}
	items := snap.Lines
	if items == nil {
		items = []domain.CartLine{}
	}
	return cartResponse{
		Items:        items,
		ShippingMode: snap.ShippingMode,
		Totals:       totals,
		Display: displayTotals{
			Subtotal:    format.Localized(totals.Subtotal, lang),
			ShippingFee: format.Localized(totals.ShippingFee, lang),
			GrandTotal:  format.Localized(totals.GrandTotal, lang),
		},
		ItemCount: count,
		Persisted: persisted,
	}
}
