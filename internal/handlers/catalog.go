package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/catalog"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/platform/httpx"
	"github.com/Lakyn80/naramkova-moda/internal/platform/requestctx"
)

// CatalogReader is the catalog cache as seen by the handlers.
type CatalogReader interface {
	Products() []domain.Product
	Categories() []domain.Category
	Product(ctx context.Context, id string) (domain.Product, error)
	Refresh(ctx context.Context) error
}

// CatalogHandlers serves products and categories from the cache.
type CatalogHandlers struct {
	catalog CatalogReader
}

// NewCatalogHandlers constructs the catalog handlers.
func NewCatalogHandlers(c CatalogReader) *CatalogHandlers {
	return &CatalogHandlers{catalog: c}
}

// Routes wires the catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	products := h.catalog.Products()
	if len(products) == 0 {
		h.refresh(r.Context())
		products = h.catalog.Products()
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filtered := products[:0]
		for _, p := range products {
			if p.CategoryID == category {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimSpace(chi.URLParam(r, "productId"))
	product, err := h.catalog.Product(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		requestctx.Logger(ctx).Warn("product lookup failed", zap.String("product_id", id), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusBadGateway).Retryable())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.catalog.Categories()
	if len(categories) == 0 {
		h.refresh(r.Context())
		categories = h.catalog.Categories()
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *CatalogHandlers) refresh(ctx context.Context) {
	if err := h.catalog.Refresh(ctx); err != nil {
		requestctx.Logger(ctx).Warn("catalog refresh failed", zap.Error(err))
	}
}
