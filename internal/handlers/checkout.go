package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/backend"
	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/checkout"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/format"
	"github.com/Lakyn80/naramkova-moda/internal/payment"
	"github.com/Lakyn80/naramkova-moda/internal/platform/httpx"
	"github.com/Lakyn80/naramkova-moda/internal/platform/requestctx"
)

// CheckoutService is the checkout orchestration used by the handlers.
type CheckoutService interface {
	Begin(ctx context.Context, sessionID string, c *cart.Store) (checkout.PaymentInstructions, error)
	Submit(ctx context.Context, sessionID string, c *cart.Store, customer domain.Customer) (domain.OrderReceipt, error)
}

// CheckoutHandlers exposes payment instructions and order submission.
type CheckoutHandlers struct {
	carts    CartProvider
	checkout CheckoutService
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(carts CartProvider, svc CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{carts: carts, checkout: svc}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment", h.payment)
	r.Post("/orders", h.createOrder)
}

type paymentResponse struct {
	checkout.PaymentInstructions
	AmountDisplay string `json:"amountDisplay"`
}

func (h *CheckoutHandlers) payment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a session cookie is required", http.StatusUnauthorized))
		return
	}
	instructions, err := h.checkout.Begin(ctx, sessionID, h.carts.Cart(ctx, sessionID))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{
		PaymentInstructions: instructions,
		AmountDisplay:       format.CZK(instructions.Totals.GrandTotal),
	})
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "a session cookie is required", http.StatusUnauthorized))
		return
	}
	var customer domain.Customer
	if !decodeBody(w, r, &customer) {
		return
	}
	receipt, err := h.checkout.Submit(ctx, sessionID, h.carts.Cart(ctx, sessionID), customer)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, receipt)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		invalid  *checkout.ValidationError
		rejected *backend.OrderRejectedError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "the cart is empty", http.StatusConflict))
	case errors.As(err, &invalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_customer", "please fill in the required fields", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": invalid.Problems}))
	case errors.As(err, &rejected):
		message := rejected.Message
		if message == "" {
			message = "Nedostatečný sklad."
		}
		apiErr := httpx.NewError("order_rejected", message, rejected.Status)
		if rejected.Status == http.StatusConflict {
			apiErr = apiErr.Retryable()
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, payment.ErrInvalidAccount), errors.Is(err, payment.ErrInvalidAmount):
		requestctx.Logger(ctx).Error("payment instructions unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment instructions are unavailable", http.StatusInternalServerError))
	case errors.Is(err, backend.ErrBackendUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "Chyba sítě nebo serveru při vytváření objednávky.", http.StatusBadGateway).Retryable())
	default:
		requestctx.Logger(ctx).Error("checkout failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "checkout failed", http.StatusInternalServerError))
	}
}
