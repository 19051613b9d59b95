// Package checkout turns a session cart into payment instructions and, once
// the customer confirms, into an order at the backend.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/backend"
	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
	"github.com/Lakyn80/naramkova-moda/internal/payment"
	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
	"github.com/Lakyn80/naramkova-moda/internal/platform/observability"
)

// ErrEmptyCart is returned when checkout starts without any lines.
var ErrEmptyCart = errors.New("checkout: cart is empty")

// OrderCreator posts orders. *backend.Client satisfies it.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req backend.OrderRequest) (domain.OrderReceipt, error)
}

// Config carries merchant settings.
type Config struct {
	Account     string
	ShippingFee money.Amount
}

// PaymentInstructions is what the customer needs to pay by bank transfer.
type PaymentInstructions struct {
	VS             int                 `json:"vs"`
	Account        string              `json:"account"`
	Message        string              `json:"message"`
	Payload        string              `json:"spdPayload"`
	ShippingMode   domain.ShippingMode `json:"shippingMode"`
	Totals         domain.OrderTotals  `json:"totals"`
	IdempotencyKey string              `json:"idempotencyKey"`
}

// Service orchestrates checkout attempts. Attempts live in the session's
// key-value namespace so that a retried submission keeps its variable symbol.
type Service struct {
	cfg       Config
	orders    OrderCreator
	kv        kvstore.Store
	logger    *zap.Logger
	reference payment.ReferenceFunc
	onReject  func(context.Context) error

	mu sync.Mutex
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReferenceFunc overrides the variable symbol generator.
func WithReferenceFunc(fn payment.ReferenceFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.reference = fn
		}
	}
}

// WithRejectHook runs fn after the backend rejects an order, typically a
// catalog refresh so the cart view can show the current stock.
func WithRejectHook(fn func(context.Context) error) Option {
	return func(s *Service) {
		s.onReject = fn
	}
}

// NewService constructs a checkout service. kv is the root store; attempts
// are kept under each session's namespace.
func NewService(cfg Config, orders OrderCreator, kv kvstore.Store, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		orders:    orders,
		kv:        kv,
		logger:    zap.NewNop(),
		reference: payment.GenerateReference,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Begin prepares payment instructions for the session cart. The variable
// symbol of the open attempt is reused while the cart is unchanged.
func (s *Service) Begin(ctx context.Context, sessionID string, c *cart.Store) (PaymentInstructions, error) {
	instructions, _, err := s.begin(ctx, sessionID, c)
	return instructions, err
}

func (s *Service) begin(ctx context.Context, sessionID string, c *cart.Store) (PaymentInstructions, cart.Snapshot, error) {
	snap := c.Snapshot()
	if len(snap.Lines) == 0 {
		return PaymentInstructions{}, snap, ErrEmptyCart
	}
	totals := cart.ComputeTotals(snap.Lines, snap.ShippingMode, s.cfg.ShippingFee)
	fp := fingerprint(snap, totals)

	s.mu.Lock()
	defer s.mu.Unlock()

	kv := cart.Namespace(s.kv, sessionID)
	current, ok, err := loadAttempt(ctx, kv)
	if err != nil {
		s.logger.Warn("checkout: read attempt", zap.String("session_id", sessionID), zap.Error(err))
	}
	if !ok || current.Fingerprint != fp {
		vs, err := s.reference()
		if err != nil {
			return PaymentInstructions{}, snap, err
		}
		current = attempt{Fingerprint: fp, VS: vs, IdempotencyKey: idempotencyKey(fp, vs)}
		if err := saveAttempt(ctx, kv, current); err != nil {
			s.logger.Warn("checkout: persist attempt", zap.String("session_id", sessionID), zap.Error(err))
		}
		s.logger.Info("checkout attempt started",
			zap.String("session_id", sessionID),
			zap.Int("vs", vs),
			zap.Stringer("grand_total", totals.GrandTotal),
		)
	}

	message := "Objednávka " + strconv.Itoa(current.VS)
	spd, err := payment.BuildPayload(payment.PaymentRequest{
		Account:   s.cfg.Account,
		Amount:    totals.GrandTotal,
		Reference: current.VS,
		Message:   payment.FoldDiacritics(message),
	})
	if err != nil {
		return PaymentInstructions{}, snap, err
	}
	return PaymentInstructions{
		VS:             current.VS,
		Account:        s.cfg.Account,
		Message:        message,
		Payload:        spd,
		ShippingMode:   snap.ShippingMode,
		Totals:         totals,
		IdempotencyKey: current.IdempotencyKey,
	}, snap, nil
}

// Submit validates the customer and creates the order for the current
// attempt. On success the ordered lines leave the cart and the attempt is
// forgotten; on any failure the cart is left as it was. A backend rejection is
// returned as *backend.OrderRejectedError, every other backend failure wraps
// backend.ErrBackendUnavailable. A 409 means the variable symbol is already
// taken, so the attempt is dropped and the next one mints a fresh symbol.
func (s *Service) Submit(ctx context.Context, sessionID string, c *cart.Store, customer domain.Customer) (domain.OrderReceipt, error) {
	customer, err := normalizeCustomer(customer)
	if err != nil {
		return domain.OrderReceipt{}, err
	}
	instructions, snap, err := s.begin(ctx, sessionID, c)
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	req := backend.OrderRequest{
		Name:           customer.Name,
		Email:          customer.Email,
		Address:        customer.Address,
		Note:           customer.Note,
		VS:             strconv.Itoa(instructions.VS),
		TotalCZK:       instructions.Totals.GrandTotal,
		ShippingCZK:    instructions.Totals.ShippingFee,
		ShippingMode:   snap.ShippingMode,
		Items:          make([]backend.OrderItem, 0, len(snap.Lines)),
		IdempotencyKey: instructions.IdempotencyKey,
	}
	for _, l := range snap.Lines {
		req.Items = append(req.Items, backend.OrderItem{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      lineName(l),
			Quantity:  l.Quantity,
			Price:     l.Price,
		})
	}

	logger := s.logger.With(zap.String("session_id", sessionID), zap.Int("vs", instructions.VS))
	receipt, err := s.orders.CreateOrder(ctx, req)
	if err != nil {
		var rejected *backend.OrderRejectedError
		if errors.As(err, &rejected) {
			logger.Info("order rejected by backend", zap.Int("status", rejected.Status), zap.String("reason", rejected.Message))
			if rejected.Status == http.StatusConflict {
				s.forgetAttempt(ctx, sessionID, logger)
			}
			if s.onReject != nil {
				if hookErr := s.onReject(ctx); hookErr != nil {
					logger.Warn("checkout: reject hook failed", zap.Error(hookErr))
				}
			}
			return domain.OrderReceipt{}, rejected
		}
		logger.Error("order submission failed", zap.Error(err))
		if errors.Is(err, backend.ErrBackendUnavailable) {
			return domain.OrderReceipt{}, err
		}
		return domain.OrderReceipt{}, fmt.Errorf("%w: %w", backend.ErrBackendUnavailable, err)
	}

	if err := c.Settle(ctx, snap.Lines); err != nil {
		logger.Warn("checkout: settle cart after order", zap.Error(err))
	}
	s.forgetAttempt(ctx, sessionID, logger)

	if receipt.VS == "" {
		receipt.VS = req.VS
	}
	logger.Info("order created",
		zap.String("order_id", receipt.OrderID),
		zap.String("status", receipt.Status),
		zap.String("customer", observability.MaskEmail(customer.Email)),
	)
	return receipt, nil
}

func (s *Service) forgetAttempt(ctx context.Context, sessionID string, logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := cart.Namespace(s.kv, sessionID).Delete(ctx, KeyCheckoutAttempt); err != nil {
		logger.Warn("checkout: forget attempt", zap.Error(err))
	}
}

func lineName(l domain.CartLine) string {
	if l.VariantName == "" {
		return l.Name
	}
	return l.Name + " (" + l.VariantName + ")"
}
