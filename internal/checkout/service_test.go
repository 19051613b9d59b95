package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lakyn80/naramkova-moda/internal/backend"
	"github.com/Lakyn80/naramkova-moda/internal/cart"
	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
	"github.com/Lakyn80/naramkova-moda/internal/payment"
	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
)

const (
	testIBAN    = "CZ6508000000001234567899"
	testSession = "01JTESTSESSION"
)

type recordingOrders struct {
	mu       sync.Mutex
	requests []backend.OrderRequest
	err      error
	during   func()
}

func (r *recordingOrders) CreateOrder(_ context.Context, req backend.OrderRequest) (domain.OrderReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.during != nil {
		r.during()
	}
	if r.err != nil {
		return domain.OrderReceipt{}, r.err
	}
	return domain.OrderReceipt{OrderID: "55", Status: "awaiting_payment"}, nil
}

func sequence(refs ...int) payment.ReferenceFunc {
	var mu sync.Mutex
	return func() (int, error) {
		mu.Lock()
		defer mu.Unlock()
		ref := refs[0]
		if len(refs) > 1 {
			refs = refs[1:]
		}
		return ref, nil
	}
}

type fixture struct {
	kv      *kvstore.MemoryStore
	cart    *cart.Store
	orders  *recordingOrders
	service *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	orders := &recordingOrders{}
	opts = append([]Option{WithReferenceFunc(sequence(123456, 654321, 111111))}, opts...)
	return &fixture{
		kv:      kv,
		cart:    cart.Load(context.Background(), cart.Namespace(kv, testSession)),
		orders:  orders,
		service: NewService(Config{Account: testIBAN, ShippingFee: money.FromKoruna(89)}, orders, kv, opts...),
	}
}

func ametyst() domain.Item {
	return domain.Item{ProductID: "1", Name: "Náramek Ametyst", Price: money.FromKoruna(327), Stock: domain.Stock(3)}
}

func customer() domain.Customer {
	return domain.Customer{Name: "Jana Nováková", Email: "jana@example.cz", Address: "Dlouhá 1, Praha"}
}

func TestBeginRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Begin(context.Background(), testSession, f.cart)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestBeginBuildsPaymentInstructions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))

	got, err := f.service.Begin(ctx, testSession, f.cart)
	require.NoError(t, err)
	assert.Equal(t, 123456, got.VS)
	assert.Equal(t, "Objednávka 123456", got.Message)
	assert.Equal(t, "SPD*1.0*ACC:CZ6508000000001234567899*AM:416.00*CC:CZK*X-VS:123456*MSG:Objednavka 123456", got.Payload)
	assert.Equal(t, domain.OrderTotals{Subtotal: 32700, ShippingFee: 8900, GrandTotal: 41600}, got.Totals)
	assert.NotEmpty(t, got.IdempotencyKey)
}

func TestBeginReusesReferenceWhileCartUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))

	first, err := f.service.Begin(ctx, testSession, f.cart)
	require.NoError(t, err)
	again, err := f.service.Begin(ctx, testSession, f.cart)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, f.cart.SetShippingMode(ctx, domain.ShippingPickup))
	changed, err := f.service.Begin(ctx, testSession, f.cart)
	require.NoError(t, err)
	assert.Equal(t, 654321, changed.VS)
	assert.NotEqual(t, first.IdempotencyKey, changed.IdempotencyKey)
	assert.Equal(t, "SPD*1.0*ACC:CZ6508000000001234567899*AM:327.00*CC:CZK*X-VS:654321*MSG:Objednavka 654321", changed.Payload)
}

func TestBeginSurvivesServiceRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))
	first, err := f.service.Begin(ctx, testSession, f.cart)
	require.NoError(t, err)

	restarted := NewService(Config{Account: testIBAN, ShippingFee: money.FromKoruna(89)}, f.orders, f.kv,
		WithReferenceFunc(sequence(999999)))
	again, err := restarted.Begin(ctx, testSession, cart.Load(ctx, cart.Namespace(f.kv, testSession)))
	require.NoError(t, err)
	assert.Equal(t, first.VS, again.VS)
}

func TestBeginPropagatesPaymentErrors(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	c := cart.Load(ctx, cart.Namespace(kv, testSession))
	require.NoError(t, c.Add(ctx, ametyst(), 1))

	svc := NewService(Config{ShippingFee: money.FromKoruna(89)}, &recordingOrders{}, kv)
	_, err := svc.Begin(ctx, testSession, c)
	assert.ErrorIs(t, err, payment.ErrInvalidAccount)
}

func TestSubmitCreatesOrderAndClearsCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.Add(ctx, ametyst(), 2))
	variant := domain.Item{ProductID: "2", VariantID: "21", Name: "Náramek Růženín", VariantName: "M", Price: money.FromKoruna(289)}
	require.NoError(t, f.cart.Add(ctx, variant, 1))

	instructions, err := f.service.Begin(ctx, testSession, f.cart)
	require.NoError(t, err)

	in := customer()
	in.Note = "<b>Prosím</b> zabalit jako dárek"
	receipt, err := f.service.Submit(ctx, testSession, f.cart, in)
	require.NoError(t, err)
	assert.Equal(t, "55", receipt.OrderID)
	assert.Equal(t, "123456", receipt.VS)

	require.Len(t, f.orders.requests, 1)
	req := f.orders.requests[0]
	assert.Equal(t, "123456", req.VS)
	assert.Equal(t, instructions.IdempotencyKey, req.IdempotencyKey)
	assert.Equal(t, "Prosím zabalit jako dárek", req.Note)
	assert.Equal(t, money.FromKoruna(327*2+289+89), req.TotalCZK)
	assert.Equal(t, money.FromKoruna(89), req.ShippingCZK)
	assert.Equal(t, domain.ShippingPost, req.ShippingMode)
	require.Len(t, req.Items, 2)
	assert.Equal(t, backend.OrderItem{ProductID: "2", VariantID: "21", Name: "Náramek Růženín (M)", Quantity: 1, Price: 28900}, req.Items[1])

	assert.Empty(t, f.cart.Lines())
	_, ok, err := cart.Namespace(f.kv, testSession).Get(ctx, KeyCheckoutAttempt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitRejectedKeepsCart(t *testing.T) {
	ctx := context.Background()
	refreshed := 0
	f := newFixture(t, WithRejectHook(func(context.Context) error {
		refreshed++
		return nil
	}))
	f.orders.err = &backend.OrderRejectedError{Status: 400, Message: "Na skladě zbývá jen 1 ks pro Náramek Ametyst"}
	require.NoError(t, f.cart.Add(ctx, ametyst(), 2))

	_, err := f.service.Submit(ctx, testSession, f.cart, customer())
	var rejected *backend.OrderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Na skladě zbývá jen 1 ks pro Náramek Ametyst", rejected.Message)
	assert.Equal(t, 1, refreshed)
	assert.Len(t, f.cart.Lines(), 1)

	f.orders.err = nil
	_, err = f.service.Submit(ctx, testSession, f.cart, customer())
	require.NoError(t, err)
	require.Len(t, f.orders.requests, 2)
	assert.Equal(t, f.orders.requests[0].VS, f.orders.requests[1].VS)
	assert.Equal(t, f.orders.requests[0].IdempotencyKey, f.orders.requests[1].IdempotencyKey)
}

func TestSubmitConflictMintsFreshReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.orders.err = &backend.OrderRejectedError{Status: 409, Message: "Objednávka s tímto VS už existuje."}
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))

	for i := 0; i < 2; i++ {
		_, err := f.service.Submit(ctx, testSession, f.cart, customer())
		var rejected *backend.OrderRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, 409, rejected.Status)
	}

	f.orders.err = nil
	receipt, err := f.service.Submit(ctx, testSession, f.cart, customer())
	require.NoError(t, err)
	require.Len(t, f.orders.requests, 3)
	assert.Equal(t, "123456", f.orders.requests[0].VS)
	assert.Equal(t, "654321", f.orders.requests[1].VS)
	assert.Equal(t, "111111", f.orders.requests[2].VS)
	assert.NotEqual(t, f.orders.requests[0].IdempotencyKey, f.orders.requests[1].IdempotencyKey)
	assert.Equal(t, "111111", receipt.VS)
	assert.Empty(t, f.cart.Lines())
}

func TestSubmitKeepsLinesAddedDuringSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))
	late := domain.Item{ProductID: "3", Name: "Náramek Onyx", Price: money.FromKoruna(149)}
	f.orders.during = func() {
		require.NoError(t, f.cart.Add(ctx, ametyst(), 1))
		require.NoError(t, f.cart.Add(ctx, late, 1))
	}

	_, err := f.service.Submit(ctx, testSession, f.cart, customer())
	require.NoError(t, err)

	require.Len(t, f.orders.requests, 1)
	require.Len(t, f.orders.requests[0].Items, 1)
	assert.Equal(t, 1, f.orders.requests[0].Items[0].Quantity)

	lines := f.cart.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "product-1", lines[0].Key)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, "product-3", lines[1].Key)
}

func TestSubmitUnavailableKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.orders.err = errors.New("connection reset")
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))

	_, err := f.service.Submit(ctx, testSession, f.cart, customer())
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
	assert.Len(t, f.cart.Lines(), 1)
}

func TestSubmitValidatesCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cart.Add(ctx, ametyst(), 1))

	_, err := f.service.Submit(ctx, testSession, f.cart, domain.Customer{Name: "<script>alert(1)</script>", Email: "not-an-email"})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"address", "email", "name"}, invalid.Fields())
	assert.Empty(t, f.orders.requests)
	assert.Len(t, f.cart.Lines(), 1)
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), testSession, f.cart, customer())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.orders.requests)
}
