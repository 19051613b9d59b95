package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
	"github.com/Lakyn80/naramkova-moda/internal/money"
	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
)

// Persisted keys.
const (
	KeyCartItems    = "cartItems"
	KeyShippingMode = "shippingMode"
)

const meterName = "github.com/Lakyn80/naramkova-moda/internal/cart"

var (
	// ErrPersist wraps a failed write-through. The in-memory cart already reflects the mutation.
	ErrPersist = errors.New("cart: persist cart")
	// ErrUnknownShippingMode rejects modes other than post and pickup.
	ErrUnknownShippingMode = errors.New("cart: unknown shipping mode")
)

// Snapshot is a copy of the cart state.
type Snapshot struct {
	Lines        []domain.CartLine   `json:"items"`
	ShippingMode domain.ShippingMode `json:"shippingMode"`
}

// Store is the cart of one visitor. Every mutation is serialised and written
// through to the key-value store before the call returns.
type Store struct {
	mu     sync.Mutex
	kv     kvstore.Store
	logger *zap.Logger

	lines []domain.CartLine
	mode  domain.ShippingMode

	mutations metric.Int64Counter
}

// Option customises a Store.
type Option func(*storeOptions)

type storeOptions struct {
	logger *zap.Logger
	meter  metric.Meter
}

// WithLogger sets the logger used for rehydration and persistence warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// WithMeter overrides the OpenTelemetry meter used for the mutation counter.
func WithMeter(meter metric.Meter) Option {
	return func(o *storeOptions) {
		o.meter = meter
	}
}

// Load rehydrates a cart from kv. It never fails: unreadable state falls back
// to an empty cart and the default shipping mode.
func Load(ctx context.Context, kv kvstore.Store, opts ...Option) *Store {
	options := storeOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.meter == nil {
		options.meter = otel.GetMeterProvider().Meter(meterName)
	}

	s := &Store{
		kv:     kv,
		logger: options.logger,
		mode:   domain.DefaultShippingMode,
	}
	counter, err := options.meter.Int64Counter("cart.mutations",
		metric.WithDescription("Cart mutations applied, by operation"))
	if err != nil {
		s.logger.Warn("cart: register mutation counter", zap.Error(err))
		counter, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter("cart.mutations")
	}
	s.mutations = counter

	s.lines = s.readLines(ctx)
	s.mode = s.readShippingMode(ctx)
	return s
}

func (s *Store) readLines(ctx context.Context) []domain.CartLine {
	raw, ok, err := s.kv.Get(ctx, KeyCartItems)
	if err != nil {
		s.logger.Warn("cart: read persisted lines", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	lines, dropped, err := decodeLines(raw)
	if err != nil {
		s.logger.Warn("cart: discarding unreadable persisted cart", zap.Error(err))
		return nil
	}
	if dropped > 0 {
		s.logger.Warn("cart: dropped invalid persisted lines", zap.Int("dropped", dropped))
	}
	return lines
}

func (s *Store) readShippingMode(ctx context.Context) domain.ShippingMode {
	raw, ok, err := s.kv.Get(ctx, KeyShippingMode)
	if err != nil {
		s.logger.Warn("cart: read persisted shipping mode", zap.Error(err))
		return domain.DefaultShippingMode
	}
	if !ok {
		return domain.DefaultShippingMode
	}
	mode, valid := domain.ParseShippingMode(strings.Trim(string(raw), `"`))
	if !valid {
		s.logger.Warn("cart: ignoring unknown persisted shipping mode", zap.String("value", string(raw)))
		return domain.DefaultShippingMode
	}
	return mode
}

// Add merges quantity units of item into the cart. A quantity below one adds
// a single unit. The result is capped at the item's stock when known; an item
// that cannot be identified, or whose stock is exhausted, is ignored.
func (s *Store) Add(ctx context.Context, item domain.Item, quantity int) error {
	key, err := LineKey(item)
	if err != nil {
		s.logger.Warn("cart: ignoring unidentifiable item", zap.String("name", item.Name))
		return nil
	}
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOf(key); idx >= 0 {
		line := &s.lines[idx]
		if item.Stock != nil {
			line.Stock = cloneStock(item.Stock)
		}
		line.Quantity = clampToStock(line.Quantity+quantity, line.Stock)
		if line.Quantity <= 0 {
			s.removeAt(idx)
		}
	} else {
		line := domain.CartLine{
			Key:         key,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			Name:        item.Name,
			VariantName: item.VariantName,
			WristSize:   item.WristSize,
			Image:       item.Image,
			Price:       item.Price,
			Stock:       cloneStock(item.Stock),
		}
		line.Quantity = clampToStock(quantity, line.Stock)
		if line.Quantity <= 0 {
			return nil
		}
		s.lines = append(s.lines, line)
	}
	return s.persistLines(ctx, "add")
}

// Increase adds one unit, capped at the stock ceiling. Absent lines are left alone.
func (s *Store) Increase(ctx context.Context, item domain.Item) error {
	return s.mutateLine(ctx, item, "increase", func(line *domain.CartLine) {
		if item.Stock != nil {
			line.Stock = cloneStock(item.Stock)
		}
		line.Quantity = clampToStock(line.Quantity+1, line.Stock)
	})
}

// Decrease removes one unit; the line disappears when it reaches zero.
func (s *Store) Decrease(ctx context.Context, item domain.Item) error {
	return s.mutateLine(ctx, item, "decrease", func(line *domain.CartLine) {
		line.Quantity--
	})
}

// Remove deletes the line for item.
func (s *Store) Remove(ctx context.Context, item domain.Item) error {
	return s.mutateLine(ctx, item, "remove", func(line *domain.CartLine) {
		line.Quantity = 0
	})
}

func (s *Store) mutateLine(ctx context.Context, item domain.Item, op string, mutate func(*domain.CartLine)) error {
	key, err := LineKey(item)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(key)
	if idx < 0 {
		return nil
	}
	mutate(&s.lines[idx])
	if s.lines[idx].Quantity <= 0 {
		s.removeAt(idx)
	}
	return s.persistLines(ctx, op)
}

// Clear empties the cart and erases the persisted lines. The shipping mode is kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "clear")))
	if err := s.kv.Delete(ctx, KeyCartItems); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// Settle takes the ordered lines out of the cart: each quantity is subtracted
// from the line with the same key and emptied lines are removed. Anything
// added after the order was taken stays in the cart.
func (s *Store) Settle(ctx context.Context, ordered []domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range ordered {
		idx := s.indexOf(o.Key)
		if idx < 0 {
			continue
		}
		s.lines[idx].Quantity -= o.Quantity
		if s.lines[idx].Quantity <= 0 {
			s.removeAt(idx)
		}
	}
	if len(s.lines) == 0 {
		s.lines = nil
		s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "settle")))
		if err := s.kv.Delete(ctx, KeyCartItems); err != nil {
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return nil
	}
	return s.persistLines(ctx, "settle")
}

// SetShippingMode stores the chosen mode independently of the lines.
func (s *Store) SetShippingMode(ctx context.Context, mode domain.ShippingMode) error {
	parsed, ok := domain.ParseShippingMode(string(mode))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownShippingMode, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = parsed
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "shipping")))
	if err := s.kv.Set(ctx, KeyShippingMode, []byte(parsed)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines)
}

// Line returns the line stored under key.
func (s *Store) Line(key string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(key)
	if idx < 0 {
		return domain.CartLine{}, false
	}
	return cloneLines(s.lines[idx : idx+1])[0], true
}

// ShippingMode returns the selected shipping mode.
func (s *Store) ShippingMode() domain.ShippingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Snapshot returns lines and shipping mode read under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Lines: cloneLines(s.lines), ShippingMode: s.mode}
}

// Totals computes the order totals of the current cart.
func (s *Store) Totals(fee money.Amount) domain.OrderTotals {
	snap := s.Snapshot()
	return ComputeTotals(snap.Lines, snap.ShippingMode, fee)
}

func (s *Store) indexOf(key string) int {
	for i := range s.lines {
		if s.lines[i].Key == key {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(idx int) {
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
}

// persistLines rewrites the whole cartItems value. Callers hold s.mu.
func (s *Store) persistLines(ctx context.Context, op string) error {
	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	lines := s.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.kv.Set(ctx, KeyCartItems, payload); err != nil {
		s.logger.Error("cart: write-through failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func clampToStock(quantity int, stock *int) int {
	if stock != nil && quantity > *stock {
		return *stock
	}
	return quantity
}

func cloneStock(stock *int) *int {
	if stock == nil {
		return nil
	}
	v := *stock
	return &v
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	for i, line := range lines {
		line.Stock = cloneStock(line.Stock)
		out[i] = line
	}
	return out
}

// storedLine is the tolerant decoding of a persisted line: ids and numbers may
// arrive as strings or numbers, and the lineKey may be missing.
type storedLine struct {
	ProductID   json.RawMessage `json:"id"`
	VariantID   json.RawMessage `json:"variantId"`
	Name        string          `json:"name"`
	VariantName string          `json:"variantName"`
	WristSize   string          `json:"wristSize"`
	Image       string          `json:"image"`
	Price       any             `json:"price"`
	Quantity    any             `json:"quantity"`
	Stock       any             `json:"stock"`
}

// decodeLines parses a persisted cartItems value and re-applies the line
// invariants: unidentifiable lines and quantities below one are dropped,
// quantities are capped at stock, and duplicate keys are merged.
func decodeLines(raw []byte) ([]domain.CartLine, int, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, 0, err
	}

	var (
		lines   []domain.CartLine
		dropped int
	)
	for _, element := range elements {
		var stored storedLine
		dec := json.NewDecoder(strings.NewReader(string(element)))
		dec.UseNumber()
		if err := dec.Decode(&stored); err != nil {
			dropped++
			continue
		}
		line := domain.CartLine{
			ProductID:   rawID(stored.ProductID),
			VariantID:   rawID(stored.VariantID),
			Name:        stored.Name,
			VariantName: stored.VariantName,
			WristSize:   stored.WristSize,
			Image:       stored.Image,
			Price:       money.ParsePriceOrZero(stored.Price),
			Stock:       rawStock(stored.Stock),
		}
		key, err := LineKey(line.Item())
		quantity, ok := rawInt(stored.Quantity)
		if err != nil || !ok || quantity < 1 {
			dropped++
			continue
		}
		line.Key = key

		merged := false
		for i := range lines {
			if lines[i].Key == key {
				lines[i].Quantity += quantity
				if line.Stock != nil {
					lines[i].Stock = line.Stock
				}
				merged = true
				break
			}
		}
		if !merged {
			line.Quantity = quantity
			lines = append(lines, line)
		}
	}

	kept := lines[:0]
	for _, line := range lines {
		line.Quantity = clampToStock(line.Quantity, line.Stock)
		if line.Quantity <= 0 {
			dropped++
			continue
		}
		kept = append(kept, line)
	}
	return kept, dropped, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		number := json.Number(strings.TrimSpace(n))
		parsed, err := number.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func rawStock(v any) *int {
	n, ok := rawInt(v)
	if !ok || n < 0 {
		return nil
	}
	return &n
}
