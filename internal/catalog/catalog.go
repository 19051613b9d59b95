// Package catalog caches the product and category lists fetched from the
// backend and resolves cart items from them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
)

// ErrProductNotFound is returned for ids missing from the backend.
var ErrProductNotFound = errors.New("catalog: product not found")

// Source fetches catalog data. *backend.Client satisfies it.
type Source interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// Cache holds the last applied products and categories. The two lists are
// refreshed independently; a failure of one leaves the other usable.
type Cache struct {
	source   Source
	logger   *zap.Logger
	now      func() time.Time
	notFound error

	mu          sync.RWMutex
	generation  uint64
	products    []domain.Product
	byID        map[string]domain.Product
	categories  []domain.Category
	refreshedAt time.Time
}

// Option configures the cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotFound tells the cache which source error means "no such product".
func WithNotFound(err error) Option {
	return func(c *Cache) {
		c.notFound = err
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs an empty cache over source.
func New(source Source, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		logger: zap.NewNop(),
		now:    time.Now,
		byID:   map[string]domain.Product{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Refresh fetches products and categories. A result is applied only while
// ctx is live and no later Refresh has started; superseded results are
// discarded. The returned error joins the failures of both fetches.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	var (
		wg                 sync.WaitGroup
		products           []domain.Product
		categories         []domain.Category
		productErr, catErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		products, productErr = c.source.ListProducts(ctx)
	}()
	go func() {
		defer wg.Done()
		categories, catErr = c.source.ListCategories(ctx)
	}()
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || gen != c.generation {
		c.logger.Debug("discarding superseded catalog refresh", zap.Uint64("generation", gen))
		return nil
	}
	if productErr == nil {
		c.applyProducts(products)
	} else {
		c.logger.Warn("catalog products fetch failed", zap.Error(productErr))
	}
	if catErr == nil {
		c.categories = append([]domain.Category(nil), categories...)
	} else {
		c.logger.Warn("catalog categories fetch failed", zap.Error(catErr))
	}
	if productErr == nil || catErr == nil {
		c.refreshedAt = c.now()
	}
	return errors.Join(wrap("products", productErr), wrap("categories", catErr))
}

func (c *Cache) applyProducts(products []domain.Product) {
	c.products = make([]domain.Product, 0, len(products))
	c.byID = make(map[string]domain.Product, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		c.products = append(c.products, p)
		c.byID[p.ID] = p
	}
}

// Products returns the cached products in backend order.
func (c *Cache) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Product(nil), c.products...)
}

// Categories returns the cached categories.
func (c *Cache) Categories() []domain.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Category(nil), c.categories...)
}

// RefreshedAt is the time of the last applied refresh, zero before the first.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Product returns a product by id, fetching and caching it on a miss.
func (c *Cache) Product(ctx context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	p, ok := c.byID[id]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := c.source.GetProduct(ctx, id)
	if err != nil {
		if c.notFound != nil && errors.Is(err, c.notFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return domain.Product{}, fmt.Errorf("catalog: get product %s: %w", id, err)
	}
	c.mu.Lock()
	c.byID[p.ID] = p
	c.mu.Unlock()
	return p, nil
}

// Item resolves the cart item for a product and optional variant.
func (c *Cache) Item(ctx context.Context, productID, variantID string) (domain.Item, error) {
	p, err := c.Product(ctx, productID)
	if err != nil {
		return domain.Item{}, err
	}
	item, err := p.Item(variantID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("catalog: product %s: %w", productID, err)
	}
	return item, nil
}

// Run refreshes the cache every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("catalog refresh failed", zap.Error(err))
			}
		}
	}
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("catalog: refresh %s: %w", what, err)
}
