package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/platform/kvstore"
)

const (
	defaultIdleTTL  = 30 * time.Minute
	sweepInterval   = time.Minute
	sessionKeySpace = "session"
)

// Registry hands out one Store per visitor session, rehydrating it from the
// shared key-value store on first use. Carts idle longer than the idle TTL are
// dropped from memory; their persisted state is untouched.
type Registry struct {
	kv      kvstore.Store
	logger  *zap.Logger
	opts    []Option
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	carts     map[string]*residentCart
	lastSweep time.Time
}

type residentCart struct {
	store    *Store
	lastUsed time.Time
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithIdleTTL overrides how long an unused cart stays in memory.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithStoreOptions forwards options to every Store the registry loads.
func WithStoreOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs a Registry over kv.
func NewRegistry(kv kvstore.Store, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		kv:      kv,
		logger:  logger,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
		carts:   make(map[string]*residentCart),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Cart returns the cart of sessionID, loading it when it is not resident.
func (r *Registry) Cart(ctx context.Context, sessionID string) *Store {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= sweepInterval {
		r.sweep(now)
		r.lastSweep = now
	}

	if resident, ok := r.carts[sessionID]; ok {
		resident.lastUsed = now
		return resident.store
	}

	opts := append([]Option{WithLogger(r.logger.With(zap.String("session_id", sessionID)))}, r.opts...)
	store := Load(ctx, Namespace(r.kv, sessionID), opts...)
	r.carts[sessionID] = &residentCart{store: store, lastUsed: now}
	return store
}

// Resident reports how many carts are held in memory.
func (r *Registry) Resident() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

func (r *Registry) sweep(now time.Time) {
	for id, resident := range r.carts {
		if now.Sub(resident.lastUsed) > r.idleTTL {
			delete(r.carts, id)
		}
	}
}

// Namespace scopes kv to the keys of one visitor session.
func Namespace(kv kvstore.Store, sessionID string) kvstore.Store {
	return kvstore.WithNamespace(kv, sessionKeySpace+":"+sessionID)
}
