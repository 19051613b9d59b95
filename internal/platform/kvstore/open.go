package kvstore

import (
	"context"
	"fmt"

	"github.com/Lakyn80/naramkova-moda/internal/platform/config"
	pfirestore "github.com/Lakyn80/naramkova-moda/internal/platform/firestore"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		return NewFirestoreStore(provider, WithCollection(cfg.Firestore.Collection)), nil
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", cfg.Driver)
	}
}
