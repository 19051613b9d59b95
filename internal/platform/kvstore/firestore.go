package kvstore

import (
	"context"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Lakyn80/naramkova-moda/internal/platform/firestore"
)

const defaultCollection = "carts"

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding the values.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore keeps one document per key.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
}

type firestoreValue struct {
	Value     []byte    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// NewFirestoreStore constructs a Firestore-backed store. The client is dialled on first use.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		provider:   provider,
		collection: defaultCollection,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	// Document ids may not contain "/".
	return client.Collection(s.collection).Doc(url.PathEscape(key)), nil
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return nil, false, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pfirestore.WrapError("kvstore.get", err)
	}
	var stored firestoreValue
	if err := snap.DataTo(&stored); err != nil {
		return nil, false, pfirestore.WrapError("kvstore.decode", err)
	}
	return stored.Value, true, nil
}

// Set implements Store.
func (s *FirestoreStore) Set(ctx context.Context, key string, value []byte) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, firestoreValue{Value: value, UpdatedAt: s.now().UTC()})
	return pfirestore.WrapError("kvstore.set", err)
}

// Delete implements Store.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError("kvstore.delete", err)
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.provider.Close()
}
