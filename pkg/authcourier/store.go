package authcourier

import (
	"context"
	"fmt"
	"sync"
)

// RecordStore upserts auth records keyed by username
type RecordStore interface {
	PutRecord(ctx context.Context, record AuthRecord) error
	Close() error
}

// StoreFactory builds a RecordStore
type StoreFactory func(ctx context.Context) (RecordStore, error)

// LazyStore builds its underlying store on the first write and reuses it
// for the lifetime of the process. A failed build is returned to that
// caller and attempted again on the next write.
type LazyStore struct {
	factory StoreFactory
	store   RecordStore
	mu      sync.Mutex
}

// NewLazyStore creates a store that defers construction to factory
func NewLazyStore(factory StoreFactory) *LazyStore {
	return &LazyStore{factory: factory}
}

func (l *LazyStore) get(ctx context.Context) (RecordStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		return l.store, nil
	}

	store, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}
	l.store = store
	return store, nil
}

// PutRecord writes record through the underlying store, building it first if needed
func (l *LazyStore) PutRecord(ctx context.Context, record AuthRecord) error {
	store, err := l.get(ctx)
	if err != nil {
		return err
	}
	return store.PutRecord(ctx, record)
}

// Close closes the underlying store if it was built
func (l *LazyStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	err := l.store.Close()
	l.store = nil
	return err
}
