package ledger_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"renaissance-stewcall/internal/ledger"
)

// fakeKVStore in-memory KV for unit tests
type fakeKVStore struct {
	mu     sync.Mutex
	data   map[string]string
	writes int
	failOn error
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.data[key]
	if !ok {
		return "", ledger.ErrStoreMiss
	}
	return v, nil
}

func (f *fakeKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOn != nil {
		return f.failOn
	}
	f.data[key] = value
	f.writes++
	return nil
}

var errDiskFull = errors.New("disk full")
