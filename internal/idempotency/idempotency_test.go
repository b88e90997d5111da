package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	redisadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/redis"
	"github.com/robertarktes/tour-package-bookings/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	resp  map[string]redisadapter.IdempResponse
	locks map[string]bool
}

func newMemStore() *memStore {
	return &memStore{resp: map[string]redisadapter.IdempResponse{}, locks: map[string]bool{}}
}

func (m *memStore) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resp[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) Set(_ context.Context, key string, resp redisadapter.IdempResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resp[key] = resp
	return nil
}

func (m *memStore) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memStore) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func TestIdempotency_StoreAndReplay(t *testing.T) {
	ctx := context.Background()
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)

	got, err := idemp.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, idemp.Set(ctx, "k1", idempotency.Response{Status: 201, ContentType: "application/json", Result: []byte(`{"id":"1"}`)}))

	got, err = idemp.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 201, got.Status)
	assert.JSONEq(t, `{"id":"1"}`, string(got.Result))
}

func TestIdempotency_BeginRejectsConcurrentUse(t *testing.T) {
	ctx := context.Background()
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)

	release, err := idemp.Begin(ctx, "k2")
	require.NoError(t, err)

	_, err = idemp.Begin(ctx, "k2")
	require.ErrorIs(t, err, idempotency.ErrInProgress)

	release()
	release, err = idemp.Begin(ctx, "k2")
	require.NoError(t, err)
	release()
}
