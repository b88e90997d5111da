// Package idempotency replays stored responses for requests repeated with the same
// Idempotency-Key, so a retried booking submission never creates a second booking.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/redis"
)

var ErrInProgress = errors.New("a request with this idempotency key is still in progress")

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	store   Store
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl, lockTTL: 30 * time.Second}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "idempotency lookup")
	}
	if stored == nil {
		return nil, nil
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	err := i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
	return errors.Wrap(err, "idempotency store")
}

// Begin claims key for one in-flight request. It returns ErrInProgress when another request
// holds the key. The returned release func must be called once the response is stored.
func (i *Idempotency) Begin(ctx context.Context, key string) (func(), error) {
	ok, err := i.store.Lock(ctx, key, i.lockTTL)
	if err != nil {
		return nil, errors.Wrap(err, "idempotency lock")
	}
	if !ok {
		return nil, ErrInProgress
	}
	return func() {
		_ = i.store.Unlock(context.WithoutCancel(ctx), key)
	}, nil
}
