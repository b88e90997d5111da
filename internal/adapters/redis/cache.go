package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func availabilityKey(packageID uuid.UUID) string {
	return "avail:" + packageID.String()
}

// GetAvailability returns the cached availability document of a package. ok is false on a miss.
func (c *Cache) GetAvailability(ctx context.Context, packageID uuid.UUID) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, availabilityKey(packageID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Cache) SetAvailability(ctx context.Context, packageID uuid.UUID, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, availabilityKey(packageID), data, ttl).Err()
}

func (c *Cache) InvalidateAvailability(ctx context.Context, packageID uuid.UUID) error {
	return c.client.Del(ctx, availabilityKey(packageID)).Err()
}

// SetOnce records key and reports whether it was not seen before.
func (c *Cache) SetOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "once:"+key, 1, ttl)
	return res.Val(), res.Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
