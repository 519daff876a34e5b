package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewClient connects and pings; workflows can run without Redis, so the
// caller decides whether a failure here is fatal.
func NewClient(ctx context.Context, address string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		PoolSize: 100,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
