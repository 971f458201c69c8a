package secrets

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/redis"
)

// DefaultRedisPrefix namespaces secret keys in Redis
const DefaultRedisPrefix = "fern:secret:"

// RedisBackend stores sealed secrets as Redis strings without expiry
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) Put(ctx context.Context, account string, sealed []byte) error {
	return b.client.Set(ctx, b.prefix+account, sealed, 0)
}

func (b *RedisBackend) Fetch(ctx context.Context, account string) ([]byte, bool, error) {
	value, ok, err := b.client.GetOptional(ctx, b.prefix+account)
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (b *RedisBackend) Delete(ctx context.Context, account string) error {
	return b.client.Del(ctx, b.prefix+account)
}
