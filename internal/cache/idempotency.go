package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Replayer stores the first response produced under an idempotency key so
// retried staff requests can be answered without re-executing.
type Replayer interface {
	// Lookup returns the cached response body for key, if any.
	Lookup(ctx context.Context, key string) ([]byte, bool)
	// Remember stores the response body for key.
	Remember(ctx context.Context, key string, body []byte)
}

const (
	keyPrefix = "idem:"
	keyTTL    = 24 * time.Hour
)

// RedisReplayer is the redis-backed Replayer.
type RedisReplayer struct {
	client *redis.Client
}

// ConnectRedis creates a redis-backed replayer, failing fast if the server
// is unreachable.
func ConnectRedis(addr, password string) *RedisReplayer {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Redis connected")
	return &RedisReplayer{client: client}
}

// Lookup implements Replayer.
func (r *RedisReplayer) Lookup(ctx context.Context, key string) ([]byte, bool) {
	body, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Idempotency] lookup failed for key %s: %v", key, err)
		}
		return nil, false
	}
	return body, true
}

// Remember implements Replayer. A lost write only costs a replay, so
// failures are logged and swallowed.
func (r *RedisReplayer) Remember(ctx context.Context, key string, body []byte) {
	if err := r.client.Set(ctx, keyPrefix+key, body, keyTTL).Err(); err != nil {
		log.Printf("[Idempotency] store failed for key %s: %v", key, err)
	}
}
