package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Tracker backed by Redis TTL keys, for deployments where
// presence must survive a server restart or be shared across instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis at addr and verifies the connection.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func onlineKey(userID int64) string {
	return fmt.Sprintf("presence:online:%d", userID)
}

// SetOnline marks the user as online with a TTL.
func (r *Redis) SetOnline(ctx context.Context, userID int64) error {
	if err := r.client.Set(ctx, onlineKey(userID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// SetOffline clears the user's online mark.
func (r *Redis) SetOffline(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, onlineKey(userID)).Err(); err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

// IsOnline reports whether the user's online key exists.
func (r *Redis) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := r.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
