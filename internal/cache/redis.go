package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLock deletes a lock only while it still carries the caller's
// token, so an expired holder cannot drop a lock taken after it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache holds short-lived availability snapshots and per-booking
// decision locks. Neither is a source of truth: capacity and status are
// always decided by the database.
type RedisCache struct {
	client          *redis.Client
	availabilityTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, availabilityTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:          redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		availabilityTTL: availabilityTTL,
	}
}

func newWithClient(client *redis.Client, availabilityTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, availabilityTTL: availabilityTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetAvailability returns nil without error on a cache miss.
func (c *RedisCache) GetAvailability(ctx context.Context, packageID string) (*domain.Availability, error) {
	data, err := c.client.Get(ctx, availabilityKey(packageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var a domain.Availability
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *RedisCache) SetAvailability(ctx context.Context, a domain.Availability) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, availabilityKey(a.PackageID), payload, c.availabilityTTL).Err()
}

func (c *RedisCache) InvalidateAvailability(ctx context.Context, packageID string) error {
	return c.client.Del(ctx, availabilityKey(packageID)).Err()
}

// AcquireDecisionLock returns the token the lock must be released with.
func (c *RedisCache) AcquireDecisionLock(ctx context.Context, bookingID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, decisionLockKey(bookingID), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (c *RedisCache) ReleaseDecisionLock(ctx context.Context, bookingID, token string) error {
	return releaseLock.Run(ctx, c.client, []string{decisionLockKey(bookingID)}, token).Err()
}

func availabilityKey(packageID string) string {
	return fmt.Sprintf("cache:package:%s:availability", packageID)
}

func decisionLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking:%s:decision", bookingID)
}
