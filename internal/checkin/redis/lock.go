package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locks hands out short-lived advisory locks, one per registration, so that
// concurrent kiosk scans of the same badge mostly serialize before hitting the
// store. The lock is not the correctness mechanism; the store's conditional
// write is. A lock that cannot be acquired only means another kiosk is mid
// check-in on the same registration.
type Locks struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewLocks(client *redis.Client, ttl time.Duration) *Locks {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locks{Client: client, TTL: ttl}
}

func lockKey(registrationID string) string {
	return "checkin_lock:" + registrationID
}

// LockRegistration tries to take the registration's lock for this operation.
// Returns false without error when someone else holds it.
func (l *Locks) LockRegistration(ctx context.Context, registrationID, operationID string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(registrationID), operationID, l.TTL).Result()
}

// UnlockRegistration releases the lock if this operation still owns it. A lock
// that expired or was taken over is left alone.
func (l *Locks) UnlockRegistration(ctx context.Context, registrationID, operationID string) error {
	key := lockKey(registrationID)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != operationID {
		return nil
	}
	if _, err := l.Client.Del(ctx, key).Result(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// IsLocked reports whether a registration is currently mid check-in.
func (l *Locks) IsLocked(ctx context.Context, registrationID string) (bool, error) {
	_, err := l.Client.Get(ctx, lockKey(registrationID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
