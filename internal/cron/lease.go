package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The lease outlives a daily cycle by an hour, so a worker that dies
// mid-cycle cannot wedge the schedule for longer than that.
const defaultLeaseTTL = 25 * time.Hour

// Lock serializes cycles across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// leaseStore is the slice of the redis client the lease needs.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLease is a single-holder lease keyed on the deploy environment.
// Release is compare-and-delete on the holder token, never a bare DEL, so
// an instance whose lease already expired cannot free a successor's.
type RedisLease struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLease(store leaseStore, key string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("lease store is required")
	}
	if key == "" {
		return nil, errors.New("lease key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{store: store, key: key, ttl: ttl}, nil
}

// Acquire claims the lease for the configured TTL. It reports false when
// another holder already has it.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	claimed, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim lease: %w", err)
	}
	if claimed {
		l.token = token
	}
	return claimed, nil
}

// Release frees the lease if this instance still holds it.
func (l *RedisLease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if _, err := l.store.CompareAndDelete(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	l.token = ""
	return nil
}
