package cron

import (
	"context"
	"testing"
	"time"
)

type fakeLeaseStore struct {
	values map[string]string
}

func newFakeLeaseStore() *fakeLeaseStore {
	return &fakeLeaseStore{values: make(map[string]string)}
}

func (f *fakeLeaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLeaseStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func TestRedisLeaseSingleHolder(t *testing.T) {
	store := newFakeLeaseStore()
	ctx := context.Background()

	holder, err := NewRedisLease(store, "cl:lock:cron-worker:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLease: %v", err)
	}
	rival, err := NewRedisLease(store, "cl:lock:cron-worker:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLease: %v", err)
	}

	held, err := holder.Acquire(ctx)
	if err != nil || !held {
		t.Fatalf("first acquire: held=%v err=%v", held, err)
	}
	held, err = rival.Acquire(ctx)
	if err != nil {
		t.Fatalf("rival acquire: %v", err)
	}
	if held {
		t.Fatal("second holder must not acquire a held lease")
	}

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	held, err = rival.Acquire(ctx)
	if err != nil || !held {
		t.Fatalf("acquire after release: held=%v err=%v", held, err)
	}
}

func TestRedisLeaseReleaseAfterExpiry(t *testing.T) {
	store := newFakeLeaseStore()
	ctx := context.Background()

	holder, err := NewRedisLease(store, "cl:lock:cron-worker:test", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLease: %v", err)
	}
	if _, err := holder.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate TTL expiry followed by a successor claim.
	store.values["cl:lock:cron-worker:test"] = "someone-else"

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["cl:lock:cron-worker:test"] != "someone-else" {
		t.Fatal("stale holder must not delete the successor's lease")
	}
}

func TestRedisLeaseValidation(t *testing.T) {
	if _, err := NewRedisLease(nil, "key", time.Minute); err == nil {
		t.Fatal("nil store must be rejected")
	}
	if _, err := NewRedisLease(newFakeLeaseStore(), "", time.Minute); err == nil {
		t.Fatal("empty key must be rejected")
	}
}
