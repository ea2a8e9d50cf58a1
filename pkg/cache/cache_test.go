package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		ttl         time.Duration
		expectError bool
	}{
		{"valid", 128, time.Minute, false},
		{"zero size", 0, time.Minute, true},
		{"negative size", -1, time.Minute, true},
		{"zero ttl", 128, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.ttl, nil, zerolog.Nop())
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestMemoryTier_SetGet(t *testing.T) {
	c, err := New(16, time.Minute, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	ctx := context.Background()

	if _, ok := c.Get(ctx, "1001"); ok {
		t.Error("Get() should miss on empty cache")
	}

	record := []byte(`{"id":"1001","name":"Gel massage"}`)
	if err := c.Set(ctx, "1001", record); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	data, ok := c.Get(ctx, "1001")
	if !ok {
		t.Fatal("Get() should hit after Set()")
	}
	if string(data) != string(record) {
		t.Errorf("Get() = %q, want %q", data, record)
	}
}

func TestMemoryTier_TTLExpiry(t *testing.T) {
	c, err := New(16, 20*time.Millisecond, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "1001", []byte("{}")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get(ctx, "1001"); ok {
		t.Error("Get() should miss after TTL expiry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expiry eviction, want 0", c.Len())
	}
}

func TestMemoryTier_Eviction(t *testing.T) {
	c, err := New(2, time.Minute, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	ctx := context.Background()

	c.Set(ctx, "1", []byte("a"))
	c.Set(ctx, "2", []byte("b"))
	c.Set(ctx, "3", []byte("c"))

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (LRU bound)", c.Len())
	}
	if _, ok := c.Get(ctx, "1"); ok {
		t.Error("oldest entry should have been evicted")
	}
}

func TestRedisTier_SharedAcrossInstances(t *testing.T) {
	redisClient := setupTestRedis(t)
	ctx := context.Background()

	first, err := New(16, time.Minute, redisClient, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	record := []byte(`{"id":"2002"}`)
	if err := first.Set(ctx, "2002", record); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	// A fresh instance simulates a restarted run: memory tier is cold,
	// Redis tier still holds the record.
	second, err := New(16, time.Minute, redisClient, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	data, ok := second.Get(ctx, "2002")
	if !ok {
		t.Fatal("Get() should hit via the Redis tier")
	}
	if string(data) != string(record) {
		t.Errorf("Get() = %q, want %q", data, record)
	}

	// Redis hit populates the memory tier.
	if second.Len() != 1 {
		t.Errorf("Len() = %d after Redis hit, want 1", second.Len())
	}
}
