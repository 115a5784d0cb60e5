//go:build integration

package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestStore_Integration_Lifecycle(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	store := NewStore(redisClient, zerolog.Nop())
	ctx := context.Background()

	// Fresh store has no checkpoint.
	windowEnd, err := store.LastWindowEnd(ctx)
	if err != nil {
		t.Fatalf("LastWindowEnd() error = %v", err)
	}
	if !windowEnd.IsZero() {
		t.Errorf("Fresh LastWindowEnd() = %v, want zero time", windowEnd)
	}

	// Advance twice; the cursor tracks the latest window.
	first := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)

	if err := store.Advance(ctx, first, "cycle-a"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if err := store.Advance(ctx, second, "cycle-b"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	windowEnd, err = store.LastWindowEnd(ctx)
	if err != nil {
		t.Fatalf("LastWindowEnd() error = %v", err)
	}
	if !windowEnd.Equal(second) {
		t.Errorf("LastWindowEnd() = %v, want %v", windowEnd, second)
	}

	// Clear resets the cursor.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	windowEnd, err = store.LastWindowEnd(ctx)
	if err != nil {
		t.Fatalf("LastWindowEnd() after Clear error = %v", err)
	}
	if !windowEnd.IsZero() {
		t.Errorf("LastWindowEnd() after Clear = %v, want zero time", windowEnd)
	}
}
