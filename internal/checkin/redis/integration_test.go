package redis

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestLocksIntegration runs the lock flow against a real Redis container.
func TestLocksIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redisclient.NewClient(&redisclient.Options{
		Addr:     host + ":" + port.Port(),
		Password: "",
		DB:       0,
	})
	defer client.Close()

	locks := NewLocks(client, 5*time.Second)

	// Lock the registration.
	acquired, err := locks.LockRegistration(ctx, "REG-2026-A7K3", "op-1")
	require.NoError(t, err)
	assert.True(t, acquired, "Expected registration to be lockable")

	// A second kiosk loses the race.
	acquired, err = locks.LockRegistration(ctx, "REG-2026-A7K3", "op-2")
	require.NoError(t, err)
	assert.False(t, acquired, "Expected registration to be already locked")

	// The loser's unlock must not release the winner's lock.
	require.NoError(t, locks.UnlockRegistration(ctx, "REG-2026-A7K3", "op-2"))
	locked, err := locks.IsLocked(ctx, "REG-2026-A7K3")
	require.NoError(t, err)
	assert.True(t, locked)

	// The owner releases, and the registration is lockable again.
	require.NoError(t, locks.UnlockRegistration(ctx, "REG-2026-A7K3", "op-1"))
	acquired, err = locks.LockRegistration(ctx, "REG-2026-A7K3", "op-2")
	require.NoError(t, err)
	assert.True(t, acquired, "Expected registration to be lockable after unlock")
}
