package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return addr
}

// go test -v --run ^TestRedisLocker$
func TestRedisLocker(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	a := NewRedisLocker(rdb, "p2pcollector:")
	b := NewRedisLocker(rdb, "p2pcollector:")

	release, ok, err := a.Acquire(ctx, "cycle:p2p", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Acquire(ctx, "cycle:p2p", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	other, ok, err := b.Acquire(ctx, "cycle:spot", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "families lock independently")
	other()

	release()
	release()

	again, ok, err := b.Acquire(ctx, "cycle:p2p", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	defer again()
}

// go test -v --run ^TestRedisLockerKeepsForeignLock$
func TestRedisLockerKeepsForeignLock(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	l := NewRedisLocker(rdb, "")
	release, ok, err := l.Acquire(ctx, "cycle:p2p", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, rdb.Set(ctx, "cycle:p2p", "someone-else", time.Minute).Err())

	release()
	val, err := rdb.Get(ctx, "cycle:p2p").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

// go test -v --run ^TestRedisClientPingFails$
func TestRedisClientPingFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
