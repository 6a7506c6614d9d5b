//go:build integration

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shopflow/shopflow/internal/domain/order"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	addr, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestOrderRepository_ReadThrough(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	next := newCountingRepo(sampleOrder(1))
	repo := NewOrderRepository(next, rdb, time.Minute)

	first, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, next.getCount())
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, decimal.RequireFromString("8.5").Equal(second.TotalPrice))
	require.Len(t, second.Items, 1)
	assert.Equal(t, int64(3), second.Items[0].ProductID)

	ttl, err := rdb.TTL(ctx, key(1)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}

func TestOrderRepository_WritesEvict(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	next := newCountingRepo(sampleOrder(1))
	repo := NewOrderRepository(next, rdb, time.Minute)

	_, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, 1, order.StatusShipped, time.Now())
	require.NoError(t, err)
	o, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
	assert.Equal(t, 2, next.getCount())

	require.NoError(t, repo.Delete(ctx, 1))
	_, err = repo.GetByID(ctx, 1)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_ConcurrentMissesCoalesce(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	next := newCountingRepo(sampleOrder(1))
	repo := NewOrderRepository(next, rdb, time.Minute)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.GetByID(ctx, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, next.getCount(), 20)
	assert.GreaterOrEqual(t, next.getCount(), 1)

	before := next.getCount()
	_, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, next.getCount(), "cached read must not reach the repository")
}

func TestOrderRepository_FillRacingDeleteIsDropped(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	next := newGatedRepo(sampleOrder(1))
	repo := NewOrderRepository(next, rdb, time.Minute)

	read := make(chan *order.Order, 1)
	go func() {
		o, err := repo.GetByID(ctx, 1)
		assert.NoError(t, err)
		read <- o
	}()
	<-next.entered

	// The order is rolled back while the reader still holds the old row.
	require.NoError(t, repo.Delete(ctx, 1))
	close(next.release)
	require.NotNil(t, <-read)

	n, err := rdb.Exists(ctx, key(1)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.GetByID(ctx, 1)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_FillRacingUpdateIsDropped(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	next := newGatedRepo(sampleOrder(1))
	repo := NewOrderRepository(next, rdb, time.Minute)

	read := make(chan struct{})
	go func() {
		defer close(read)
		o, err := repo.GetByID(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
	}()
	<-next.entered

	_, err := repo.UpdateStatus(ctx, 1, order.StatusShipped, time.Now())
	require.NoError(t, err)
	close(next.release)
	<-read

	o, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, o.Status)
}
