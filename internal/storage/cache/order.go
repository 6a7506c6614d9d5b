// Package cache provides a Redis read-through cache in front of the order
// repository.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shopflow/shopflow/internal/domain/order"
)

const (
	keyPrefix = "shopflow:order:"

	// versionTTL bounds the life of a version key. It only has to outlive
	// the fills in flight.
	versionTTL  = time.Hour
	fillTimeout = 5 * time.Second
)

// storeIfCurrent caches an order only while its version still matches the
// one read before the repository lookup. A write in between bumps the
// version and the stale fill is dropped.
var storeIfCurrent = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// invalidate bumps the order version and drops the cached order.
var invalidate = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[1])
return 1
`)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository caches GetByID results of the wrapped repository and
// evicts an order on every write to it. Every order has a version key that
// writes bump before and after the write, so a fill that raced a write never
// lands. Redis failures degrade to the wrapped repository.
type OrderRepository struct {
	next  order.Repository
	rdb   redis.UniversalClient
	ttl   time.Duration
	group singleflight.Group
}

// NewOrderRepository wraps next with a cache of the given TTL.
func NewOrderRepository(next order.Repository, rdb redis.UniversalClient, ttl time.Duration) *OrderRepository {
	return &OrderRepository{next: next, rdb: rdb, ttl: ttl}
}

// key and versionKey share a hash tag so both live in one cluster slot.
func key(id int64) string {
	return keyPrefix + "{" + strconv.FormatInt(id, 10) + "}"
}

func versionKey(id int64) string {
	return key(id) + ":v"
}

// Create stores the order. New orders are not cached until first read.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.next.Create(ctx, o)
}

// GetByID serves the order from Redis, filling the cache on a miss.
// Concurrent misses for one order share a single repository read.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	lg := zctx.From(ctx)
	k := key(id)

	data, err := r.rdb.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var o order.Order
		if err := json.Unmarshal(data, &o); err == nil {
			return &o, nil
		}
		lg.Warn("Corrupt cached order, evicting", zap.Int64("order_id", id))
		r.evict(ctx, id)
	case !errors.Is(err, redis.Nil):
		lg.Warn("Order cache read failed", zap.Int64("order_id", id), zap.Error(err))
	}

	// The fill outlives the caller that started it, so one canceled request
	// does not fail the readers sharing the fill.
	ch := r.group.DoChan(k, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		version, verErr := r.version(fillCtx, id)
		o, err := r.next.GetByID(fillCtx, id)
		if err != nil {
			return nil, err
		}
		if verErr != nil {
			lg.Warn("Order cache version read failed", zap.Int64("order_id", id), zap.Error(verErr))
			return o, nil
		}
		r.store(fillCtx, o, version)
		return o, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		o := *res.Val.(*order.Order)
		return &o, nil
	}
}

// ListByUser is not cached.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return r.next.ListByUser(ctx, userID)
}

// UpdateStatus writes through and evicts the cached order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status, at time.Time) (*order.Order, error) {
	r.evict(ctx, id)
	defer r.evict(ctx, id)
	return r.next.UpdateStatus(ctx, id, status, at)
}

// Cancel writes through and evicts the cached order.
func (r *OrderRepository) Cancel(ctx context.Context, id int64, at time.Time) (*order.Order, error) {
	r.evict(ctx, id)
	defer r.evict(ctx, id)
	return r.next.Cancel(ctx, id, at)
}

// Delete writes through and evicts the cached order, so a rolled back order
// is never served from the cache.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	r.evict(ctx, id)
	defer r.evict(ctx, id)
	return r.next.Delete(ctx, id)
}

func (r *OrderRepository) version(ctx context.Context, id int64) (string, error) {
	v, err := r.rdb.Get(ctx, versionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return v, err
}

func (r *OrderRepository) store(ctx context.Context, o *order.Order, version string) {
	data, err := json.Marshal(o)
	if err != nil {
		zctx.From(ctx).Warn("Encode order for cache", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	keys := []string{key(o.ID), versionKey(o.ID)}
	stored, err := storeIfCurrent.Run(ctx, r.rdb, keys, version, data, r.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		zctx.From(ctx).Warn("Order cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	case stored == 0:
		zctx.From(ctx).Debug("Order changed during fill, not cached", zap.Int64("order_id", o.ID))
	}
}

// evict runs even when ctx is already canceled.
func (r *OrderRepository) evict(ctx context.Context, id int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
	defer cancel()

	keys := []string{key(id), versionKey(id)}
	if err := invalidate.Run(ctx, r.rdb, keys, versionTTL.Milliseconds()).Err(); err != nil {
		zctx.From(ctx).Warn("Order cache eviction failed", zap.Int64("order_id", id), zap.Error(err))
	}
}
