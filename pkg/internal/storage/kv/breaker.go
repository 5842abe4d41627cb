package kv

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/log"
	"github.com/yeisme/photovault/pkg/metrics"
)

// BreakerName KV 熔断器在指标与日志中的名字.
const BreakerName = "kv"

// BreakerStore 用 gobreaker 包裹 Store. 熔断打开时直接返回 gobreaker.ErrOpenState，
// 搜索层把它当作缓存未命中处理，请求降级为回源.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore 创建带熔断的 Store.
func NewBreakerStore(inner Store, cfg configs.CircuitBreakerConfig) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        BreakerName,
		MaxRequests: cfg.MaxRequestsInHalf,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.ShouldTrip(counts.Requests, counts.TotalFailures)
		},
		// 未命中不是故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrKeyNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.Logger().Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("kv breaker state changed")
		},
	}

	metrics.BreakerState.WithLabelValues(BreakerName).Set(float64(gobreaker.StateClosed))

	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State 返回当前熔断状态.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func run[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T

	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.BreakerRejected.WithLabelValues(BreakerName).Inc()
		}

		return zero, err
	}

	v, _ := out.(T)

	return v, nil
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	return run(b, func() ([]byte, error) { return b.inner.Get(ctx, key) })
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.inner.Set(ctx, key, value, ttl) })
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.inner.Delete(ctx, keys...) })
	return err
}

func (b *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return run(b, func() (bool, error) { return b.inner.Exists(ctx, key) })
}

func (b *BreakerStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return run(b, func() ([]string, error) { return b.inner.Keys(ctx, pattern) })
}

func (b *BreakerStore) HSetMany(ctx context.Context, items map[string]map[string]string, ttl time.Duration) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.inner.HSetMany(ctx, items, ttl) })
	return err
}

func (b *BreakerStore) HGetAllMany(ctx context.Context, keys []string) (map[string]map[string]string, error) {
	return run(b, func() (map[string]map[string]string, error) { return b.inner.HGetAllMany(ctx, keys) })
}

func (b *BreakerStore) ZAppend(ctx context.Context, args ZAppendArgs) (bool, error) {
	return run(b, func() (bool, error) { return b.inner.ZAppend(ctx, args) })
}

func (b *BreakerStore) ZRangeAfter(ctx context.Context, key, completeKey, after string, count int) (ZWindow, error) {
	return run(b, func() (ZWindow, error) { return b.inner.ZRangeAfter(ctx, key, completeKey, after, count) })
}

// Ping 不经过熔断，健康检查需要看到真实状态.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}
