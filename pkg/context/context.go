// Package context 拓展上下文功能，将存储管理器、当前用户与请求 logger 集成到上下文中.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/photovault/pkg/internal/storage"
	dbc "github.com/yeisme/photovault/pkg/internal/storage/db"
	kvc "github.com/yeisme/photovault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/photovault/pkg/internal/storage/mq"
	s3c "github.com/yeisme/photovault/pkg/internal/storage/s3"
)

type (
	managerKey struct{}
	userIDKey  struct{}
)

// WithStorageManager 将 Manager 存储到 context 中.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, mgr)
}

// GetManager 从 context 中获取 Manager.
func GetManager(ctx context.Context) *storage.Manager {
	mgr, _ := ctx.Value(managerKey{}).(*storage.Manager)
	return mgr
}

// client 在 Manager 存在时取出其中一个客户端.
func client[T any](ctx context.Context, get func(*storage.Manager) *T) *T {
	if mgr := GetManager(ctx); mgr != nil {
		return get(mgr)
	}

	return nil
}

// GetS3Client 从 context 中获取 S3 客户端.
func GetS3Client(ctx context.Context) *s3c.Client {
	return client(ctx, (*storage.Manager).GetS3Client)
}

// GetDBClient 从 context 中获取 DB 客户端.
func GetDBClient(ctx context.Context) *dbc.Client {
	return client(ctx, (*storage.Manager).GetDBClient)
}

// GetMQClient 从 context 中获取 MQ 客户端.
func GetMQClient(ctx context.Context) *mqc.Client {
	return client(ctx, (*storage.Manager).GetMQClient)
}

// GetKVClient 从 context 中获取 KV 客户端.
func GetKVClient(ctx context.Context) *kvc.Client {
	return client(ctx, (*storage.Manager).GetKVClient)
}

// WithUserID 记录已认证的用户.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID 返回已认证的用户，未认证时 ok 为 false.
func GetUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	return id, ok && id > 0
}

// WithTraceContext 创建带有 trace_id / span_id 的 logger.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}

	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// Logger 返回请求 logger. 请求日志中间件已放入 logger 时沿用它(带 request_id)，
// 否则用 fallback 并补上追踪字段.
func Logger(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}

	return WithTraceContext(ctx, fallback)
}
