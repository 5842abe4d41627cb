// Package queue 定义照片变更事件的主题、负载与编解码.
//
// 概览
//   - 发布/订阅模型，用于在实例之间传播缓存失效
//   - 统一的消息封装：Message[Payload] = Header + Payload
//   - 主题常量见 topics.go，负载结构体见 payloads.go
//   - JSON 编解码使用 bytedance/sonic，消息 ID 使用 ULID（按时间有序，便于排查）
//
// 消息信封（Envelope）JSON 结构
//
//	{
//	  "header": {
//	    "topic": "pv.photo.updated",
//	    "trace_id": "optional-trace-id",
//	    "producer": "photovault",
//	    "occurred_at": "2025-01-02T03:04:05.123456Z",
//	    "version": "v1"
//	  },
//	  "payload": {"user_id": 7, "photo_ids": [42], "fields": ["caption"]}
//	}
//
// 发布示例
//
//	err := queue.PublishPhotoChanged(ctx, client, queue.TopicPhotoUpdated, queue.PhotoChangedPayload{
//	  UserID: 7, PhotoIDs: []int64{42},
//	}, queue.WithProducer("photovault"))
//
// 追踪上下文以 W3C traceparent 写入消息元数据，消费端用 MessageContext 取回.
//
// 注意事项
//  1. occurred_at 为 UTC，RFC3339 格式
//  2. version 便于后向兼容，消费者应忽略未知字段
//  3. 失效处理是幂等的，重复投递无副作用
package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/oklog/ulid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	PayloadVersionV1 string = "v1"
)

// ErrUnsupportedVersion 负载主版本不是 v1.
var ErrUnsupportedVersion = errors.New("queue: unsupported payload version")

// Publisher 带 context 的发布接口，*mq.Client 满足该接口.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// NewEventHeader 便捷创建事件头.
func NewEventHeader(topic string, opts ...func(*EventHeader)) EventHeader {
	hdr := EventHeader{
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}
	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// WithTraceID 设置 TraceID.
func WithTraceID(id string) func(*EventHeader) { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) func(*EventHeader) { return func(h *EventHeader) { h.Producer = p } }

// Encode 将消息封装为 JSON 字节切片.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 从 JSON 字节解码为消息. v1.x 均可解码，其他主版本返回 ErrUnsupportedVersion.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]

	if err := sonic.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode envelope: %w", err)
	}

	if v := m.Header.Version; v != "" && v != PayloadVersionV1 && !strings.HasPrefix(v, PayloadVersionV1+".") {
		return m, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}

	return m, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID 生成单调递增的消息 ID，同一毫秒内也保持有序.
func NewMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewWatermillMessage 构造一个 watermill 消息，设置 ID 与元数据.
func NewWatermillMessage[T any](topic string, payload T, opts ...func(*EventHeader)) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)

	data, err := Encode(Message[T]{Header: header, Payload: payload})
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(NewMessageID(), data)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("occurred_at", header.OccurredAt.Format(time.RFC3339Nano))
	msg.Metadata.Set("version", header.Version)

	if header.TraceID != "" {
		msg.Metadata.Set("trace_id", header.TraceID)
	}

	if header.Producer != "" {
		msg.Metadata.Set("producer", header.Producer)
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	return Decode[T](msg.Payload)
}

// InjectTrace 把 ctx 中的追踪上下文写入消息元数据.
func InjectTrace(ctx context.Context, msg *message.Message) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	msg.SetContext(ctx)
}

// MessageContext 返回带上游追踪上下文的 context，用于消费端开启子 span.
func MessageContext(msg *message.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(msg.Context(), propagation.MapCarrier(msg.Metadata))
}

// publish 构造、注入追踪并发布. 事件头未指定 TraceID 时取 ctx 中的 trace id.
func publish[T any](ctx context.Context, pub Publisher, topic string, payload T, opts ...func(*EventHeader)) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		opts = append([]func(*EventHeader){WithTraceID(sc.TraceID().String())}, opts...)
	}

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	InjectTrace(ctx, msg)

	return pub.Publish(ctx, topic, msg)
}
