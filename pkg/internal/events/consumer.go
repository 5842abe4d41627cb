// Package events 消费照片变更事件，使本实例的缓存失效.
//
// 共享 Redis 时失效已由写入方完成，重复失效无副作用；使用内存 KV 的多实例部署依赖这里保持一致.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/photovault/pkg/queue"
	"github.com/yeisme/photovault/pkg/tracing"
)

// Invalidator 本地失效，*service.Invalidator 满足该接口.
type Invalidator interface {
	Local(ctx context.Context, userID int64, photoIDs []int64) error
}

// Router 注册处理器，*mq.Client 满足该接口.
type Router interface {
	AddHandler(name, topic string, h message.NoPublishHandlerFunc)
}

// Consumer 失效事件消费者.
type Consumer struct {
	inv  Invalidator
	self string
	log  zerolog.Logger
}

// NewConsumer self 为本实例标识，来源相同的事件被跳过.
func NewConsumer(inv Invalidator, self string, l zerolog.Logger) *Consumer {
	return &Consumer{inv: inv, self: self, log: l.With().Str("component", "events").Logger()}
}

// Register 为每个照片主题注册处理器.
func (c *Consumer) Register(r Router) {
	for _, topic := range queue.PhotoTopics {
		r.AddHandler("invalidate_"+topic, topic, c.Handle)
	}
}

// Handle 处理一条消息. 无法解码的消息直接确认，失效失败返回错误以便重投.
// span 挂在发布方的 trace 下.
func (c *Consumer) Handle(msg *message.Message) (err error) {
	topic := msg.Metadata.Get("topic")

	ctx, span := tracing.StartSpan(queue.MessageContext(msg), "events.invalidate",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.message.id", msg.UUID),
		),
	)
	defer func() { tracing.End(span, err) }()

	userID, ids, origin, derr := decode(msg)
	if derr != nil {
		c.log.Error().Err(derr).Str("uuid", msg.UUID).Msg("drop undecodable event")
		return nil
	}

	span.SetAttributes(tracing.UserID(userID))

	if origin != "" && origin == c.self {
		return nil
	}

	if err := c.inv.Local(ctx, userID, ids); err != nil {
		return fmt.Errorf("invalidate from event %s: %w", msg.UUID, err)
	}

	c.log.Debug().Str("topic", topic).Int64("user_id", userID).
		Ints64("photo_ids", ids).Msg("caches invalidated by event")

	return nil
}

func decode(msg *message.Message) (userID int64, ids []int64, origin string, err error) {
	switch topic := msg.Metadata.Get("topic"); topic {
	case queue.TopicAlbumChanged:
		env, err := queue.ParseAlbumChanged(msg)
		if err != nil {
			return 0, nil, "", err
		}

		// 相册变化不影响照片元数据
		return env.Payload.UserID, nil, env.Payload.Origin, nil
	case "":
		return 0, nil, "", errors.New("missing topic metadata")
	default:
		env, err := queue.ParsePhotoChanged(msg)
		if err != nil {
			return 0, nil, "", err
		}

		return env.Payload.UserID, env.Payload.PhotoIDs, env.Payload.Origin, nil
	}
}
