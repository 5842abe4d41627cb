package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/photovault/pkg/configs"
)

// DefaultChannelBufferSize 默认通道缓冲区大小.
const DefaultChannelBufferSize = 100

// uuidSep 分隔消息 id 与 payload. redis pub/sub 只有 payload，用前缀携带 id.
const uuidSep = '\n'

func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisFactory 基于 redis pub/sub 的 Publisher & Subscriber. 没有持久化，离线实例会丢消息.
func redisFactory(ctx context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (Backend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return Backend{}, fmt.Errorf("ping redis: %w", err)
	}

	sub := &RedisSubscriber{
		client:  rdb,
		logger:  logger,
		block:   time.Duration(cfg.Redis.Block) * time.Millisecond,
		closeCh: make(chan struct{}),
	}

	return Backend{
		Publisher:  &RedisPublisher{client: rdb},
		Subscriber: sub,
		Health: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		Close: rdb.Close,
	}, nil
}

// RedisPublisher Redis Publisher 实现.
type RedisPublisher struct {
	client *redis.Client
}

func encodeRedisMessage(msg *message.Message) []byte {
	buf := make([]byte, 0, len(msg.UUID)+1+len(msg.Payload))
	buf = append(buf, msg.UUID...)
	buf = append(buf, uuidSep)

	return append(buf, msg.Payload...)
}

func decodeRedisMessage(raw string) *message.Message {
	for i := 0; i < len(raw); i++ {
		if raw[i] == uuidSep {
			return message.NewMessage(raw[:i], []byte(raw[i+1:]))
		}
	}

	return message.NewMessage(watermill.NewUUID(), []byte(raw))
}

// Publish 实现 Publisher 接口.
func (p *RedisPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		ctx := msg.Context()
		if err := p.client.Publish(ctx, topic, encodeRedisMessage(msg)).Err(); err != nil {
			return err
		}
	}

	return nil
}

// Close 客户端由 Backend.Close 统一关闭.
func (p *RedisPublisher) Close() error {
	return nil
}

// RedisSubscriber Redis Subscriber 实现，每次 Subscribe 使用独立的 PubSub 连接.
type RedisSubscriber struct {
	client *redis.Client
	logger watermill.LoggerAdapter
	block  time.Duration

	mu      sync.Mutex
	subs    []*redis.PubSub
	wg      sync.WaitGroup
	closed  bool
	closeCh chan struct{}
}

// Subscribe 实现 Subscriber 接口. 消息在处理方 Ack 或 Nack 后才继续下一条.
func (s *RedisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("redis subscriber closed")
	}

	ps := s.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.subs = append(s.subs, ps)

	out := make(chan *message.Message, DefaultChannelBufferSize)
	in := ps.Channel()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(out)

		for {
			select {
			case <-s.closeCh:
				return
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}

				if !s.deliver(ctx, out, decodeRedisMessage(raw.Payload), topic) {
					return
				}
			}
		}
	}()

	return out, nil
}

// deliver 发送消息并等待确认，Nack 时按 block 间隔重投.
func (s *RedisSubscriber) deliver(ctx context.Context, out chan<- *message.Message, msg *message.Message, topic string) bool {
	for {
		m := msg.Copy()
		m.SetContext(ctx)

		select {
		case out <- m:
		case <-s.closeCh:
			return false
		case <-ctx.Done():
			return false
		}

		select {
		case <-m.Acked():
			return true
		case <-m.Nacked():
			s.logger.Debug("message nacked, redelivering", watermill.LogFields{"uuid": m.UUID, "topic": topic})
		case <-s.closeCh:
			return false
		case <-ctx.Done():
			return false
		}

		select {
		case <-time.After(s.block):
		case <-s.closeCh:
			return false
		}
	}
}

// Close 实现 Subscriber 接口.
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	close(s.closeCh)

	var errs []error
	for _, ps := range s.subs {
		errs = append(errs, ps.Close())
	}

	s.mu.Unlock()
	s.wg.Wait()

	return errors.Join(errs...)
}
