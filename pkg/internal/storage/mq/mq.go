// Package mq 基于 Watermill 提供统一的消息队列客户端，通过工厂模式抽象不同实现.
//
// 支持的 MQ 类型：
//   - nats（可选 JetStream）
//   - redis（pub/sub）
//   - memory（进程内 gochannel）
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.MQ, mq.Options{Logger: nlog.Logger()})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	msg := message.NewMessage(watermill.NewUUID(), payload)
//	err = client.Publish(ctx, "pv.photo.updated", msg)
package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/yeisme/photovault/pkg/configs"
)

// Backend 工厂创建的底层资源.
type Backend struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Health 可选，检查底层连接
	Health func(ctx context.Context) error
	// Close 可选，释放 Publisher/Subscriber 之外的资源
	Close func() error
}

// Factory 定义创建 Backend 的工厂函数.
type Factory func(ctx context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (Backend, error)

var factories = map[configs.MQType]Factory{}

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// RegisteredTypes 返回已注册的类型.
func RegisteredTypes() []configs.MQType {
	out := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}

	return out
}

// Options 创建 Client 的可选项.
type Options struct {
	Logger *zerolog.Logger
	// Registerer 非空时为 publisher、subscriber 与 router 注册 prometheus 指标
	Registerer prometheus.Registerer
}

// Client 封装 watermill Publisher、Subscriber 与 Router.
type Client struct {
	typ        configs.MQType
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	backend    Backend
	logger     watermill.LoggerAdapter

	runOnce sync.Once
	running chan struct{}
}

// New 按配置创建客户端.
func New(ctx context.Context, cfg configs.MQConfig, opts Options) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	zl := opts.Logger
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}

	logger := NewLoggerAdapter(zl)

	be, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	pub, sub := be.Publisher, be.Subscriber

	if opts.Registerer != nil && cfg.Common.EnableMetrics {
		builder := metrics.NewPrometheusMetricsBuilder(opts.Registerer, "photovault", "mq")
		builder.AddPrometheusRouterMetrics(router)

		if pub, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if sub, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}
	}

	zl.Info().Str("type", string(cfg.Type)).Msg("mq client initialized")

	return &Client{
		typ:        cfg.Type,
		publisher:  pub,
		subscriber: sub,
		router:     router,
		backend:    be,
		logger:     logger,
		running:    make(chan struct{}),
	}, nil
}

// Type 返回 MQ 类型.
func (c *Client) Type() configs.MQType {
	return c.typ
}

// Publish 发布消息.
func (c *Client) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return errors.New("mq publisher not initialized")
	}

	if err := c.publisher.Publish(topic, msgs...); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// Subscribe 直接订阅主题，调用方负责 Ack/Nack.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, errors.New("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// AddHandler 注册消费者. 须在 Run 之前调用.
func (c *Client) AddHandler(name, topic string, h message.NoPublishHandlerFunc) {
	c.router.AddNoPublisherHandler(name, topic, c.subscriber, h)
}

// Run 启动 router 并阻塞到 ctx 取消. 重复调用直接返回.
func (c *Client) Run(ctx context.Context) error {
	var err error

	started := false

	c.runOnce.Do(func() {
		started = true

		go func() {
			<-c.router.Running()
			close(c.running)
		}()

		err = c.router.Run(ctx)
	})

	if !started {
		return nil
	}

	return err
}

// Running 在 router 启动后关闭.
func (c *Client) Running() <-chan struct{} {
	return c.running
}

// HealthCheck 检查底层连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.backend.Health == nil {
		return nil
	}

	return c.backend.Health(ctx)
}

// Close 关闭资源.
func (c *Client) Close() error {
	var errs []error

	if c.router != nil {
		errs = append(errs, c.router.Close())
	}

	if c.publisher != nil {
		errs = append(errs, c.publisher.Close())
	}

	// gochannel 的 Publisher 与 Subscriber 是同一个实例
	if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
		errs = append(errs, c.subscriber.Close())
	}

	if c.backend.Close != nil {
		errs = append(errs, c.backend.Close())
	}

	return errors.Join(errs...)
}
