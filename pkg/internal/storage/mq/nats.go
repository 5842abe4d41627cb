package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/photovault/pkg/configs"
)

const DefaultDrainTimeout = 30 * time.Second

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// buildNatsOptions 构建 NATS 连接选项.
func buildNatsOptions(cfg configs.MQConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(cfg.Common.ClientID),
		nc.MaxReconnects(cfg.Common.MaxReconnects),
		nc.ReconnectWait(time.Duration(cfg.Common.ReconnectWait) * time.Second),
		nc.DrainTimeout(DefaultDrainTimeout),
		nc.RetryOnFailedConnect(true),
	}

	if cfg.Common.User != "" {
		opts = append(opts, nc.UserInfo(cfg.Common.User, cfg.Common.Password))
	}

	return opts
}

func natsURL(cfg configs.MQConfig) string {
	u := cfg.Common.URL
	if !strings.Contains(u, "://") {
		u = "nats://" + u
	}

	return u
}

// streamName JetStream 的 stream 与 durable 名称不允许出现 '.'.
func streamName(topic string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "*", "ALL", ">", "REST").Replace(topic))
}

// buildJetStreamConfig 构建 JetStream 配置. stream 由 provisioner 按配置的容量创建，
// 因此关闭 watermill 自带的 AutoProvision.
func buildJetStreamConfig(cfg configs.MQConfig) nats.JetStreamConfig {
	n := cfg.NATS

	jsCfg := nats.JetStreamConfig{Disabled: !n.JetStreamEnabled}
	if !n.JetStreamEnabled {
		return jsCfg
	}

	jsCfg.TrackMsgId = n.JetStreamTrackMsgID
	jsCfg.AckAsync = n.JetStreamAckAsync
	jsCfg.DurablePrefix = n.JetStreamDurablePrefix
	jsCfg.DurableCalculator = func(prefix, topic string) string {
		return prefix + "_" + streamName(topic)
	}
	jsCfg.SubscribeOptions = []nc.SubOpt{
		nc.MaxDeliver(n.ConsumerMaxDeliver),
		nc.AckWait(time.Duration(n.ConsumerAckWait) * time.Second),
	}

	return jsCfg
}

// natsFactory 创建 NATS Publisher & Subscriber，另开一条连接用于健康检查与 stream 创建.
func natsFactory(_ context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (Backend, error) {
	opts := buildNatsOptions(cfg)
	jsCfg := buildJetStreamConfig(cfg)
	marshaler := &nats.NATSMarshaler{}

	subjects := func(queueGroupPrefix, topic string) *nats.SubjectDetail {
		return nats.DefaultSubjectCalculator(queueGroupPrefix, cfg.NATS.SubjectPrefix+topic)
	}

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:               natsURL(cfg),
		NatsOptions:       opts,
		JetStream:         jsCfg,
		Marshaler:         marshaler,
		SubjectCalculator: subjects,
	}, logger)
	if err != nil {
		return Backend{}, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:               natsURL(cfg),
		NatsOptions:       opts,
		JetStream:         jsCfg,
		Unmarshaler:       marshaler,
		SubjectCalculator: subjects,
		QueueGroupPrefix:  cfg.Common.ConsumerGroup,
		AckWaitTimeout:    time.Duration(cfg.NATS.ConsumerAckWait) * time.Second,
		CloseTimeout:      DefaultDrainTimeout,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return Backend{}, fmt.Errorf("create nats subscriber: %w", err)
	}

	conn, err := nc.Connect(natsURL(cfg), opts...)
	if err != nil {
		_ = pub.Close()
		_ = sub.Close()

		return Backend{}, fmt.Errorf("connect nats: %w", err)
	}

	be := Backend{
		Publisher:  pub,
		Subscriber: sub,
		Health: func(context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("nats status: %s", conn.Status())
			}

			return conn.FlushTimeout(2 * time.Second)
		},
		Close: func() error {
			conn.Close()
			return nil
		},
	}

	if cfg.NATS.JetStreamEnabled && cfg.NATS.JetStreamAutoProvision {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			_ = pub.Close()
			_ = sub.Close()

			return Backend{}, fmt.Errorf("jetstream context: %w", err)
		}

		p := &streamProvisioner{js: js, cfg: cfg}
		be.Publisher = &provisionedPublisher{Publisher: pub, p: p}
		be.Subscriber = &provisionedSubscriber{Subscriber: sub, p: p}
	}

	logger.Info("nats connected", watermill.LogFields{
		"url":       cfg.Common.URL,
		"jetstream": cfg.NATS.JetStreamEnabled,
	})

	return be, nil
}

// streamProvisioner 按主题懒创建 stream.
type streamProvisioner struct {
	js   nc.JetStreamContext
	cfg  configs.MQConfig
	seen sync.Map
}

func (p *streamProvisioner) ensure(topic string) error {
	if _, ok := p.seen.Load(topic); ok {
		return nil
	}

	n := p.cfg.NATS
	sc := &nc.StreamConfig{
		Name:     streamName(p.cfg.NATS.SubjectPrefix + topic),
		Subjects: []string{p.cfg.NATS.SubjectPrefix + topic},
		MaxMsgs:  n.StreamMaxMsgs,
		MaxBytes: n.StreamMaxBytes,
		MaxAge:   time.Duration(n.StreamMaxAge) * time.Hour,
		Replicas: n.StreamReplicas,
		Storage:  nc.FileStorage,
	}

	if _, err := p.js.AddStream(sc); err != nil && !errors.Is(err, nc.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("provision stream %s: %w", sc.Name, err)
	}

	p.seen.Store(topic, struct{}{})

	return nil
}

type provisionedPublisher struct {
	message.Publisher
	p *streamProvisioner
}

func (pp *provisionedPublisher) Publish(topic string, msgs ...*message.Message) error {
	if err := pp.p.ensure(topic); err != nil {
		return err
	}

	return pp.Publisher.Publish(topic, msgs...)
}

type provisionedSubscriber struct {
	message.Subscriber
	p *streamProvisioner
}

func (ps *provisionedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if err := ps.p.ensure(topic); err != nil {
		return nil, err
	}

	return ps.Subscriber.Subscribe(ctx, topic)
}
