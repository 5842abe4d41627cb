package mq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/photovault/pkg/configs"
)

func init() {
	RegisterFactory(configs.MQTypeMemory, memoryFactory)
}

// memoryFactory 进程内 pub/sub，只在单实例内投递.
func memoryFactory(_ context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (Backend, error) {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.Memory.OutputBuffer,
	}, logger)

	return Backend{Publisher: ch, Subscriber: ch}, nil
}
