package mq_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/internal/storage/mq"
)

func memoryClient(t *testing.T) *mq.Client {
	t.Helper()

	cfg := configs.Defaults().MQ
	cfg.Type = configs.MQTypeMemory

	c, err := mq.New(context.Background(), cfg, mq.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestMemoryPublishSubscribe(t *testing.T) {
	c := memoryClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := c.Subscribe(ctx, "pv.photo.updated")
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"photo_ids":[1]}`))
	require.NoError(t, c.Publish(ctx, "pv.photo.updated", msg))

	select {
	case got := <-ch:
		assert.Equal(t, msg.UUID, got.UUID)
		assert.JSONEq(t, `{"photo_ids":[1]}`, string(got.Payload))
		got.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}

	require.NoError(t, c.HealthCheck(ctx))
}

func TestRouterHandler(t *testing.T) {
	c := memoryClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)

	c.AddHandler("test_handler", "pv.photo.deleted", func(m *message.Message) error {
		got <- string(m.Payload)
		return nil
	})

	go func() { _ = c.Run(ctx) }()

	select {
	case <-c.Running():
	case <-ctx.Done():
		t.Fatal("router did not start")
	}

	require.NoError(t, c.Publish(ctx, "pv.photo.deleted", message.NewMessage(watermill.NewUUID(), []byte("42"))))

	select {
	case p := <-got:
		assert.Equal(t, "42", p)
	case <-ctx.Done():
		t.Fatal("handler not invoked")
	}
}

func TestUnknownType(t *testing.T) {
	cfg := configs.Defaults().MQ
	cfg.Type = "kafka"

	_, err := mq.New(context.Background(), cfg, mq.Options{})
	require.Error(t, err)
}

func TestLoggerAdapterFields(t *testing.T) {
	var buf bytes.Buffer

	l := zerolog.New(&buf).Level(zerolog.DebugLevel)
	adapter := mq.NewLoggerAdapter(&l).With(watermill.LogFields{"topic": "pv.photo.updated"})

	adapter.Info("handler started", watermill.LogFields{"attempt": 2, "elapsed": time.Second})
	adapter.Error("handler failed", errors.New("boom"), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	// info 降为 debug
	assert.Contains(t, lines[0], `"level":"debug"`)
	assert.Contains(t, lines[0], `"component":"mq"`)
	assert.Contains(t, lines[0], `"topic":"pv.photo.updated"`)
	assert.Contains(t, lines[0], `"attempt":2`)

	assert.Contains(t, lines[1], `"level":"error"`)
	assert.Contains(t, lines[1], `"error":"boom"`)
	assert.Contains(t, lines[1], `"topic":"pv.photo.updated"`)
}
