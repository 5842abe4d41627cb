package queue_test

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/photovault/pkg/queue"
)

func TestWatermillMessageRoundTrip(t *testing.T) {
	payload := queue.PhotoChangedPayload{UserID: 7, PhotoIDs: []int64{1, 2}, Fields: []string{"caption"}}

	msg, err := queue.NewWatermillMessage(queue.TopicPhotoUpdated, payload,
		queue.WithProducer("photovault"), queue.WithTraceID("abc"))
	require.NoError(t, err)

	_, err = ulid.ParseStrict(msg.UUID)
	require.NoError(t, err)
	assert.Equal(t, queue.TopicPhotoUpdated, msg.Metadata.Get("topic"))
	assert.Equal(t, "abc", msg.Metadata.Get("trace_id"))

	env, err := queue.ParsePhotoChanged(msg)
	require.NoError(t, err)
	assert.Equal(t, payload, env.Payload)
	assert.Equal(t, queue.TopicPhotoUpdated, env.Header.Topic)
	assert.Equal(t, "photovault", env.Header.Producer)
	assert.Equal(t, queue.PayloadVersionV1, env.Header.Version)
}

func TestMessageIDsAreOrdered(t *testing.T) {
	prev := queue.NewMessageID()

	for range 100 {
		next := queue.NewMessageID()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestDecodeRejectsUnknownMajorVersion(t *testing.T) {
	_, err := queue.Decode[queue.PhotoChangedPayload]([]byte(`{"header":{"topic":"pv.photo.updated","version":"v2"},"payload":{}}`))
	require.ErrorIs(t, err, queue.ErrUnsupportedVersion)

	env, err := queue.Decode[queue.PhotoChangedPayload]([]byte(`{"header":{"version":"v1.1"},"payload":{"user_id":3,"extra":true}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.Payload.UserID)
}

// chanPublisher 把 gochannel 适配为带 context 的 Publisher.
type chanPublisher struct {
	ch *gochannel.GoChannel
}

func (p chanPublisher) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	return p.ch.Publish(topic, msgs...)
}

func TestPublishAlbumChanged(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, nil)
	defer ch.Close()

	msgs, err := ch.Subscribe(t.Context(), queue.TopicAlbumChanged)
	require.NoError(t, err)

	require.NoError(t, queue.PublishAlbumChanged(t.Context(), chanPublisher{ch}, queue.AlbumChangedPayload{UserID: 1, AlbumID: 3}))

	got := <-msgs
	got.Ack()

	env, err := queue.ParseAlbumChanged(got)
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.Payload.AlbumID)
}

func TestPublishPhotoChangedRejectsAlbumTopic(t *testing.T) {
	err := queue.PublishPhotoChanged(t.Context(), chanPublisher{}, queue.TopicAlbumChanged, queue.PhotoChangedPayload{})
	require.Error(t, err)
}

func TestTracePropagation(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg, err := queue.NewWatermillMessage(queue.TopicPhotoCreated, queue.PhotoChangedPayload{UserID: 1})
	require.NoError(t, err)

	queue.InjectTrace(ctx, msg)
	assert.NotEmpty(t, msg.Metadata.Get("traceparent"))

	// 模拟跨进程：只保留元数据
	received := message.NewMessage(msg.UUID, msg.Payload)
	received.Metadata = msg.Metadata

	got := trace.SpanContextFromContext(queue.MessageContext(received))
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
	assert.True(t, got.IsRemote())
}
