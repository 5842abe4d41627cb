package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/internal/events"
	"github.com/yeisme/photovault/pkg/internal/storage/mq"
	"github.com/yeisme/photovault/pkg/queue"
)

type call struct {
	userID int64
	ids    []int64
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []call
	err   error
	done  chan struct{}
}

func newFake() *fakeInvalidator { return &fakeInvalidator{done: make(chan struct{}, 16)} }

func (f *fakeInvalidator) Local(_ context.Context, userID int64, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{userID: userID, ids: ids})
	f.done <- struct{}{}

	return f.err
}

func photoMsg(t *testing.T, topic, origin string, ids ...int64) *message.Message {
	t.Helper()

	msg, err := queue.NewWatermillMessage(topic, queue.PhotoChangedPayload{UserID: 7, PhotoIDs: ids, Origin: origin})
	require.NoError(t, err)

	return msg
}

func TestHandlePhotoEvent(t *testing.T) {
	inv := newFake()
	c := events.NewConsumer(inv, "self", zerolog.Nop())

	require.NoError(t, c.Handle(photoMsg(t, queue.TopicPhotoDeleted, "peer", 1, 2)))
	require.Len(t, inv.calls, 1)
	assert.Equal(t, call{userID: 7, ids: []int64{1, 2}}, inv.calls[0])
}

func TestHandleSkipsOwnEvents(t *testing.T) {
	inv := newFake()
	c := events.NewConsumer(inv, "self", zerolog.Nop())

	require.NoError(t, c.Handle(photoMsg(t, queue.TopicPhotoUpdated, "self", 1)))
	assert.Empty(t, inv.calls)
}

func TestHandleAlbumEvent(t *testing.T) {
	inv := newFake()
	c := events.NewConsumer(inv, "self", zerolog.Nop())

	msg, err := queue.NewWatermillMessage(queue.TopicAlbumChanged, queue.AlbumChangedPayload{UserID: 7, AlbumID: 3, PhotoIDs: []int64{1}})
	require.NoError(t, err)

	require.NoError(t, c.Handle(msg))
	require.Len(t, inv.calls, 1)
	assert.Nil(t, inv.calls[0].ids)
}

func TestHandleDropsGarbage(t *testing.T) {
	inv := newFake()
	c := events.NewConsumer(inv, "self", zerolog.Nop())

	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	msg.Metadata.Set("topic", queue.TopicPhotoUpdated)

	require.NoError(t, c.Handle(msg))
	require.NoError(t, c.Handle(message.NewMessage(watermill.NewUUID(), []byte("{}"))))
	assert.Empty(t, inv.calls)
}

func TestHandleReturnsInvalidationError(t *testing.T) {
	inv := newFake()
	inv.err = assert.AnError
	c := events.NewConsumer(inv, "self", zerolog.Nop())

	require.ErrorIs(t, c.Handle(photoMsg(t, queue.TopicPhotoUpdated, "peer", 1)), assert.AnError)
}

func TestConsumerThroughRouter(t *testing.T) {
	cfg := configs.Defaults().MQ
	cfg.Type = configs.MQTypeMemory

	client, err := mq.New(context.Background(), cfg, mq.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	inv := newFake()
	events.NewConsumer(inv, "self", zerolog.Nop()).Register(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = client.Run(ctx) }()

	select {
	case <-client.Running():
	case <-ctx.Done():
		t.Fatal("router did not start")
	}

	require.NoError(t, client.Publish(ctx, queue.TopicPhotoRestored, photoMsg(t, queue.TopicPhotoRestored, "peer", 5)))

	select {
	case <-inv.done:
	case <-ctx.Done():
		t.Fatal("event not consumed")
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	assert.Equal(t, []int64{5}, inv.calls[0].ids)
}
