package queue

import (
	"context"
	"fmt"
	"slices"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PublishPhotoChanged 发布照片变更事件. topic 必须是照片主题之一.
func PublishPhotoChanged(ctx context.Context, pub Publisher, topic string, payload PhotoChangedPayload, opts ...func(*EventHeader)) error {
	if topic == TopicAlbumChanged || !slices.Contains(PhotoTopics, topic) {
		return fmt.Errorf("queue: %s is not a photo topic", topic)
	}

	return publish(ctx, pub, topic, payload, opts...)
}

// ParsePhotoChanged 将 Watermill 消息解析为强类型 Envelope.
func ParsePhotoChanged(msg *message.Message) (Message[PhotoChangedPayload], error) {
	return ParseWatermillMessage[PhotoChangedPayload](msg)
}

// PublishAlbumChanged 发布相册变更事件.
func PublishAlbumChanged(ctx context.Context, pub Publisher, payload AlbumChangedPayload, opts ...func(*EventHeader)) error {
	return publish(ctx, pub, TopicAlbumChanged, payload, opts...)
}

// ParseAlbumChanged 解析相册变更事件.
func ParseAlbumChanged(msg *message.Message) (Message[AlbumChangedPayload], error) {
	return ParseWatermillMessage[AlbumChangedPayload](msg)
}
