package mq

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
)

func TestRedisMessageFraming(t *testing.T) {
	in := message.NewMessage("01J9Z", []byte("line1\nline2"))

	out := decodeRedisMessage(string(encodeRedisMessage(in)))
	assert.Equal(t, "01J9Z", out.UUID)
	assert.Equal(t, "line1\nline2", string(out.Payload))

	// 没有分隔符时整段视为 payload
	raw := decodeRedisMessage("legacy")
	assert.Equal(t, "legacy", string(raw.Payload))
	assert.NotEmpty(t, raw.UUID)
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "PV_PHOTO_UPDATED", streamName("pv.photo.updated"))
}
