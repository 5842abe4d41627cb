package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪 ID.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// PhotoChangedPayload 照片变更. 消费者据此失效元数据与该用户的搜索结果.
type PhotoChangedPayload struct {
	UserID   int64    `json:"user_id"`
	PhotoIDs []int64  `json:"photo_ids"`
	Fields   []string `json:"fields,omitempty"` // caption / tags / deleted 等，仅用于排查
	// Origin 发布事件的实例，消费者跳过自己发出的事件
	Origin string `json:"origin,omitempty"`
}

// AlbumChangedPayload 相册变更.
type AlbumChangedPayload struct {
	UserID   int64   `json:"user_id"`
	AlbumID  int64   `json:"album_id"`
	PhotoIDs []int64 `json:"photo_ids,omitempty"`
	Origin   string  `json:"origin,omitempty"`
}
