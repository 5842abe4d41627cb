package mq

import (
	"fmt"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// zerologAdapter 将 zerolog 适配为 watermill.LoggerAdapter.
type zerologAdapter struct {
	l zerolog.Logger
}

// NewLoggerAdapter 把 zerolog 接入 watermill. router 每条消息都打 info，这里降为 debug，
// 失效事件的处理结果由 events 包自行记录.
func NewLoggerAdapter(l *zerolog.Logger) watermill.LoggerAdapter {
	return &zerologAdapter{l: l.With().Str("component", "mq").Logger()}
}

// appendField 常见类型直接写入，避免 Interface 走反射序列化.
func appendField(ctx zerolog.Context, k string, v any) zerolog.Context {
	switch val := v.(type) {
	case string:
		return ctx.Str(k, val)
	case int:
		return ctx.Int(k, val)
	case int64:
		return ctx.Int64(k, val)
	case bool:
		return ctx.Bool(k, val)
	case time.Duration:
		return ctx.Dur(k, val)
	case error:
		return ctx.AnErr(k, val)
	case fmt.Stringer:
		return ctx.Stringer(k, val)
	default:
		return ctx.Interface(k, val)
	}
}

func (z *zerologAdapter) with(fields watermill.LogFields) zerolog.Logger {
	if len(fields) == 0 {
		return z.l
	}

	ctx := z.l.With()
	for k, v := range fields {
		ctx = appendField(ctx, k, v)
	}

	return ctx.Logger()
}

func (z *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l := z.with(fields)
	l.Error().Err(err).Msg(msg)
}

func (z *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	l := z.with(fields)
	l.Debug().Msg(msg)
}

func (z *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	l := z.with(fields)
	l.Debug().Msg(msg)
}

func (z *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	l := z.with(fields)
	l.Trace().Msg(msg)
}

func (z *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{l: z.with(fields)}
}
