package tracing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/tracing"
)

func TestInitTracerInstallsPropagatorWhenDisabled(t *testing.T) {
	require.NoError(t, tracing.InitTracer(configs.TracingConfig{Enabled: false}))

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	require.NoError(t, tracing.ShutdownTracer(context.Background()))
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	err := tracing.InitTracer(configs.TracingConfig{
		Enabled:      true,
		ServiceName:  "photovault-test",
		ExporterType: "stdout",
		SampleRate:   1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestEndRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	album := int64(9)

	_, span := tp.Tracer("test").Start(context.Background(), "search.Search")
	span.SetAttributes(tracing.UserID(7), tracing.AlbumID(&album))
	tracing.End(span, errors.New("boom"))

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	tracing.End(ok, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Contains(t, spans[0].Attributes(), tracing.AttrUserID.Int64(7))
	assert.Contains(t, spans[0].Attributes(), tracing.AttrAlbumID.Int64(9))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestInitTracerOTLPHTTPWithHeaders(t *testing.T) {
	conf := configs.Defaults().Tracing
	conf.Enabled = true
	conf.Headers = map[string]string{"Authorization": "Bearer test"}
	conf.ResourceAttributes = map[string]string{"host.name": "test"}

	require.NoError(t, tracing.InitTracer(conf))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tracing.ShutdownTracer(ctx))
}
