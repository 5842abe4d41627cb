package log

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/yeisme/photovault/pkg/configs"
)

func TestSamplerKeepsWarnings(t *testing.T) {
	var buf bytes.Buffer

	l := zerolog.New(&buf).Sample(sampler(configs.LogSampling{Burst: 2, Period: time.Hour}))

	for range 5 {
		l.Info().Msg("cache miss")
	}

	for range 3 {
		l.Warn().Msg("kv unavailable")
	}

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "cache miss"))
	assert.Equal(t, 3, strings.Count(out, "kv unavailable"))
}

func TestSamplerDisabled(t *testing.T) {
	assert.Nil(t, sampler(configs.LogSampling{}))
}
