package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yeisme/photovault/pkg/configs"
)

func TestKeyedLimitersEvictIdle(t *testing.T) {
	k := newKeyedLimiters(configs.RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Now()

	a := k.get("a", now)
	assert.Same(t, a, k.get("a", now.Add(10*time.Second)))
	assert.Equal(t, 1, k.size())

	k.get("b", now.Add(50*time.Second))
	assert.Equal(t, 2, k.size())

	// a 最后一次使用在 10s，b 在 50s；75s 清扫时只有 a 闲置超过一分钟
	k.get("c", now.Add(75*time.Second))
	assert.Equal(t, 2, k.size())
	assert.NotSame(t, a, k.get("a", now.Add(76*time.Second)))
}

func TestParseRateKey(t *testing.T) {
	cases := map[string][2]string{
		"":                 {rateKeyGlobal, ""},
		"GLOBAL":           {rateKeyGlobal, ""},
		"user":             {rateKeyUser, ""},
		"ip":               {rateKeyIP, ""},
		"header:X-Api-Key": {rateKeyHeader, "X-Api-Key"},
		"bogus":            {rateKeyIP, ""},
	}

	for raw, want := range cases {
		mode, header := parseRateKey(raw)
		assert.Equal(t, want[0], mode, raw)
		assert.Equal(t, want[1], header, raw)
	}
}
