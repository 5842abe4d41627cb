package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/configs"
)

func TestPingRetriesUntilReady(t *testing.T) {
	l := zerolog.Nop()
	cfg := configs.DBConfig{ConnectRetries: 3, ConnectBackoff: time.Millisecond}

	calls := 0
	err := ping(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}

		return nil
	}, cfg, &l)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPingGivesUp(t *testing.T) {
	l := zerolog.Nop()
	cfg := configs.DBConfig{ConnectRetries: 2, ConnectBackoff: time.Millisecond}

	calls := 0
	err := ping(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}, cfg, &l)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestPingStopsOnCancel(t *testing.T) {
	l := zerolog.Nop()
	cfg := configs.DBConfig{ConnectRetries: 10, ConnectBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())

	err := ping(ctx, func(context.Context) error {
		cancel()
		return errors.New("connection refused")
	}, cfg, &l)

	require.ErrorIs(t, err, context.Canceled)
}

func TestRegisteredDBTypesSorted(t *testing.T) {
	assert.Equal(t, []configs.DBType{configs.Pg, configs.Postgres, configs.PostgreSQL}, GetRegisteredDBTypes())
}
