package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/photovault/pkg/scheduler"
)

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.NewScheduler(zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })

	return s
}

func TestRunNowRecordsSuccess(t *testing.T) {
	s := newScheduler(t)
	ran := make(chan struct{}, 1)

	require.NoError(t, s.AddCron(context.Background(), "trash.purge", "0 3 * * *", func(context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	info, err := s.GetJobInfoByName("trash.purge")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusScheduled, info.Status)
	assert.False(t, info.NextRun.IsZero())

	require.NoError(t, s.RunNow("trash.purge"))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool {
		info, err := s.GetJobInfoByName("trash.purge")
		return err == nil && !info.LastSuccess.IsZero() && info.LastDuration != ""
	}, 5*time.Second, 10*time.Millisecond)
}

func TestJobErrorIsRecorded(t *testing.T) {
	s := newScheduler(t)

	require.NoError(t, s.AddCron(context.Background(), "trash.fail", "0 3 * * *", func(context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, s.RunNow("trash.fail"))

	require.Eventually(t, func() bool {
		info, err := s.GetJobInfoByName("trash.fail")
		return err == nil && info.Status == scheduler.StatusError && info.Error == "boom"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDuplicateAndRemove(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddCron(context.Background(), "b.job", "0 3 * * *", noop))
	require.NoError(t, s.AddCron(context.Background(), "a.job", "0 4 * * *", noop))
	require.Error(t, s.AddCron(context.Background(), "a.job", "0 4 * * *", noop))
	require.Error(t, s.AddCron(context.Background(), "c.job", "not a cron", noop))

	infos := s.GetJobInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, "a.job", infos[0].Name)

	require.NoError(t, s.RemoveJobByName("a.job"))
	require.ErrorIs(t, s.RemoveJobByName("a.job"), scheduler.ErrJobNotFound)
	require.ErrorIs(t, s.RunNow("a.job"), scheduler.ErrJobNotFound)
	assert.Len(t, s.GetJobInfos(), 1)
}
