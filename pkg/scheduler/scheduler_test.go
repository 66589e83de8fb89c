package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForecastPull/pkg/logger"
)

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(logger.Nop())
	err := s.AddJob("every hour", JobFunc{JobName: "forecast", Fn: func(context.Context) error { return nil }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast")
}

func TestRunNowReturnsJobError(t *testing.T) {
	s := New(logger.Nop())
	boom := errors.New("boom")
	assert.ErrorIs(t, s.RunNow(JobFunc{JobName: "gaps", Fn: func(context.Context) error { return boom }}), boom)
}

func TestScheduledJobRunsAndStopCancels(t *testing.T) {
	s := New(logger.Nop())
	var runs atomic.Int32
	cancelled := make(chan struct{}, 1)

	require.NoError(t, s.AddJob("@every 1s", JobFunc{JobName: "tick", Fn: func(ctx context.Context) error {
		runs.Add(1)
		<-ctx.Done()
		cancelled <- struct{}{}
		return ctx.Err()
	}}))
	s.Start()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled")
	}
	assert.Equal(t, int32(1), runs.Load(), "overlapping slots are skipped")
}
