package jobs

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietScheduler() *Scheduler {
	return &Scheduler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	s := quietScheduler()

	var runs atomic.Int32
	s.register("counter", 10*time.Millisecond, func() error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(), "second start is a no-op")

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no runs after Stop")

	s.Stop()
}

func TestSchedulerSurvivesFailuresAndPanics(t *testing.T) {
	s := quietScheduler()

	var calls atomic.Int32
	j := &job{name: "flaky", interval: time.Hour, run: func() error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transient")
		}
		return nil
	}}

	s.execute(j)
	s.execute(j)
	s.execute(j)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, j.running.Load())
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := quietScheduler()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	j := &job{name: "slow", interval: time.Hour, run: func() error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}}

	done := make(chan struct{})
	go func() {
		s.execute(j)
		close(done)
	}()

	<-started
	s.execute(j)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	<-done
}
