package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain verifies no goroutines (cron runners, in-flight triggers) leak
// past the package's tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegisterRejectsDuplicateEngine(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	sched := EngineSchedule{
		Name:             "sync",
		DailyCron:        "0 3 * * *",
		CatchupThreshold: 24 * time.Hour,
		Run:              func(ctx context.Context) (RunResult, error) { return RunResult{}, nil },
		LastRunAt:        func() time.Time { return time.Now() },
		AdvanceLastRun:   func(time.Time) {},
	}
	require.NoError(t, s.Register(sched))
	assert.Error(t, s.Register(sched))
}

func TestTriggerNowRunsEngine(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	var ran atomic.Bool
	var advanced atomic.Bool
	sched := EngineSchedule{
		Name:             "sync",
		DailyCron:        "0 3 * * *",
		CatchupThreshold: 24 * time.Hour,
		Run: func(ctx context.Context) (RunResult, error) {
			ran.Store(true)
			return RunResult{Retriable: false}, nil
		},
		LastRunAt:      func() time.Time { return time.Now() },
		AdvanceLastRun: func(time.Time) { advanced.Store(true) },
	}
	require.NoError(t, s.Register(sched))

	require.NoError(t, s.TriggerNow(context.Background(), "sync"))
	assert.True(t, ran.Load())
	assert.True(t, advanced.Load())
}

func TestRetriableRunDoesNotAdvance(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	var advanced atomic.Bool
	sched := EngineSchedule{
		Name:             "extraction",
		DailyCron:        "0 3 * * *",
		CatchupThreshold: 24 * time.Hour,
		Run: func(ctx context.Context) (RunResult, error) {
			return RunResult{Retriable: true}, nil
		},
		LastRunAt:      func() time.Time { return time.Now() },
		AdvanceLastRun: func(time.Time) { advanced.Store(true) },
	}
	require.NoError(t, s.Register(sched))
	require.NoError(t, s.TriggerNow(context.Background(), "extraction"))
	assert.False(t, advanced.Load())
}

func TestTriggerNowUnknownEngine(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.Error(t, s.TriggerNow(context.Background(), "nope"))
}

func TestReentrancyGuardDropsOverlappingTrigger(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{})
	var runCount atomic.Int32

	sched := EngineSchedule{
		Name:             "cards",
		DailyCron:        "0 3 * * *",
		CatchupThreshold: 24 * time.Hour,
		Run: func(ctx context.Context) (RunResult, error) {
			runCount.Add(1)
			close(entered)
			<-release
			return RunResult{}, nil
		},
		LastRunAt:      func() time.Time { return time.Now() },
		AdvanceLastRun: func(time.Time) {},
	}
	require.NoError(t, s.Register(sched))

	firstDone := make(chan struct{})
	go func() {
		s.TriggerNow(context.Background(), "cards")
		close(firstDone)
	}()
	<-entered

	assert.True(t, s.IsRunning("cards"))
	require.NoError(t, s.TriggerNow(context.Background(), "cards"))
	assert.Equal(t, int32(1), runCount.Load())

	close(release)
	<-firstDone
}

func TestCatchupTriggersWhenLastRunStale(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)

	done := make(chan struct{})
	sched := EngineSchedule{
		Name:             "sync",
		DailyCron:        "0 3 * * *",
		CatchupThreshold: time.Hour,
		Run: func(ctx context.Context) (RunResult, error) {
			close(done)
			return RunResult{}, nil
		},
		LastRunAt:      func() time.Time { return time.Now().Add(-48 * time.Hour) },
		AdvanceLastRun: func(time.Time) {},
	}
	require.NoError(t, s.Register(sched))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("catch-up run did not fire")
	}
}
