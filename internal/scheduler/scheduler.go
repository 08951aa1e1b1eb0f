// Package scheduler arms cron-like daily and weekly triggers for engines,
// performs startup catch-up detection, and enforces a single outstanding
// run per engine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memory-loop/daemon/internal/logging"
)

// RunResult reports how a triggered run concluded.
type RunResult struct {
	// Retriable, if true, means last_run_at must not advance so the next
	// trigger reattempts the same work (spec.md §4.4 step 5).
	Retriable bool
}

// RunFunc performs one engine run.
type RunFunc func(ctx context.Context) (RunResult, error)

// EngineSchedule describes one engine's triggers and run hooks.
type EngineSchedule struct {
	// Name identifies the engine in logs.
	Name string

	// DailyCron is a standard 5-field cron expression, e.g. "0 3 * * *".
	DailyCron string

	// WeeklyCron is an optional second trigger (Card Discovery's weekly
	// catch-up pass). Empty disables it.
	WeeklyCron string

	// CatchupThreshold is how stale LastRunAt must be, at startup, to
	// trigger an immediate asynchronous catch-up run.
	CatchupThreshold time.Duration

	// Recover runs once at startup before any trigger fires, delegating
	// crash recovery to the engine (e.g. C9's sandbox recovery).
	Recover func(ctx context.Context) error

	// Run executes one pass of the engine.
	Run RunFunc

	// LastRunAt returns the engine's persisted last successful run time.
	LastRunAt func() time.Time

	// AdvanceLastRun is called with the completion time after a run that
	// did not fail retriably.
	AdvanceLastRun func(t time.Time)
}

type engineState struct {
	schedule EngineSchedule
	running  atomic.Bool
}

// Scheduler owns a cron runner and the re-entrancy state for every
// registered engine.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time

	mu      sync.Mutex
	engines map[string]*engineState
	started bool
}

// New constructs a Scheduler. timezone is an IANA location name; an empty
// string uses the local timezone.
func New(timezone string) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		now:     time.Now,
		engines: make(map[string]*engineState),
	}, nil
}

// Register arms an engine's daily and (optionally) weekly triggers. It
// must be called before Start.
func (s *Scheduler) Register(schedule EngineSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot register %s after Start", schedule.Name)
	}
	if _, exists := s.engines[schedule.Name]; exists {
		return fmt.Errorf("scheduler: engine %s already registered", schedule.Name)
	}

	state := &engineState{schedule: schedule}
	s.engines[schedule.Name] = state

	if _, err := s.cron.AddFunc(schedule.DailyCron, func() {
		s.trigger(context.Background(), state, "daily")
	}); err != nil {
		return fmt.Errorf("scheduler: arm daily trigger for %s: %w", schedule.Name, err)
	}

	if schedule.WeeklyCron != "" {
		if _, err := s.cron.AddFunc(schedule.WeeklyCron, func() {
			s.trigger(context.Background(), state, "weekly")
		}); err != nil {
			return fmt.Errorf("scheduler: arm weekly trigger for %s: %w", schedule.Name, err)
		}
	}

	return nil
}

// Start performs the startup recovery pass and catch-up check for every
// registered engine, then begins accepting cron triggers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already started")
	}
	s.started = true
	states := make([]*engineState, 0, len(s.engines))
	for _, st := range s.engines {
		states = append(states, st)
	}
	s.mu.Unlock()

	for _, state := range states {
		if state.schedule.Recover != nil {
			if err := state.schedule.Recover(ctx); err != nil {
				logging.SchedulerError("recovery failed for %s: %v", state.schedule.Name, err)
			}
		}
		s.checkCatchup(state)
	}

	s.cron.Start()
	return nil
}

// checkCatchup triggers an asynchronous catch-up run if the engine's last
// run is older than its configured threshold.
func (s *Scheduler) checkCatchup(state *engineState) {
	last := state.schedule.LastRunAt()
	if last.IsZero() || s.now().Sub(last) >= state.schedule.CatchupThreshold {
		logging.Scheduler("last run for %s is stale (last=%v), triggering catch-up", state.schedule.Name, last)
		go s.trigger(context.Background(), state, "catchup")
	}
}

// trigger runs one pass for state, dropping the trigger if a run is
// already in progress.
func (s *Scheduler) trigger(ctx context.Context, state *engineState, kind string) {
	if !state.running.CompareAndSwap(false, true) {
		logging.SchedulerWarn("%s trigger for %s dropped: run already in progress", kind, state.schedule.Name)
		return
	}
	defer state.running.Store(false)

	logging.Scheduler("%s trigger for %s starting", kind, state.schedule.Name)
	start := s.now()
	result, err := state.schedule.Run(ctx)
	if err != nil {
		logging.SchedulerError("%s run for %s failed: %v", kind, state.schedule.Name, err)
	}

	if err == nil && !result.Retriable {
		state.schedule.AdvanceLastRun(start)
		logging.Scheduler("%s run for %s completed, last_run_at advanced", kind, state.schedule.Name)
	} else {
		logging.SchedulerWarn("%s run for %s did not advance last_run_at (retriable=%v)", kind, state.schedule.Name, result.Retriable)
	}
}

// Stop halts cron from accepting new triggers and waits for in-flight runs
// to reach their context returned by cron.Cron.Stop (best-effort; the
// scheduler itself does not force-cancel running work, matching spec.md's
// requirement that the ledger update remain the last step per item).
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether engine has a run currently in progress.
func (s *Scheduler) IsRunning(engineName string) bool {
	s.mu.Lock()
	state, ok := s.engines[engineName]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return state.running.Load()
}

// TriggerNow runs engineName immediately, subject to the same re-entrancy
// guard as cron-driven triggers. Used by serve's config watcher to start a
// vault's sync when a pipeline or secret file changes.
func (s *Scheduler) TriggerNow(ctx context.Context, engineName string) error {
	s.mu.Lock()
	state, ok := s.engines[engineName]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown engine %s", engineName)
	}
	s.trigger(ctx, state, "manual")
	return nil
}
