package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/internal/metrics"
)

// Cycle is one unit of scheduled work. *Engine satisfies it.
type Cycle interface {
	Tick(ctx context.Context) (Result, error)
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Interval time.Duration

	// RunImmediately starts a cycle as soon as the scheduler starts
	RunImmediately bool

	Clock  Clock
	Logger zerolog.Logger
}

// Scheduler runs a Cycle on a fixed interval. A tick that fires while the
// previous cycle is still running is skipped, not queued.
type Scheduler struct {
	cycle    Cycle
	interval time.Duration
	runNow   bool
	clock    Clock
	logger   zerolog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu          sync.Mutex
	stopLoop    context.CancelFunc
	cancelCycle context.CancelFunc
	done        chan struct{}
}

// NewScheduler creates a scheduler for cycle.
func NewScheduler(cycle Cycle, cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Scheduler{
		cycle:    cycle,
		interval: cfg.Interval,
		runNow:   cfg.RunImmediately,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Start begins the ticker loop. Cycles run under a context derived from
// ctx. It returns an error if the scheduler was already started or the
// interval is not positive.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	cycleCtx, cancelCycle := context.WithCancel(ctx)
	loopCtx, stopLoop := context.WithCancel(cycleCtx)
	s.cancelCycle = cancelCycle
	s.stopLoop = stopLoop
	s.done = make(chan struct{})

	ticker := s.clock.NewTicker(s.interval)
	go s.run(loopCtx, cycleCtx, ticker)

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	return nil
}

func (s *Scheduler) run(loopCtx, cycleCtx context.Context, ticker Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	if s.runNow {
		s.trigger(cycleCtx)
	}

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C():
			s.trigger(cycleCtx)
		}
	}
}

// trigger starts a cycle unless one is already running.
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.TicksSkipped.Inc()
		s.logger.Debug().Msg("Previous cycle still running, skipping tick")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.runCycle(ctx)
	}()
}

// runCycle runs one cycle, recovering a panic so the next tick still runs.
func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TicksTotal.WithLabelValues("panic").Inc()
			s.logger.Error().Interface("panic", r).Msg("Cycle panicked, will retry on next tick")
		}
	}()

	if _, err := s.cycle.Tick(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Cycle failed")
	}
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// cancelWait bounds how long Stop waits for a cancelled cycle to return.
var cancelWait = 5 * time.Second

// Stop halts the ticker and waits up to grace for an in-flight cycle to
// finish. A cycle that outlasts grace has its context cancelled; Stop then
// waits up to cancelWait for it to return and reports an error. Stop on a
// scheduler that never started is a no-op.
func (s *Scheduler) Stop(grace time.Duration) error {
	s.mu.Lock()
	done, stopLoop, cancelCycle := s.done, s.stopLoop, s.cancelCycle
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	defer cancelCycle()

	stopLoop()
	<-done

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-finished:
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-timer.C:
		cancelCycle()
		s.logger.Warn().Dur("grace", grace).Msg("Cycle exceeded shutdown grace, cancelling")
		select {
		case <-finished:
		case <-time.After(cancelWait):
			s.logger.Error().Dur("wait", cancelWait).Msg("Cancelled cycle did not return")
		}
		return fmt.Errorf("cycle exceeded shutdown grace of %v", grace)
	}
}
