// Package scheduler decides when the transcript has earned another
// partial evaluation. It owns the interval timer and the single-flight
// guarantee; what a run does is the caller's business.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vettalabs/vetta-core/internal/config"
)

// RunFunc performs one partial-evaluation pass over the given
// transcript snapshot.
type RunFunc func(ctx context.Context, transcript string)

// Scheduler fires runs on an interval once the transcript clears a
// minimum size, with the first run issued immediately on crossing the
// threshold. At most one run is in flight; ticks that land while one is
// outstanding are skipped, never queued.
type Scheduler struct {
	interval   time.Duration
	minChars   int
	transcript func() string
	changes    <-chan struct{}
	run        RunFunc
	log        *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight atomic.Bool
	started  atomic.Bool

	// crossed is owned by the loop goroutine; once any run has been
	// issued, the interval alone drives the cadence
	crossed bool
}

func New(parent context.Context, cfg config.SchedulerConfig, transcript func() string, changes <-chan struct{}, run RunFunc, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		interval:   time.Duration(cfg.IntervalMS) * time.Millisecond,
		minChars:   cfg.MinTranscriptChars,
		transcript: transcript,
		changes:    changes,
		run:        run,
		log:        logger.With(slog.String("component", "scheduler")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop halts new runs immediately and cancels any in-flight one. After
// Stop returns no run is executing.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.fire()
		case _, ok := <-s.changes:
			if !ok {
				return
			}
			// the first time the transcript clears the threshold a run
			// is issued right away rather than waiting out the interval
			if !s.crossed {
				s.fire()
			}
		}
	}
}

func (s *Scheduler) fire() {
	snapshot := s.transcript()
	if len(snapshot) < s.minChars {
		return
	}
	if s.ctx.Err() != nil {
		return
	}
	s.crossed = true
	if !s.inflight.CompareAndSwap(false, true) {
		s.log.Debug("skipping tick, evaluation still in flight")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inflight.Store(false)
		s.run(s.ctx, snapshot)
	}()
}
