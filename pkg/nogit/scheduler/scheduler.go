// Package scheduler drives periodic capture cycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jamesainslie/nogit/pkg/nogit/logging"
)

// ErrStopped is returned when starting a scheduler that was stopped.
var ErrStopped = errors.New("scheduler stopped")

// State is the scheduler state.
type State int

const (
	// Stopped means no ticks are scheduled.
	Stopped State = iota
	// Running means the job runs every interval.
	Running
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Scheduler runs a job on a fixed interval. A tick is skipped while the
// previous one is still running and a panicking job is recovered.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	job      cron.FuncJob
	entry    cron.EntryID
	interval time.Duration
	state    State
	closed   bool
	log      *logging.Logger
}

// New creates a stopped scheduler for job.
func New(job func()) *Scheduler {
	log := logging.Get("scheduler")
	adapter := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		job: cron.FuncJob(job),
		log: log,
	}
}

// Start schedules the job every interval, or stays stopped when disabled.
// Calling Start again replaces the previous schedule.
func (s *Scheduler) Start(enabled bool, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStopped
	}

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.state = Stopped
	s.interval = 0

	if !enabled {
		s.log.Info("periodic snapshots disabled")
		return nil
	}
	if interval < time.Second {
		return fmt.Errorf("interval %s is shorter than a second", interval)
	}

	// cron.Every never fires sooner than a second and truncates to seconds.
	id := s.cron.Schedule(cron.Every(interval), s.job)
	s.entry = id
	s.interval = interval
	s.state = Running
	s.cron.Start()

	s.log.Info("periodic snapshots scheduled", "interval", interval)
	return nil
}

// Reconfigure applies a new enabled flag and interval.
func (s *Scheduler) Reconfigure(enabled bool, interval time.Duration) error {
	return s.Start(enabled, interval)
}

// Stop cancels future ticks. It does not interrupt a running tick; the
// returned context is done once that tick has returned. A stopped scheduler
// cannot be started again.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.state = Stopped
	s.interval = 0
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}

	return s.cron.Stop()
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval returns the tick interval, zero when stopped.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Next returns the time of the next tick, zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// cronLogger adapts a component logger to cron.Logger.
type cronLogger struct {
	log *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
