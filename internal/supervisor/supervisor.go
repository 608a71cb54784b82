// Package supervisor keeps the agent cycle running: it reruns the
// cycle forever, pacing successes with a short idle delay and absorbing
// failures with a longer retry delay. It never gives up on its own;
// only context cancellation stops it.
package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// State reports what the supervisor is doing.
type State int32

const (
	// StateStopped means the loop is not executing cycles.
	StateStopped State = iota
	// StateRunning means the loop is executing cycles.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleFunc runs one unit of agent work.
type CycleFunc func(ctx context.Context) error

// Supervisor reruns a cycle function indefinitely. Delays are fixed:
// failures do not escalate the wait, and the retry count is unbounded.
type Supervisor struct {
	logger *slog.Logger
	cycle  CycleFunc

	// IdleDelay is the pause after a successful cycle.
	IdleDelay time.Duration
	// RetryDelay is the pause after a failed cycle.
	RetryDelay time.Duration

	state     atomic.Int32
	cycles    atomic.Int64
	failures  atomic.Int64
	lastError atomic.Value // string
}

// New creates a supervisor with the default pacing of one second idle
// and five seconds retry.
func New(logger *slog.Logger, cycle CycleFunc) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:     logger,
		cycle:      cycle,
		IdleDelay:  time.Second,
		RetryDelay: 5 * time.Second,
	}
}

// Run executes cycles until ctx is cancelled, then returns nil.
// Cancellation is the clean shutdown path, not a failure: an
// interrupted delay ends the loop within one delay period, and a cycle
// that fails because the context died is not counted as an error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.state.Store(int32(StateRunning))
	defer s.state.Store(int32(StateStopped))

	s.logger.Info("supervisor started",
		"idle_delay", s.IdleDelay,
		"retry_delay", s.RetryDelay,
	)

	for {
		if ctx.Err() != nil {
			s.logger.Info("supervisor stopping", "cycles", s.cycles.Load())
			return nil
		}

		err := s.cycle(ctx)
		s.cycles.Add(1)

		switch {
		case ctx.Err() != nil:
			s.logger.Info("supervisor stopping", "cycles", s.cycles.Load())
			return nil
		case err != nil:
			s.failures.Add(1)
			s.lastError.Store(err.Error())
			s.logger.Error("cycle failed, retrying", "error", err, "retry_in", s.RetryDelay)
			if !sleep(ctx, s.RetryDelay) {
				s.logger.Info("supervisor stopping", "cycles", s.cycles.Load())
				return nil
			}
		default:
			if !sleep(ctx, s.IdleDelay) {
				s.logger.Info("supervisor stopping", "cycles", s.cycles.Load())
				return nil
			}
		}
	}
}

// State returns the current loop state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Cycles returns how many cycles have run.
func (s *Supervisor) Cycles() int64 {
	return s.cycles.Load()
}

// Failures returns how many cycles have failed.
func (s *Supervisor) Failures() int64 {
	return s.failures.Load()
}

// LastError returns the most recent cycle error text, or "".
func (s *Supervisor) LastError() string {
	if v, ok := s.lastError.Load().(string); ok {
		return v
	}
	return ""
}

// sleep waits for d or until ctx is done. Reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
