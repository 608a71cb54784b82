package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int64
	cycle := func(ctx context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			return errors.New("server unreachable")
		}
		return nil
	}

	sup := New(nil, cycle)
	sup.IdleDelay = 0
	sup.RetryDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	// Wait for the failed cycle plus at least one retry.
	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("cycles after failure = %d, want >= 3", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sup.Failures() != 1 {
		t.Errorf("failures = %d, want 1", sup.Failures())
	}
	if sup.Cycles() < 3 {
		t.Errorf("cycles = %d, want >= 3", sup.Cycles())
	}
	if got := sup.LastError(); got != "server unreachable" {
		t.Errorf("last error = %q", got)
	}
}

func TestRunKeepsRetryingIndefinitely(t *testing.T) {
	var calls atomic.Int64
	cycle := func(ctx context.Context) error {
		calls.Add(1)
		return fmt.Errorf("failure %d", calls.Load())
	}

	sup := New(nil, cycle)
	sup.IdleDelay = 0
	sup.RetryDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 10 {
		select {
		case <-deadline:
			t.Fatalf("cycles = %d, want >= 10 despite persistent failure", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sup.Failures() < 10 {
		t.Errorf("failures = %d, want >= 10", sup.Failures())
	}
}

func TestRunStopsCleanlyDuringDelay(t *testing.T) {
	cycle := func(ctx context.Context) error { return nil }

	sup := New(nil, cycle)
	sup.IdleDelay = time.Hour // shutdown must not wait this out

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop within one second of cancellation")
	}
}

func TestRunStopsCleanlyDuringCycle(t *testing.T) {
	started := make(chan struct{})
	cycle := func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	sup := New(nil, cycle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		// A cycle aborted by shutdown is not a failure.
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
	if sup.Failures() != 0 {
		t.Errorf("failures = %d, want 0 on shutdown", sup.Failures())
	}
}

func TestStateTransitions(t *testing.T) {
	block := make(chan struct{})
	cycle := func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}

	sup := New(nil, cycle)
	if sup.State() != StateStopped {
		t.Fatalf("initial state = %v", sup.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.After(time.Second)
	for sup.State() != StateRunning {
		select {
		case <-deadline:
			t.Fatal("supervisor never reported running")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	close(block)
	<-done

	if sup.State() != StateStopped {
		t.Errorf("state after Run = %v, want stopped", sup.State())
	}
}

func TestStateString(t *testing.T) {
	if StateStopped.String() != "stopped" || StateRunning.String() != "running" {
		t.Errorf("state strings = %q, %q", StateStopped, StateRunning)
	}
	if State(99).String() != "unknown" {
		t.Errorf("State(99) = %q", State(99))
	}
}

func TestNewDefaults(t *testing.T) {
	sup := New(nil, func(ctx context.Context) error { return nil })
	if sup.IdleDelay != time.Second {
		t.Errorf("IdleDelay = %v, want 1s", sup.IdleDelay)
	}
	if sup.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v, want 5s", sup.RetryDelay)
	}
}
