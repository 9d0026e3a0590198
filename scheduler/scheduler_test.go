package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunOnce(t *testing.T) {
	var runs atomic.Int32
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		job     Job
		wantErr error
	}{
		{
			name: "success",
			job:  func() error { runs.Add(1); return nil },
		},
		{
			name:    "failure is returned",
			job:     func() error { runs.Add(1); return errBoom },
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := runs.Load()
			s := New(time.Minute, tt.job, zap.NewNop())
			err := s.RunOnce(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RunOnce error = %v, want %v", err, tt.wantErr)
			}
			if runs.Load() != before+1 {
				t.Errorf("job ran %d times, want 1", runs.Load()-before)
			}
		})
	}
}

func TestRunOnceRecoversPanic(t *testing.T) {
	s := New(time.Minute, func() error { panic("sweep exploded") }, zap.NewNop())
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected an error from a panicking job")
	}
}

func TestRunOnceHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := New(time.Minute, func() error { <-release; return nil }, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.RunOnce(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunOnce error = %v, want DeadlineExceeded", err)
	}
}

// Failing and panicking runs do not stop later ones.
func TestScheduledJobSurvivesFailures(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Minute, func() error {
		switch runs.Add(1) {
		case 1:
			return errors.New("first run fails")
		case 2:
			panic("second run panics")
		}
		return nil
	}, zap.NewNop())

	for range 4 {
		s.wrapped.Run()
	}
	if got := runs.Load(); got != 4 {
		t.Errorf("job ran %d times, want 4", got)
	}
}

func TestScheduledJobPanicsFirst(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Minute, func() error {
		if runs.Add(1) == 1 {
			panic("first run panics")
		}
		return nil
	}, zap.NewNop())

	s.wrapped.Run()
	s.wrapped.Run()
	if got := runs.Load(); got != 2 {
		t.Errorf("job ran %d times after a panicking first run, want 2", got)
	}
}

func TestStartStop(t *testing.T) {
	s := New(time.Hour, func() error { return nil }, zap.NewNop())
	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not finish")
	}
}
