// Package scheduler runs a job on a fixed interval in the background.
//
// It is a thin supervisor around robfig/cron: a panicking job is recovered
// and logged, and a run that is still going when the next tick arrives
// causes that tick to be skipped rather than stacked. A failed run never
// stops later ones.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of background work, typically a sweep.
type Job func() error

// Scheduler runs a Job every interval until stopped.
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	wrapped  cron.Job // job as the schedule runs it
	interval time.Duration
	logger   *zap.Logger
}

// New returns a stopped Scheduler. Intervals are rounded down to whole
// seconds with a minimum of one second.
func New(interval time.Duration, job Job, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		job:      job,
		interval: interval,
		logger:   logger,
	}

	// Recover must sit inside SkipIfStillRunning: the skip wrapper only
	// hands its token back when the inner job returns normally.
	cl := cronLogger{logger.Sugar()}
	s.wrapped = cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).Then(cron.FuncJob(s.run))
	s.cron = cron.New(cron.WithLogger(cl))
	s.cron.Schedule(cron.Every(interval), s.wrapped)
	return s
}

// Start begins running the job in the background. The first run happens
// one interval after Start.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.cron.Start()
}

// Stop prevents further runs. The returned context is done once a run that
// is in progress has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")
	return s.cron.Stop()
}

// RunOnce runs the job synchronously, outside the schedule. It returns when
// the job does or when ctx is done, whichever is first.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.safeJob()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	if err := s.job(); err != nil {
		s.logger.Warn("scheduled run failed", zap.Error(err))
	}
}

func (s *Scheduler) safeJob() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.job()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
