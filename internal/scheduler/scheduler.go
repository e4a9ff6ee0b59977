// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work.
type Job func(ctx context.Context) error

// Validate reports whether schedule is a standard five-field cron expression or
// a descriptor such as "@daily".
func Validate(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return errors.Wrapf(err, "parse schedule %q", schedule)
	}
	return nil
}

// Scheduler wraps cron. A job that is still running when its next tick fires
// is skipped; a panicking job is recovered and logged.
type Scheduler struct {
	cron *cron.Cron
	lg   *zap.Logger
	ctx  context.Context
}

// New creates a Scheduler evaluating schedules in loc.
func New(lg *zap.Logger, loc *time.Location) *Scheduler {
	logger := cronLogger{lg: lg.Named("cron").Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		lg:  lg,
		ctx: context.Background(),
	}
}

// Add registers job under name on schedule. Jobs receive the context given to
// Run, carrying a logger with the job name.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		lg := s.lg.With(zap.String("job", name))
		ctx := zctx.Base(s.ctx, lg)

		start := time.Now()
		if err := job(ctx); err != nil {
			lg.Error("Job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		lg.Debug("Job done", zap.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return errors.Wrapf(err, "schedule %s", name)
	}
	s.lg.Info("Job scheduled", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()

	s.lg.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	lg *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.lg.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.lg.Errorw(msg, append(keysAndValues, "error", err)...)
}
