// Package scheduler runs a job periodically on a cron schedule without ever overlapping runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrEmptySchedule = errors.New("schedule must not be empty")

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one scheduled run. Its error is logged and the schedule carries on.
type Job func(ctx context.Context) error

// ValidateSchedule reports whether spec is a valid schedule: a cron expression with optional
// seconds, a descriptor such as @hourly, or @every <duration>.
func ValidateSchedule(spec string) error {
	if spec == "" {
		return ErrEmptySchedule
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

type Scheduler struct {
	name      string
	schedule  cron.Schedule
	job       Job
	sugar     *zap.SugaredLogger
	immediate bool
}

type Option func(*Scheduler)

// WithImmediateRun makes Run start a first run right away instead of waiting for the first tick.
func WithImmediateRun() Option {
	return func(s *Scheduler) { s.immediate = true }
}

func New(name, spec string, job Job, sugar *zap.SugaredLogger, opts ...Option) (*Scheduler, error) {
	if err := ValidateSchedule(spec); err != nil {
		return nil, err
	}
	schedule, _ := parser.Parse(spec)
	return newWithSchedule(name, schedule, job, sugar, opts...), nil
}

func newWithSchedule(name string, schedule cron.Schedule, job Job, sugar *zap.SugaredLogger, opts ...Option) *Scheduler {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	s := &Scheduler{
		name:     name,
		schedule: schedule,
		job:      job,
		sugar:    sugar.With("job", name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run schedules the job until ctx is done, then waits for a run in progress to return. Runs never
// overlap: a tick firing while the previous run is still going is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{sugar: s.sugar}
	run := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.runOnce(ctx) }))

	c := cron.New(cron.WithLogger(logger), cron.WithParser(parser))
	c.Schedule(s.schedule, run)

	var wg sync.WaitGroup
	if s.immediate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.Run()
		}()
	}

	c.Start()
	s.sugar.Infow("scheduler started", "next", s.schedule.Next(time.Now()))

	<-ctx.Done()
	s.sugar.Infow("stopping scheduler, waiting for the run in progress")
	<-c.Stop().Done()
	wg.Wait()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.sugar.Errorw("scheduled run failed", "duration", time.Since(start), "error", err)
		return
	}
	s.sugar.Debugw("scheduled run finished", "duration", time.Since(start))
}

// cronLogger adapts a zap logger to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
