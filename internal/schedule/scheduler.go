package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is a named unit of background work. Run receives the daemon
// context and should return promptly once that context is cancelled.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler drives maintenance jobs on minute-level cron specs.
// A tick that fires while the previous run of the same job is still
// going is skipped, and ticks after the daemon context is cancelled
// are ignored.
type CronScheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{cron: cron.New(cron.WithParser(parser))}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	if _, err := c.cron.AddFunc(spec, c.runner(job, spec)); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	logutil.GetLogger(context.Background()).Info("job scheduled",
		zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

// Stop halts scheduling and waits for any in-flight run to finish.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) runner(job Job, spec string) func() {
	var running atomic.Bool
	var failures atomic.Int64
	return func() {
		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}
		logger := logutil.GetLogger(ctx).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		if !running.CompareAndSwap(false, true) {
			logger.Info("previous run still going, tick skipped")
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.Error("job run failed",
				zap.Int64("consecutive_failures", failures.Add(1)),
				zap.Duration("cost", time.Since(start)),
				zap.Error(err))
			return
		}
		failures.Store(0)
		logger.Info("job run done", zap.Duration("cost", time.Since(start)))
	}
}
