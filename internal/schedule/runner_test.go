package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type blockingJob struct {
	release chan struct{}
	runs    atomic.Int32
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	<-j.release
	return nil
}

type countJob struct {
	runs atomic.Int32
}

func (j *countJob) Name() string { return "count" }

func (j *countJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return nil
}

func TestRunnerSkipsOverlappingTick(t *testing.T) {
	c := NewCronScheduler()
	c.Start(context.Background())

	job := &blockingJob{release: make(chan struct{})}
	tick := c.runner(job, "* * * * *")

	done := make(chan struct{})
	go func() {
		tick()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	// the first run is still blocked, so this tick must return without
	// starting a second one
	tick()
	require.Equal(t, int32(1), job.runs.Load())

	close(job.release)
	<-done

	tick()
	require.Equal(t, int32(2), job.runs.Load())
}

func TestRunnerIgnoresTickAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCronScheduler()
	c.Start(ctx)
	cancel()

	job := &countJob{}
	c.runner(job, "* * * * *")()
	require.Zero(t, job.runs.Load())
}
