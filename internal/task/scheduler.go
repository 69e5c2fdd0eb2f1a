package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSchedulerInterval = time.Hour

// Job is periodic maintenance work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs one Job on startup, on every interval tick and whenever Trigger is called. Runs never
// overlap. Failures are logged and the next run proceeds as scheduled.
type Scheduler struct {
	job      Job
	interval time.Duration
	logger   *zap.Logger
	trigger  chan struct{}

	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}

	resultMutex sync.Mutex
	lastRunAt   time.Time
	lastErr     error
}

// NewScheduler builds a Scheduler. A non-positive interval falls back to one hour.
func NewScheduler(job Job, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		job:      job,
		interval: interval,
		logger:   logger.Named("scheduler"),
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the run loop. Calling Start on a running scheduler is a no-op.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.job == nil {
		return
	}
	scheduler.controlMutex.Lock()
	defer scheduler.controlMutex.Unlock()
	if scheduler.cancel != nil {
		return
	}
	runtimeContext, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	scheduler.done = make(chan struct{})
	go scheduler.loop(runtimeContext, scheduler.done)
}

// Trigger requests an extra run. Requests made while one is already pending are coalesced.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for an in-flight run to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel, done := scheduler.cancel, scheduler.done
	scheduler.cancel, scheduler.done = nil, nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// LastRun reports when the job last finished and the error it returned.
func (scheduler *Scheduler) LastRun() (time.Time, error) {
	scheduler.resultMutex.Lock()
	defer scheduler.resultMutex.Unlock()
	return scheduler.lastRunAt, scheduler.lastErr
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(scheduler.interval)
	defer ticker.Stop()

	scheduler.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.run(ctx)
		case <-ticker.C:
			scheduler.run(ctx)
		}
	}
}

func (scheduler *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	startedAt := time.Now()
	runErr := scheduler.job.Run(ctx)
	finishedAt := time.Now()

	scheduler.resultMutex.Lock()
	scheduler.lastRunAt, scheduler.lastErr = finishedAt, runErr
	scheduler.resultMutex.Unlock()

	if runErr != nil {
		scheduler.logger.Warn("job_failed", zap.String("job", scheduler.job.Name()), zap.Error(runErr))
		return
	}
	scheduler.logger.Debug("job_finished", zap.String("job", scheduler.job.Name()), zap.Duration("dur", finishedAt.Sub(startedAt)))
}
