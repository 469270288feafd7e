// Package scheduler runs periodic warm-up jobs against the fetch layer.
package scheduler

import (
	"context"
	"sync"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs. A job still running when its next
// tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mutex  sync.Mutex
	jobs   []string
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	logger logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger.IsTraceEnabled() {
		l.logger.With(kv(keysAndValues)).Trace("%s", msg)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.With(kv(keysAndValues)).Error("%s: %s", msg, err)
}

func kv(pairs []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			out[k] = pairs[i+1]
		}
	}
	return out
}

// New creates a new scheduler. Jobs receive a context derived from ctx that
// is cancelled by Stop.
func New(ctx context.Context, log logger.Logger) *Scheduler {
	log = log.WithPrefix("[scheduler]")
	clog := cronLogger{logger: log}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("started with %d jobs", len(s.Jobs()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("stopped")
}

// AddJob registers job on a standard cron spec or an @every descriptor.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("job %s failed: %s", job.Name(), err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "scheduler: add %s", job.Name())
	}
	s.mutex.Lock()
	s.jobs = append(s.jobs, job.Name())
	s.mutex.Unlock()
	s.logger.Debug("registered %s on %q", job.Name(), schedule)
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	log := s.logger.With(map[string]interface{}{"job": job.Name()})
	log.Debug("running")
	if err := job.Run(s.ctx); err != nil {
		return err
	}
	log.Debug("completed")
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.jobs...)
}
