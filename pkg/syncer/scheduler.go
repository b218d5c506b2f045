package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magangradar/platform/pkg/common/logger"
	"github.com/magangradar/platform/pkg/vacancy"
	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron timers driving the two sync kinds. Jobs are
// registered by name; re-registering a name replaces the previous timer so
// configuration reloads never leave duplicate timers firing.
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]cron.EntryID
}

func NewScheduler(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		jobs: make(map[string]cron.EntryID),
	}, nil
}

// Register installs a named cron job. Handler errors are logged, never
// allowed to kill the timer. Replacing a name that was never registered is
// a no-op on the removal side.
func (s *Scheduler) Register(name, expression string, handler func() error) error {
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}

	id, err := s.cron.AddFunc(expression, func() {
		if err := handler(); err != nil {
			logger.Log.WithError(err).WithField("job", name).Error("Scheduled sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering cron %q (%s): %w", name, expression, err)
	}

	s.jobs[name] = id
	logger.WithFields(map[string]interface{}{
		"job":        name,
		"expression": expression,
	}).Info("Cron job registered")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the timers and waits for running handlers to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RegisterCronJobs wires the two sync kinds onto the scheduler using the
// configured expressions. A trigger that finds a run of the same kind
// already in flight is skipped quietly.
func (s *Service) RegisterCronJobs(sched *Scheduler) error {
	jobs := []struct {
		name       string
		expression string
		run        func() error
	}{
		{"incremental-sync", s.cfg.IncrementalCron, func() error {
			return s.runScheduled("incremental-sync", s.RunIncremental)
		}},
		{"full-sync", s.cfg.FullCron, func() error {
			return s.runScheduled("full-sync", s.RunFull)
		}},
	}

	for _, job := range jobs {
		if err := sched.Register(job.name, job.expression, job.run); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) runScheduled(name string, run func(ctx context.Context) (*vacancy.SyncRun, error)) error {
	metrics, err := run(context.Background())
	if errors.Is(err, ErrSyncAlreadyRunning) {
		logger.WithField("job", name).Warn("Skipping scheduled sync; previous run still in progress")
		return nil
	}
	if err != nil {
		return err
	}
	if metrics.Status == statusFailed {
		logger.WithFields(map[string]interface{}{
			"job":    name,
			"run_id": metrics.ID,
			"note":   metrics.Note,
		}).Error("Scheduled sync finished with failure status")
	}
	return nil
}
