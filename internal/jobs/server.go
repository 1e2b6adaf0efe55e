package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Schedule holds the cron specs of the periodic tasks.
type Schedule struct {
	Reconcile    string
	ReleaseHolds string
}

// Worker runs the asynq server and scheduler until its context ends.
type Worker struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	schedule  Schedule
}

// NewWorker builds a Worker for the Redis instance described by opt.
func NewWorker(opt asynq.RedisConnOpt, concurrency int, schedule Schedule, h *Handlers) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		Logger:   logrus.WithField("component", "asynq"),
		LogLevel: asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	h.Register(mux)
	return &Worker{
		srv:       srv,
		scheduler: asynq.NewScheduler(opt, nil),
		mux:       mux,
		schedule:  schedule,
	}
}

// Run starts processing and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.schedule.Reconcile != "" {
		if _, err := w.scheduler.Register(w.schedule.Reconcile, NewReconcileTask()); err != nil {
			return fmt.Errorf("register reconcile schedule: %w", err)
		}
	}
	if w.schedule.ReleaseHolds != "" {
		if _, err := w.scheduler.Register(w.schedule.ReleaseHolds, NewReleaseHoldsTask()); err != nil {
			return fmt.Errorf("register hold sweep schedule: %w", err)
		}
	}
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.srv.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	<-ctx.Done()
	w.scheduler.Shutdown()
	w.srv.Shutdown()
	return nil
}
