package scheduler

import (
	"context"
	"errors"
	"fmt"

	"netimob_lead_router/internal/routing/service"
	"netimob_lead_router/platform/config"
	"netimob_lead_router/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes routing tasks from the asynq queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	svc    *service.Service
	log    *logger.Logger
}

// NewWorker creates the asynq server handling manual sweep tasks.
func NewWorker(cfg config.SchedulerConfig, svc *service.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		svc:    svc,
		log:    log,
	}

	mux.HandleFunc(TaskRoutingSweep, w.handleSweep)

	return w, nil
}

// handleSweep runs a guarded sweep for a manual trigger. A sweep already in
// progress is not an error worth retrying; the running one covers the
// requested work.
func (w *Worker) handleSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSweepPayload(task)
	if err != nil {
		return err
	}

	summary, err := w.svc.Sweep(ctx)
	if err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			w.log.Info("manual sweep skipped, another sweep is running",
				"triggered_by", payload.TriggeredBy,
			)
			return nil
		}
		return err
	}

	w.log.Info("manual sweep completed",
		"triggered_by", payload.TriggeredBy,
		"expired", summary.Expired,
		"rerouted", summary.Rerouted,
		"exhausted", summary.Exhausted,
	)
	return nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
