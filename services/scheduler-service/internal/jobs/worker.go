package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Worker triggers the runner on a fixed interval inside the process.
// Overlapping sweeps with the cron endpoint are fine: jobs are claimed
// atomically.
type Worker struct {
	runner    *Runner
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(runner *Runner, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Worker{
		runner:    runner,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.runner.RunDueJobs(ctx, w.batchSize); err != nil {
				w.logger.Error("due jobs sweep failed", "err", err)
			}
		}
	}
}
