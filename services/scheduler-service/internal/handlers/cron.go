package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/apptflow/libs/httpx"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/audit"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/jobs"
)

const maxBatchSize = 500

type DueJobRunner interface {
	RunDueJobs(ctx context.Context, batchSize int) (jobs.Result, error)
}

type CronHandler struct {
	runner    DueJobRunner
	audit     audit.Recorder
	logger    *slog.Logger
	batchSize int
}

func NewCronHandler(runner DueJobRunner, recorder audit.Recorder, logger *slog.Logger, batchSize int) *CronHandler {
	if batchSize <= 0 {
		batchSize = jobs.DefaultBatchSize
	}
	return &CronHandler{runner: runner, audit: recorder, logger: logger, batchSize: batchSize}
}

// RunDueJobs triggers one sweep. Callers authenticate with the cron secret.
func (h *CronHandler) RunDueJobs(w http.ResponseWriter, r *http.Request) {
	batch := h.batchSize
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxBatchSize {
			httpx.WriteError(w, http.StatusBadRequest, "batch_size must be between 1 and 500")
			return
		}
		batch = n
	}

	res, err := h.runner.RunDueJobs(r.Context(), batch)
	if err != nil {
		h.logger.Error("run due jobs failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "run failed")
		return
	}
	h.audit.Record(r.Context(), audit.Event{
		Action: audit.ActionRunnerSweep,
		Details: map[string]any{
			"processed": res.Processed,
			"sent":      res.Sent,
			"skipped":   res.Skipped,
			"failed":    res.Failed,
		},
	})
	httpx.WriteJSON(w, http.StatusOK, res)
}
