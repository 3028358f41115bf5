package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

// ProgressSink receives per-job counters while a task runs.
type ProgressSink interface {
	Start(ctx context.Context, jobID string, total int) error
	Update(ctx context.Context, jobID string, done, failed int) error
}

// Recorder stores a finished run.
type Recorder interface {
	RecordRun(ctx context.Context, rec store.RunRecord, outcomes []types.Outcome) (int64, error)
}

// Handler executes conversion:run tasks.
type Handler struct {
	progress    ProgressSink
	history     Recorder
	logger      logrus.FieldLogger
	concurrency int
}

// NewHandler builds a handler. progress and history may be nil.
func NewHandler(progress ProgressSink, history Recorder, logger logrus.FieldLogger, concurrency int) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		progress:    progress,
		history:     history,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Handle decodes the payload and runs the batch. Per-file failures are part of
// the result, not a task error; an invalid payload is skipped without retry.
func (h *Handler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	dir, set, err := payload.Decode()
	if err != nil {
		return fmt.Errorf("job %s: %w: %w", payload.JobID, err, asynq.SkipRetry)
	}

	log := h.logger.WithField("job_id", payload.JobID)
	job := batch.Job{Paths: payload.Paths, Direction: dir, Params: set}
	total := len(batch.Dedupe(job.Paths))
	log.WithField("files", total).Info("starting conversion job")

	if h.progress != nil {
		if err := h.progress.Start(ctx, payload.JobID, total); err != nil {
			log.WithError(err).Warn("failed to publish progress")
		}
	}

	var mu sync.Mutex
	done, failed := 0, 0
	started := time.Now()
	outcomes, err := batch.Execute(ctx, job, batch.Options{Concurrency: h.concurrency, Logger: log}, func(o types.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if o.Failed() {
			failed++
		}
		if h.progress != nil {
			if err := h.progress.Update(ctx, payload.JobID, done, failed); err != nil {
				log.WithError(err).Warn("failed to publish progress")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("job %s: %w: %w", payload.JobID, err, asynq.SkipRetry)
	}

	if h.history != nil {
		_, err := h.history.RecordRun(ctx, store.RunRecord{
			JobID:     payload.JobID,
			StartedAt: started,
			EndedAt:   time.Now(),
			Direction: dir.String(),
			Params:    set,
		}, outcomes)
		if err != nil {
			log.WithError(err).Error("failed to record run history")
		}
	}

	log.WithFields(logrus.Fields{"files": total, "failed": failed}).Info("conversion job finished")
	return nil
}
