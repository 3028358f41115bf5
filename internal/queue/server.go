package queue

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// NewServer builds a worker that processes one conversion job at a time.
func NewServer(opts RedisOptions, logger logrus.FieldLogger) *asynq.Server {
	return asynq.NewServer(
		opts.clientOpt(),
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.WithField("task", task.Type()).WithError(err).Error("task failed")
			}),
		},
	)
}

// NewServeMux routes conversion:run tasks to h.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeConversionRun, h.Handle)
	return mux
}
