// Package api exposes the batch converter over HTTP.
package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

// Submitter starts batch runs; *batch.Runner satisfies it.
type Submitter interface {
	Submit(ctx context.Context, job batch.Job) (*batch.Run, error)
}

// History records and lists finished runs; *store.Store satisfies it.
type History interface {
	RecordRun(ctx context.Context, rec store.RunRecord, outcomes []types.Outcome) (int64, error)
	ListRuns(ctx context.Context, last int) ([]store.RunRecord, error)
}

type Config struct {
	Runner    Submitter
	History   History // optional
	Workdir   string
	Logger    *logrus.Logger
	BodyLimit int
}

type server struct {
	runner  Submitter
	history History
	workdir string
	log     logrus.FieldLogger
}

// New builds the fiber app with every route registered.
func New(cfg Config) *fiber.App {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 64 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:               "dimconv",
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
		Output: log.WriterLevel(logrus.DebugLevel),
	}))

	s := &server{
		runner:  cfg.Runner,
		history: cfg.History,
		workdir: cfg.Workdir,
		log:     log,
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/convert", s.convert)
	api.Get("/files/:job/:name", s.download)
	api.Post("/preview", s.preview)
	api.Get("/history", s.listHistory)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}

func errorResponse(c *fiber.Ctx, status int, message string, err error) error {
	body := fiber.Map{
		"success": false,
		"message": message,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.Status(status).JSON(body)
}
