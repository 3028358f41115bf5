package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/api"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/preview"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/queue"
)

func newPreviewCmd(a *app) *cobra.Command {
	var (
		pngPath string
		width   int
		height  int
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Plot a file's potential/flux columns in the terminal or as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.useLogger(cmd.ErrOrStderr(), false)

			series, err := preview.Load(args[0])
			if err != nil {
				return fmt.Errorf("cannot preview %s: %w", args[0], err)
			}

			if pngPath != "" {
				f, err := os.Create(pngPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", pngPath, err)
				}
				if err := preview.RenderPNG(f, preview.Title, series, width, height); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to write %s: %w", pngPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", pngPath)
				return nil
			}

			applyIntConfig(cmd, "width", &width, &a.settings.PreviewWidth)
			applyIntConfig(cmd, "height", &height, &a.settings.PreviewHeight)
			return preview.Plot(cmd.OutOrStdout(), preview.Title, series, width, height)
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write a PNG chart to this path instead of plotting in the terminal")
	cmd.Flags().IntVar(&width, "width", 0, "plot width (cells, or pixels with --png)")
	cmd.Flags().IntVar(&height, "height", 0, "plot height (rows, or pixels with --png)")
	return cmd
}

func newParamsCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the persisted parameter set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyStringConfig(cmd, "file", &path, &a.settings.ParamsFile)
			set, ok, err := params.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "no parameter file at %s\n", path)
				return nil
			}
			fmt.Fprintf(out, "# %s\n", path)
			for _, key := range params.Keys {
				v, _ := set.Get(key)
				fmt.Fprintf(out, "%-10s %s\n", key, strconv.FormatFloat(v, 'g', -1, 64))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "parameter file (default from config)")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.useLogger(cmd.ErrOrStderr(), false)
			if last < 0 {
				return fmt.Errorf("--last must be >= 0")
			}
			st := a.openStore()
			if st == nil {
				return fmt.Errorf("history database unavailable at %s", a.settings.StorePath)
			}
			defer a.closeStore(st)

			runs, err := st.ListRuns(cmd.Context(), last)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tJOB\tFINISHED\tDIRECTION\tFILES\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.JobID, r.EndedAt.Local().Format("2006-01-02 15:04:05"), r.Direction, r.Files, r.Failed)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&last, "last", 10, "number of recent runs (0 for all)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := a.useLogger(cmd.ErrOrStderr(), true)
			applyStringConfig(cmd, "addr", &addr, &a.settings.ServeAddr)

			st := a.openStore()
			defer a.closeStore(st)

			cfg := api.Config{
				Runner:  batch.NewRunner(batch.Options{Concurrency: a.settings.Concurrency, Logger: logger}),
				Workdir: a.settings.Workdir,
				Logger:  logger,
			}
			if st != nil {
				cfg.History = st
			}
			server := api.New(cfg)

			go func() {
				<-cmd.Context().Done()
				logger.Info("shutting down HTTP server")
				_ = server.Shutdown()
			}()

			logger.WithField("addr", addr).Info("HTTP server starting")
			if err := server.Listen(addr); err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func (a *app) redisOptions() queue.RedisOptions {
	return queue.RedisOptions{
		Addr:     a.settings.RedisAddr,
		Password: a.settings.RedisPassword,
		DB:       a.settings.RedisDB,
	}
}

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued conversion jobs from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := a.useLogger(cmd.ErrOrStderr(), true)
			ctx := cmd.Context()

			redisClient, err := queue.NewRedisClient(ctx, a.redisOptions())
			if err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			defer redisClient.Close()

			st := a.openStore()
			defer a.closeStore(st)

			var history queue.Recorder
			if st != nil {
				history = st
			}
			handler := queue.NewHandler(queue.NewRedisProgress(redisClient), history, logger, a.settings.Concurrency)

			srv := queue.NewServer(a.redisOptions(), logger)
			if err := srv.Start(queue.NewServeMux(handler)); err != nil {
				return fmt.Errorf("failed to start worker: %w", err)
			}
			logger.WithField("redis", a.settings.RedisAddr).Info("worker started")

			<-ctx.Done()
			logger.Info("shutting down worker")
			srv.Shutdown()
			return nil
		},
	}
}

func newEnqueueCmd(a *app) *cobra.Command {
	flags := &paramFlags{}
	var jobID string
	cmd := &cobra.Command{
		Use:   "enqueue FILE...",
		Short: "Queue a conversion job for a worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.useLogger(cmd.ErrOrStderr(), false)

			dir, set, err := flags.resolve(cmd, a)
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(args))
			for _, p := range args {
				abs, err := filepath.Abs(p)
				if err != nil {
					return err
				}
				paths = append(paths, abs)
			}
			if jobID == "" {
				jobID = uuid.New().String()
			}

			client := queue.NewClient(a.redisOptions())
			defer client.Close()
			taskID, err := client.Enqueue(queue.NewPayload(jobID, paths, dir, set))
			if err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{"job_id": jobID, "task_id": taskID}).Debug("job enqueued")
			fmt.Fprintf(cmd.OutOrStdout(), "job %s queued (task %s); progress in %s\n", jobID, taskID, queue.ProgressKey(jobID))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id (default: random UUID)")
	return cmd
}
