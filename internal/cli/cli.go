// Package cli wires the dimconv commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/config"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/logging"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/ui"
)

// BuildInfo is stamped into the binary at release time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type app struct {
	configPath string
	settings   config.Settings
	logger     *logrus.Logger
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute(info BuildInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(info).ExecuteContext(ctx)
}

func NewRootCmd(info BuildInfo) *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "dimconv",
		Short:         "Convert voltammograms between dimensional and dimensionless units",
		Version:       fmt.Sprintf("%s\ncommit: %s\nbuilt: %s", info.Version, info.Commit, info.Date),
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadSettings()
		},
		RunE: a.runTUI,
	}
	rootCmd.SetVersionTemplate("dimconv {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath(), "path to config file")

	rootCmd.AddCommand(newConvertCmd(a))
	rootCmd.AddCommand(newPreviewCmd(a))
	rootCmd.AddCommand(newParamsCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newWorkerCmd(a))
	rootCmd.AddCommand(newEnqueueCmd(a))

	return rootCmd
}

func (a *app) loadSettings() error {
	settings, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.settings = settings
	return nil
}

// useLogger installs the process logger writing to out.
func (a *app) useLogger(out io.Writer, jsonFormat bool) *logrus.Logger {
	a.logger = logging.New(a.settings.LogLevel, out, jsonFormat)
	logging.SetLogger(a.logger)
	return a.logger
}

// openStore opens the history database; failures are logged and yield nil so
// conversions still run without history.
func (a *app) openStore() *store.Store {
	st, err := store.Open(a.settings.StorePath)
	if err != nil {
		a.logger.WithError(err).Warn("run history disabled")
		return nil
	}
	return st
}

func (a *app) closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close history database")
	}
}

func (a *app) runTUI(cmd *cobra.Command, _ []string) error {
	logFile, err := logging.OpenFile(a.settings.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger := a.useLogger(logFile, false)

	set, ok, err := params.Load(a.settings.ParamsFile)
	if err != nil {
		logger.WithError(err).Warn("parameter file not usable")
	}

	st := a.openStore()
	defer a.closeStore(st)

	opts := ui.Options{
		Runner:     batch.NewRunner(batch.Options{Concurrency: a.settings.Concurrency, Logger: logger}),
		Params:     set,
		HaveParams: ok,
		ParamsErr:  err,
		ParamsFile: a.settings.ParamsFile,
		Logger:     logger,
		PlotHeight: a.settings.PreviewHeight,
	}
	if st != nil {
		opts.History = st
	}

	program := tea.NewProgram(ui.InitialModel(opts), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(cmd.Context()))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}
