package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

// paramFlags are the per-run parameter flags shared by convert and enqueue.
// Unset flags fall back to the persisted parameter file.
type paramFlags struct {
	direction   string
	paramsFile  string
	concurrency int
	values      params.Set
}

var paramFlagNames = map[string]string{
	"E0f":        "e0f",
	"concT":      "conct",
	"dElectrode": "delectrode",
	"DX":         "dx",
	"DA":         "da",
	"DB":         "db",
	"DC":         "dc",
}

// DA, DB and DC are persisted but not used by the transforms.
var requiredParams = map[string]bool{"E0f": true, "concT": true, "dElectrode": true, "DX": true}

func (f *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.direction, "to", "dimensionless", "target representation: dimensionless or dimensional")
	cmd.Flags().StringVar(&f.paramsFile, "params-file", "", "parameter file (default from config)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", batch.DefaultConcurrency, "files converted at once")
	cmd.Flags().Float64Var(&f.values.E0f, "e0f", 0, "formal potential E0f (V)")
	cmd.Flags().Float64Var(&f.values.ConcT, "conct", 0, "bulk concentration concT (mol/m^3)")
	cmd.Flags().Float64Var(&f.values.DElectrode, "delectrode", 0, "electrode radius dElectrode (m)")
	cmd.Flags().Float64Var(&f.values.DX, "dx", 0, "diffusion coefficient of X (m^2/s)")
	cmd.Flags().Float64Var(&f.values.DA, "da", 0, "diffusion coefficient of A (m^2/s)")
	cmd.Flags().Float64Var(&f.values.DB, "db", 0, "diffusion coefficient of B (m^2/s)")
	cmd.Flags().Float64Var(&f.values.DC, "dc", 0, "diffusion coefficient of C (m^2/s)")
}

// resolve merges flags with config and the parameter file. Flags given on the
// command line always win.
func (f *paramFlags) resolve(cmd *cobra.Command, a *app) (types.Direction, params.Set, error) {
	applyStringConfig(cmd, "params-file", &f.paramsFile, &a.settings.ParamsFile)
	applyIntConfig(cmd, "concurrency", &f.concurrency, &a.settings.Concurrency)

	dir, err := types.ParseDirection(f.direction)
	if err != nil {
		return 0, params.Set{}, err
	}

	saved, ok, loadErr := params.Load(f.paramsFile)
	var missing []string
	for _, key := range params.Keys {
		name := paramFlagNames[key]
		if cmd.Flags().Changed(name) {
			continue
		}
		if !ok {
			if requiredParams[key] {
				missing = append(missing, "--"+name)
			}
			continue
		}
		v, _ := saved.Get(key)
		target := fieldPtr(&f.values, key)
		applyFloatConfig(cmd, name, target, &v)
	}
	if len(missing) > 0 {
		if loadErr != nil {
			return 0, params.Set{}, fmt.Errorf("%w; pass %s instead", loadErr, strings.Join(missing, " "))
		}
		return 0, params.Set{}, fmt.Errorf("%w: no parameter file at %s; pass %s",
			params.ErrMissingKey, f.paramsFile, strings.Join(missing, " "))
	}
	if err := f.values.Validate(); err != nil {
		return 0, params.Set{}, err
	}
	return dir, f.values, nil
}

func fieldPtr(s *params.Set, key string) *float64 {
	switch key {
	case "E0f":
		return &s.E0f
	case "concT":
		return &s.ConcT
	case "dElectrode":
		return &s.DElectrode
	case "DX":
		return &s.DX
	case "DA":
		return &s.DA
	case "DB":
		return &s.DB
	default:
		return &s.DC
	}
}

func newConvertCmd(a *app) *cobra.Command {
	flags := &paramFlags{}
	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Convert files without the interactive UI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConvert(cmd, flags, args)
		},
	}
	flags.register(cmd)
	return cmd
}

var errFilesFailed = errors.New("some files were not converted")

func (a *app) runConvert(cmd *cobra.Command, flags *paramFlags, args []string) error {
	logger := a.useLogger(cmd.ErrOrStderr(), false)

	dir, set, err := flags.resolve(cmd, a)
	if err != nil {
		return err
	}
	if err := params.Save(flags.paramsFile, set); err != nil {
		logger.WithError(err).Warn("failed to save parameter file")
	}

	st := a.openStore()
	defer a.closeStore(st)

	started := time.Now()
	job := batch.Job{Paths: args, Direction: dir, Params: set}
	outcomes, err := batch.Execute(cmd.Context(), job, batch.Options{Concurrency: flags.concurrency, Logger: logger}, nil)
	if err != nil {
		return err
	}

	if st != nil {
		if _, err := st.RecordRun(cmd.Context(), store.RunRecord{
			JobID:     "cli-" + started.Format("20060102T150405"),
			StartedAt: started,
			EndedAt:   time.Now(),
			Direction: dir.String(),
			Params:    set,
		}, outcomes); err != nil {
			logger.WithError(err).Warn("failed to record run history")
		}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
		fmt.Fprintln(out, o.String())
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d failed", errFilesFailed, failed, len(outcomes))
	}
	return nil
}
