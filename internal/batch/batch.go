// Package batch runs conversions over many files off the caller's goroutine.
package batch

import (
	"cmp"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/converter"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

// DefaultConcurrency bounds the files converted at once within one run.
const DefaultConcurrency = 4

var ErrBusy = errors.New("a conversion is already running")

type Job struct {
	Paths     []string
	Direction types.Direction
	Params    params.Set
}

type EventKind int

const (
	EventOutcome EventKind = iota
	EventCompleted
)

// Event is delivered for every processed file and once more on completion.
// Done and Total count files of the de-duplicated job.
type Event struct {
	Kind     EventKind
	Outcome  types.Outcome
	Outcomes []types.Outcome
	Done     int
	Total    int
}

// Dedupe drops repeated paths, keeping first occurrence order.
func Dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Classify turns a conversion error into a per-file outcome.
func Classify(path string, err error) types.Outcome {
	o := types.Outcome{Input: path, Err: err}
	var uerr *converter.UnsupportedFormatError
	switch {
	case errors.As(err, &uerr):
		o.Kind = types.OutcomeUnsupported
		o.Ext = uerr.Ext
	case errors.Is(err, converter.ErrMalformedInput):
		o.Kind = types.OutcomeMalformed
	case errors.Is(err, converter.ErrWrite):
		o.Kind = types.OutcomeWriteError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.Kind = types.OutcomeCanceled
	default:
		o.Kind = types.OutcomeReadError
	}
	return o
}

// Options tunes Execute.
type Options struct {
	Concurrency int
	Logger      logrus.FieldLogger
}

// Execute converts every unique path of job and calls emit once per file from
// worker goroutines; emit must be safe for concurrent use. Per-file failures
// never stop the batch. The returned outcomes follow de-duplicated path order.
func Execute(ctx context.Context, job Job, opts Options, emit func(types.Outcome)) ([]types.Outcome, error) {
	if err := job.Params.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	paths := Dedupe(job.Paths)
	outcomes := make([]types.Outcome, len(paths))

	var g errgroup.Group
	g.SetLimit(limit)
	for _, chain := range schedule(paths, job.Direction) {
		g.Go(func() error {
			for _, i := range chain {
				path := paths[i]
				outcome := convertOne(ctx, path, job)
				outcomes[i] = outcome

				entry := logger.WithFields(logrus.Fields{
					"file":    filepath.Base(path),
					"outcome": outcome.Kind.String(),
				})
				if outcome.Failed() {
					entry.WithError(outcome.Err).Warn("file not converted")
				} else {
					entry.WithField("output", outcome.Output).Info("file converted")
				}

				if emit != nil {
					emit(outcome)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

// schedule groups the indexes of paths into chains that each run on one
// worker. When a path is the output of another path in the job, both share a
// chain and the path is converted before its producer overwrites it.
func schedule(paths []string, dir types.Direction) [][]int {
	index := make(map[string]int, len(paths))
	for i, p := range paths {
		index[filepath.Clean(p)] = i
	}
	next := make([]int, len(paths))
	for i, p := range paths {
		next[i] = -1
		if j, ok := index[filepath.Clean(converter.OutputPath(p, dir))]; ok && j != i {
			next[i] = j
		}
	}

	depth := make([]int, len(paths))
	chains := make(map[int][]int)
	var roots []int
	for i := range paths {
		root := i
		for steps := 0; next[root] >= 0 && steps < len(paths); steps++ {
			root = next[root]
			depth[i]++
		}
		if _, ok := chains[root]; !ok {
			roots = append(roots, root)
		}
		chains[root] = append(chains[root], i)
	}

	out := make([][]int, 0, len(roots))
	for _, root := range roots {
		chain := chains[root]
		slices.SortStableFunc(chain, func(a, b int) int { return cmp.Compare(depth[a], depth[b]) })
		out = append(out, chain)
	}
	return out
}

func convertOne(ctx context.Context, path string, job Job) types.Outcome {
	if err := ctx.Err(); err != nil {
		return types.Outcome{Kind: types.OutcomeCanceled, Input: path, Err: err}
	}
	result, err := converter.Convert(path, job.Direction, job.Params)
	if err != nil {
		return Classify(path, err)
	}
	return types.Outcome{Kind: types.OutcomeWritten, Input: path, Output: result.OutputFile}
}

// Runner serializes jobs: Submit refuses new work until the current run has
// delivered its completion event.
type Runner struct {
	opts Options
	busy atomic.Bool
}

func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Submit validates the job and starts it on its own goroutine. An invalid
// parameter set fails here, before any file is opened.
func (r *Runner) Submit(ctx context.Context, job Job) (*Run, error) {
	if err := job.Params.Validate(); err != nil {
		return nil, err
	}
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	total := len(Dedupe(job.Paths))
	run := &Run{
		events: make(chan Event, total+1),
		done:   make(chan struct{}),
	}

	go func() {
		var mu sync.Mutex
		finished := 0
		outcomes, err := Execute(ctx, job, r.opts, func(o types.Outcome) {
			mu.Lock()
			finished++
			ev := Event{Kind: EventOutcome, Outcome: o, Done: finished, Total: total}
			run.events <- ev
			mu.Unlock()
		})
		if err != nil {
			// Validated above; keep the contract anyway.
			run.err = err
		}
		run.outcomes = outcomes

		r.busy.Store(false)
		run.events <- Event{Kind: EventCompleted, Outcomes: outcomes, Done: total, Total: total}
		close(run.events)
		close(run.done)
	}()

	return run, nil
}

// Run is the handle of a submitted job.
type Run struct {
	events   chan Event
	done     chan struct{}
	outcomes []types.Outcome
	err      error
}

// Events yields one EventOutcome per file and then exactly one EventCompleted
// before the channel closes. The buffer holds every event, so a caller that
// never reads does not stall the run.
func (r *Run) Events() <-chan Event {
	return r.events
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run completes and returns its outcomes.
func (r *Run) Wait() ([]types.Outcome, error) {
	<-r.done
	return r.outcomes, r.err
}
