package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

var testSet = params.Set{E0f: 0.1, ConcT: 1, DElectrode: 1e-5, DX: 1e-9, DA: 1, DB: 1, DC: 1}

type fakeSink struct {
	mu      sync.Mutex
	total   int
	done    int
	failed  int
	updates int
}

func (f *fakeSink) Start(_ context.Context, _ string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total = total
	return nil
}

func (f *fakeSink) Update(_ context.Context, _ string, done, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done, f.failed = done, failed
	f.updates++
	return nil
}

type fakeRecorder struct {
	rec      store.RunRecord
	outcomes []types.Outcome
	calls    int
}

func (f *fakeRecorder) RecordRun(_ context.Context, rec store.RunRecord, outcomes []types.Outcome) (int64, error) {
	f.rec = rec
	f.outcomes = outcomes
	f.calls++
	return 1, nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPayloadRoundTrip(t *testing.T) {
	p := NewPayload("job-1", []string{"a.csv"}, types.ToDimensional, testSet)
	task, err := NewTask(p)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TypeConversionRun {
		t.Errorf("task type = %s", task.Type())
	}
	var decoded Payload
	if err := json.Unmarshal(task.Payload(), &decoded); err != nil {
		t.Fatal(err)
	}
	dir, set, err := decoded.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if dir != types.ToDimensional || set != testSet {
		t.Errorf("decoded %v %+v", dir, set)
	}
}

func TestPayloadDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"bad direction", Payload{Direction: "sideways", Params: testSet.Map()}},
		{"missing key", Payload{Direction: "dimensional", Params: map[string]float64{"E0f": 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.payload.Decode(); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestProgressKey(t *testing.T) {
	if got := ProgressKey("abc"); got != "conversion:progress:abc" {
		t.Errorf("ProgressKey = %s", got)
	}
}

func TestHandleRunsBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	if err := os.WriteFile(good, []byte("E,I\n0.1,1e-6\n0.2,2e-6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "notes.txt")

	sink := &fakeSink{}
	rec := &fakeRecorder{}
	h := NewHandler(sink, rec, quietLogger(), 2)

	task, err := NewTask(NewPayload("job-7", []string{good, bad, good}, types.ToDimensionless, testSet))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if sink.total != 2 || sink.done != 2 || sink.failed != 1 || sink.updates != 2 {
		t.Errorf("unexpected progress: %+v", sink)
	}
	if rec.calls != 1 || rec.rec.JobID != "job-7" || len(rec.outcomes) != 2 {
		t.Fatalf("unexpected history: %+v", rec)
	}
	if rec.outcomes[0].Kind != types.OutcomeWritten || rec.outcomes[1].Kind != types.OutcomeUnsupported {
		t.Errorf("unexpected outcomes: %v", rec.outcomes)
	}
	if _, err := os.Stat(filepath.Join(dir, "good-Dimensionless.csv")); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestHandleInvalidPayloadSkipsRetry(t *testing.T) {
	h := NewHandler(nil, nil, quietLogger(), 1)

	err := h.Handle(context.Background(), asynq.NewTask(TypeConversionRun, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}

	bad := testSet
	bad.DX = 0
	task, err := NewTask(NewPayload("job", []string{"a.csv"}, types.ToDimensionless, bad))
	if err != nil {
		t.Fatal(err)
	}
	err = h.Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) || !errors.Is(err, params.ErrInvalidParameter) {
		t.Errorf("expected SkipRetry wrapping invalid parameter, got %v", err)
	}
}
