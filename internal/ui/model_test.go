package ui

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

var testSet = params.Set{E0f: 0.1, ConcT: 1, DElectrode: 1e-5, DX: 1e-9, DA: 2e-9, DB: 3e-9, DC: 4e-9}

type memRecorder struct {
	mu    sync.Mutex
	calls int
	rec   store.RunRecord
}

func (r *memRecorder) RecordRun(_ context.Context, rec store.RunRecord, _ []types.Outcome) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.rec = rec
	return 1, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestModel(t *testing.T, opts Options) Model {
	t.Helper()
	opts.Logger = quietLogger()
	opts.StartDir = t.TempDir()
	return InitialModel(opts)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func TestTruncateLeft(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"fits", "/tmp/a.csv", 20, "/tmp/a.csv"},
		{"truncated", "/very/long/path/run.csv", 12, "...h/run.csv"},
		{"wide runes", "/数据/测量.csv", 10, "...量.csv"},
		{"tiny width", "/abc/def", 2, ".."},
		{"no limit", "/abc", 0, "/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateLeft(tt.input, tt.width); got != tt.want {
				t.Errorf("truncateLeft(%q, %d) = %q; want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}
}

func TestInputsPrefilledFromParams(t *testing.T) {
	m := newTestModel(t, Options{Params: testSet, HaveParams: true})
	if len(m.inputs) != len(params.Keys) {
		t.Fatalf("expected %d inputs, got %d", len(params.Keys), len(m.inputs))
	}
	if got := m.inputs[1].Value(); got != "1" {
		t.Errorf("concT input = %q; want 1", got)
	}
	set, err := m.formParams()
	if err != nil {
		t.Fatalf("formParams failed: %v", err)
	}
	if set != testSet {
		t.Errorf("formParams = %+v; want %+v", set, testSet)
	}
}

func TestFormParamsErrors(t *testing.T) {
	tests := []struct {
		name  string
		index int
		value string
	}{
		{"required empty", 3, ""},
		{"not a number", 0, "abc"},
		{"zero radius", 2, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, Options{Params: testSet, HaveParams: true})
			m.inputs[tt.index].SetValue(tt.value)
			if _, err := m.formParams(); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestOptionalFieldsDefaultToZero(t *testing.T) {
	m := newTestModel(t, Options{Params: testSet, HaveParams: true})
	for i := 4; i < 7; i++ {
		m.inputs[i].SetValue("")
	}
	set, err := m.formParams()
	if err != nil {
		t.Fatal(err)
	}
	if set.DA != 0 || set.DB != 0 || set.DC != 0 {
		t.Errorf("expected zero optional fields, got %+v", set)
	}
}

func TestToggleAndClearSelection(t *testing.T) {
	m := newTestModel(t, Options{})
	m.toggleSelected("a.csv")
	m.toggleSelected("b.xlsx")
	m.toggleSelected("a.csv")
	if len(m.selected) != 1 || m.selected[0] != "b.xlsx" {
		t.Fatalf("selected = %v", m.selected)
	}

	m, _ = update(t, m, keyRunes("x"))
	if len(m.selected) != 0 {
		t.Errorf("expected selection cleared, got %v", m.selected)
	}
}

func TestClearParameters(t *testing.T) {
	m := newTestModel(t, Options{Params: testSet, HaveParams: true})
	m.selected = []string{"a.csv"}
	m.state = stateParams

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	if m.state != stateParams {
		t.Errorf("expected to stay on the form, got state %d", m.state)
	}
	for i, input := range m.inputs {
		if input.Value() != "" {
			t.Errorf("field %s = %q; want empty", params.Keys[i], input.Value())
		}
	}
	if m.focus != 0 {
		t.Errorf("focus = %d; want 0", m.focus)
	}
	if len(m.selected) != 1 {
		t.Errorf("selection should be kept, got %v", m.selected)
	}
}

func TestBrokenParamsFileNeedsConfirmation(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "run.csv")
	if err := os.WriteFile(input, []byte("E,I\n0.1,1e-6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	paramsFile := filepath.Join(dir, params.DefaultFile)
	broken := []byte(`{"E0f": 0.1}`)
	if err := os.WriteFile(paramsFile, broken, 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, loadErr := params.Load(paramsFile)
	if loadErr == nil {
		t.Fatal("expected a load error for the incomplete file")
	}

	m := newTestModel(t, Options{ParamsErr: loadErr, ParamsFile: paramsFile})
	if !strings.Contains(m.formErr, "ctrl+o") {
		t.Errorf("form error should ask for confirmation: %q", m.formErr)
	}
	m.inputs = newParamInputs(testSet, true)
	m.selected = []string{input}
	m.state = stateParams

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateParams || m.run != nil {
		t.Fatalf("run started without confirmation, state=%d", m.state)
	}
	if data, _ := os.ReadFile(paramsFile); string(data) != string(broken) {
		t.Errorf("parameter file overwritten before confirmation: %s", data)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	if m.state != stateProcessing {
		t.Fatalf("expected processing after confirmation, got %d (err %q)", m.state, m.formErr)
	}
	if saved, ok, err := params.Load(paramsFile); err != nil || !ok || saved != testSet {
		t.Errorf("parameter file not replaced: %+v %v %v", saved, ok, err)
	}
	m.run.Wait()
}

func TestTabNeedsSelection(t *testing.T) {
	m := newTestModel(t, Options{Params: testSet, HaveParams: true})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.state != stateFilePicker || m.notice == "" {
		t.Errorf("expected to stay on picker with a notice, state=%d notice=%q", m.state, m.notice)
	}

	m.toggleSelected("a.csv")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.state != stateParams {
		t.Errorf("expected parameter form, got state %d", m.state)
	}
}

func TestDirectionToggle(t *testing.T) {
	m := newTestModel(t, Options{})
	m.state = stateParams
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.direction != types.ToDimensional {
		t.Errorf("direction = %v", m.direction)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.direction != types.ToDimensionless {
		t.Errorf("direction = %v", m.direction)
	}
}

func TestInvalidFormDoesNotStartRun(t *testing.T) {
	m := newTestModel(t, Options{})
	m.selected = []string{"a.csv"}
	m.state = stateParams
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateParams || m.formErr == "" {
		t.Errorf("expected form error, state=%d err=%q", m.state, m.formErr)
	}
	if m.runner.Busy() {
		t.Errorf("runner should be idle")
	}
}

func TestRunToCompletion(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "run.csv")
	if err := os.WriteFile(input, []byte("E,I\n0.1,1e-6\n0.2,2e-6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	paramsFile := filepath.Join(dir, params.DefaultFile)
	recorder := &memRecorder{}

	m := newTestModel(t, Options{Params: testSet, HaveParams: true, ParamsFile: paramsFile, History: recorder})
	m.selected = []string{input, filepath.Join(dir, "notes.txt")}
	m.state = stateParams

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateProcessing {
		t.Fatalf("expected processing, got %d (err %q)", m.state, m.formErr)
	}
	if saved, ok, err := params.Load(paramsFile); err != nil || !ok || saved != testSet {
		t.Errorf("parameter file not saved: %+v %v %v", saved, ok, err)
	}

	// The start key is ignored while a run is in flight.
	run := m.run
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.run != run {
		t.Errorf("second start replaced the run")
	}

	var cmd tea.Cmd
	deadline := time.After(10 * time.Second)
	for m.state == stateProcessing {
		select {
		case ev := <-run.Events():
			m, cmd = update(t, m, runEventMsg(ev))
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		}
	}
	if m.state != stateComplete {
		t.Fatalf("expected complete, got %d", m.state)
	}
	if len(m.outcomes) != 2 || m.outcomes[0].Kind != types.OutcomeWritten || m.outcomes[1].Kind != types.OutcomeUnsupported {
		t.Errorf("unexpected outcomes: %v", m.outcomes)
	}
	if m.runner.Busy() {
		t.Errorf("runner still busy after completion")
	}

	if cmd == nil {
		t.Fatal("expected history command")
	}
	if msg, ok := cmd().(historyRecordedMsg); !ok || msg.err != nil {
		t.Errorf("unexpected history message: %#v", msg)
	}
	if recorder.calls != 1 || recorder.rec.Params != testSet {
		t.Errorf("history not recorded: %+v", recorder)
	}

	view := m.View()
	if !strings.Contains(view, "run.csv") || !strings.Contains(view, "unsupported data type") {
		t.Errorf("completion view missing outcomes:\n%s", view)
	}
}

func TestPreviewState(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "scan.csv")
	if err := os.WriteFile(input, []byte("E,I\n-1,-1\n0,0\n1,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestModel(t, Options{PlotHeight: 4})
	m.width, m.height = 80, 24
	m.toggleSelected(input)

	m, cmd := update(t, m, keyRunes("v"))
	if cmd == nil {
		t.Fatal("expected preview command")
	}
	m, _ = update(t, m, cmd())
	if m.state != statePreview {
		t.Fatalf("expected preview state, got %d (notice %q)", m.state, m.notice)
	}
	if view := m.View(); !strings.Contains(view, "Preview of Voltammogram") || !strings.Contains(view, "scan") {
		t.Errorf("unexpected preview view:\n%s", view)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateFilePicker {
		t.Errorf("expected to return to picker, got %d", m.state)
	}
}
