package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/batch"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/converter"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/preview"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/store"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

type state int

const (
	stateFilePicker state = iota
	stateParams
	stateProcessing
	stateComplete
	statePreview
)

// Recorder stores finished runs; *store.Store satisfies it.
type Recorder interface {
	RecordRun(ctx context.Context, rec store.RunRecord, outcomes []types.Outcome) (int64, error)
}

type Options struct {
	Runner     *batch.Runner
	Params     params.Set
	HaveParams bool
	ParamsErr  error // shown on the form, e.g. a parameter file missing a key
	ParamsFile string
	History    Recorder
	Logger     logrus.FieldLogger
	StartDir   string
	PlotHeight int
}

type Model struct {
	state      state
	prevState  state
	filepicker filepicker.Model
	selected   []string
	inputs     []textinput.Model
	focus      int
	direction  types.Direction
	formErr    string
	notice     string
	paramsErr  error

	runner  *batch.Runner
	run     *batch.Run
	jobID   string
	started time.Time
	set     params.Set

	done     int
	total    int
	outcomes []types.Outcome
	progress progress.Model
	series   []preview.Series

	width  int
	height int

	paramsFile string
	history    Recorder
	log        logrus.FieldLogger
	plotHeight int
}

type runEventMsg batch.Event

type previewLoadedMsg struct {
	series []preview.Series
	err    error
}

type historyRecordedMsg struct {
	err error
}

func InitialModel(opts Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = converter.Extensions
	fp.CurrentDirectory = opts.StartDir
	if fp.CurrentDirectory == "" {
		fp.CurrentDirectory, _ = os.Getwd()
	}

	fp.Styles.Cursor = lipgloss.NewStyle().Foreground(accentColor)
	fp.Styles.Symlink = lipgloss.NewStyle().Foreground(softColor)
	fp.Styles.Directory = lipgloss.NewStyle().Foreground(softColor)
	fp.Styles.File = lipgloss.NewStyle().Foreground(textColor)
	fp.Styles.Permission = lipgloss.NewStyle().Foreground(mutedColor)
	fp.Styles.Selected = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	fp.Styles.FileSize = lipgloss.NewStyle().Foreground(mutedColor)

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	runner := opts.Runner
	if runner == nil {
		runner = batch.NewRunner(batch.Options{Logger: logger})
	}

	m := Model{
		state:      stateFilePicker,
		filepicker: fp,
		inputs:     newParamInputs(opts.Params, opts.HaveParams),
		runner:     runner,
		progress:   progress.New(progress.WithGradient("#3BA3D9", "#7CC8F0")),
		paramsFile: opts.ParamsFile,
		history:    opts.History,
		log:        logger,
		plotHeight: opts.PlotHeight,
	}
	if opts.ParamsErr != nil {
		m.paramsErr = opts.ParamsErr
		m.formErr = m.paramsErrText()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.filepicker.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// title, subtitle, selection summary and help
		height := msg.Height - 16
		if height < 5 {
			height = 5
		}
		m.filepicker.SetHeight(height)

		m.progress.Width = min(max(msg.Width-12, 10), 60)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.state {
		case stateFilePicker:
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "tab":
				if len(m.selected) == 0 {
					m.notice = "Select at least one file first"
					return m, nil
				}
				m.notice = ""
				m.state = stateParams
				return m, m.setFocus(m.focus)
			case "x":
				m.clearSelection()
				return m, nil
			case "v":
				if len(m.selected) > 0 {
					return m.openPreview(m.selected[len(m.selected)-1])
				}
				return m, nil
			}

		case stateParams:
			return m.updateForm(msg)

		case stateProcessing:
			// A run is in flight; nothing can be started until it completes.
			return m, nil

		case stateComplete:
			switch msg.String() {
			case "q", "esc":
				return m, tea.Quit
			case "n":
				m.clearSelection()
				m.state = stateFilePicker
				return m, nil
			case "r":
				m.state = stateParams
				return m, m.setFocus(m.focus)
			case "v":
				if out := firstWritten(m.outcomes); out != "" {
					return m.openPreview(out)
				}
			}
			return m, nil

		case statePreview:
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "esc", "enter", "backspace":
				m.state = m.prevState
				m.series = nil
			}
			return m, nil
		}

	case runEventMsg:
		return m.handleEvent(batch.Event(msg))

	case previewLoadedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("Cannot preview: %v", msg.err)
			return m, nil
		}
		m.notice = ""
		m.series = msg.series
		m.state = statePreview
		return m, nil

	case historyRecordedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("Run history not saved: %v", msg.err)
		}
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}

	if m.state == stateFilePicker {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)

		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			m.toggleSelected(path)
		}
		if didSelect, path := m.filepicker.DidSelectDisabledFile(msg); didSelect {
			m.notice = fmt.Sprintf("%s has an unsupported data type %q", filepath.Base(path), filepath.Ext(path))
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.blurInputs()
		m.state = stateFilePicker
		return m, nil
	case "enter":
		return m.startRun()
	case "ctrl+o":
		if m.paramsErr == nil {
			return m, nil
		}
		m.paramsErr = nil
		m.formErr = ""
		return m.startRun()
	case "tab", "down":
		return m, m.setFocus(m.focus + 1)
	case "shift+tab", "up":
		return m, m.setFocus(m.focus - 1)
	case "ctrl+t":
		if m.direction == types.ToDimensionless {
			m.direction = types.ToDimensional
		} else {
			m.direction = types.ToDimensionless
		}
		return m, nil
	case "ctrl+x":
		m.clearParams()
		return m, m.setFocus(0)
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// toggleSelected adds path to the batch, or removes it if already present.
func (m *Model) toggleSelected(path string) {
	if i := slices.Index(m.selected, path); i >= 0 {
		m.selected = slices.Delete(m.selected, i, i+1)
		return
	}
	m.selected = append(m.selected, path)
	m.notice = ""
}

// clearParams empties the seven parameter fields.
func (m *Model) clearParams() {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	if m.paramsErr == nil {
		m.formErr = ""
	}
}

func (m Model) paramsErrText() string {
	return fmt.Sprintf("%v. Fix the fields and press ctrl+o to overwrite %s", m.paramsErr, m.paramsFile)
}

// clearSelection empties the file selection and the last run's results.
func (m *Model) clearSelection() {
	m.selected = nil
	m.outcomes = nil
	m.done, m.total = 0, 0
	m.series = nil
	m.notice = ""
	if m.paramsErr == nil {
		m.formErr = ""
	}
}

func (m Model) startRun() (tea.Model, tea.Cmd) {
	// An unreadable parameter file is only replaced once the user says so.
	if m.paramsErr != nil {
		m.formErr = m.paramsErrText()
		return m, nil
	}
	set, err := m.formParams()
	if err != nil {
		m.formErr = err.Error()
		return m, nil
	}

	if m.paramsFile != "" {
		if err := params.Save(m.paramsFile, set); err != nil {
			m.log.WithError(err).Warn("failed to save parameter file")
		}
	}

	job := batch.Job{
		Paths:     append([]string(nil), m.selected...),
		Direction: m.direction,
		Params:    set,
	}
	run, err := m.runner.Submit(context.Background(), job)
	if err != nil {
		if errors.Is(err, batch.ErrBusy) {
			m.formErr = "A conversion is already running"
		} else {
			m.formErr = err.Error()
		}
		return m, nil
	}

	m.blurInputs()
	m.run = run
	m.set = set
	m.jobID = uuid.New().String()
	m.started = time.Now()
	m.outcomes = nil
	m.done = 0
	m.total = len(batch.Dedupe(job.Paths))
	m.formErr = ""
	m.notice = ""
	m.state = stateProcessing
	m.log.WithFields(logrus.Fields{
		"job_id":    m.jobID,
		"files":     m.total,
		"direction": m.direction.String(),
	}).Info("conversion started")

	return m, tea.Batch(m.progress.SetPercent(0), waitForEvent(run))
}

func (m Model) handleEvent(ev batch.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case batch.EventOutcome:
		m.done, m.total = ev.Done, ev.Total
		m.outcomes = append(m.outcomes, ev.Outcome)
		percent := 1.0
		if ev.Total > 0 {
			percent = float64(ev.Done) / float64(ev.Total)
		}
		return m, tea.Batch(m.progress.SetPercent(percent), waitForEvent(m.run))

	case batch.EventCompleted:
		m.done, m.total = ev.Done, ev.Total
		m.outcomes = ev.Outcomes
		m.run = nil
		m.state = stateComplete
		return m, m.recordHistory()
	}
	return m, nil
}

func waitForEvent(run *batch.Run) tea.Cmd {
	return func() tea.Msg {
		if run == nil {
			return nil
		}
		ev, ok := <-run.Events()
		if !ok {
			return nil
		}
		return runEventMsg(ev)
	}
}

func (m Model) recordHistory() tea.Cmd {
	if m.history == nil {
		return nil
	}
	rec := store.RunRecord{
		JobID:     m.jobID,
		StartedAt: m.started,
		EndedAt:   time.Now(),
		Direction: m.direction.String(),
		Params:    m.set,
	}
	outcomes := m.outcomes
	history := m.history
	return func() tea.Msg {
		_, err := history.RecordRun(context.Background(), rec, outcomes)
		return historyRecordedMsg{err: err}
	}
}

func (m Model) openPreview(path string) (tea.Model, tea.Cmd) {
	m.prevState = m.state
	return m, func() tea.Msg {
		series, err := preview.Load(path)
		return previewLoadedMsg{series: series, err: err}
	}
}

func firstWritten(outcomes []types.Outcome) string {
	for _, o := range outcomes {
		if o.Kind == types.OutcomeWritten {
			return o.Output
		}
	}
	return ""
}

// truncateLeft shortens s to at most width cells, keeping its tail.
func truncateLeft(s string, width int) string {
	const ellipsis = "..."
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return ellipsis[:width]
	}
	budget := width - len(ellipsis)
	runes := []rune(s)
	used := 0
	i := len(runes)
	for i > 0 {
		w := runewidth.RuneWidth(runes[i-1])
		if used+w > budget {
			break
		}
		used += w
		i--
	}
	return ellipsis + string(runes[i:])
}

func (m Model) maxPathLen() int {
	n := m.width - 20
	if n < 30 {
		n = 30
	}
	return n
}

func (m Model) View() string {
	switch m.state {
	case stateFilePicker:
		return m.viewFilePicker()
	case stateParams:
		return m.viewParams()
	case stateProcessing:
		return m.viewProcessing()
	case stateComplete:
		return m.viewComplete()
	case statePreview:
		return m.viewPreview()
	}
	return ""
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Dimension Conversion Tool"))
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render("Select CSV or spreadsheet voltammograms (enter toggles a file)"))
	s.WriteString("\n\n")
	s.WriteString(m.filepicker.View())
	s.WriteString("\n\n")

	if len(m.selected) == 0 {
		s.WriteString(UnselectedStyle.Render("No files selected"))
	} else {
		s.WriteString(CheckedStyle.Render(fmt.Sprintf("%d file(s) selected", len(m.selected))))
		for _, path := range m.selected {
			s.WriteString("\n  ✓ ")
			s.WriteString(truncateLeft(path, m.maxPathLen()))
		}
	}
	if m.notice != "" {
		s.WriteString("\n")
		s.WriteString(WarnStyle.Render(m.notice))
	}
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("enter: toggle • tab: parameters • v: preview last selected • x: clear selection • q: quit"))

	return s.String()
}

func (m Model) viewParams() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Conversion Parameters"))
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render(fmt.Sprintf("%d file(s) selected", len(m.selected))))
	s.WriteString("\n\n")

	for i := range m.inputs {
		line := m.inputs[i].View()
		if i == m.focus {
			line = SelectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	s.WriteString("\n")

	from, to := "Dimensional", "Dimensionless"
	if m.direction == types.ToDimensional {
		from, to = to, from
	}
	s.WriteString(fmt.Sprintf("Direction: %s → %s\n", from, CheckedStyle.Render(to)))

	if m.formErr != "" {
		s.WriteString("\n")
		s.WriteString(ErrorStyle.Render(m.formErr))
		s.WriteString("\n")
	}
	s.WriteString(HelpStyle.Render("tab/↑/↓: move • ctrl+t: switch direction • enter: convert • ctrl+x: clear parameters • esc: back"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewProcessing() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Processing..."))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Converting to %s: %d of %d file(s)", strings.ToLower(m.direction.Suffix()), m.done, m.total))
	s.WriteString("\n\n")
	s.WriteString(m.progress.View())

	return BoxStyle.Render(s.String())
}

func (m Model) viewComplete() string {
	var s strings.Builder

	failed := 0
	for _, o := range m.outcomes {
		if o.Failed() {
			failed++
		}
	}
	if failed == 0 {
		s.WriteString(TitleStyle.Render("✓ Conversion Complete!"))
	} else {
		s.WriteString(TitleStyle.Render(fmt.Sprintf("Conversion Complete (%d of %d failed)", failed, len(m.outcomes))))
	}
	s.WriteString("\n\n")

	maxLen := m.maxPathLen()
	for _, o := range m.outcomes {
		s.WriteString(renderOutcome(o, maxLen))
		s.WriteString("\n")
	}
	if m.notice != "" {
		s.WriteString("\n")
		s.WriteString(WarnStyle.Render(m.notice))
		s.WriteString("\n")
	}
	s.WriteString(HelpStyle.Render("v: preview output • r: run again • n: new batch • q: quit"))

	return BoxStyle.Render(s.String())
}

func renderOutcome(o types.Outcome, maxLen int) string {
	name := filepath.Base(o.Input)
	switch o.Kind {
	case types.OutcomeWritten:
		return SuccessStyle.Render("✓ ") + name + " → " + truncateLeft(o.Output, maxLen)
	case types.OutcomeUnsupported:
		return WarnStyle.Render(fmt.Sprintf("! %s has an unsupported data type %q", name, o.Ext))
	default:
		msg := o.Kind.String()
		if o.Err != nil {
			msg = o.Err.Error()
		}
		return ErrorStyle.Render("✗ ") + name + ": " + msg
	}
}

func (m Model) viewPreview() string {
	var b strings.Builder

	height := m.plotHeight
	if height <= 0 {
		height = max(m.height-10, 6)
	}
	width := 0
	if m.width > 0 {
		width = preview.PlotWidthFor(m.width-4, 10)
	}
	if err := preview.PlotNoColor(&b, preview.Title, m.series, width, height); err != nil {
		b.Reset()
		b.WriteString(ErrorStyle.Render(err.Error()))
	}
	b.WriteString(HelpStyle.Render("esc: back • q: quit"))
	return b.String()
}
