package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tcirtsa/Jp2Converter/internal/cli/hooks"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// --- Constants ---

// Rows taken by header, counters, progress bar, workers line, notice and footer.
const listHeightMargin = 7

const listUpdateDebounceDuration = 50 * time.Millisecond

// RunControl is the subset of *converter.Controller driven by the screen.
type RunControl interface {
	Start(ctx context.Context) error
	Pause() error
	Resume(workers int) error
	Cancel() error
	State() converter.State
}

// --- Model Struct ---

// Model is the interactive run screen: Start/Pause/Resume/Cancel controls,
// live counters mirroring the controller state, a worker count field that is
// editable only while paused, and the per-file list.
type Model struct {
	ctx       context.Context
	ctrl      RunControl
	inputRoot string

	list        list.Model
	spinner     spinner.Model
	progress    progress.Model
	workerInput textinput.Model

	width       int
	height      int
	initialized bool

	// items holds one entry per planned task; itemMap indexes it by source path.
	items   []listItem
	itemMap map[string]int

	state       converter.State
	report      *converter.Report
	notice      string
	confirmQuit bool
	quitting    bool

	listUpdatePending bool
}

// listItem represents a single task in the list.
type listItem struct {
	path     string
	status   converter.Status
	message  string
	duration time.Duration
}

// UpdateListMsg signals that the list component should update its items.
type UpdateListMsg struct{}

// NewModel creates the run screen for an idle controller and its plan.
func NewModel(ctx context.Context, ctrl RunControl, tasks []converter.Task, inputRoot string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	ti := textinput.New()
	ti.Prompt = "Workers: "
	ti.CharLimit = 3
	ti.Width = 5
	ti.Validate = func(s string) error {
		if s == "" {
			return nil
		}
		if _, err := strconv.Atoi(s); err != nil {
			return errors.New("digits only")
		}
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	m := &Model{
		ctx:         ctx,
		ctrl:        ctrl,
		inputRoot:   inputRoot,
		list:        l,
		spinner:     s,
		progress:    progress.New(progress.WithDefaultGradient()),
		workerInput: ti,
		items:       make([]listItem, 0, len(tasks)),
		itemMap:     make(map[string]int, len(tasks)),
		state:       ctrl.State(),
	}
	ti.SetValue(strconv.Itoa(m.state.Workers))
	m.workerInput = ti
	for _, t := range tasks {
		m.addItem(t.SourcePath)
	}
	if len(tasks) == 0 {
		m.notice = "No .jp2 files found in the input directory."
	}
	m.list.SetItems(m.listItems())
	return m
}

// --- Bubble Tea Interface Implementations ---

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles key presses and hook events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(1, m.height-listHeightMargin))
		m.progress.Width = max(10, m.width-4)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	// --- Custom Messages from Library Hooks ---
	case hooks.TaskPlannedMsg:
		if _, exists := m.itemMap[msg.Task.SourcePath]; !exists {
			m.addItem(msg.Task.SourcePath)
			cmds = append(cmds, m.debounceListUpdate())
		}

	case hooks.TaskStatusMsg:
		idx, ok := m.itemMap[msg.Path]
		if !ok {
			idx = m.addItem(msg.Path)
		}
		item := &m.items[idx]
		item.status = msg.Status
		item.message = msg.Message
		if msg.Duration > 0 {
			item.duration = msg.Duration
		}
		cmds = append(cmds, m.debounceListUpdate())

	case hooks.StateMsg:
		m.state = msg.State
		if !m.workerInput.Focused() {
			m.workerInput.SetValue(strconv.Itoa(m.state.Workers))
		}

	case hooks.RunCompleteMsg:
		report := msg.Report
		m.report = &report
		m.state.Status = report.Summary.Status
		m.state.Counts = report.Summary.Counts
		m.workerInput.Blur()
		if report.Summary.Status == converter.RunCancelled {
			m.notice = fmt.Sprintf("Cancelled. %d task(s) did not run.", report.Summary.NotRun)
		} else {
			m.notice = fmt.Sprintf("Done. %s", report.ElapsedLine())
		}

	case UpdateListMsg:
		m.listUpdatePending = false
		cmds = append(cmds, m.list.SetItems(m.listItems()))
	}

	return m, tea.Batch(cmds...)
}

// handleKey applies the run controls. It reports false for keys that should
// fall through to the list.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()

	if m.confirmQuit {
		switch key {
		case "y", "Y":
			_ = m.ctrl.Cancel()
			m.quitting = true
			return tea.Quit, true
		case "n", "N", "esc":
			m.confirmQuit = false
			m.notice = ""
		}
		return nil, true
	}

	if m.workerInput.Focused() {
		switch key {
		case "enter", "tab":
			m.workerInput.Blur()
			if n, err := m.requestedWorkers(); err != nil {
				m.notice = err.Error()
				m.workerInput.SetValue(strconv.Itoa(m.state.Workers))
			} else {
				m.notice = fmt.Sprintf("Worker count will be %d on resume.", n)
			}
			return nil, true
		case "esc":
			m.workerInput.Blur()
			m.workerInput.SetValue(strconv.Itoa(m.state.Workers))
			return nil, true
		case "ctrl+c":
		default:
			var cmd tea.Cmd
			m.workerInput, cmd = m.workerInput.Update(msg)
			return cmd, true
		}
	}

	switch key {
	case "ctrl+c", "q":
		if m.active() {
			m.confirmQuit = true
			m.notice = "Cancel the running conversion and quit? (y/n)"
			return nil, true
		}
		m.quitting = true
		return tea.Quit, true

	case "s":
		m.apply(m.ctrl.Start(m.ctx), "Started.")
		return nil, true

	case "p":
		m.apply(m.ctrl.Pause(), "Paused. Press tab to change the worker count.")
		return nil, true

	case "r":
		n, err := m.requestedWorkers()
		if err != nil {
			m.notice = err.Error()
			return nil, true
		}
		m.apply(m.ctrl.Resume(n), "Resumed.")
		return nil, true

	case "c":
		m.apply(m.ctrl.Cancel(), "Cancelling...")
		return nil, true

	case "tab":
		if m.state.Status != converter.RunPaused {
			m.notice = "The worker count can only be changed while paused."
			return nil, true
		}
		m.workerInput.CursorEnd()
		return m.workerInput.Focus(), true
	}
	return nil, false
}

func (m *Model) apply(err error, ok string) {
	if err != nil {
		if errors.Is(err, converter.ErrNothingToDo) {
			m.notice = "Nothing to do: no .jp2 files found."
		} else {
			m.notice = err.Error()
		}
	} else {
		m.notice = ok
	}
	m.state = m.ctrl.State()
	if !m.workerInput.Focused() {
		m.workerInput.SetValue(strconv.Itoa(m.state.Workers))
	}
}

func (m *Model) requestedWorkers() (int, error) {
	v := strings.TrimSpace(m.workerInput.Value())
	if v == "" {
		return m.state.Workers, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid worker count %q", v)
	}
	return n, nil
}

func (m *Model) active() bool {
	return m.state.Status == converter.RunRunning || m.state.Status == converter.RunPaused
}

// View renders the current state of the screen.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return "Initializing..."
	}

	// --- Header ---
	headerLeft := "JP2 Converter"
	headerRight := string(m.state.Status)
	if m.state.Status == converter.RunRunning {
		headerRight = m.spinner.View() + " " + headerRight
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width, headerLeft, headerRight))

	// --- Counters & Progress ---
	counters := fmt.Sprintf("Total: %d | Succeeded: %d | Failed: %d | Elapsed: %s",
		m.state.Total, m.state.Succeeded, m.state.Failed, formatDuration(m.state.Elapsed.Round(100*time.Millisecond)))
	percent := 0.0
	if m.state.Total > 0 {
		percent = float64(m.state.Completed) / float64(m.state.Total)
	}
	bar := m.progress.ViewAs(percent)

	workers := fmt.Sprintf("Workers: %d", m.state.Workers)
	if m.state.Status == converter.RunPaused || m.workerInput.Focused() {
		workers = m.workerInput.View()
	}

	// --- Footer ---
	footer := FooterStyle.Width(m.width).Render(m.keyHelp())

	notice := NoticeStyle.Render(m.notice)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		counters,
		bar,
		workers,
		m.list.View(),
		notice,
		footer,
	)
}

func (m *Model) keyHelp() string {
	if m.confirmQuit {
		return "y: cancel and quit • n: keep running"
	}
	if m.workerInput.Focused() {
		return "enter: apply • esc: discard"
	}
	switch m.state.Status {
	case converter.RunIdle:
		return "s: start • q: quit"
	case converter.RunRunning:
		return "p: pause • c: cancel • q: quit"
	case converter.RunPaused:
		return "r: resume • tab: edit workers • c: cancel • q: quit"
	}
	return "q: quit"
}

// --- Helper Methods ---

func (m *Model) addItem(path string) int {
	m.items = append(m.items, listItem{path: m.displayPath(path), status: converter.StatusPending})
	idx := len(m.items) - 1
	m.itemMap[path] = idx
	return idx
}

func (m *Model) displayPath(path string) string {
	if m.inputRoot == "" {
		return path
	}
	if rel, err := filepath.Rel(m.inputRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func (m *Model) listItems() []list.Item {
	items := make([]list.Item, len(m.items))
	for i, item := range m.items {
		items[i] = item
	}
	return items
}

// debounceListUpdate schedules one list refresh per debounce window no matter
// how many status messages arrive in it.
func (m *Model) debounceListUpdate() tea.Cmd {
	if m.listUpdatePending {
		return nil
	}
	m.listUpdatePending = true
	return tea.Tick(listUpdateDebounceDuration, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

func spread(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// --- List Item Interface ---

// FilterValue implements the list.Item interface.
func (i listItem) FilterValue() string { return i.path }

// Title implements the list.Item interface.
func (i listItem) Title() string { return i.path }

// Description implements the list.Item interface.
func (i listItem) Description() string {
	var statusStyle lipgloss.Style
	statusIcon := " "
	switch i.status {
	case converter.StatusSuccess:
		statusStyle = StatusStyleSuccess
		statusIcon = "✓"
	case converter.StatusFailed:
		statusStyle = StatusStyleFailed
		statusIcon = "✗"
	case converter.StatusCancelled:
		statusStyle = StatusStyleCancelled
		statusIcon = "-"
	case converter.StatusProcessing:
		statusStyle = StatusStyleProcessing
		statusIcon = "…"
	default:
		statusStyle = StatusStylePending
	}

	details := ""
	switch i.status {
	case converter.StatusFailed, converter.StatusCancelled:
		details = i.message
	case converter.StatusSuccess:
		details = formatDuration(i.duration)
	}
	return fmt.Sprintf("%s %s", statusStyle.Render(fmt.Sprintf("[%s]", statusIcon)), details)
}

// formatDuration formats duration for display.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// --- Styles ---

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("24")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("236")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("24")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorNotice           = lipgloss.Color("214")
	ColorStatusSuccess    = lipgloss.Color("40")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusCancelled  = lipgloss.Color("214")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("39")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	NoticeStyle = lipgloss.NewStyle().Foreground(ColorNotice)

	StatusStyleSuccess    = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleCancelled  = lipgloss.NewStyle().Foreground(ColorStatusCancelled)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
