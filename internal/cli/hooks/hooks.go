package hooks

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// --- TUI Message Structs ---

// TaskPlannedMsg signals that the planner produced a task.
type TaskPlannedMsg struct{ Task converter.Task }

// TaskStatusMsg signals a change in a task's processing status.
type TaskStatusMsg struct {
	Path     string
	Status   converter.Status
	Message  string
	Duration time.Duration
}

// StateMsg carries a run state snapshot published by the controller.
type StateMsg struct{ State converter.State }

// RunCompleteMsg signals that the run reached Finished or Cancelled.
type RunCompleteMsg struct{ Report converter.Report }

// --- Hook Implementation ---

// CLIHooks implements the converter.Hooks interface, bridging library events
// to the CLI's UI layer (interactive program, logger, progress bar).
type CLIHooks struct {
	logger         *slog.Logger
	interactive    bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	newBar         func(total int) ProgressBar
	barOut         io.Writer

	mu          sync.Mutex // protects tuiProgram and progressBar
	progressBar ProgressBar
}

// TUIProgram defines the interface needed to interact with the Bubble Tea program.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the subset of *progressbar.ProgressBar used by the batch mode.
type ProgressBar interface {
	Add(num int) error
	Describe(description string)
	Close() error
}

// --- No-Op Implementations for Decoupling ---

// NoOpTUIProgram provides a default null implementation.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// --- Constructor ---

// NewCLIHooks creates a new CLIHooks instance. When interactive is true every
// event is forwarded to tuiProg. Otherwise, if newBar is non-nil, a progress
// bar sized to the plan is created on the first state snapshot, advanced on
// each recorded outcome and closed with a trailing newline on barOut.
func NewCLIHooks(logger *slog.Logger, interactive, verboseEnabled bool, tuiProg TUIProgram, newBar func(total int) ProgressBar, barOut io.Writer) *CLIHooks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	if barOut == nil {
		barOut = io.Discard
	}
	return &CLIHooks{
		logger:         logger.With(slog.String("component", "hooks")),
		interactive:    interactive,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		newBar:         newBar,
		barOut:         barOut,
	}
}

// SetProgram attaches the Bubble Tea program once it exists. The program is
// created after the hooks because its model needs the controller.
func (h *CLIHooks) SetProgram(p TUIProgram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p != nil {
		h.tuiProgram = p
	}
}

func (h *CLIHooks) program() TUIProgram {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tuiProgram
}

// --- Interface Method Implementations ---

// OnTaskPlanned handles a task produced by the planner.
func (h *CLIHooks) OnTaskPlanned(task converter.Task) error {
	if h.interactive {
		h.program().Send(TaskPlannedMsg{Task: task})
		return nil
	}
	if h.verboseEnabled {
		h.logger.Debug("Task planned", slog.String("source", task.SourcePath), slog.String("destination", task.DestinationPath))
	}
	return nil
}

// OnTaskStatusUpdate handles events when a task's processing status changes.
// This method MUST be thread-safe.
func (h *CLIHooks) OnTaskStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	if h.interactive {
		h.program().Send(TaskStatusMsg{Path: path, Status: status, Message: message, Duration: duration})
		return nil
	}

	if h.verboseEnabled {
		attrs := []any{
			slog.String("path", path),
			slog.String("status", string(status)),
		}
		if duration > 0 {
			attrs = append(attrs, slog.Duration("duration", duration))
		}
		if message != "" {
			attrs = append(attrs, slog.String("message", message))
		}
		// Failures are already logged at error level by the controller.
		h.logger.Debug("Task status updated", attrs...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.progressBar != nil {
		switch status {
		case converter.StatusProcessing:
			h.progressBar.Describe(filepath.Base(path))
		case converter.StatusSuccess, converter.StatusFailed:
			_ = h.progressBar.Add(1)
		}
	}
	return nil
}

// OnStateChange forwards state snapshots to the interactive program, or
// creates the progress bar once the plan size is known.
func (h *CLIHooks) OnStateChange(state converter.State) error {
	if h.interactive {
		h.program().Send(StateMsg{State: state})
		return nil
	}
	if h.newBar == nil || state.Total == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.progressBar == nil && !state.Status.Terminal() {
		h.progressBar = h.newBar(state.Total)
	}
	return nil
}

// OnRunComplete sends the final report to the interactive program or
// finalizes the progress bar. The text summary is printed by the CLI.
func (h *CLIHooks) OnRunComplete(report converter.Report) error {
	if h.interactive {
		h.program().Send(RunCompleteMsg{Report: report})
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.progressBar != nil {
		_ = h.progressBar.Close()
		// Keep the prompt off the bar's line.
		_, _ = fmt.Fprintln(h.barOut)
	}
	return nil
}
