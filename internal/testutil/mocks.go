// Package testutil provides test doubles and fixtures for the converter
// library (pkg/converter) and the CLI packages built on it.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// MockHooks provides a mock implementation of the converter.Hooks interface.
// Configure expectations using testify/mock methods (e.g., .On("OnTaskStatusUpdate", ...).Return(...)).
// Hooks are invoked from several goroutines; testify's mock is safe for that.
type MockHooks struct {
	mock.Mock
}

// OnTaskPlanned mocks the OnTaskPlanned method.
func (m *MockHooks) OnTaskPlanned(task converter.Task) error {
	args := m.Called(task)
	return args.Error(0)
}

// OnTaskStatusUpdate mocks the OnTaskStatusUpdate method.
func (m *MockHooks) OnTaskStatusUpdate(path string, status converter.Status, message string, duration time.Duration) error {
	args := m.Called(path, status, message, duration)
	return args.Error(0)
}

// OnStateChange mocks the OnStateChange method.
func (m *MockHooks) OnStateChange(state converter.State) error {
	args := m.Called(state)
	return args.Error(0)
}

// OnRunComplete mocks the OnRunComplete method.
func (m *MockHooks) OnRunComplete(report converter.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockFileConverter provides a mock implementation of converter.FileConverter.
type MockFileConverter struct {
	mock.Mock
}

// Convert mocks the Convert method.
func (m *MockFileConverter) Convert(task converter.Task) converter.Outcome {
	args := m.Called(task)
	out, _ := args.Get(0).(converter.Outcome)
	return out
}

// RecordingHooks records every hook call. Safe for concurrent use.
type RecordingHooks struct {
	mu       sync.Mutex
	planned  []converter.Task
	statuses map[string][]converter.Status
	states   []converter.State
	reports  []converter.Report
}

// NewRecordingHooks creates an empty recorder.
func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{statuses: make(map[string][]converter.Status)}
}

// OnTaskPlanned implements converter.Hooks.
func (h *RecordingHooks) OnTaskPlanned(task converter.Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.planned = append(h.planned, task)
	return nil
}

// OnTaskStatusUpdate implements converter.Hooks.
func (h *RecordingHooks) OnTaskStatusUpdate(path string, status converter.Status, _ string, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[path] = append(h.statuses[path], status)
	return nil
}

// OnStateChange implements converter.Hooks.
func (h *RecordingHooks) OnStateChange(state converter.State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
	return nil
}

// OnRunComplete implements converter.Hooks.
func (h *RecordingHooks) OnRunComplete(report converter.Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, report)
	return nil
}

// Planned returns the planned tasks in call order.
func (h *RecordingHooks) Planned() []converter.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]converter.Task(nil), h.planned...)
}

// Statuses returns the status sequence reported for path.
func (h *RecordingHooks) Statuses(path string) []converter.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]converter.Status(nil), h.statuses[path]...)
}

// CountStatus returns how many updates with the given status were reported.
func (h *RecordingHooks) CountStatus(status converter.Status) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, seq := range h.statuses {
		for _, s := range seq {
			if s == status {
				n++
			}
		}
	}
	return n
}

// States returns the published state snapshots in call order.
func (h *RecordingHooks) States() []converter.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]converter.State(nil), h.states...)
}

// Reports returns the reports passed to OnRunComplete.
func (h *RecordingHooks) Reports() []converter.Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]converter.Report(nil), h.reports...)
}

// ErrGateFailure is the error recorded by GateConverter for tasks listed in Fail.
var ErrGateFailure = errors.New("gate: forced failure")

// GateConverter is a FileConverter whose conversions block until released.
// Each call to Convert announces itself on Started and then waits for one
// value on the gate (or for Open). Tasks whose source is in Fail fail.
type GateConverter struct {
	Started chan string
	gate    chan struct{}
	open    chan struct{}
	once    sync.Once
	Fail    map[string]bool

	mu    sync.Mutex
	calls []string
}

// NewGateConverter creates a closed gate. Started is buffered to capacity.
func NewGateConverter(capacity int) *GateConverter {
	return &GateConverter{
		Started: make(chan string, capacity),
		gate:    make(chan struct{}),
		open:    make(chan struct{}),
		Fail:    map[string]bool{},
	}
}

// Release lets n blocked (or future) conversions complete.
func (g *GateConverter) Release(n int) {
	for i := 0; i < n; i++ {
		select {
		case g.gate <- struct{}{}:
		case <-g.open:
			return
		}
	}
}

// Open lets every current and future conversion complete. Safe to call twice.
func (g *GateConverter) Open() {
	g.once.Do(func() { close(g.open) })
}

// Convert implements converter.FileConverter.
func (g *GateConverter) Convert(task converter.Task) converter.Outcome {
	g.mu.Lock()
	g.calls = append(g.calls, task.SourcePath)
	g.mu.Unlock()

	g.Started <- task.SourcePath
	select {
	case <-g.gate:
	case <-g.open:
	}

	out := converter.Outcome{SourcePath: task.SourcePath, DestinationPath: task.DestinationPath, Success: true, Duration: time.Millisecond}
	if g.Fail[task.SourcePath] {
		out.Success = false
		out.Err = ErrGateFailure
		out.Error = ErrGateFailure.Error()
	}
	return out
}

// Calls returns the sources passed to Convert in call order.
func (g *GateConverter) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// WaitStarted receives n start announcements or fails after timeout.
func (g *GateConverter) WaitStarted(ctx context.Context, n int) ([]string, error) {
	var paths []string
	for len(paths) < n {
		select {
		case p := <-g.Started:
			paths = append(paths, p)
		case <-ctx.Done():
			return paths, ctx.Err()
		}
	}
	return paths, nil
}
