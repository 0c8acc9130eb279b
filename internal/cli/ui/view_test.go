package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/tcirtsa/Jp2Converter/internal/cli/hooks"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

func sizedModel(status converter.RunStatus) *Model {
	m, _ := newTestModel(status)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func TestView_Initializing(t *testing.T) {
	m, _ := newTestModel(converter.RunIdle)
	assert.Equal(t, "Initializing...", m.View())
}

func TestView_BasicLayout(t *testing.T) {
	m := sizedModel(converter.RunIdle)
	view := m.View()
	assert.Contains(t, view, "JP2 Converter")
	assert.Contains(t, view, "idle")
	assert.Contains(t, view, "Total: 3 | Succeeded: 0 | Failed: 0")
	assert.Contains(t, view, "Workers: 2")
	assert.Contains(t, view, "a.jp2")
	assert.Contains(t, view, "sub/b.jp2")
	assert.Contains(t, view, "s: start • q: quit")
}

func TestView_Counts(t *testing.T) {
	m := sizedModel(converter.RunRunning)
	m.Update(hooks.StateMsg{State: converter.State{
		Status:  converter.RunRunning,
		Workers: 4,
		Counts:  converter.Counts{Total: 3, Succeeded: 1, Failed: 1, Completed: 2},
		Elapsed: 1500 * time.Millisecond,
	}})
	view := m.View()
	assert.Contains(t, view, "Total: 3 | Succeeded: 1 | Failed: 1 | Elapsed: 1.50s")
	assert.Contains(t, view, "Workers: 4")
	assert.Contains(t, view, "running")
}

func TestView_PausedShowsWorkerField(t *testing.T) {
	m := sizedModel(converter.RunPaused)
	m.notice = "Paused. Press tab to change the worker count."
	view := m.View()
	assert.Contains(t, view, "Workers: ")
	assert.Contains(t, view, "Paused. Press tab")
	assert.Contains(t, view, "r: resume")
}

func TestView_WidthAndHeight(t *testing.T) {
	m := sizedModel(converter.RunIdle)
	assert.Equal(t, 100, m.width)
	assert.Equal(t, 30, m.height)
	assert.Equal(t, 30-listHeightMargin, m.list.Height())

	m.Update(tea.WindowSizeMsg{Width: 5, Height: 2})
	assert.Equal(t, 1, m.list.Height(), "list keeps at least one row")
	assert.NotPanics(t, func() { _ = m.View() })
}

func TestSpread(t *testing.T) {
	s := spread(20, "left", "right")
	assert.True(t, strings.HasPrefix(s, "left "))
	assert.True(t, strings.HasSuffix(s, " right"))
	assert.Equal(t, "a b", spread(0, "a", "b"))
}
