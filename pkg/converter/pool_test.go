package converter

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUnits(n int) []*unit {
	units := make([]*unit, n)
	for i := range units {
		units[i] = &unit{index: i, task: Task{SourcePath: string(rune('a'+i)) + ".jp2"}}
	}
	return units
}

func TestWorkerPool_RunsEveryUnitOnce(t *testing.T) {
	units := testUnits(7)
	p := newWorkerPool(1, 3, units, discardLogger())

	var mu sync.Mutex
	seen := map[int]int{}
	var active, peak atomic.Int32
	p.start(
		func(*workerPool, *unit) bool { return true },
		func(_ int, u *unit) {
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			mu.Lock()
			seen[u.index]++
			mu.Unlock()
			active.Add(-1)
		},
	)
	p.wait()

	assert.Len(t, seen, 7)
	for idx, n := range seen {
		assert.Equal(t, 1, n, "unit %d", idx)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestWorkerPool_NoMoreWorkersThanUnits(t *testing.T) {
	p := newWorkerPool(1, 8, testUnits(2), discardLogger())
	var ids sync.Map
	p.start(
		func(*workerPool, *unit) bool { return true },
		func(workerID int, _ *unit) { ids.Store(workerID, true) },
	)
	p.wait()

	n := 0
	ids.Range(func(key, _ any) bool {
		assert.Less(t, key.(int), 2)
		n++
		return true
	})
	assert.LessOrEqual(t, n, 2)
}

func TestWorkerPool_RefusedAdmissionStopsWorker(t *testing.T) {
	p := newWorkerPool(1, 1, testUnits(3), discardLogger())
	var executed atomic.Int32
	p.start(
		func(*workerPool, *unit) bool { return false },
		func(int, *unit) { executed.Add(1) },
	)
	p.wait()
	assert.Zero(t, executed.Load())
}

func TestWorkerPool_EmptyQueue(t *testing.T) {
	p := newWorkerPool(1, 4, nil, discardLogger())
	p.start(
		func(*workerPool, *unit) bool { return true },
		func(int, *unit) { t.Error("nothing to execute") },
	)
	p.wait()
}

func TestUnitState_String(t *testing.T) {
	assert.Equal(t, "pending", unitPending.String())
	assert.Equal(t, "running", unitRunning.String())
	assert.Equal(t, "done", unitDone.String())
	assert.Equal(t, "unknown", unitState(42).String())
}
