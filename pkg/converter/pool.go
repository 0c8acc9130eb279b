package converter

import (
	"log/slog"
	"sync"
)

// unitState tracks one task's progress through the pools. Guarded by the
// owning Controller's mutex.
type unitState int

const (
	unitPending unitState = iota
	unitRunning
	unitDone
)

func (s unitState) String() string {
	switch s {
	case unitPending:
		return "pending"
	case unitRunning:
		return "running"
	case unitDone:
		return "done"
	}
	return "unknown"
}

// unit is the execution record of a single task. It outlives pool resizes:
// a unit still pending when its pool is retired is handed to the next pool.
type unit struct {
	index int
	task  Task
	state unitState
}

// admitFunc is called by a worker before executing a unit. It blocks while the
// run is paused and returns false when the worker should exit instead.
type admitFunc func(p *workerPool, u *unit) bool

// executeFunc runs an admitted unit to completion.
type executeFunc func(workerID int, u *unit)

// workerPool runs a fixed set of units on at most size goroutines. Its queue
// is filled once at creation and closed, so workers never block on receive.
// A pool is never resized; the controller retires it and starts a new one.
type workerPool struct {
	id    int
	size  int
	queue chan *unit
	wg    sync.WaitGroup

	// retired is set by the controller (under its mutex) when the pool's
	// pending units have been moved to a successor pool.
	retired bool

	logger *slog.Logger
}

func newWorkerPool(id, size int, units []*unit, logger *slog.Logger) *workerPool {
	queue := make(chan *unit, len(units))
	for _, u := range units {
		queue <- u
	}
	close(queue)
	return &workerPool{
		id:     id,
		size:   size,
		queue:  queue,
		logger: logger.With(slog.Int("pool", id)),
	}
}

// start launches the workers. No more goroutines than queued units are started.
func (p *workerPool) start(admit admitFunc, execute executeFunc) {
	n := min(p.size, len(p.queue))
	p.logger.Debug("Starting worker pool", slog.Int("size", p.size), slog.Int("workers", n), slog.Int("queued", len(p.queue)))
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work(i, admit, execute)
	}
}

func (p *workerPool) work(workerID int, admit admitFunc, execute executeFunc) {
	defer p.wg.Done()
	wLogger := p.logger.With(slog.Int("workerID", workerID))
	wLogger.Debug("Worker started")

	for u := range p.queue {
		if !admit(p, u) {
			wLogger.Debug("Worker shutting down (retired or run stopped)")
			return
		}
		execute(workerID, u)
	}
	wLogger.Debug("Worker shutting down (queue drained)")
}

// wait blocks until every worker of the pool has exited.
func (p *workerPool) wait() {
	p.wg.Wait()
}
