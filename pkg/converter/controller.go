package converter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Controller owns the lifecycle of one run: Idle -> Running <-> Paused ->
// {Cancelled | Finished}. It dispatches units to a worker pool, retires and
// replaces the pool when the worker count changes while paused, and runs one
// coordinating goroutine that drains outcomes into the Aggregator.
//
// All methods are safe for concurrent use.
type Controller struct {
	conv     FileConverter
	hooks    Hooks
	logger   *slog.Logger
	runID    string
	interval time.Duration
	opts     ControllerOptions

	agg      *Aggregator
	outcomes chan Outcome
	cancelCh chan struct{}
	notify   chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	status    RunStatus
	units     []*unit
	workers   int
	pool      *workerPool
	pools     []*workerPool // every pool ever started, for Close
	startTime time.Time
	stopTime  time.Time
	started   bool
}

// NewController creates an idle controller for the given plan.
// A nil conv is replaced by an ImageConverter with default options.
func NewController(tasks []Task, conv FileConverter, opts ControllerOptions) *Controller {
	handler := opts.Logger
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	if conv == nil {
		// Default options always resolve.
		conv, _ = NewImageConverter(ConverterOptions{}, handler)
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultPoolSize()
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	units := make([]*unit, len(tasks))
	for i, t := range tasks {
		units[i] = &unit{index: i, task: t}
	}

	c := &Controller{
		conv:     conv,
		hooks:    hooks,
		logger:   slog.New(handler).With(slog.String("component", "controller"), slog.String("run", runID)),
		runID:    runID,
		interval: interval,
		opts:     opts,
		agg:      NewAggregator(len(tasks)),
		outcomes: make(chan Outcome, len(tasks)),
		cancelCh: make(chan struct{}),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		status:   RunIdle,
		units:    units,
		workers:  workers,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// RunID returns the identifier attached to every log line and the report.
func (c *Controller) RunID() string { return c.runID }

// Start dispatches the plan. An empty plan returns ErrNothingToDo and leaves
// the controller Idle. Cancelling ctx cancels the run.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != RunIdle {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, st)
	}
	if len(c.units) == 0 {
		c.mu.Unlock()
		c.logger.Info("Nothing to convert")
		return ErrNothingToDo
	}
	c.status = RunRunning
	c.started = true
	c.startTime = time.Now()
	c.startPoolLocked(c.units)
	workers := c.workers
	c.mu.Unlock()

	c.logger.Info("Run started", slog.Int("tasks", len(c.units)), slog.Int("workers", workers))
	go c.coordinate(ctx)
	return nil
}

// Pause parks workers before their next task. In-flight conversions continue.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.status != RunRunning {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, st)
	}
	c.status = RunPaused
	c.mu.Unlock()

	c.logger.Info("Run paused")
	c.poke()
	return nil
}

// Resume continues a paused run. A positive workers value different from the
// current pool size resizes the pool first.
func (c *Controller) Resume(workers int) error {
	c.mu.Lock()
	if c.status != RunPaused {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, st)
	}
	if workers > 0 && workers != c.workers {
		c.resizeLocked(workers)
	}
	c.status = RunRunning
	current := c.workers
	c.cond.Broadcast()
	c.mu.Unlock()

	c.logger.Info("Run resumed", slog.Int("workers", current))
	c.poke()
	return nil
}

// Resize changes the worker count. Only permitted while paused: units that
// have not started are moved to a freshly sized pool, the old pool's idle
// workers exit and its in-flight conversions run to completion.
func (c *Controller) Resize(workers int) error {
	if workers <= 0 {
		return fmt.Errorf("%w: worker count must be positive, got %d", ErrConfigValidation, workers)
	}
	c.mu.Lock()
	if c.status != RunPaused {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: status is %s", ErrNotPaused, st)
	}
	if workers != c.workers {
		c.resizeLocked(workers)
	}
	c.mu.Unlock()

	c.poke()
	return nil
}

// Cancel stops the run. Units that have not started never run and produce
// no outcome; outcomes of in-flight units are discarded when they arrive.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.status != RunRunning && c.status != RunPaused {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, st)
	}
	c.status = RunCancelled
	c.stopTime = time.Now()
	c.cond.Broadcast()
	close(c.cancelCh)
	c.mu.Unlock()

	c.logger.Info("Run cancelled")
	return nil
}

// State returns a consistent snapshot of the run state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Wait blocks until the run reaches a terminal status or ctx is done.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return c.State(), fmt.Errorf("%w: run not started", ErrInvalidTransition)
	}
	select {
	case <-c.done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Done is closed once the coordinating goroutine has published the final
// state and report.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close cancels an active run and waits, bounded by ctx, for every worker of
// every pool and for the coordinating goroutine to exit. In-flight
// conversions are never interrupted; if ctx expires first they are abandoned
// to finish on their own and Close returns the context error.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	active := c.status == RunRunning || c.status == RunPaused
	started := c.started
	c.mu.Unlock()

	if active {
		_ = c.Cancel()
	}
	if !started {
		return nil
	}

	// No pool can be added once the run is terminal.
	c.mu.Lock()
	pools := append([]*workerPool(nil), c.pools...)
	c.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		for _, p := range pools {
			p.wait()
		}
		<-c.done
		close(stopped)
	}()

	select {
	case <-stopped:
		c.logger.Debug("Controller closed")
		return nil
	case <-ctx.Done():
		c.logger.Warn("Timed out waiting for in-flight conversions", slog.String("error", ctx.Err().Error()))
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// Report builds the run report from the current state and recorded outcomes.
func (c *Controller) Report() Report {
	st := c.State()
	return newReport(c.runID, c.opts, st, c.agg.Outcomes())
}

// --- pool management ---

func (c *Controller) startPoolLocked(units []*unit) {
	p := newWorkerPool(len(c.pools)+1, c.workers, units, c.logger)
	c.pool = p
	c.pools = append(c.pools, p)
	p.start(c.admit, c.execute)
}

// resizeLocked retires the current pool and resubmits every pending unit to
// a new pool of the requested size. Caller holds c.mu and status is Paused.
func (c *Controller) resizeLocked(workers int) {
	old := c.pool
	old.retired = true

	var pending []*unit
	running := 0
	for _, u := range c.units {
		switch u.state {
		case unitPending:
			pending = append(pending, u)
		case unitRunning:
			running++
		}
	}
	c.logger.Info("Resizing worker pool",
		slog.Int("from", c.workers),
		slog.Int("to", workers),
		slog.Int("resubmitted", len(pending)),
		slog.Int("inFlight", running),
	)
	c.workers = workers
	c.startPoolLocked(pending)
	c.cond.Broadcast()
}

// admit parks the worker while paused and claims the unit when the run is
// active. A false return tells the worker to exit.
func (c *Controller) admit(p *workerPool, u *unit) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.status == RunPaused && !p.retired {
		c.cond.Wait()
	}
	if p.retired || c.status != RunRunning || u.state != unitPending {
		return false
	}
	u.state = unitRunning
	return true
}

func (c *Controller) execute(workerID int, u *unit) {
	if err := c.hooks.OnTaskStatusUpdate(u.task.SourcePath, StatusProcessing, "", 0); err != nil {
		c.logger.Warn("Event hook OnTaskStatusUpdate failed", slog.String("path", u.task.SourcePath), slog.String("error", err.Error()))
	}

	out := c.convert(u.task)

	c.mu.Lock()
	u.state = unitDone
	cancelled := c.status == RunCancelled
	c.mu.Unlock()

	if cancelled {
		c.logger.Debug("Discarding outcome of cancelled run", slog.Int("workerID", workerID), slog.String("source", out.SourcePath))
		return
	}
	// Buffered to the plan size and each unit completes once, so this never blocks.
	c.outcomes <- out
}

func (c *Controller) convert(task Task) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic recovered in converter", slog.String("source", task.SourcePath), slog.Any("panicValue", r))
			err := fmt.Errorf("converter panic: %v", r)
			out = Outcome{
				SourcePath:      task.SourcePath,
				DestinationPath: task.DestinationPath,
				Err:             err,
				Error:           err.Error(),
			}
		}
	}()
	out = c.conv.Convert(task)
	if !out.Success && out.Error == "" {
		if out.Err != nil {
			out.Error = out.Err.Error()
		} else {
			out.Error = "conversion failed"
		}
	}
	return out
}

// --- coordination ---

// coordinate is the only goroutine that records outcomes and calls
// OnStateChange or OnRunComplete, so hooks observe state changes in order and
// control methods never call hooks synchronously.
func (c *Controller) coordinate(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	ctxDone := ctx.Done()

	// Hooks see Running before any outcome.
	c.publish()

	for !c.terminal() {
		select {
		case out := <-c.outcomes:
			c.record(out)
		case <-ticker.C:
			c.publish()
		case <-c.notify:
			c.publish()
		case <-c.cancelCh:
		case <-ctxDone:
			ctxDone = nil
			c.logger.Info("Context done, cancelling run", slog.String("reason", ctx.Err().Error()))
			_ = c.Cancel()
		}
	}

	if c.State().Status == RunCancelled {
		c.reportCancelledUnits()
	}
	c.publish()

	report := c.Report()
	c.logger.Info("Run complete",
		slog.String("status", string(report.Summary.Status)),
		slog.Int("total", report.Summary.Total),
		slog.Int("succeeded", report.Summary.Succeeded),
		slog.Int("failed", report.Summary.Failed),
		slog.Float64("durationSeconds", report.Summary.DurationSeconds),
	)
	if err := c.hooks.OnRunComplete(report); err != nil {
		c.logger.Warn("Event hook OnRunComplete failed", slog.String("error", err.Error()))
	}
}

// record hands one outcome to the aggregator. Recording the last outcome and
// the Finished transition happen atomically with respect to Cancel.
func (c *Controller) record(out Outcome) {
	c.mu.Lock()
	if c.status == RunCancelled {
		c.mu.Unlock()
		c.logger.Debug("Discarding outcome of cancelled run", slog.String("source", out.SourcePath))
		return
	}
	if !c.agg.Record(out) {
		c.mu.Unlock()
		c.logger.Warn("Outcome beyond plan size ignored", slog.String("source", out.SourcePath))
		return
	}
	finished := false
	if counts := c.agg.Snapshot(); counts.Completed == counts.Total {
		c.status = RunFinished
		c.stopTime = time.Now()
		c.cond.Broadcast()
		finished = true
	}
	c.mu.Unlock()

	status, message := StatusSuccess, ""
	if !out.Success {
		status, message = StatusFailed, out.Error
		c.logger.Error("Conversion failed", slog.String("source", out.SourcePath), slog.String("error", out.Error))
	}
	if err := c.hooks.OnTaskStatusUpdate(out.SourcePath, status, message, out.Duration); err != nil {
		c.logger.Warn("Event hook OnTaskStatusUpdate failed", slog.String("path", out.SourcePath), slog.String("error", err.Error()))
	}
	if finished {
		c.logger.Debug("All outcomes recorded")
	}
}

// reportCancelledUnits notifies hooks about every unit that never ran.
func (c *Controller) reportCancelledUnits() {
	c.mu.Lock()
	var skipped []string
	for _, u := range c.units {
		if u.state == unitPending {
			skipped = append(skipped, u.task.SourcePath)
		}
	}
	c.mu.Unlock()

	for _, path := range skipped {
		if err := c.hooks.OnTaskStatusUpdate(path, StatusCancelled, "run cancelled", 0); err != nil {
			c.logger.Warn("Event hook OnTaskStatusUpdate failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// poke asks the coordinator to publish the state without waiting for the next tick.
func (c *Controller) poke() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Controller) publish() {
	if err := c.hooks.OnStateChange(c.State()); err != nil {
		c.logger.Warn("Event hook OnStateChange failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Terminal()
}

func (c *Controller) stateLocked() State {
	st := State{
		Status:    c.status,
		Counts:    c.agg.Snapshot(),
		Workers:   c.workers,
		StartTime: c.startTime,
	}
	switch {
	case !c.started:
	case c.status.Terminal():
		st.Elapsed = c.stopTime.Sub(c.startTime)
	default:
		st.Elapsed = time.Since(c.startTime)
	}
	return st
}
