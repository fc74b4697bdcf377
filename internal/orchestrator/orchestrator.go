// Package orchestrator drives the execution queue: DFS pre-order dispatch
// over the scoped backlog, dependency gating with Blocked cascade, bounded
// parallelism for independent subtasks, cooperative cancellation, and the
// run summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/prp"
	"github.com/droverdev/drover/internal/session"
)

// ErrInvalidType marks an unknown entity type in the queue. This is a
// programmer error and terminates the run.
var ErrInvalidType = errors.New("invalid item type in queue")

// Summary is the final run report.
type Summary struct {
	TotalItems  int
	Completed   int
	Failed      int
	Blocked     int
	DurationMs  int64
	SessionPath string
}

// Orchestrator executes one scoped queue against a session. The loop is
// single-threaded; subtask execution fans out up to the parallelism bound
// when enabled.
type Orchestrator struct {
	mgr     *session.Manager
	runtime *prp.Runtime
	agents  agent.Roster
	cfg     *config.Config

	parallelism int
	failFast    bool

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []backlog.Ref
	totalItems int
	inFlight   map[string]bool
	completed  int
	failed     int
	blocked    int
	failedSeen bool

	wg  sync.WaitGroup
	sem chan struct{}
}

// New builds an orchestrator for a scope. The queue is resolved once; use
// SetScope to rebuild it against the live backlog.
func New(cfg *config.Config, mgr *session.Manager, rt *prp.Runtime, agents agent.Roster, scope string) (*Orchestrator, error) {
	b := mgr.Backlog()
	if b == nil {
		return nil, fmt.Errorf("session has no backlog")
	}
	queue, err := backlog.ResolveScope(b, scope)
	if err != nil {
		return nil, err
	}

	parallelism := cfg.Run.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	o := &Orchestrator{
		mgr:         mgr,
		runtime:     rt,
		agents:      agents,
		cfg:         cfg,
		parallelism: parallelism,
		failFast:    cfg.Run.FailFast,
		queue:       queue,
		totalItems:  len(queue),
		inFlight:    make(map[string]bool),
		sem:         make(chan struct{}, parallelism),
	}
	o.cond = sync.NewCond(&o.mu)
	return o, nil
}

// SetScope rebuilds the queue from the current backlog under a new scope.
// Session state is preserved; any in-flight subtasks finish under the old
// scope before new dispatches begin.
func (o *Orchestrator) SetScope(scope string) error {
	queue, err := backlog.ResolveScope(o.mgr.Backlog(), scope)
	if err != nil {
		return err
	}
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = queue
	o.totalItems = len(queue)
	return nil
}

// ProcessNextItem pops and dispatches the head of the queue. It returns
// false when the queue is empty, on cancellation, or when fail-fast has
// tripped; true after any dispatch, including skips and surfaced failures.
// An unknown item type returns ErrInvalidType.
func (o *Orchestrator) ProcessNextItem(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	o.mu.Lock()
	if len(o.queue) == 0 || (o.failFast && o.failedSeen) {
		o.mu.Unlock()
		return false, nil
	}
	ref := o.queue[0]
	o.queue = o.queue[1:]
	if ref.Kind == backlog.KindSubtask {
		// Registered under the same lock as the pop: dependency waiters
		// never observe a subtask that is neither queued nor in flight.
		o.inFlight[ref.ID] = true
	}
	o.mu.Unlock()

	switch ref.Kind {
	case backlog.KindPhase, backlog.KindMilestone, backlog.KindTask:
		o.markContainer(ref.ID)
	case backlog.KindSubtask:
		if o.parallelism > 1 {
			o.dispatchParallel(ctx, ref.ID)
		} else {
			o.executeSubtask(ctx, ref.ID)
			o.clearInFlight(ref.ID)
		}
	default:
		return false, fmt.Errorf("%w: %q for item %s", ErrInvalidType, ref.Kind, ref.ID)
	}
	return true, nil
}

// Run drains the queue, waits for in-flight subtasks, flushes pending state,
// and returns the summary. Cancellation surfaces as the context's error after
// pending updates are flushed.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	var loopErr error
	for {
		more, err := o.ProcessNextItem(ctx)
		if err != nil {
			loopErr = err
			break
		}
		if !more {
			break
		}
	}
	o.wg.Wait()

	if err := o.mgr.FlushUpdates(); err != nil {
		slog.Error("final flush failed", "error", err)
		if loopErr == nil {
			loopErr = err
		}
	}

	if loopErr == nil && ctx.Err() != nil {
		loopErr = ctx.Err()
	}

	o.mu.Lock()
	s := Summary{
		TotalItems:  o.totalItems,
		Completed:   o.completed,
		Failed:      o.failed,
		Blocked:     o.blocked,
		DurationMs:  time.Since(start).Milliseconds(),
		SessionPath: o.mgr.Session().Dir,
	}
	o.mu.Unlock()
	return s, loopErr
}

// markContainer sets a phase/milestone/task to Implementing for observers.
// Its descendants follow in the queue; final status is derived on flush.
func (o *Orchestrator) markContainer(id string) {
	if _, err := o.mgr.UpdateItemStatus(id, backlog.StatusImplementing); err != nil {
		slog.Warn("failed to mark container", "item", id, "error", err)
		return
	}
	if err := o.mgr.FlushUpdates(); err != nil {
		slog.Warn("failed to flush container status", "item", id, "error", err)
	}
}

// dispatchParallel runs a subtask on its own goroutine. The dependency gate
// runs before a worker slot is taken, so parked waiters can never occupy
// every slot while their dependency starves behind them.
func (o *Orchestrator) dispatchParallel(ctx context.Context, id string) {
	o.wg.Add(1)
	go func() {
		defer func() {
			o.clearInFlight(id)
			o.wg.Done()
		}()

		switch o.gateDependencies(ctx, id) {
		case depsReady:
		case depsBlocked:
			o.finish(id, backlog.StatusBlocked)
			return
		case depsCancelled:
			return
		}

		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-o.sem }()

		o.mu.Lock()
		stopped := o.failFast && o.failedSeen
		o.mu.Unlock()
		if stopped {
			return
		}

		o.runPipeline(ctx, id)
	}()
}

// clearInFlight drops a subtask from the in-flight set and wakes waiters.
func (o *Orchestrator) clearInFlight(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.cond.Broadcast()
	o.mu.Unlock()
}

// executeSubtask is the serial path: dependency gate, then the pipeline.
func (o *Orchestrator) executeSubtask(ctx context.Context, id string) {
	switch o.gateDependencies(ctx, id) {
	case depsReady:
	case depsBlocked:
		o.finish(id, backlog.StatusBlocked)
		return
	case depsCancelled:
		return
	}
	o.runPipeline(ctx, id)
}

// runPipeline drives one subtask through Researching → Generate and
// Implementing → Execute, ending in a terminal status flushed in one write.
// On cancellation the status stays at the last completed step; crash recovery
// resets it to Planned on the next session load.
func (o *Orchestrator) runPipeline(ctx context.Context, id string) {
	b := o.mgr.Backlog()
	sub, ok := b.FindSubtask(id)
	if !ok {
		slog.Error("subtask vanished from backlog", "subtask", id)
		o.finish(id, backlog.StatusFailed)
		return
	}

	if _, err := o.mgr.UpdateItemStatus(id, backlog.StatusResearching); err != nil {
		slog.Error("failed to set status", "subtask", id, "error", err)
		return
	}

	bp, err := o.runtime.Generate(ctx, sub, b)
	if err != nil {
		if ctx.Err() != nil {
			o.flushOnCancel(id)
			return
		}
		slog.Error("blueprint generation failed", "subtask", id, "error", err)
		o.finish(id, backlog.StatusFailed)
		return
	}

	if _, err := o.mgr.UpdateItemStatus(id, backlog.StatusImplementing); err != nil {
		slog.Error("failed to set status", "subtask", id, "error", err)
		return
	}

	if err := o.runtime.Execute(ctx, sub, bp); err != nil {
		if ctx.Err() != nil {
			o.flushOnCancel(id)
			return
		}
		if errors.Is(err, prp.ErrManualGate) {
			slog.Warn("subtask paused at manual gate", "subtask", id)
			o.finish(id, backlog.StatusValidating)
			return
		}
		slog.Error("subtask execution failed", "subtask", id, "error", err)
		o.finish(id, backlog.StatusFailed)
		return
	}

	o.finish(id, backlog.StatusComplete)
	slog.Info("subtask complete", "subtask", id)
}

// flushOnCancel commits queued status updates for a subtask interrupted by
// cancellation, leaving its in-flight status in place rather than marking it
// Failed. The cancelled checkpoint was already written by the runtime.
func (o *Orchestrator) flushOnCancel(id string) {
	slog.Warn("run cancelled mid-subtask, keeping in-flight status", "subtask", id)
	if err := o.mgr.FlushUpdates(); err != nil {
		slog.Error("failed to flush status on cancel", "subtask", id, "error", err)
	}
}

type depState int

const (
	depsReady depState = iota
	depsBlocked
	depsCancelled
)

// gateDependencies checks every declared dependency in order.
func (o *Orchestrator) gateDependencies(ctx context.Context, id string) depState {
	b := o.mgr.Backlog()
	sub, ok := b.FindSubtask(id)
	if !ok || len(sub.Dependencies) == 0 {
		return depsReady
	}

	for _, dep := range sub.Dependencies {
		if st := o.awaitDependency(ctx, id, dep); st != depsReady {
			return st
		}
	}
	return depsReady
}

// awaitDependency resolves one dependency edge. A Failed or Blocked
// dependency blocks the subtask (and, transitively, anything depending on
// it). A pending dependency blocks in serial mode; in parallel mode the
// goroutine parks until the dependency reaches a terminal status, as long as
// it stays queued or in flight. The status check and the wait happen under
// one lock acquisition, so a terminal broadcast cannot slip between them.
func (o *Orchestrator) awaitDependency(ctx context.Context, id, dep string) depState {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.cond.Broadcast()
			o.mu.Unlock()
		case <-done:
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	for {
		st, found := o.statusOf(dep)
		if !found {
			slog.Warn("dependency missing from backlog", "subtask", id, "dependency", dep)
			return depsBlocked
		}

		if st == backlog.StatusComplete {
			return depsReady
		}
		if st == backlog.StatusFailed || st == backlog.StatusBlocked {
			slog.Warn("dependency unresolved, blocking subtask",
				"subtask", id, "dependency", dep, "dependency_status", st)
			return depsBlocked
		}

		// Pending dependency. Serial DFS satisfies declaration order, so
		// reaching here means the backlog is pathological.
		if o.parallelism <= 1 {
			slog.Warn("pending dependency in serial mode, blocking subtask",
				"subtask", id, "dependency", dep, "dependency_status", st)
			return depsBlocked
		}

		if ctx.Err() != nil {
			return depsCancelled
		}
		if !o.inFlight[dep] && !o.queued(dep) {
			slog.Warn("dependency will never run under current scope, blocking subtask",
				"subtask", id, "dependency", dep)
			return depsBlocked
		}
		o.cond.Wait()
	}
}

// statusOf reads a subtask's current status from a consistent snapshot.
func (o *Orchestrator) statusOf(id string) (backlog.Status, bool) {
	sub, ok := o.mgr.Backlog().FindSubtask(id)
	if !ok {
		return "", false
	}
	return sub.Status, true
}

// queued reports whether an id is still in the dispatch queue. Callers hold mu.
func (o *Orchestrator) queued(id string) bool {
	for _, ref := range o.queue {
		if ref.ID == id {
			return true
		}
	}
	return false
}

// finish records a subtask's terminal status, flushes it, updates counters,
// and wakes dependency waiters.
func (o *Orchestrator) finish(id string, status backlog.Status) {
	if _, err := o.mgr.UpdateItemStatus(id, status); err != nil {
		slog.Error("failed to set terminal status", "subtask", id, "status", status, "error", err)
		return
	}
	if err := o.mgr.FlushUpdates(); err != nil {
		slog.Error("failed to flush terminal status", "subtask", id, "status", status, "error", err)
	}

	o.mu.Lock()
	switch status {
	case backlog.StatusComplete:
		o.completed++
	case backlog.StatusFailed:
		o.failed++
		o.failedSeen = true
	case backlog.StatusBlocked:
		o.blocked++
		o.failedSeen = true
	}
	o.cond.Broadcast()
	o.mu.Unlock()
}
