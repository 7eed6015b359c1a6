package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veldrane/driftwood/internal/event"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/scan"
)

// completedCap bounds the in-memory ring of finished tasks.
const completedCap = 50

// ScanRunner is the scan coordinator surface the scheduler drives.
type ScanRunner interface {
	ScanLibrary(ctx context.Context, libraryID string, opts scan.Options) (*scan.Result, error)
	ScanSource(ctx context.Context, sourceID string, opts scan.Options) (*scan.Result, error)
	ScanMediaKind(ctx context.Context, mediaKind string, opts scan.Options) (*scan.Result, error)
	IsManualScanInProgress() bool
	StopScan()
}

// Analyzer runs one completeness analysis end to end.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, onProgress func(analyzed, total int), sourceID, libraryID string) (completed, analyzed int, err error)
	Cancel()
}

// MonitorControl is the pause handshake with the change monitor. The
// monitor decides whether a pause takes effect; the scheduler only tracks
// whether its own request did.
type MonitorControl interface {
	// RequestPause asks the monitor to suspend detection while tasks run.
	// Returns false when monitoring is inactive or configured to keep
	// running during scans.
	RequestPause() bool
	Resume()
}

// Sink receives fire-and-forget UI notifications. A nil sink is valid.
type Sink interface {
	Publish(eventName string, data any)
}

// Scheduler executes tasks one at a time in enqueue order. It owns the
// queue, the running task and the completed-task ring; nothing else
// mutates them.
type Scheduler struct {
	scans     ScanRunner
	analyzers map[Kind]Analyzer
	history   *History
	bus       *event.Bus
	sink      Sink
	logger    *slog.Logger

	mu            sync.Mutex
	monitor       MonitorControl
	queue         []*Task
	current       *Task
	completed     []*Task
	paused        bool
	processing    bool
	pausedMonitor bool
	cancelRun     context.CancelFunc
	shutdown      bool
}

// NewScheduler creates a task scheduler. bus and sink may be nil.
func NewScheduler(scans ScanRunner, analyzers map[Kind]Analyzer, history *History, bus *event.Bus, sink Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scans:     scans,
		analyzers: analyzers,
		history:   history,
		bus:       bus,
		sink:      sink,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// SetMonitor wires the pause handshake. Called once during startup, before
// tasks are enqueued.
func (s *Scheduler) SetMonitor(m MonitorControl) {
	s.mu.Lock()
	s.monitor = m
	s.mu.Unlock()
}

// Enqueue appends a task and starts the loop if it is idle. Never blocks.
func (s *Scheduler) Enqueue(def Definition) string {
	t := &Task{
		ID:        uuid.New().String(),
		Kind:      def.Kind,
		Label:     def.Label,
		SourceID:  def.SourceID,
		LibraryID: def.LibraryID,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if t.Label == "" {
		t.Label = defaultLabel(def.Kind)
	}

	s.mu.Lock()
	s.queue = append(s.queue, t)
	start := !s.processing && !s.paused && !s.shutdown
	if start {
		s.processing = true
	}
	s.mu.Unlock()

	s.logger.Info("task queued", "task_id", t.ID, "kind", string(t.Kind), "label", t.Label)
	s.publish(event.TaskQueued, map[string]any{
		"task_id": t.ID, "kind": string(t.Kind), "label": t.Label,
	})
	s.pushState()
	if start {
		go s.run()
	}
	return t.ID
}

// Remove drops a queued task. Returns false when the id is not queued;
// the running task cannot be removed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	found := false
	for i, t := range s.queue {
		if t.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.pushState()
	}
	return found
}

// Reorder replaces the queue order. The given ids must match the queued
// ids exactly; any mismatch leaves the queue untouched. Callers work from
// snapshots that may be stale, so a mismatch is not an error.
func (s *Scheduler) Reorder(ids []string) {
	s.mu.Lock()
	if len(ids) != len(s.queue) {
		s.mu.Unlock()
		return
	}
	byID := make(map[string]*Task, len(s.queue))
	for _, t := range s.queue {
		byID[t.ID] = t
	}
	next := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			s.mu.Unlock()
			return
		}
		delete(byID, id)
		next = append(next, t)
	}
	s.queue = next
	s.mu.Unlock()

	s.pushState()
}

// ClearQueue drops all queued tasks. The running task is unaffected.
func (s *Scheduler) ClearQueue() {
	s.mu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("queue cleared", "dropped", n)
		s.pushState()
	}
}

// Pause stops new tasks from starting. The running task finishes.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.pushState()
}

// Resume restarts the loop after a pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	start := !s.processing && len(s.queue) > 0 && !s.shutdown
	if start {
		s.processing = true
	}
	s.mu.Unlock()

	if start {
		go s.run()
	}
	s.pushState()
}

// CancelCurrent requests cooperative cancellation of the running task: the
// task context is cancelled and the collaborator's own stop is invoked.
// The task finalizes through the normal path with status cancelled.
func (s *Scheduler) CancelCurrent() {
	s.mu.Lock()
	t := s.current
	cancel := s.cancelRun
	s.mu.Unlock()
	if t == nil {
		return
	}

	s.logger.Info("cancelling task", "task_id", t.ID, "kind", string(t.Kind))
	if cancel != nil {
		cancel()
	}
	switch t.Kind {
	case KindLibraryScan, KindSourceScan, KindMusicScan:
		s.scans.StopScan()
	default:
		if a, ok := s.analyzers[t.Kind]; ok {
			a.Cancel()
		}
	}
}

// State returns a read-only snapshot of the queue, the running task and
// the completed ring.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Paused:    s.paused,
		Queue:     make([]Task, 0, len(s.queue)),
		Completed: make([]Task, 0, len(s.completed)),
	}
	if s.current != nil {
		cp := *s.current
		st.Current = &cp
	}
	for _, t := range s.queue {
		st.Queue = append(st.Queue, *t)
	}
	for _, t := range s.completed {
		st.Completed = append(st.Completed, *t)
	}
	return st
}

// TaskHistory lists persisted terminal tasks, newest first.
func (s *Scheduler) TaskHistory(ctx context.Context, limit int) ([]Task, error) {
	return s.history.ListTasks(ctx, limit)
}

// ClearTaskHistory removes all persisted tasks and their activity entries.
func (s *Scheduler) ClearTaskHistory(ctx context.Context) error {
	s.mu.Lock()
	s.completed = nil
	s.mu.Unlock()
	return s.history.ClearTasks(ctx)
}

// MonitoringHistory lists persisted monitoring activity, newest first.
func (s *Scheduler) MonitoringHistory(ctx context.Context, limit int) ([]Activity, error) {
	return s.history.ListActivity(ctx, EntryTypeMonitoring, limit)
}

// ClearMonitoringHistory removes all monitoring activity entries.
func (s *Scheduler) ClearMonitoringHistory(ctx context.Context) error {
	return s.history.ClearMonitoring(ctx)
}

// PersistInterrupted marks the running task and every queued task as
// interrupted and writes them to history, without running them. Called
// once at shutdown; the scheduler accepts no work afterwards.
func (s *Scheduler) PersistInterrupted(ctx context.Context) error {
	now := time.Now().UTC()

	s.mu.Lock()
	s.shutdown = true
	var pending []*Task
	if s.current != nil {
		pending = append(pending, s.current)
	}
	pending = append(pending, s.queue...)
	s.queue = nil
	cancel := s.cancelRun
	for _, t := range pending {
		t.Status = StatusInterrupted
		t.Error = ""
		t.Progress = nil
		t.CompletedAt = &now
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var firstErr error
	for _, t := range pending {
		if err := s.history.RecordTask(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recorded interrupted tasks", "count", len(pending))
	}
	return firstErr
}

// run drains the queue. One invocation covers a whole busy period: the
// monitor is paused before the first task and resumed when the queue
// empties. RequestPause blocks until in-flight detection cycles drain,
// so it runs outside the scheduler lock to keep Enqueue and State
// responsive while it waits.
func (s *Scheduler) run() {
	s.mu.Lock()
	mon := s.monitor
	needPause := mon != nil && !s.pausedMonitor && len(s.queue) > 0
	s.mu.Unlock()
	if needPause {
		paused := mon.RequestPause()
		s.mu.Lock()
		s.pausedMonitor = paused
		s.mu.Unlock()
	}

	for {
		t := s.next()
		if t == nil {
			return
		}
		s.execute(t)
	}
}

// next pops the head task, or stops the loop when the queue is empty, the
// scheduler is paused, or shutdown began.
func (s *Scheduler) next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.shutdown || len(s.queue) == 0 {
		if len(s.queue) == 0 && !s.shutdown && s.pausedMonitor && s.monitor != nil {
			s.monitor.Resume()
			s.pausedMonitor = false
		}
		s.processing = false
		return nil
	}

	t := s.queue[0]
	s.queue = s.queue[1:]
	now := time.Now().UTC()
	t.Status = StatusRunning
	t.StartedAt = &now
	s.current = t
	return t
}

func (s *Scheduler) execute(t *Task) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	s.logger.Info("task started", "task_id", t.ID, "kind", string(t.Kind), "label", t.Label)
	s.publish(event.TaskStarted, map[string]any{
		"task_id": t.ID, "kind": string(t.Kind), "label": t.Label,
	})
	s.pushState()

	throttle := newProgressThrottle(func(p Progress) {
		s.mu.Lock()
		if s.current == t {
			t.Progress = &p
		}
		s.mu.Unlock()
		if s.sink != nil {
			s.sink.Publish("task.progress", map[string]any{"task_id": t.ID, "progress": p})
		}
	}, progressInterval)

	res, detail, err := s.dispatch(ctx, t, throttle.Send)
	throttle.Close()

	cancelled := err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil)
	s.finalize(t, res, detail, err, cancelled)
}

func (s *Scheduler) dispatch(ctx context.Context, t *Task, emit func(Progress)) (*Result, string, error) {
	switch t.Kind {
	case KindLibraryScan, KindSourceScan, KindMusicScan:
		return s.runScan(ctx, t, emit)
	case KindSeriesCompleteness, KindCollectionCompleteness, KindMusicCompleteness:
		return s.runAnalysis(ctx, t, emit)
	default:
		return nil, "", fmt.Errorf("unknown task kind: %q", t.Kind)
	}
}

func (s *Scheduler) runScan(ctx context.Context, t *Task, emit func(Progress)) (*Result, string, error) {
	opts := scan.Options{OnProgress: func(p scan.Progress) {
		emit(Progress{
			Current:    p.Scanned,
			Total:      p.Total,
			Percentage: percentage(p.Scanned, p.Total),
			Phase:      "scanning",
		})
	}}

	var res *scan.Result
	var err error
	switch t.Kind {
	case KindLibraryScan:
		res, err = s.scans.ScanLibrary(ctx, t.LibraryID, opts)
	case KindSourceScan:
		res, err = s.scans.ScanSource(ctx, t.SourceID, opts)
	case KindMusicScan:
		res, err = s.scans.ScanMediaKind(ctx, library.KindMusic, opts)
	}
	if err != nil {
		return nil, "", err
	}

	detail := fmt.Sprintf("%d scanned, %d added, %d updated, %d removed",
		res.ItemsScanned, res.ItemsAdded, res.ItemsUpdated, res.ItemsRemoved)
	if len(res.Errors) > 0 {
		detail = fmt.Sprintf("%s, %d errors", detail, len(res.Errors))
	}
	return &Result{
		ItemsScanned: res.ItemsScanned,
		ItemsAdded:   res.ItemsAdded,
		ItemsUpdated: res.ItemsUpdated,
		ItemsRemoved: res.ItemsRemoved,
		IsFirstScan:  res.IsFirstScan,
	}, detail, nil
}

func (s *Scheduler) runAnalysis(ctx context.Context, t *Task, emit func(Progress)) (*Result, string, error) {
	a, ok := s.analyzers[t.Kind]
	if !ok {
		return nil, "", fmt.Errorf("no analyzer for task kind %q", t.Kind)
	}

	completed, analyzed, err := a.AnalyzeAll(ctx, func(analyzed, total int) {
		emit(Progress{
			Current:    analyzed,
			Total:      total,
			Percentage: percentage(analyzed, total),
			Phase:      "analyzing",
		})
	}, t.SourceID, t.LibraryID)
	if err != nil {
		return nil, "", err
	}
	return &Result{ItemsScanned: analyzed},
		fmt.Sprintf("%d of %d groups complete", completed, analyzed), nil
}

func (s *Scheduler) finalize(t *Task, res *Result, detail string, err error, cancelled bool) {
	now := time.Now().UTC()

	s.mu.Lock()
	if s.shutdown {
		s.current = nil
		s.cancelRun = nil
		s.mu.Unlock()
		return
	}
	t.CompletedAt = &now
	t.Progress = nil
	switch {
	case cancelled:
		t.Status = StatusCancelled
	case err != nil:
		t.Status = StatusFailed
		t.Error = err.Error()
	default:
		t.Status = StatusCompleted
		t.Result = res
	}
	s.current = nil
	s.cancelRun = nil

	var evicted *Task
	s.completed = append([]*Task{t}, s.completed...)
	if len(s.completed) > completedCap {
		evicted = s.completed[completedCap]
		s.completed = s.completed[:completedCap]
	}
	s.mu.Unlock()

	ctx := context.Background()
	if herr := s.history.RecordTask(ctx, t); herr != nil {
		s.logger.Warn("recording task history", "task_id", t.ID, "error", herr)
	}
	if t.Status == StatusFailed {
		detail = t.Error
	}
	msg := fmt.Sprintf("%s %s", t.Label, t.Status)
	if herr := s.history.LogTask(ctx, t.ID, t.SourceID, msg, detail); herr != nil {
		s.logger.Warn("appending task activity", "task_id", t.ID, "error", herr)
	}
	if evicted != nil {
		if herr := s.history.PruneTask(ctx, evicted.ID); herr != nil {
			s.logger.Warn("pruning evicted task", "task_id", evicted.ID, "error", herr)
		}
	}

	data := map[string]any{
		"task_id": t.ID, "kind": string(t.Kind), "label": t.Label, "status": string(t.Status),
	}
	switch t.Status {
	case StatusCompleted:
		if t.Result != nil {
			data["items_scanned"] = t.Result.ItemsScanned
			data["items_added"] = t.Result.ItemsAdded
			data["items_updated"] = t.Result.ItemsUpdated
			data["items_removed"] = t.Result.ItemsRemoved
		}
		s.publish(event.TaskCompleted, data)
	case StatusCancelled:
		s.publish(event.TaskCancelled, data)
	default:
		data["error"] = t.Error
		s.publish(event.TaskFailed, data)
	}
	if s.sink != nil {
		s.sink.Publish("task.finished", *t)
	}
	s.pushState()

	s.logger.Info("task finished",
		"task_id", t.ID, "kind", string(t.Kind), "status", string(t.Status), "detail", detail)
}

func (s *Scheduler) publish(t event.Type, data map[string]any) {
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: t, Data: data})
	}
}

func (s *Scheduler) pushState() {
	if s.sink != nil {
		s.sink.Publish("queue.state", s.State())
	}
}

func percentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	pct := current * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}
