package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veldrane/driftwood/internal/event"
	"github.com/veldrane/driftwood/internal/filesystem"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/scan"
	"github.com/veldrane/driftwood/internal/settings"
	"github.com/veldrane/driftwood/internal/source"
)

// Scanner runs targeted and incremental scans on the monitor's behalf.
type Scanner interface {
	ScanLibrary(ctx context.Context, libraryID string, opts scan.Options) (*scan.Result, error)
	IsManualScanInProgress() bool
}

// ActivityLog records monitoring history entries.
type ActivityLog interface {
	LogMonitoring(ctx context.Context, sourceID, message, detail string) error
}

// Sink receives fire-and-forget UI notifications.
type Sink interface {
	Publish(eventName string, data any)
}

// WishlistChecker matches newly discovered items against open wants.
type WishlistChecker interface {
	CheckNewItems(ctx context.Context, added []item.Item) (int, error)
}

// Monitor watches enabled sources for library changes and triggers
// targeted scans when they happen. Each source gets one watch mechanism:
// a native filesystem watch, a snapshot poll, or a remote incremental
// check, chosen by source type and path.
type Monitor struct {
	scans     Scanner
	sources   *source.Service
	libraries *library.Service
	settings  *settings.Service
	history   ActivityLog
	wishlist  WishlistChecker
	bus       *event.Bus
	sink      Sink
	logger    *slog.Logger

	paused atomic.Bool

	// cycleMu serializes cycle registration against the pause
	// transition so RequestPause never misses a cycle that is just
	// starting.
	cycleMu sync.Mutex
	cycles  sync.WaitGroup

	mu        sync.Mutex
	cfg       Config
	active    bool
	runCtx    context.Context
	cancelRun context.CancelFunc
	watches   map[string]*watchState
	lastCheck map[string]time.Time

	networkPrefixes []string

	// Tunable in tests.
	debounce      time.Duration
	settleWindow  time.Duration
	settlePoll    time.Duration
	networkPoll   time.Duration
	intervalFloor time.Duration
}

// watchState is the runtime handle for one attached source.
type watchState struct {
	src    source.Source
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	strategy string
}

func (w *watchState) setStrategy(s string) {
	w.mu.Lock()
	w.strategy = s
	w.mu.Unlock()
}

func (w *watchState) getStrategy() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.strategy
}

// libResult pairs a library with the outcome of one check against it.
type libResult struct {
	lib *library.Library
	res *scan.Result
}

// New creates a monitor. The bus and sink may be nil; the wishlist
// checker is optional and wired separately.
func New(scans Scanner, sources *source.Service, libraries *library.Service, settingsSvc *settings.Service, history ActivityLog, bus *event.Bus, sink Sink, logger *slog.Logger) *Monitor {
	return &Monitor{
		scans:     scans,
		sources:   sources,
		libraries: libraries,
		settings:  settingsSvc,
		history:   history,
		bus:       bus,
		sink:      sink,
		logger:    logger.With(slog.String("component", "monitor")),
		cfg: Config{
			Enabled:         true,
			StartOnLaunch:   true,
			PauseDuringScan: true,
			PollIntervals:   defaultIntervals(),
		},
		watches:       make(map[string]*watchState),
		lastCheck:     make(map[string]time.Time),
		debounce:      debounceWindow,
		settleWindow:  settleWindow,
		settlePoll:    settlePollInterval,
		networkPoll:   networkPollInterval,
		intervalFloor: minPollInterval,
	}
}

// SetWishlist wires the matcher run after each detection cycle. Must be
// called before Start.
func (m *Monitor) SetWishlist(w WishlistChecker) {
	m.wishlist = w
}

// SetNetworkPrefixes adds path prefixes that force a snapshot poll
// instead of a native filesystem watch. Must be called before Start.
func (m *Monitor) SetNetworkPrefixes(prefixes []string) {
	m.networkPrefixes = prefixes
}

// Start attaches a watch to every enabled source and returns. Detection
// runs on background goroutines until Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.active = true
	m.runCtx = runCtx
	m.cancelRun = cancel
	m.mu.Unlock()
	m.paused.Store(false)

	srcs, err := m.sources.ListEnabled(ctx)
	if err != nil {
		m.Stop()
		return fmt.Errorf("listing sources: %w", err)
	}
	for i := range srcs {
		m.attach(&srcs[i])
	}

	m.logger.Info("monitoring started", "sources", len(srcs))
	if err := m.history.LogMonitoring(ctx, "", "Monitoring started",
		fmt.Sprintf("%d sources", len(srcs))); err != nil {
		m.logger.Warn("recording monitoring activity", "error", err)
	}
	if m.bus != nil {
		m.bus.Publish(event.Event{Type: event.MonitorStarted})
	}
	m.publishStatus()
	return nil
}

// Stop tears down every watch and waits for the goroutines to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	cancel := m.cancelRun
	m.cancelRun = nil
	watches := m.watches
	m.watches = make(map[string]*watchState)
	m.mu.Unlock()

	cancel()
	for _, st := range watches {
		<-st.done
	}
	m.paused.Store(false)

	m.logger.Info("monitoring stopped")
	if err := m.history.LogMonitoring(context.Background(), "", "Monitoring stopped", ""); err != nil {
		m.logger.Warn("recording monitoring activity", "error", err)
	}
	if m.bus != nil {
		m.bus.Publish(event.Event{Type: event.MonitorStopped})
	}
	m.publishStatus()
}

// IsActive reports whether monitoring has been started and not stopped.
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Pause suspends change detection without tearing down watch handles.
// Changes observed while paused are discarded, not queued.
func (m *Monitor) Pause() {
	if !m.IsActive() || m.paused.Swap(true) {
		return
	}
	m.logger.Info("monitoring paused")
	m.publishStatus()
}

// Resume re-enables change detection. Anything that happened during the
// pause stays discarded; detection starts fresh from here.
func (m *Monitor) Resume() {
	if !m.IsActive() || !m.paused.Swap(false) {
		return
	}
	m.logger.Info("monitoring resumed")
	m.publishStatus()
}

// RequestPause pauses monitoring for the duration of a scheduler busy
// period. It reports whether it actually paused, so the caller knows
// whether a matching Resume is owed. An already paused monitor is left
// alone. It does not return until every detection cycle that was in
// flight when the pause took effect has finished, so a caller that sees
// true can start its own scan without racing a monitor-triggered one.
func (m *Monitor) RequestPause() bool {
	m.mu.Lock()
	pauseDuringScan := m.cfg.PauseDuringScan
	m.mu.Unlock()
	if !pauseDuringScan || !m.IsActive() || m.paused.Load() {
		return false
	}
	m.cycleMu.Lock()
	m.Pause()
	m.cycleMu.Unlock()
	m.cycles.Wait()
	return true
}

// beginCycle registers a detection cycle with the drain group unless the
// monitor is paused. A true return obligates the caller to m.cycles.Done().
func (m *Monitor) beginCycle() bool {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if m.paused.Load() {
		return false
	}
	m.cycles.Add(1)
	return true
}

// AddSource begins watching a newly created or re-enabled source. A
// no-op while monitoring is inactive; sources present at Start are
// attached automatically.
func (m *Monitor) AddSource(src *source.Source) {
	if !m.IsActive() || !src.Enabled {
		return
	}
	m.attach(src)
	m.publishStatus()
}

// RemoveSource stops watching the source. Safe for sources that were
// never watched.
func (m *Monitor) RemoveSource(sourceID string) {
	m.detach(sourceID)
	m.publishStatus()
}

// attach starts the watch goroutine for src, replacing any existing one.
// The old mechanism is fully torn down before the new one starts.
func (m *Monitor) attach(src *source.Source) {
	m.detach(src.ID)

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.runCtx)
	st := &watchState{src: *src, cancel: cancel, done: make(chan struct{})}
	m.watches[src.ID] = st
	m.mu.Unlock()

	go m.runSource(ctx, st)
}

func (m *Monitor) detach(sourceID string) {
	m.mu.Lock()
	st, ok := m.watches[sourceID]
	if ok {
		delete(m.watches, sourceID)
	}
	m.mu.Unlock()
	if ok {
		st.cancel()
		<-st.done
	}
}

// runSource drives one source's watch until its context is canceled. A
// native watch that errors out mid-run falls back to a snapshot poll
// over the same roots.
func (m *Monitor) runSource(ctx context.Context, st *watchState) {
	defer close(st.done)

	strategy, roots, err := m.pickStrategy(ctx, &st.src)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("resolving watch strategy",
				"source", st.src.Name, "error", err)
		}
		return
	}
	st.setStrategy(strategy)
	m.logger.Info("watching source",
		"source", st.src.Name, "strategy", strategy, "roots", len(roots))

	switch strategy {
	case StrategyNative:
		err = m.runNative(ctx, st, roots)
	case StrategyPoll:
		err = m.runPollingWatch(ctx, st, roots)
	default:
		err = m.runRemote(ctx, st)
	}
	if ctx.Err() != nil || err == nil {
		return
	}

	if strategy == StrategyNative {
		m.logger.Warn("filesystem watch failed, falling back to polling",
			"source", st.src.Name, "error", err)
		st.setStrategy(StrategyPoll)
		if err := m.runPollingWatch(ctx, st, roots); err != nil && ctx.Err() == nil {
			m.logger.Error("polling watch stopped",
				"source", st.src.Name, "error", err)
		}
		return
	}
	m.logger.Error("watch stopped", "source", st.src.Name, "error", err)
}

// pickStrategy decides how a source gets watched. Remote sources and
// sources without watchable roots poll on the type interval; network
// mounted roots use a snapshot poll; everything else gets a native
// filesystem watch.
func (m *Monitor) pickStrategy(ctx context.Context, src *source.Source) (string, []string, error) {
	if src.Type.Remote() {
		return StrategyRemote, nil, nil
	}
	roots, err := m.watchRoots(ctx, src)
	if err != nil {
		return "", nil, err
	}
	if len(roots) == 0 {
		return StrategyRemote, nil, nil
	}
	for _, root := range roots {
		if m.isNetworkPath(root) {
			return StrategyPoll, roots, nil
		}
	}
	return StrategyNative, roots, nil
}

// watchRoots collects the filesystem roots to watch for a source: the
// enabled libraries' paths, or the source path itself for a local source
// whose libraries carry none.
func (m *Monitor) watchRoots(ctx context.Context, src *source.Source) ([]string, error) {
	libs, err := m.libraries.ListEnabledBySource(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	var roots []string
	seen := make(map[string]bool)
	for i := range libs {
		if libs[i].Path == "" {
			continue
		}
		p := filesystem.ResolvePath(libs[i].Path)
		if seen[p] {
			continue
		}
		seen[p] = true
		roots = append(roots, p)
	}
	if len(roots) == 0 && src.Type == source.TypeLocal && src.Path != "" {
		roots = append(roots, filesystem.ResolvePath(src.Path))
	}
	return roots, nil
}

var networkPathPrefixes = []string{`\\`, "//", "/mnt/", "/media/", "/Volumes/", "/net/"}

func (m *Monitor) isNetworkPath(p string) bool {
	for _, prefix := range networkPathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for _, prefix := range m.networkPrefixes {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// ForceCheck runs one detection cycle for the source immediately,
// regardless of its schedule, and returns the changes found. It refuses
// while a manual scan is running or while monitoring is paused.
func (m *Monitor) ForceCheck(ctx context.Context, sourceID string) ([]ChangeEvent, error) {
	if m.scans.IsManualScanInProgress() {
		m.logger.Debug("force check refused, manual scan in progress", "source_id", sourceID)
		return nil, nil
	}
	src, err := m.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if !m.beginCycle() {
		m.logger.Debug("force check refused, monitoring paused", "source_id", sourceID)
		return nil, nil
	}
	defer m.cycles.Done()
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()
	results, err := m.checkSource(checkCtx, src)
	if err != nil {
		return nil, err
	}
	return m.afterCycle(checkCtx, src, results), nil
}

// checkSource runs an incremental scan of every enabled library of src.
// A library that has never been scanned is checked from the epoch so the
// pass stays incremental and never counts as a manual scan.
func (m *Monitor) checkSource(ctx context.Context, src *source.Source) ([]libResult, error) {
	libs, err := m.libraries.ListEnabledBySource(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	var results []libResult
	for i := range libs {
		lib := &libs[i]
		since := lib.LastScannedAt
		if since == nil {
			epoch := time.Unix(0, 0).UTC()
			since = &epoch
		}
		res, err := m.scans.ScanLibrary(ctx, lib.ID, scan.Options{Since: since})
		if err != nil {
			m.logger.Warn("incremental check failed",
				"library", lib.Name, "error", err)
			continue
		}
		results = append(results, libResult{lib: lib, res: res})
	}
	return results, nil
}

// flushPending scans the accumulated changed paths of one source. Paths
// are routed to the library whose root contains them; batches over the
// size cap are discarded as bulk churn rather than scanned.
func (m *Monitor) flushPending(ctx context.Context, src *source.Source, paths []string) {
	if len(paths) == 0 {
		return
	}
	if !m.beginCycle() {
		return
	}
	defer m.cycles.Done()
	if len(paths) > maxPendingBatch {
		m.logger.Warn("discarding oversized change batch",
			"source", src.Name, "paths", len(paths))
		if err := m.history.LogMonitoring(ctx, src.ID,
			fmt.Sprintf("Discarded change batch for %s", src.Name),
			fmt.Sprintf("%d changed paths", len(paths))); err != nil {
			m.logger.Warn("recording monitoring activity", "error", err)
		}
		return
	}
	if m.scans.IsManualScanInProgress() {
		m.logger.Debug("manual scan in progress, dropping changes",
			"source", src.Name, "paths", len(paths))
		return
	}

	libs, err := m.libraries.ListEnabledBySource(ctx, src.ID)
	if err != nil {
		m.logger.Error("listing libraries", "source", src.Name, "error", err)
		return
	}
	// Observed paths come from resolved watch roots, so library roots
	// must be resolved the same way before prefix routing.
	byLib := make(map[string][]string)
	for _, p := range paths {
		for i := range libs {
			if libs[i].Path != "" && underRoot(filesystem.ResolvePath(libs[i].Path), p) {
				byLib[libs[i].ID] = append(byLib[libs[i].ID], p)
				break
			}
		}
	}
	// A single-library source with no library path owns everything under
	// the source root.
	if len(byLib) == 0 && len(libs) == 1 {
		byLib[libs[0].ID] = paths
	}
	if len(byLib) == 0 {
		return
	}

	var results []libResult
	for i := range libs {
		targets, ok := byLib[libs[i].ID]
		if !ok {
			continue
		}
		res, err := m.scans.ScanLibrary(ctx, libs[i].ID, scan.Options{TargetPaths: targets})
		if err != nil {
			m.logger.Warn("targeted scan failed",
				"library", libs[i].Name, "error", err)
			continue
		}
		results = append(results, libResult{lib: &libs[i], res: res})
	}
	m.afterCycle(ctx, src, results)
}

// afterCycle turns scan results into change events, records them, and
// notifies listeners. It always marks the source checked, even when
// nothing changed, so the UI can show freshness.
func (m *Monitor) afterCycle(ctx context.Context, src *source.Source, results []libResult) []ChangeEvent {
	now := time.Now().UTC()
	m.mu.Lock()
	m.lastCheck[src.ID] = now
	m.mu.Unlock()

	var events []ChangeEvent
	var added []item.Item
	for _, lr := range results {
		added = append(added, lr.res.Added...)
		total := lr.res.ItemsAdded + lr.res.ItemsUpdated + lr.res.ItemsRemoved
		if total == 0 {
			continue
		}
		ev := ChangeEvent{
			SourceID:    src.ID,
			SourceName:  src.Name,
			SourceType:  src.Type,
			LibraryID:   lr.lib.ID,
			LibraryName: lr.lib.Name,
			ChangeType:  changeType(lr.res),
			ItemCount:   total,
			DetectedAt:  now,
		}
		for i := range lr.res.Added {
			if len(ev.Items) == previewLimit {
				break
			}
			ev.Items = append(ev.Items, lr.res.Added[i].Path)
		}
		events = append(events, ev)
	}

	for _, ev := range events {
		m.logger.Info("change detected",
			"source", src.Name, "library", ev.LibraryName,
			"change_type", ev.ChangeType, "items", ev.ItemCount)
		if err := m.history.LogMonitoring(ctx, src.ID,
			fmt.Sprintf("Changes detected in %s", ev.LibraryName),
			fmt.Sprintf("%d items %s", ev.ItemCount, ev.ChangeType)); err != nil {
			m.logger.Warn("recording monitoring activity", "error", err)
		}
		if m.bus != nil {
			m.bus.Publish(event.Event{Type: event.ChangeDetected, Data: map[string]any{
				"source_id":    ev.SourceID,
				"source_name":  ev.SourceName,
				"library_id":   ev.LibraryID,
				"library_name": ev.LibraryName,
				"change_type":  ev.ChangeType,
				"item_count":   ev.ItemCount,
			}})
		}
		if m.sink != nil {
			m.sink.Publish("monitor.change", ev)
		}
	}

	if m.bus != nil {
		m.bus.Publish(event.Event{Type: event.SourceChecked, Data: map[string]any{
			"source_id": src.ID,
		}})
	}
	if m.sink != nil {
		m.sink.Publish("monitor.checked", map[string]any{
			"source_id":  src.ID,
			"checked_at": now,
		})
	}

	if m.wishlist != nil && len(added) > 0 {
		go func(items []item.Item) {
			if _, err := m.wishlist.CheckNewItems(context.Background(), items); err != nil {
				m.logger.Warn("wishlist check failed", "error", err)
			}
		}(added)
	}
	return events
}

func changeType(res *scan.Result) string {
	switch {
	case res.ItemsAdded > 0 && res.ItemsUpdated == 0 && res.ItemsRemoved == 0:
		return ChangeAdded
	case res.ItemsUpdated > 0 && res.ItemsAdded == 0 && res.ItemsRemoved == 0:
		return ChangeUpdated
	case res.ItemsRemoved > 0 && res.ItemsAdded == 0 && res.ItemsUpdated == 0:
		return ChangeRemoved
	default:
		return ChangeMixed
	}
}

// Status reports the monitor's current activity per source.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Active:  m.active,
		Paused:  m.paused.Load(),
		Sources: make([]SourceStatus, 0, len(m.watches)),
	}
	for _, w := range m.watches {
		ss := SourceStatus{
			SourceID: w.src.ID,
			Name:     w.src.Name,
			Type:     w.src.Type,
			Strategy: w.getStrategy(),
		}
		if t, ok := m.lastCheck[w.src.ID]; ok {
			checked := t
			ss.LastChecked = &checked
		}
		st.Sources = append(st.Sources, ss)
	}
	sort.Slice(st.Sources, func(i, j int) bool {
		return st.Sources[i].Name < st.Sources[j].Name
	})
	return st
}

func (m *Monitor) publishStatus() {
	if m.sink == nil {
		return
	}
	m.sink.Publish("monitor.status", m.Status())
}

// Config returns a copy of the current monitoring configuration.
func (m *Monitor) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.clone()
}

// LoadConfig overlays persisted settings onto the defaults. Call once at
// startup, before deciding whether to start monitoring.
func (m *Monitor) LoadConfig(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Enabled = m.settings.GetBool(ctx, settingEnabled, m.cfg.Enabled)
	m.cfg.StartOnLaunch = m.settings.GetBool(ctx, settingStartOnLaunch, m.cfg.StartOnLaunch)
	m.cfg.PauseDuringScan = m.settings.GetBool(ctx, settingPauseDuringScan, m.cfg.PauseDuringScan)
	for t, def := range m.cfg.PollIntervals {
		d := m.settings.GetDuration(ctx, settingIntervalPrefix+string(t), def)
		if d < m.intervalFloor {
			d = m.intervalFloor
		}
		m.cfg.PollIntervals[t] = d
	}
}

// SetConfig applies and persists the non-nil fields of upd. Disabling
// stops an active monitor and enabling starts an inactive one; interval
// changes restart the affected poll timers in place.
func (m *Monitor) SetConfig(ctx context.Context, upd ConfigUpdate) error {
	m.mu.Lock()
	var enable, disable, intervalsChanged bool
	if upd.Enabled != nil && *upd.Enabled != m.cfg.Enabled {
		if err := m.settings.SetBool(ctx, settingEnabled, *upd.Enabled); err != nil {
			m.mu.Unlock()
			return err
		}
		m.cfg.Enabled = *upd.Enabled
		enable = *upd.Enabled
		disable = !*upd.Enabled
	}
	if upd.StartOnLaunch != nil && *upd.StartOnLaunch != m.cfg.StartOnLaunch {
		if err := m.settings.SetBool(ctx, settingStartOnLaunch, *upd.StartOnLaunch); err != nil {
			m.mu.Unlock()
			return err
		}
		m.cfg.StartOnLaunch = *upd.StartOnLaunch
	}
	if upd.PauseDuringScan != nil && *upd.PauseDuringScan != m.cfg.PauseDuringScan {
		if err := m.settings.SetBool(ctx, settingPauseDuringScan, *upd.PauseDuringScan); err != nil {
			m.mu.Unlock()
			return err
		}
		m.cfg.PauseDuringScan = *upd.PauseDuringScan
	}
	for t, d := range upd.PollIntervals {
		if !t.Valid() {
			m.mu.Unlock()
			return fmt.Errorf("unknown source type: %q", t)
		}
		if d < m.intervalFloor {
			d = m.intervalFloor
		}
		if m.cfg.PollIntervals[t] == d {
			continue
		}
		if err := m.settings.SetDuration(ctx, settingIntervalPrefix+string(t), d); err != nil {
			m.mu.Unlock()
			return err
		}
		m.cfg.PollIntervals[t] = d
		intervalsChanged = true
	}
	active := m.active
	m.mu.Unlock()

	switch {
	case disable && active:
		m.Stop()
	case enable && !active:
		return m.Start(ctx)
	case intervalsChanged && active:
		m.restartPolls()
	}
	return nil
}

// pollInterval returns the effective check interval for a source type,
// never below the floor.
func (m *Monitor) pollInterval(t source.Type) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.cfg.PollIntervals[t]
	if d <= 0 {
		d = defaultIntervals()[t]
	}
	if d < m.intervalFloor {
		d = m.intervalFloor
	}
	return d
}

// restartPolls re-attaches interval-driven sources so changed intervals
// take effect. Native watches are left alone.
func (m *Monitor) restartPolls() {
	m.mu.Lock()
	var affected []source.Source
	for _, st := range m.watches {
		if s := st.getStrategy(); s == StrategyPoll || s == StrategyRemote {
			affected = append(affected, st.src)
		}
	}
	m.mu.Unlock()
	for i := range affected {
		m.attach(&affected[i])
	}
}

// underRoot reports whether path sits at or below root.
func underRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
