package monitor

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/veldrane/driftwood/internal/scan"
)

// fileStamp identifies one version of a file in a snapshot.
type fileStamp struct {
	size    int64
	modTime time.Time
}

// runPollingWatch diffs periodic snapshots of the roots, feeding changed
// paths into the same debounce pipeline as the native watch. Used where
// inotify does not work, chiefly network mounts.
func (m *Monitor) runPollingWatch(ctx context.Context, st *watchState, roots []string) error {
	baseline, err := snapshotTrees(roots)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(m.networkPoll)
	defer ticker.Stop()
	debounce := newStoppedTimer()
	defer debounce.Stop()

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			snap, err := snapshotTrees(roots)
			if err != nil {
				m.logger.Warn("snapshot poll failed",
					"source", st.src.Name, "error", err)
				continue
			}
			if m.paused.Load() {
				// Keep the baseline moving so changes made during the
				// pause stay discarded after resume.
				baseline = snap
				clear(pending)
				continue
			}
			changed := diffSnapshots(baseline, snap)
			baseline = snap
			if len(changed) == 0 {
				continue
			}
			for _, p := range changed {
				pending[p] = struct{}{}
			}
			resetTimer(debounce, m.debounce)

		case <-debounce.C:
			m.flushPending(ctx, &st.src, drainPaths(pending))
		}
	}
}

// snapshotTrees records every media file under the roots with its size
// and mtime. Hidden files and directories are skipped.
func snapshotTrees(roots []string) (map[string]fileStamp, error) {
	out := make(map[string]fileStamp)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || !scan.IsMediaFile(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			out[path] = fileStamp{size: info.Size(), modTime: info.ModTime()}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return out, nil
}

// diffSnapshots returns the paths that were added, modified or removed
// between two snapshots.
func diffSnapshots(prev, next map[string]fileStamp) []string {
	var changed []string
	for path, stamp := range next {
		old, ok := prev[path]
		if !ok || old.size != stamp.size || !old.modTime.Equal(stamp.modTime) {
			changed = append(changed, path)
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			changed = append(changed, path)
		}
	}
	return changed
}

// runRemote checks the source on its configured interval. One cycle is
// an incremental scan of every enabled library, bounded by a hard
// timeout so a stalled server cannot wedge the schedule.
func (m *Monitor) runRemote(ctx context.Context, st *watchState) error {
	interval := m.pollInterval(st.src.Type)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.remoteCycle(ctx, st, timer, interval)
		}
	}
}

// remoteCycle runs one check. The next tick is armed in a defer so the
// schedule survives whatever the cycle does.
func (m *Monitor) remoteCycle(ctx context.Context, st *watchState, timer *time.Timer, interval time.Duration) {
	defer timer.Reset(interval)

	if m.scans.IsManualScanInProgress() {
		return
	}
	if !m.beginCycle() {
		return
	}
	defer m.cycles.Done()

	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	results, err := m.checkSource(checkCtx, &st.src)
	if err != nil {
		m.logger.Warn("remote check failed", "source", st.src.Name, "error", err)
		return
	}
	m.afterCycle(checkCtx, &st.src, results)
}
