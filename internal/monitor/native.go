package monitor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veldrane/driftwood/internal/scan"
)

// settleProbe tracks a file that is still being written. The file is
// only reported once its size and mtime hold still for the settle
// window.
type settleProbe struct {
	size        int64
	modTime     time.Time
	stableSince time.Time
}

// runNative watches the roots with fsnotify until ctx is canceled. It
// returns an error when the watch itself breaks, which makes the caller
// fall back to polling.
func (m *Monitor) runNative(ctx context.Context, st *watchState, roots []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck

	for _, root := range roots {
		if err := addRecursive(w, root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	debounce := newStoppedTimer()
	defer debounce.Stop()
	settleTicker := time.NewTicker(m.settlePoll)
	defer settleTicker.Stop()

	pending := make(map[string]struct{})
	settling := make(map[string]*settleProbe)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watch event channel closed")
			}
			m.handleNativeEvent(w, ev, pending, settling, debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watch error channel closed")
			}
			return fmt.Errorf("watch: %w", err)

		case <-settleTicker.C:
			m.checkSettling(pending, settling, debounce)

		case <-debounce.C:
			m.flushPending(ctx, &st.src, drainPaths(pending))
		}
	}
}

// handleNativeEvent feeds one fsnotify event into the settle and
// debounce pipeline. While paused, change tracking is dropped on the
// floor, but new directories are still added to the watch so nothing
// inside them goes unseen after resume.
func (m *Monitor) handleNativeEvent(w *fsnotify.Watcher, ev fsnotify.Event, pending map[string]struct{}, settling map[string]*settleProbe, debounce *time.Timer) {
	paused := m.paused.Load()
	if paused {
		clear(pending)
		clear(settling)
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			// A directory can arrive fully formed through a move or an
			// unpack; watch it and settle-track what it contains.
			if err := addRecursive(w, ev.Name); err != nil {
				m.logger.Warn("watching new directory",
					"path", ev.Name, "error", err)
			}
			if !paused {
				m.trackTree(ev.Name, settling)
			}
			return
		}
		if paused {
			return
		}
		if scan.IsMediaFile(ev.Name) {
			m.track(ev.Name, settling)
		}

	case ev.Has(fsnotify.Write):
		if !paused && scan.IsMediaFile(ev.Name) {
			m.track(ev.Name, settling)
		}

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if !paused && scan.IsMediaFile(ev.Name) {
			delete(settling, ev.Name)
			pending[ev.Name] = struct{}{}
			resetTimer(debounce, m.debounce)
		}
	}
}

// track starts or refreshes settle tracking for path.
func (m *Monitor) track(path string, settling map[string]*settleProbe) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	now := time.Now()
	p := settling[path]
	if p == nil {
		settling[path] = &settleProbe{
			size:        info.Size(),
			modTime:     info.ModTime(),
			stableSince: now,
		}
		return
	}
	if p.size != info.Size() || !p.modTime.Equal(info.ModTime()) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.stableSince = now
	}
}

// trackTree settle-tracks every media file under dir.
func (m *Monitor) trackTree(dir string, settling map[string]*settleProbe) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(d.Name(), ".") && scan.IsMediaFile(path) {
			m.track(path, settling)
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("walking new directory", "path", dir, "error", err)
	}
}

// checkSettling promotes files whose size and mtime have held still for
// the settle window into the pending set. Files that vanished mid-settle
// are promoted too, so the removal gets reported.
func (m *Monitor) checkSettling(pending map[string]struct{}, settling map[string]*settleProbe, debounce *time.Timer) {
	if m.paused.Load() {
		clear(pending)
		clear(settling)
		return
	}
	now := time.Now()
	for path, p := range settling {
		info, err := os.Stat(path)
		if err != nil {
			delete(settling, path)
			pending[path] = struct{}{}
			resetTimer(debounce, m.debounce)
			continue
		}
		if p.size != info.Size() || !p.modTime.Equal(info.ModTime()) {
			p.size = info.Size()
			p.modTime = info.ModTime()
			p.stableSince = now
			continue
		}
		if now.Sub(p.stableSince) >= m.settleWindow {
			delete(settling, path)
			pending[path] = struct{}{}
			resetTimer(debounce, m.debounce)
		}
	}
}

// addRecursive watches root and every non-hidden subdirectory beneath it.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}

// drainPaths empties the pending set and returns its contents sorted.
func drainPaths(pending map[string]struct{}) []string {
	if len(pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	clear(pending)
	sort.Strings(paths)
	return paths
}

// newStoppedTimer returns a timer that will not fire until reset.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

// resetTimer restarts t with d, draining a stale fire first.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
