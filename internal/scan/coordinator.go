package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// ErrScanInProgress is returned when a scan is requested while another is
// still running.
var ErrScanInProgress = errors.New("scan already in progress")

// Coordinator runs library scans: it picks the provider for the source
// type, diffs the provider's view against the stored catalogue, and
// persists the difference.
type Coordinator struct {
	sources   *source.Service
	libraries *library.Service
	items     *item.Service
	providers map[source.Type]Provider
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	manual bool
}

// NewCoordinator creates a scan coordinator. providers is keyed by source
// type.
func NewCoordinator(sources *source.Service, libraries *library.Service, items *item.Service, providers map[source.Type]Provider, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		sources:   sources,
		libraries: libraries,
		items:     items,
		providers: providers,
		logger:    logger.With(slog.String("component", "scan")),
	}
}

// ScanLibrary scans one library. A scan with neither Since nor TargetPaths
// is a full scan and counts as manual for IsManualScanInProgress.
func (c *Coordinator) ScanLibrary(ctx context.Context, libraryID string, opts Options) (*Result, error) {
	scanCtx, err := c.begin(ctx, opts.Full())
	if err != nil {
		return nil, err
	}
	defer c.end()

	lib, err := c.libraries.GetByID(scanCtx, libraryID)
	if err != nil {
		return nil, err
	}
	return c.scanLibrary(scanCtx, lib, opts)
}

// ScanSource scans every enabled library of a source and aggregates the
// results.
func (c *Coordinator) ScanSource(ctx context.Context, sourceID string, opts Options) (*Result, error) {
	scanCtx, err := c.begin(ctx, opts.Full())
	if err != nil {
		return nil, err
	}
	defer c.end()

	libs, err := c.libraries.ListEnabledBySource(scanCtx, sourceID)
	if err != nil {
		return nil, err
	}

	total := &Result{}
	for i := range libs {
		res, err := c.scanLibrary(scanCtx, &libs[i], opts)
		if err != nil {
			return nil, err
		}
		total.merge(res)
	}
	return total, nil
}

// ScanMediaKind scans every enabled library of the given media kind across
// all enabled sources and aggregates the results.
func (c *Coordinator) ScanMediaKind(ctx context.Context, mediaKind string, opts Options) (*Result, error) {
	scanCtx, err := c.begin(ctx, opts.Full())
	if err != nil {
		return nil, err
	}
	defer c.end()

	srcs, err := c.sources.ListEnabled(scanCtx)
	if err != nil {
		return nil, err
	}

	total := &Result{}
	for _, src := range srcs {
		libs, err := c.libraries.ListEnabledBySource(scanCtx, src.ID)
		if err != nil {
			return nil, err
		}
		for i := range libs {
			if libs[i].MediaKind != mediaKind {
				continue
			}
			res, err := c.scanLibrary(scanCtx, &libs[i], opts)
			if err != nil {
				return nil, err
			}
			total.merge(res)
		}
	}
	return total, nil
}

// IsManualScanInProgress reports whether a full scan is currently running.
func (c *Coordinator) IsManualScanInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil && c.manual
}

// StopScan cancels the in-flight scan, if any. The scan returns with a
// context cancellation error.
func (c *Coordinator) StopScan() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

func (c *Coordinator) begin(ctx context.Context, manual bool) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, ErrScanInProgress
	}
	scanCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.manual = manual
	return scanCtx, nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.manual = false
	c.mu.Unlock()
}

func (c *Coordinator) scanLibrary(ctx context.Context, lib *library.Library, opts Options) (*Result, error) {
	src, err := c.sources.GetByID(ctx, lib.SourceID)
	if err != nil {
		return nil, err
	}
	provider, ok := c.providers[src.Type]
	if !ok {
		return nil, fmt.Errorf("no scan provider for source type %q", src.Type)
	}

	started := time.Now().UTC()
	result := &Result{
		LibraryID:   lib.ID,
		IsFirstScan: lib.LastScannedAt == nil,
	}
	c.logger.Info("scan started",
		"library", lib.Name, "source_type", src.Type,
		"full", opts.Full(), "targets", len(opts.TargetPaths))

	progress := func(scanned, total int) {
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{LibraryID: lib.ID, Scanned: scanned, Total: total})
		}
	}

	scope := Scope{Since: opts.Since, Paths: opts.TargetPaths}
	observed, err := provider.FetchItems(ctx, src, lib, scope, progress)
	if err != nil {
		return nil, fmt.Errorf("fetching items: %w", err)
	}
	result.ItemsScanned = len(observed)

	stored, err := c.items.MapByLibrary(ctx, lib.ID)
	if err != nil {
		return nil, fmt.Errorf("loading stored items: %w", err)
	}

	observedPaths := make(map[string]bool, len(observed))
	for i := range observed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it := &observed[i]
		it.SourceID = src.ID
		it.LibraryID = lib.ID
		observedPaths[it.Path] = true

		existing, known := stored[it.Path]
		switch {
		case !known:
			if err := c.items.Insert(ctx, it); err != nil {
				c.logger.Warn("inserting item", "path", it.Path, "error", err)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", it.Path, err))
				continue
			}
			result.ItemsAdded++
			result.Added = append(result.Added, *it)
		case existing.Differs(*it):
			it.ID = existing.ID
			if err := c.items.Update(ctx, it); err != nil {
				c.logger.Warn("updating item", "path", it.Path, "error", err)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", it.Path, err))
				continue
			}
			result.ItemsUpdated++
		}
	}

	if err := c.removeMissing(ctx, opts, stored, observedPaths, result); err != nil {
		return nil, err
	}

	// Targeted scans do not advance the watermark; they only touch the
	// named paths.
	if len(opts.TargetPaths) == 0 {
		if err := c.libraries.SetLastScanned(ctx, lib.ID, started); err != nil {
			c.logger.Warn("updating library watermark", "library", lib.ID, "error", err)
		}
	}

	result.Duration = time.Since(started)
	c.logger.Info("scan finished",
		"library", lib.Name,
		"scanned", result.ItemsScanned,
		"added", result.ItemsAdded,
		"updated", result.ItemsUpdated,
		"removed", result.ItemsRemoved,
		"errors", len(result.Errors),
		"duration", result.Duration)
	return result, nil
}

// removeMissing deletes stored items that the provider no longer sees.
// Full scans check the whole library; targeted scans check only the named
// paths. Incremental scans never remove.
func (c *Coordinator) removeMissing(ctx context.Context, opts Options, stored map[string]item.Item, observedPaths map[string]bool, result *Result) error {
	var gone []string
	switch {
	case len(opts.TargetPaths) > 0:
		for _, p := range opts.TargetPaths {
			if observedPaths[p] {
				continue
			}
			if existing, ok := stored[p]; ok {
				gone = append(gone, existing.ID)
			}
		}
	case opts.Since == nil:
		for path, existing := range stored {
			if !observedPaths[path] {
				gone = append(gone, existing.ID)
			}
		}
	default:
		return nil
	}

	if len(gone) == 0 {
		return nil
	}
	if err := c.items.Delete(ctx, gone...); err != nil {
		return fmt.Errorf("removing missing items: %w", err)
	}
	result.ItemsRemoved = len(gone)
	return nil
}
