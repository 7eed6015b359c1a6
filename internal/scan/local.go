package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// LocalProvider walks a library directory on the local filesystem.
type LocalProvider struct {
	logger *slog.Logger
}

// NewLocalProvider creates a filesystem scan provider.
func NewLocalProvider(logger *slog.Logger) *LocalProvider {
	return &LocalProvider{logger: logger.With(slog.String("provider", "local"))}
}

// FetchItems walks the library path, or stats the target paths when the
// scope is targeted. Unreadable entries are logged and skipped.
func (p *LocalProvider) FetchItems(ctx context.Context, src *source.Source, lib *library.Library, scope Scope, progress func(scanned, total int)) ([]item.Item, error) {
	if len(scope.Paths) > 0 {
		return p.statTargets(ctx, lib, scope.Paths, progress)
	}
	return p.walk(ctx, lib, scope, progress)
}

func (p *LocalProvider) walk(ctx context.Context, lib *library.Library, scope Scope, progress func(scanned, total int)) ([]item.Item, error) {
	var items []item.Item
	err := filepath.WalkDir(lib.Path, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			p.logger.Warn("walking library", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != lib.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if !mediaFile(d.Name(), lib.MediaKind) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			p.logger.Warn("reading file info", "path", path, "error", err)
			return nil
		}
		if scope.Since != nil && !info.ModTime().After(*scope.Since) {
			return nil
		}

		it := parseItem(path, lib.Path, lib.MediaKind)
		it.SizeBytes = info.Size()
		it.ModTime = info.ModTime().UTC()
		items = append(items, it)
		progress(len(items), 0)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", lib.Path, err)
	}
	return items, nil
}

// statTargets inspects only the named paths. Missing files are simply
// absent from the result, which the coordinator treats as removed.
func (p *LocalProvider) statTargets(ctx context.Context, lib *library.Library, paths []string, progress func(scanned, total int)) ([]item.Item, error) {
	var items []item.Item
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(i+1, len(paths))

		if !mediaFile(filepath.Base(path), lib.MediaKind) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				p.logger.Warn("stat target", "path", path, "error", err)
			}
			continue
		}
		if info.IsDir() {
			continue
		}

		it := parseItem(path, lib.Path, lib.MediaKind)
		it.SizeBytes = info.Size()
		it.ModTime = info.ModTime().UTC()
		items = append(items, it)
	}
	return items, nil
}
