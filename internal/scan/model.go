package scan

import (
	"context"
	"time"

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

// Options narrows a scan. A zero Options is a full scan of the library.
type Options struct {
	// Since limits the scan to items changed after this instant.
	Since *time.Time
	// TargetPaths limits the scan to the named files. Targeted scans also
	// detect removal of the named paths.
	TargetPaths []string
	// OnProgress receives running counts while the scan works. Callers
	// that cannot keep up should drop updates themselves.
	OnProgress func(Progress)
}

// Full reports whether the options describe an unscoped scan.
func (o Options) Full() bool {
	return o.Since == nil && len(o.TargetPaths) == 0
}

// Progress is a point-in-time view of a running scan.
type Progress struct {
	LibraryID string `json:"library_id"`
	Scanned   int    `json:"scanned"`
	// Total is 0 when the provider cannot know it up front.
	Total int `json:"total"`
}

// Result summarizes a finished scan.
type Result struct {
	LibraryID    string        `json:"library_id"`
	ItemsScanned int           `json:"items_scanned"`
	ItemsAdded   int           `json:"items_added"`
	ItemsUpdated int           `json:"items_updated"`
	ItemsRemoved int           `json:"items_removed"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration"`
	IsFirstScan  bool          `json:"is_first_scan"`

	// Added carries the newly discovered items for downstream matching.
	Added []item.Item `json:"-"`
}

func (r *Result) merge(other *Result) {
	r.ItemsScanned += other.ItemsScanned
	r.ItemsAdded += other.ItemsAdded
	r.ItemsUpdated += other.ItemsUpdated
	r.ItemsRemoved += other.ItemsRemoved
	r.Errors = append(r.Errors, other.Errors...)
	r.Added = append(r.Added, other.Added...)
	if other.IsFirstScan {
		r.IsFirstScan = true
	}
}

// Scope is the slice of a library a provider should inspect.
type Scope struct {
	Since *time.Time
	Paths []string
}

// Provider lists the catalogue of one library as it exists at the source
// right now. Implementations return every item visible under the scope;
// the coordinator diffs the result against the stored catalogue.
type Provider interface {
	FetchItems(ctx context.Context, src *source.Source, lib *library.Library, scope Scope, progress func(scanned, total int)) ([]item.Item, error)
}
