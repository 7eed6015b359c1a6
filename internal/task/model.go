package task

import "time"

// Kind names the work a task performs.
type Kind string

// Known task kinds.
const (
	KindLibraryScan            Kind = "library_scan"
	KindSourceScan             Kind = "source_scan"
	KindSeriesCompleteness     Kind = "series_completeness"
	KindCollectionCompleteness Kind = "collection_completeness"
	KindMusicCompleteness      Kind = "music_completeness"
	KindMusicScan              Kind = "music_scan"
)

// Valid reports whether k is a known task kind.
func (k Kind) Valid() bool {
	switch k {
	case KindLibraryScan, KindSourceScan, KindSeriesCompleteness,
		KindCollectionCompleteness, KindMusicCompleteness, KindMusicScan:
		return true
	}
	return false
}

// Status is a task lifecycle state.
type Status string

// Task statuses. Queued and running are transient; the rest are terminal.
// Interrupted is assigned only at process shutdown.
const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusInterrupted Status = "interrupted"
)

// Definition describes a task to enqueue.
type Definition struct {
	Kind      Kind   `json:"kind"`
	Label     string `json:"label,omitempty"`
	SourceID  string `json:"source_id,omitempty"`
	LibraryID string `json:"library_id,omitempty"`
}

// Progress is a point-in-time progress report for a running task.
type Progress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
	Phase       string `json:"phase"`
	CurrentItem string `json:"current_item,omitempty"`
}

// Result carries the counts a finished task produced. Scan kinds fill all
// fields; completeness kinds report analyzed groups as ItemsScanned.
type Result struct {
	ItemsScanned int  `json:"items_scanned"`
	ItemsAdded   int  `json:"items_added"`
	ItemsUpdated int  `json:"items_updated"`
	ItemsRemoved int  `json:"items_removed"`
	IsFirstScan  bool `json:"is_first_scan,omitempty"`
}

// Task is one unit of scheduled work.
type Task struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Label     string `json:"label"`
	SourceID  string `json:"source_id,omitempty"`
	LibraryID string `json:"library_id,omitempty"`

	Status   Status    `json:"status"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// State is a read-only snapshot of the scheduler.
type State struct {
	Current   *Task  `json:"current,omitempty"`
	Queue     []Task `json:"queue"`
	Paused    bool   `json:"paused"`
	Completed []Task `json:"completed"`
}

// defaultLabel names a task when the caller supplies none.
func defaultLabel(k Kind) string {
	switch k {
	case KindLibraryScan:
		return "Library scan"
	case KindSourceScan:
		return "Source scan"
	case KindSeriesCompleteness:
		return "Series completeness check"
	case KindCollectionCompleteness:
		return "Collection completeness check"
	case KindMusicCompleteness:
		return "Music completeness check"
	case KindMusicScan:
		return "Music scan"
	}
	return string(k)
}
