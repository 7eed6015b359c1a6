package monitor

import (
	"time"

	"github.com/veldrane/driftwood/internal/source"
)

// Watch strategies. Each attached source uses exactly one.
const (
	// StrategyNative is a recursive fsnotify watch.
	StrategyNative = "native"
	// StrategyPoll is a periodic snapshot diff of the filesystem tree,
	// used for network mounts where inotify is unreliable.
	StrategyPoll = "poll"
	// StrategyRemote is a periodic incremental check against the source,
	// used for remote servers and sources without watchable roots.
	StrategyRemote = "remote"
)

// Change types carried by ChangeEvent.
const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
	ChangeMixed   = "mixed"
)

const (
	// debounceWindow is how long a source must stay quiet before its
	// accumulated changes are scanned.
	debounceWindow = 2 * time.Second
	// settleWindow is how long a file must keep the same size and mtime
	// before a write counts as finished.
	settleWindow       = 2 * time.Second
	settlePollInterval = 500 * time.Millisecond
	// networkPollInterval drives the snapshot poll on network mounts.
	networkPollInterval = 10 * time.Second
	// remoteCheckTimeout bounds one remote detection cycle.
	remoteCheckTimeout = 2 * time.Minute
	// minPollInterval is the floor under every configured poll interval.
	minPollInterval = 30 * time.Second
	// maxPendingBatch is the most changed paths one flush will scan.
	// Larger batches look like a mass operation and are discarded.
	maxPendingBatch = 50
	previewLimit    = 10
)

// Settings keys for the persisted configuration.
const (
	settingEnabled         = "monitoring_enabled"
	settingStartOnLaunch   = "monitoring_start_on_launch"
	settingPauseDuringScan = "monitoring_pause_during_scan"
	settingIntervalPrefix  = "monitoring_interval_"
)

// ChangeEvent describes detected changes within one library.
type ChangeEvent struct {
	SourceID    string      `json:"source_id"`
	SourceName  string      `json:"source_name"`
	SourceType  source.Type `json:"source_type"`
	LibraryID   string      `json:"library_id"`
	LibraryName string      `json:"library_name"`
	ChangeType  string      `json:"change_type"`
	ItemCount   int         `json:"item_count"`
	// Items previews up to ten affected paths.
	Items      []string  `json:"items,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// Config is the persisted monitoring configuration.
type Config struct {
	Enabled         bool                          `json:"enabled"`
	StartOnLaunch   bool                          `json:"start_on_launch"`
	PauseDuringScan bool                          `json:"pause_during_scan"`
	PollIntervals   map[source.Type]time.Duration `json:"poll_intervals"`
}

func (c Config) clone() Config {
	out := c
	out.PollIntervals = make(map[source.Type]time.Duration, len(c.PollIntervals))
	for k, v := range c.PollIntervals {
		out.PollIntervals[k] = v
	}
	return out
}

// ConfigUpdate is a partial configuration change. Nil fields keep their
// current value; PollIntervals entries are merged per type.
type ConfigUpdate struct {
	Enabled         *bool                         `json:"enabled,omitempty"`
	StartOnLaunch   *bool                         `json:"start_on_launch,omitempty"`
	PauseDuringScan *bool                         `json:"pause_during_scan,omitempty"`
	PollIntervals   map[source.Type]time.Duration `json:"poll_intervals,omitempty"`
}

// SourceStatus is the monitor's view of one attached source.
type SourceStatus struct {
	SourceID    string      `json:"source_id"`
	Name        string      `json:"name"`
	Type        source.Type `json:"type"`
	Strategy    string      `json:"strategy"`
	LastChecked *time.Time  `json:"last_checked,omitempty"`
}

// Status is a snapshot of the monitor's runtime state.
type Status struct {
	Active  bool           `json:"active"`
	Paused  bool           `json:"paused"`
	Sources []SourceStatus `json:"sources"`
}

func defaultIntervals() map[source.Type]time.Duration {
	return map[source.Type]time.Duration{
		source.TypeLocal:    time.Minute,
		source.TypePlex:     time.Minute,
		source.TypeEmby:     2 * time.Minute,
		source.TypeJellyfin: 2 * time.Minute,
		source.TypeLidarr:   5 * time.Minute,
	}
}
