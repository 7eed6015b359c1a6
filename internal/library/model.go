package library

import "time"

// Media kind constants. The kind decides which completeness analysis applies.
const (
	KindMovie  = "movie"
	KindSeries = "series"
	KindMusic  = "music"
)

// ValidKind reports whether k is a known media kind.
func ValidKind(k string) bool {
	switch k {
	case KindMovie, KindSeries, KindMusic:
		return true
	}
	return false
}

// Library is a named collection within a source that can be independently
// enabled and scanned.
type Library struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	MediaKind string `json:"media_kind"`
	// Path is the library subdirectory for filesystem sources.
	Path string `json:"path,omitempty"`
	// ExternalID is the library's identifier on a remote server.
	ExternalID string `json:"external_id,omitempty"`
	Enabled    bool   `json:"enabled"`
	// LastScannedAt is the incremental-scan watermark; nil until the first
	// successful scan.
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
