package analysis

import "time"

// Completeness kinds.
const (
	KindSeries     = "series"
	KindCollection = "collection"
	KindMusic      = "music"
)

// ValidKind reports whether k names a known completeness kind.
func ValidKind(k string) bool {
	return k == KindSeries || k == KindCollection || k == KindMusic
}

// Record is the stored completeness of one group: a series, a movie
// collection or an album.
type Record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	GroupKey  string    `json:"group_key"`
	LibraryID string    `json:"library_id"`
	Have      int       `json:"have"`
	Missing   int       `json:"missing"`
	Total     int       `json:"total"`
	CheckedAt time.Time `json:"checked_at"`
}

// Complete reports whether the group has no detected gaps.
func (r Record) Complete() bool {
	return r.Missing == 0
}

// Group is one completeness bucket produced by an analyzer pass.
type Group struct {
	Key     string
	Have    int
	Missing int
}

// Total is the owned count plus the detected gaps.
func (g Group) Total() int {
	return g.Have + g.Missing
}
