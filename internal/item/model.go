package item

import "time"

// Item kind constants.
const (
	KindMovie   = "movie"
	KindEpisode = "episode"
	KindTrack   = "track"
)

// Item is one catalogued media file or remote entry. Numeric metadata fields
// use zero for "unknown"; analyses skip non-positive values.
type Item struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	LibraryID string `json:"library_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	// Path is the file path for filesystem sources, or the provider item
	// key for remote sources. Unique within a library.
	Path string `json:"path"`

	SeriesName string `json:"series_name,omitempty"`
	Season     int    `json:"season,omitempty"`
	Episode    int    `json:"episode,omitempty"`

	Collection      string `json:"collection,omitempty"`
	CollectionIndex int    `json:"collection_index,omitempty"`

	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Track  int    `json:"track,omitempty"`

	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time,omitzero"`

	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Differs reports whether other carries different content metadata than i,
// ignoring identity and bookkeeping fields.
func (i Item) Differs(other Item) bool {
	return i.Title != other.Title ||
		i.Kind != other.Kind ||
		i.SeriesName != other.SeriesName ||
		i.Season != other.Season ||
		i.Episode != other.Episode ||
		i.Collection != other.Collection ||
		i.CollectionIndex != other.CollectionIndex ||
		i.Artist != other.Artist ||
		i.Album != other.Album ||
		i.Track != other.Track ||
		i.SizeBytes != other.SizeBytes ||
		!i.ModTime.Equal(other.ModTime)
}
