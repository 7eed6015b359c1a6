package wishlist

import "time"

// Want kinds. They describe what the user is waiting for, not how it is
// stored: a series want is fulfilled by any episode of that series, an
// album want by any track of that album.
const (
	KindMovie  = "movie"
	KindSeries = "series"
	KindAlbum  = "album"
)

// ValidKind reports whether k is a known want kind.
func ValidKind(k string) bool {
	return k == KindMovie || k == KindSeries || k == KindAlbum
}

// Want is a single wishlist entry.
type Want struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	Notes     string    `json:"notes,omitempty"`
	Fulfilled bool      `json:"fulfilled"`
	MatchedID string    `json:"matched_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
