package wishlist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veldrane/driftwood/internal/event"
	"github.com/veldrane/driftwood/internal/item"
)

// Checker matches newly catalogued items against open wants. It is called
// after scans and monitor cycles with just the items that were added.
type Checker struct {
	store  *Service
	bus    *event.Bus
	logger *slog.Logger
}

// NewChecker creates a wishlist checker.
func NewChecker(store *Service, bus *event.Bus, logger *slog.Logger) *Checker {
	return &Checker{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "wishlist")),
	}
}

// CheckNewItems compares added items against unfulfilled wants and marks
// matches. Returns the number of wants fulfilled by this batch.
func (c *Checker) CheckNewItems(ctx context.Context, added []item.Item) (int, error) {
	if len(added) == 0 {
		return 0, nil
	}

	wants, err := c.store.ListUnfulfilled(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading open wants: %w", err)
	}
	if len(wants) == 0 {
		return 0, nil
	}

	matched := 0
	for _, w := range wants {
		key := normalize(w.Title)
		for _, it := range added {
			if !satisfies(w.Kind, key, it) {
				continue
			}
			if err := c.store.MarkFulfilled(ctx, w.ID, it.ID); err != nil {
				return matched, fmt.Errorf("fulfilling want %s: %w", w.ID, err)
			}
			matched++
			c.logger.Info("wishlist match",
				slog.String("want", w.Title),
				slog.String("kind", w.Kind),
				slog.String("path", it.Path))
			if c.bus != nil {
				c.bus.Publish(event.Event{
					Type: event.WishlistMatch,
					Data: map[string]any{
						"want_id": w.ID,
						"title":   w.Title,
						"kind":    w.Kind,
						"item_id": it.ID,
						"path":    it.Path,
					},
				})
			}
			break
		}
	}
	return matched, nil
}

// satisfies reports whether a catalogue item fulfils a want of the given
// kind. Movies match on title, series wants on any episode of the series,
// album wants on any track of the album.
func satisfies(kind, wantKey string, it item.Item) bool {
	switch kind {
	case KindMovie:
		return it.Kind == item.KindMovie && normalize(it.Title) == wantKey
	case KindSeries:
		return it.Kind == item.KindEpisode && normalize(it.SeriesName) == wantKey
	case KindAlbum:
		return it.Kind == item.KindTrack && normalize(it.Album) == wantKey
	}
	return false
}

// normalize folds a title for comparison: lower case, punctuation stripped,
// whitespace collapsed.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r > 127:
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
