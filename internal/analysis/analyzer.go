package analysis

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
)

// grouper buckets a library's items into completeness groups.
type grouper func(items []item.Item) []Group

// Analyzer recomputes completeness records for one grouping of the
// catalogue. Three groupings exist: series episodes, movie collections and
// album tracks.
type Analyzer struct {
	kind      string
	mediaKind string
	group     grouper
	libraries *library.Service
	items     *item.Service
	store     *Service
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSeriesAnalyzer detects missing episodes within each series.
func NewSeriesAnalyzer(libraries *library.Service, items *item.Service, store *Service, logger *slog.Logger) *Analyzer {
	return newAnalyzer(KindSeries, library.KindSeries, groupSeries, libraries, items, store, logger)
}

// NewCollectionAnalyzer detects missing entries within movie collections.
func NewCollectionAnalyzer(libraries *library.Service, items *item.Service, store *Service, logger *slog.Logger) *Analyzer {
	return newAnalyzer(KindCollection, library.KindMovie, groupCollections, libraries, items, store, logger)
}

// NewMusicAnalyzer detects missing tracks within each album.
func NewMusicAnalyzer(libraries *library.Service, items *item.Service, store *Service, logger *slog.Logger) *Analyzer {
	return newAnalyzer(KindMusic, library.KindMusic, groupAlbums, libraries, items, store, logger)
}

func newAnalyzer(kind, mediaKind string, group grouper, libraries *library.Service, items *item.Service, store *Service, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		kind:      kind,
		mediaKind: mediaKind,
		group:     group,
		libraries: libraries,
		items:     items,
		store:     store,
		logger:    logger.With(slog.String("component", "analysis"), slog.String("kind", kind)),
	}
}

// Kind returns the completeness kind this analyzer produces.
func (a *Analyzer) Kind() string {
	return a.kind
}

// AnalyzeAll recomputes completeness for the matching libraries. Empty
// sourceID and libraryID widen the pass to every library of the analyzer's
// media kind. It returns how many groups were complete and how many were
// analyzed.
func (a *Analyzer) AnalyzeAll(ctx context.Context, onProgress func(analyzed, total int), sourceID, libraryID string) (completed, analyzed int, err error) {
	runCtx := a.begin(ctx)
	defer a.end()

	libs, err := a.scope(runCtx, sourceID, libraryID)
	if err != nil {
		return 0, 0, err
	}

	type libGroups struct {
		libraryID string
		groups    []Group
	}
	var all []libGroups
	total := 0
	for i := range libs {
		if err := runCtx.Err(); err != nil {
			return 0, 0, err
		}
		items, err := a.items.ListByLibrary(runCtx, libs[i].ID)
		if err != nil {
			return 0, 0, err
		}
		groups := a.group(items)
		total += len(groups)
		all = append(all, libGroups{libraryID: libs[i].ID, groups: groups})
	}

	for _, lg := range all {
		if err := a.store.DeleteByKindAndLibrary(runCtx, a.kind, lg.libraryID); err != nil {
			return completed, analyzed, err
		}
		for _, g := range lg.groups {
			if err := runCtx.Err(); err != nil {
				return completed, analyzed, err
			}
			rec := &Record{
				Kind:      a.kind,
				GroupKey:  g.Key,
				LibraryID: lg.libraryID,
				Have:      g.Have,
				Missing:   g.Missing,
				Total:     g.Total(),
			}
			if err := a.store.Upsert(runCtx, rec); err != nil {
				return completed, analyzed, err
			}
			analyzed++
			if g.Missing == 0 {
				completed++
			}
			if onProgress != nil {
				onProgress(analyzed, total)
			}
		}
	}

	a.logger.Info("analysis finished", "groups", analyzed, "complete", completed)
	return completed, analyzed, nil
}

// Cancel aborts an in-flight pass.
func (a *Analyzer) Cancel() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
}

func (a *Analyzer) begin(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	return runCtx
}

func (a *Analyzer) end() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.mu.Unlock()
}

// scope resolves which libraries a pass covers. An explicit library wins
// over a source filter.
func (a *Analyzer) scope(ctx context.Context, sourceID, libraryID string) ([]library.Library, error) {
	if libraryID != "" {
		lib, err := a.libraries.GetByID(ctx, libraryID)
		if err != nil {
			return nil, err
		}
		return []library.Library{*lib}, nil
	}

	var libs []library.Library
	var err error
	if sourceID != "" {
		libs, err = a.libraries.ListBySource(ctx, sourceID)
	} else {
		libs, err = a.libraries.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	matched := libs[:0]
	for _, lib := range libs {
		if lib.MediaKind == a.mediaKind && lib.Enabled {
			matched = append(matched, lib)
		}
	}
	return matched, nil
}

// groupSeries buckets episodes by series name. Gaps are counted per
// season against the highest episode number seen; episodes that carry no
// numbering still count as owned.
func groupSeries(items []item.Item) []Group {
	type seriesState struct {
		seasons    map[int]map[int]bool
		unnumbered int
	}
	series := make(map[string]*seriesState)
	for _, it := range items {
		if it.Kind != item.KindEpisode || it.SeriesName == "" {
			continue
		}
		st := series[it.SeriesName]
		if st == nil {
			st = &seriesState{seasons: make(map[int]map[int]bool)}
			series[it.SeriesName] = st
		}
		if it.Season > 0 && it.Episode > 0 {
			eps := st.seasons[it.Season]
			if eps == nil {
				eps = make(map[int]bool)
				st.seasons[it.Season] = eps
			}
			eps[it.Episode] = true
		} else {
			st.unnumbered++
		}
	}

	groups := make([]Group, 0, len(series))
	for name, st := range series {
		have := st.unnumbered
		missing := 0
		for _, eps := range st.seasons {
			have += len(eps)
			missing += gapCount(maxKey(eps), len(eps))
		}
		groups = append(groups, Group{Key: name, Have: have, Missing: missing})
	}
	sortGroups(groups)
	return groups
}

// groupCollections buckets movies by collection folder. Unnumbered
// members may fill gaps, so the estimate subtracts total ownership from
// the highest index seen.
func groupCollections(items []item.Item) []Group {
	type collState struct {
		indexes map[int]bool
		members int
	}
	colls := make(map[string]*collState)
	for _, it := range items {
		if it.Kind != item.KindMovie || it.Collection == "" {
			continue
		}
		st := colls[it.Collection]
		if st == nil {
			st = &collState{indexes: make(map[int]bool)}
			colls[it.Collection] = st
		}
		st.members++
		if it.CollectionIndex > 0 {
			st.indexes[it.CollectionIndex] = true
		}
	}

	groups := make([]Group, 0, len(colls))
	for name, st := range colls {
		groups = append(groups, Group{
			Key:     name,
			Have:    st.members,
			Missing: gapCount(maxKey(st.indexes), st.members),
		})
	}
	sortGroups(groups)
	return groups
}

// groupAlbums buckets tracks by artist and album.
func groupAlbums(items []item.Item) []Group {
	type albumState struct {
		tracks  map[int]bool
		members int
	}
	albums := make(map[string]*albumState)
	for _, it := range items {
		if it.Kind != item.KindTrack || it.Album == "" {
			continue
		}
		key := it.Album
		if it.Artist != "" {
			key = it.Artist + " - " + it.Album
		}
		st := albums[key]
		if st == nil {
			st = &albumState{tracks: make(map[int]bool)}
			albums[key] = st
		}
		st.members++
		if it.Track > 0 {
			st.tracks[it.Track] = true
		}
	}

	groups := make([]Group, 0, len(albums))
	for key, st := range albums {
		groups = append(groups, Group{
			Key:     key,
			Have:    st.members,
			Missing: gapCount(maxKey(st.tracks), st.members),
		})
	}
	sortGroups(groups)
	return groups
}

// gapCount estimates absent entries: the highest known number minus what
// is owned, floored at zero.
func gapCount(maxNum, have int) int {
	if maxNum <= have {
		return 0
	}
	return maxNum - have
}

func maxKey(set map[int]bool) int {
	maxN := 0
	for n := range set {
		if n > maxN {
			maxN = n
		}
	}
	return maxN
}

func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
}
