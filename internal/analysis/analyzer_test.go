package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	db        *sql.DB
	sources   *source.Service
	libraries *library.Service
	items     *item.Service
	store     *Service
	n         int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return &fixture{
		db:        db,
		sources:   source.NewService(db),
		libraries: library.NewService(db),
		items:     item.NewService(db),
		store:     NewService(db),
	}
}

func (f *fixture) addLibrary(t *testing.T, mediaKind string) *library.Library {
	t.Helper()
	ctx := context.Background()
	f.n++
	suffix := fmt.Sprintf("%s-%d", mediaKind, f.n)
	src := &source.Source{Name: "src-" + suffix, Type: source.TypeLocal, Path: "/data/" + suffix, Enabled: true}
	if err := f.sources.Create(ctx, src); err != nil {
		t.Fatalf("creating source: %v", err)
	}
	lib := &library.Library{SourceID: src.ID, Name: "lib-" + mediaKind, MediaKind: mediaKind, Path: src.Path, Enabled: true}
	if err := f.libraries.Create(ctx, lib); err != nil {
		t.Fatalf("creating library: %v", err)
	}
	return lib
}

func (f *fixture) addItem(t *testing.T, lib *library.Library, it item.Item) {
	t.Helper()
	it.SourceID = lib.SourceID
	it.LibraryID = lib.ID
	if err := f.items.Insert(context.Background(), &it); err != nil {
		t.Fatalf("inserting item: %v", err)
	}
}

func TestSeriesAnalyzer_DetectsEpisodeGaps(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindSeries)

	// Severance S01 has episodes 1, 2 and 4 of a seen maximum of 4.
	for _, ep := range []int{1, 2, 4} {
		f.addItem(t, lib, item.Item{
			Kind: item.KindEpisode, Title: "ep", Path: pathN("/tv/sev", ep),
			SeriesName: "Severance", Season: 1, Episode: ep,
		})
	}
	// The Wire S01 is complete: 1..3.
	for _, ep := range []int{1, 2, 3} {
		f.addItem(t, lib, item.Item{
			Kind: item.KindEpisode, Title: "ep", Path: pathN("/tv/wire", ep),
			SeriesName: "The Wire", Season: 1, Episode: ep,
		})
	}

	a := NewSeriesAnalyzer(f.libraries, f.items, f.store, testLogger())
	completed, analyzed, err := a.AnalyzeAll(context.Background(), nil, "", "")
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if analyzed != 2 {
		t.Errorf("analyzed = %d, want 2", analyzed)
	}
	if completed != 1 {
		t.Errorf("completed = %d, want 1", completed)
	}

	records, err := f.store.ListByKind(context.Background(), KindSeries)
	if err != nil {
		t.Fatalf("ListByKind: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Sorted by group key: Severance first.
	if records[0].GroupKey != "Severance" || records[0].Missing != 1 || records[0].Have != 3 {
		t.Errorf("unexpected severance record: %+v", records[0])
	}
	if records[1].GroupKey != "The Wire" || !records[1].Complete() {
		t.Errorf("unexpected wire record: %+v", records[1])
	}
}

func TestSeriesAnalyzer_MultiSeasonAndUnnumbered(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindSeries)

	f.addItem(t, lib, item.Item{Kind: item.KindEpisode, Title: "a", Path: "/tv/x/1.mkv", SeriesName: "X", Season: 1, Episode: 1})
	f.addItem(t, lib, item.Item{Kind: item.KindEpisode, Title: "b", Path: "/tv/x/2.mkv", SeriesName: "X", Season: 2, Episode: 3})
	f.addItem(t, lib, item.Item{Kind: item.KindEpisode, Title: "special", Path: "/tv/x/sp.mkv", SeriesName: "X"})

	a := NewSeriesAnalyzer(f.libraries, f.items, f.store, testLogger())
	if _, _, err := a.AnalyzeAll(context.Background(), nil, "", ""); err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}

	records, err := f.store.ListByLibrary(context.Background(), lib.ID)
	if err != nil {
		t.Fatalf("ListByLibrary: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	// Season 2 is missing episodes 1 and 2; the special counts as owned.
	if rec.Have != 3 || rec.Missing != 2 || rec.Total != 5 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestCollectionAnalyzer(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindMovie)

	f.addItem(t, lib, item.Item{Kind: item.KindMovie, Title: "Dr No", Path: "/m/b/1.mkv", Collection: "James Bond", CollectionIndex: 1})
	f.addItem(t, lib, item.Item{Kind: item.KindMovie, Title: "Goldfinger", Path: "/m/b/3.mkv", Collection: "James Bond", CollectionIndex: 3})
	f.addItem(t, lib, item.Item{Kind: item.KindMovie, Title: "Standalone", Path: "/m/solo.mkv"})

	a := NewCollectionAnalyzer(f.libraries, f.items, f.store, testLogger())
	completed, analyzed, err := a.AnalyzeAll(context.Background(), nil, "", "")
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if analyzed != 1 {
		t.Errorf("analyzed = %d, want 1 (standalone movie is no collection)", analyzed)
	}
	if completed != 0 {
		t.Errorf("completed = %d, want 0", completed)
	}

	records, err := f.store.ListIncomplete(context.Background(), KindCollection)
	if err != nil {
		t.Fatalf("ListIncomplete: %v", err)
	}
	if len(records) != 1 || records[0].Missing != 1 {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestMusicAnalyzer(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindMusic)

	for _, tr := range []int{1, 2, 4, 5} {
		f.addItem(t, lib, item.Item{
			Kind: item.KindTrack, Title: "t", Path: pathN("/mu/ir", tr),
			Artist: "Radiohead", Album: "In Rainbows", Track: tr,
		})
	}

	a := NewMusicAnalyzer(f.libraries, f.items, f.store, testLogger())
	completed, analyzed, err := a.AnalyzeAll(context.Background(), nil, "", "")
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if analyzed != 1 || completed != 0 {
		t.Errorf("analyzed/completed = %d/%d, want 1/0", analyzed, completed)
	}

	records, err := f.store.ListByKind(context.Background(), KindMusic)
	if err != nil {
		t.Fatalf("ListByKind: %v", err)
	}
	if records[0].GroupKey != "Radiohead - In Rainbows" {
		t.Errorf("GroupKey = %q", records[0].GroupKey)
	}
	if records[0].Have != 4 || records[0].Missing != 1 {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestAnalyzer_Progress(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindSeries)
	for i, name := range []string{"A", "B", "C"} {
		f.addItem(t, lib, item.Item{
			Kind: item.KindEpisode, Title: "e", Path: pathN("/tv/"+name, i),
			SeriesName: name, Season: 1, Episode: 1,
		})
	}

	a := NewSeriesAnalyzer(f.libraries, f.items, f.store, testLogger())
	var calls []int
	_, _, err := a.AnalyzeAll(context.Background(), func(analyzed, total int) {
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		calls = append(calls, analyzed)
	}, "", "")
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if len(calls) != 3 || calls[2] != 3 {
		t.Errorf("progress calls = %v", calls)
	}
}

func TestAnalyzer_ScopeByLibrary(t *testing.T) {
	f := setup(t)
	libA := f.addLibrary(t, library.KindSeries)
	libB := f.addLibrary(t, library.KindSeries)
	f.addItem(t, libA, item.Item{Kind: item.KindEpisode, Title: "e", Path: "/a/1.mkv", SeriesName: "A", Season: 1, Episode: 1})
	f.addItem(t, libB, item.Item{Kind: item.KindEpisode, Title: "e", Path: "/b/1.mkv", SeriesName: "B", Season: 1, Episode: 1})

	a := NewSeriesAnalyzer(f.libraries, f.items, f.store, testLogger())
	_, analyzed, err := a.AnalyzeAll(context.Background(), nil, "", libA.ID)
	if err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}
	if analyzed != 1 {
		t.Errorf("analyzed = %d, want 1", analyzed)
	}

	records, err := f.store.ListByLibrary(context.Background(), libB.ID)
	if err != nil {
		t.Fatalf("ListByLibrary: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("library B has %d records, want 0", len(records))
	}
}

func TestAnalyzer_StaleGroupsCleared(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindSeries)
	f.addItem(t, lib, item.Item{Kind: item.KindEpisode, Title: "e", Path: "/tv/old/1.mkv", SeriesName: "Old Show", Season: 1, Episode: 1})

	a := NewSeriesAnalyzer(f.libraries, f.items, f.store, testLogger())
	if _, _, err := a.AnalyzeAll(context.Background(), nil, "", ""); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// The show vanishes from the catalogue.
	stored, err := f.items.ListByLibrary(context.Background(), lib.ID)
	if err != nil {
		t.Fatalf("ListByLibrary: %v", err)
	}
	if err := f.items.Delete(context.Background(), stored[0].ID); err != nil {
		t.Fatalf("deleting item: %v", err)
	}
	if _, _, err := a.AnalyzeAll(context.Background(), nil, "", ""); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	records, err := f.store.ListByKind(context.Background(), KindSeries)
	if err != nil {
		t.Fatalf("ListByKind: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("stale records remain: %+v", records)
	}
}

func TestAnalyzer_Cancel(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindSeries)
	f.addItem(t, lib, item.Item{Kind: item.KindEpisode, Title: "e", Path: "/tv/a/1.mkv", SeriesName: "A", Season: 1, Episode: 1})

	a := NewSeriesAnalyzer(f.libraries, f.items, f.store, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := a.AnalyzeAll(ctx, nil, "", ""); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestUpsert_ReplacesPreviousResult(t *testing.T) {
	f := setup(t)
	lib := f.addLibrary(t, library.KindSeries)

	rec := &Record{Kind: KindSeries, GroupKey: "X", LibraryID: lib.ID, Have: 1, Missing: 2, Total: 3}
	if err := f.store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	rec2 := &Record{Kind: KindSeries, GroupKey: "X", LibraryID: lib.ID, Have: 3, Missing: 0, Total: 3,
		CheckedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := f.store.Upsert(context.Background(), rec2); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	records, err := f.store.ListByKind(context.Background(), KindSeries)
	if err != nil {
		t.Fatalf("ListByKind: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Have != 3 || records[0].Missing != 0 {
		t.Errorf("upsert did not replace: %+v", records[0])
	}
}

func pathN(prefix string, n int) string {
	return prefix + "/" + string(rune('0'+n)) + ".mkv"
}
