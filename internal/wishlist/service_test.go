package wishlist

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/event"
	"github.com/veldrane/driftwood/internal/item"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db
}

func TestCreateAndList(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	w := &Want{Title: "Heat", Kind: KindMovie, Notes: "the 1995 one"}
	if err := svc.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := svc.GetByID(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Heat" || got.Notes != "the 1995 one" || got.Fulfilled {
		t.Errorf("unexpected want: %+v", got)
	}

	wants, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(wants) != 1 {
		t.Errorf("got %d wants, want 1", len(wants))
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		want Want
	}{
		{"missing title", Want{Kind: KindMovie}},
		{"bad kind", Want{Title: "x", Kind: "podcast"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Create(ctx, &tc.want); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMarkFulfilled(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	w := &Want{Title: "Severance", Kind: KindSeries}
	if err := svc.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.MarkFulfilled(ctx, w.ID, "item-42"); err != nil {
		t.Fatalf("MarkFulfilled: %v", err)
	}

	got, err := svc.GetByID(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Fulfilled || got.MatchedID != "item-42" {
		t.Errorf("unexpected want after fulfil: %+v", got)
	}

	open, err := svc.ListUnfulfilled(ctx)
	if err != nil {
		t.Fatalf("ListUnfulfilled: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("got %d open wants, want 0", len(open))
	}
}

func TestDelete_NotFound(t *testing.T) {
	svc := NewService(setupTestDB(t))
	if err := svc.Delete(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestCheckNewItems_MatchesAcrossKinds(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for _, w := range []*Want{
		{Title: "Blade Runner 2049", Kind: KindMovie},
		{Title: "The Wire", Kind: KindSeries},
		{Title: "In Rainbows", Kind: KindAlbum},
		{Title: "Dune Part Three", Kind: KindMovie},
	} {
		if err := svc.Create(ctx, w); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	checker := NewChecker(svc, nil, testLogger())
	added := []item.Item{
		{ID: "i1", Kind: item.KindMovie, Title: "Blade Runner 2049", Path: "/m/br.mkv"},
		{ID: "i2", Kind: item.KindEpisode, Title: "ep", SeriesName: "The Wire", Path: "/tv/w.mkv"},
		{ID: "i3", Kind: item.KindTrack, Title: "15 Step", Album: "In Rainbows", Path: "/mu/1.flac"},
		{ID: "i4", Kind: item.KindMovie, Title: "Unrelated", Path: "/m/u.mkv"},
	}
	matched, err := checker.CheckNewItems(ctx, added)
	if err != nil {
		t.Fatalf("CheckNewItems: %v", err)
	}
	if matched != 3 {
		t.Errorf("matched = %d, want 3", matched)
	}

	open, err := svc.ListUnfulfilled(ctx)
	if err != nil {
		t.Fatalf("ListUnfulfilled: %v", err)
	}
	if len(open) != 1 || open[0].Title != "Dune Part Three" {
		t.Errorf("unexpected open wants: %+v", open)
	}
}

func TestCheckNewItems_NormalizesTitles(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	w := &Want{Title: "WALL-E", Kind: KindMovie}
	if err := svc.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	checker := NewChecker(svc, nil, testLogger())
	matched, err := checker.CheckNewItems(ctx, []item.Item{
		{ID: "i1", Kind: item.KindMovie, Title: "Wall E", Path: "/m/we.mkv"},
	})
	if err != nil {
		t.Fatalf("CheckNewItems: %v", err)
	}
	if matched != 1 {
		t.Errorf("matched = %d, want 1", matched)
	}
}

func TestCheckNewItems_KindMismatchDoesNotMatch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	w := &Want{Title: "Dune", Kind: KindSeries}
	if err := svc.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	checker := NewChecker(svc, nil, testLogger())
	matched, err := checker.CheckNewItems(ctx, []item.Item{
		{ID: "i1", Kind: item.KindMovie, Title: "Dune", Path: "/m/d.mkv"},
	})
	if err != nil {
		t.Fatalf("CheckNewItems: %v", err)
	}
	if matched != 0 {
		t.Errorf("matched = %d, want 0", matched)
	}
}

func TestCheckNewItems_PublishesEvent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	w := &Want{Title: "Heat", Kind: KindMovie}
	if err := svc.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	bus := event.NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()
	got := make(chan event.Event, 1)
	bus.Subscribe(event.WishlistMatch, func(e event.Event) { got <- e })

	checker := NewChecker(svc, bus, testLogger())
	if _, err := checker.CheckNewItems(ctx, []item.Item{
		{ID: "i1", Kind: item.KindMovie, Title: "Heat", Path: "/m/h.mkv"},
	}); err != nil {
		t.Fatalf("CheckNewItems: %v", err)
	}

	select {
	case e := <-got:
		if e.Data["item_id"] != "i1" {
			t.Errorf("event item_id = %v", e.Data["item_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("no wishlist.match event")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"WALL-E", "wall e"},
		{"The Wire", "the wire"},
		{"  Spaced   Out  ", "spaced out"},
		{"AC/DC: Live!", "ac dc live"},
	}
	for _, tc := range tests {
		if got := normalize(tc.in); got != tc.want {
			t.Errorf("normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if !strings.Contains(normalize("Amélie"), "amélie") {
		t.Errorf("normalize should keep non-ascii letters: %q", normalize("Amélie"))
	}
}
