package scan

import (
	"testing"

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
)

func TestParseMovie(t *testing.T) {
	cases := []struct {
		path      string
		wantTitle string
	}{
		{"/movies/Heat (1995).mkv", "Heat"},
		{"/movies/Heat.1995.1080p.BluRay.x264.mkv", "Heat"},
		{"/movies/1917 (2019).mkv", "1917"},
		{"/movies/Blade Runner 2049 (2017).mp4", "Blade Runner 2049"},
	}
	for _, tc := range cases {
		got := parseMovie(tc.path, "/movies")
		if got.Title != tc.wantTitle {
			t.Errorf("parseMovie(%q).Title = %q, want %q", tc.path, got.Title, tc.wantTitle)
		}
		if got.Kind != item.KindMovie {
			t.Errorf("parseMovie(%q).Kind = %q", tc.path, got.Kind)
		}
		if got.Collection != "" {
			t.Errorf("parseMovie(%q).Collection = %q, want empty for flat layout", tc.path, got.Collection)
		}
	}
}

func TestParseMovie_Collection(t *testing.T) {
	got := parseMovie("/movies/James Bond/02 - From Russia with Love (1963).mkv", "/movies")
	if got.Collection != "James Bond" {
		t.Errorf("Collection = %q, want James Bond", got.Collection)
	}
	if got.CollectionIndex != 2 {
		t.Errorf("CollectionIndex = %d, want 2", got.CollectionIndex)
	}
	if got.Title != "From Russia with Love" {
		t.Errorf("Title = %q, want From Russia with Love", got.Title)
	}
}

func TestParseEpisode(t *testing.T) {
	cases := []struct {
		path               string
		wantSeries         string
		wantSeason, wantEp int
		wantTitle          string
	}{
		{"/tv/Severance/Season 01/Severance S01E02 Half Loop.mkv", "Severance", 1, 2, "Half Loop"},
		{"/tv/The Wire/Season 03/S03E11.mkv", "The Wire", 3, 11, "S03E11"},
		{"/tv/Fargo/fargo.s02e04.fear.and.trembling.720p.mkv", "fargo", 2, 4, "fear and trembling"},
	}
	for _, tc := range cases {
		got := parseEpisode(tc.path)
		if got.SeriesName != tc.wantSeries {
			t.Errorf("parseEpisode(%q).SeriesName = %q, want %q", tc.path, got.SeriesName, tc.wantSeries)
		}
		if got.Season != tc.wantSeason || got.Episode != tc.wantEp {
			t.Errorf("parseEpisode(%q) = S%dE%d, want S%dE%d", tc.path, got.Season, got.Episode, tc.wantSeason, tc.wantEp)
		}
		if got.Title != tc.wantTitle {
			t.Errorf("parseEpisode(%q).Title = %q, want %q", tc.path, got.Title, tc.wantTitle)
		}
	}
}

func TestParseEpisode_NoMarker(t *testing.T) {
	got := parseEpisode("/tv/Documentaries/Season 02/The Blue Planet.mkv")
	if got.Season != 0 || got.Episode != 0 {
		t.Errorf("expected zero season/episode, got S%dE%d", got.Season, got.Episode)
	}
	if got.SeriesName != "Documentaries" {
		t.Errorf("SeriesName = %q, want Documentaries", got.SeriesName)
	}
}

func TestParseTrack(t *testing.T) {
	got := parseTrack("/music/Radiohead/In Rainbows/04 Weird Fishes.flac")
	if got.Artist != "Radiohead" {
		t.Errorf("Artist = %q, want Radiohead", got.Artist)
	}
	if got.Album != "In Rainbows" {
		t.Errorf("Album = %q, want In Rainbows", got.Album)
	}
	if got.Track != 4 {
		t.Errorf("Track = %d, want 4", got.Track)
	}
	if got.Title != "Weird Fishes" {
		t.Errorf("Title = %q, want Weird Fishes", got.Title)
	}
	if got.Kind != item.KindTrack {
		t.Errorf("Kind = %q, want track", got.Kind)
	}
}

func TestParseTrack_NoNumber(t *testing.T) {
	got := parseTrack("/music/Bjork/Debut/Venus as a Boy.mp3")
	if got.Track != 0 {
		t.Errorf("Track = %d, want 0", got.Track)
	}
	if got.Title != "Venus as a Boy" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestMediaFile(t *testing.T) {
	cases := []struct {
		name string
		kind string
		want bool
	}{
		{"movie.mkv", library.KindMovie, true},
		{"movie.txt", library.KindMovie, false},
		{"cover.jpg", library.KindMovie, false},
		{"song.flac", library.KindMusic, true},
		{"song.mkv", library.KindMusic, false},
		{"episode.mp4", library.KindSeries, true},
	}
	for _, tc := range cases {
		if got := mediaFile(tc.name, tc.kind); got != tc.want {
			t.Errorf("mediaFile(%q, %q) = %v, want %v", tc.name, tc.kind, got, tc.want)
		}
	}
}
