package scan

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/veldrane/driftwood/internal/item"
	"github.com/veldrane/driftwood/internal/library"
)

var videoExts = map[string]bool{
	".mkv": true, ".mp4": true, ".m4v": true, ".avi": true,
	".mov": true, ".wmv": true, ".ts": true, ".webm": true, ".mpg": true,
}

var audioExts = map[string]bool{
	".flac": true, ".mp3": true, ".m4a": true, ".ogg": true,
	".opus": true, ".wav": true, ".aac": true, ".wma": true,
}

var (
	episodeRE    = regexp.MustCompile(`(?i)S(\d{1,2})\s*E(\d{1,3})`)
	yearSuffixRE = regexp.MustCompile(`\s*\((19|20)\d{2}\)\s*$`)
	bareYearRE   = regexp.MustCompile(`\s+(19|20)\d{2}\s*$`)
	trackNumRE   = regexp.MustCompile(`^(\d{1,3})[\s._-]+`)
	seasonDirRE  = regexp.MustCompile(`(?i)^season[\s._-]*\d+$`)
	qualityRE    = regexp.MustCompile(`(?i)[\s._-]*(720p|1080p|2160p|4k|x264|x265|hevc|bluray|web-?dl|webrip|hdtv|dvdrip|remux)\b.*$`)
)

// mediaFile reports whether the filename carries a media extension for the
// library's kind.
func mediaFile(name, mediaKind string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if mediaKind == library.KindMusic {
		return audioExts[ext]
	}
	return videoExts[ext]
}

// IsMediaFile reports whether the filename carries any known media
// extension, video or audio.
func IsMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return videoExts[ext] || audioExts[ext]
}

// parseItem derives catalogue fields from a file path. The media kind of
// the owning library decides which naming scheme applies; root is the
// library directory.
func parseItem(path, root, mediaKind string) item.Item {
	switch mediaKind {
	case library.KindSeries:
		return parseEpisode(path)
	case library.KindMusic:
		return parseTrack(path)
	default:
		return parseMovie(path, root)
	}
}

// parseMovie expects "Title (Year).ext", tolerating release tags after the
// year. A movie nested in a subfolder of the library belongs to that
// folder's collection; a leading number in the filename orders it within
// the collection.
func parseMovie(path, root string) item.Item {
	it := item.Item{
		Kind:  item.KindMovie,
		Title: cleanTitle(baseName(path)),
		Path:  path,
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return it
	}
	dir, _ := filepath.Split(rel)
	if dir == "" {
		return it
	}
	parts := strings.Split(filepath.Clean(dir), string(filepath.Separator))
	it.Collection = cleanTitle(parts[0])

	if m := trackNumRE.FindStringSubmatch(baseName(path)); m != nil {
		it.CollectionIndex, _ = strconv.Atoi(m[1])
		it.Title = cleanTitle(baseName(path)[len(m[0]):])
	}
	return it
}

// parseEpisode expects "Show/Season 01/Show S01E02 Title.ext". The series
// name falls back to directory names when the filename carries only the
// episode marker.
func parseEpisode(path string) item.Item {
	it := item.Item{Kind: item.KindEpisode, Path: path}
	name := baseName(path)

	m := episodeRE.FindStringSubmatchIndex(name)
	if m == nil {
		it.Title = cleanTitle(name)
		it.SeriesName = seriesFromDirs(path)
		return it
	}

	season, _ := strconv.Atoi(name[m[2]:m[3]])
	episode, _ := strconv.Atoi(name[m[4]:m[5]])
	it.Season = season
	it.Episode = episode

	it.SeriesName = cleanTitle(name[:m[0]])
	if it.SeriesName == "" {
		it.SeriesName = seriesFromDirs(path)
	}
	it.Title = cleanTitle(name[m[1]:])
	if it.Title == "" {
		it.Title = name
	}
	return it
}

// parseTrack expects "Artist/Album/NN Title.ext".
func parseTrack(path string) item.Item {
	it := item.Item{Kind: item.KindTrack, Path: path}
	name := baseName(path)

	if m := trackNumRE.FindStringSubmatch(name); m != nil {
		it.Track, _ = strconv.Atoi(m[1])
		name = name[len(m[0]):]
	}
	it.Title = cleanTitle(name)

	dir := filepath.Dir(path)
	it.Album = filepath.Base(dir)
	it.Artist = filepath.Base(filepath.Dir(dir))
	return it
}

// seriesFromDirs walks up past a "Season NN" directory to the show folder.
func seriesFromDirs(path string) string {
	dir := filepath.Dir(path)
	if seasonDirRE.MatchString(filepath.Base(dir)) {
		dir = filepath.Dir(dir)
	}
	name := filepath.Base(dir)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return cleanTitle(name)
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// cleanTitle strips release tags, a trailing year and separator noise.
// A bare trailing year is only dropped from dot-separated release names;
// in spaced names it may be part of the title.
func cleanTitle(s string) string {
	dotted := strings.Contains(s, ".")
	s = qualityRE.ReplaceAllString(s, "")
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = yearSuffixRE.ReplaceAllString(s, "")
	if dotted {
		s = bareYearRE.ReplaceAllString(s, "")
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -")
}
