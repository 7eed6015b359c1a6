package lidarr

import "time"

// SystemStatus represents the response from GET /api/v1/system/status.
type SystemStatus struct {
	Version string `json:"version"`
	AppName string `json:"appName"`
}

// Artist represents an artist from GET /api/v1/artist.
type Artist struct {
	ID              int    `json:"id"`
	ArtistName      string `json:"artistName"`
	ForeignArtistID string `json:"foreignArtistId"`
	Path            string `json:"path"`
	Monitored       bool   `json:"monitored"`
}

// Album represents an album from GET /api/v1/album.
type Album struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	ArtistID int    `json:"artistId"`
}

// TrackFile represents a file on disk from GET /api/v1/trackfile.
type TrackFile struct {
	ID        int       `json:"id"`
	AlbumID   int       `json:"albumId"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	DateAdded time.Time `json:"dateAdded"`
}
