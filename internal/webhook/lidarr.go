package webhook

import "fmt"

// Lidarr webhook event types we react to.
const (
	LidarrEventTest        = "Test"
	LidarrEventArtistAdd   = "ArtistAdded"
	LidarrEventGrab        = "Grab"
	LidarrEventDownload    = "Download"
	LidarrEventAlbumImport = "AlbumImport"
)

// LidarrPayload is an inbound notification from a Lidarr server. Field
// names mirror Lidarr's webhook schema.
type LidarrPayload struct {
	EventType string        `json:"eventType"`
	Artist    *LidarrArtist `json:"artist,omitempty"`
	Albums    []LidarrAlbum `json:"albums,omitempty"`
}

// LidarrArtist contains the artist data from a Lidarr webhook.
type LidarrArtist struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Path            string `json:"path"`
	MBId            string `json:"mbId"`
	ForeignArtistID string `json:"foreignArtistId"`
}

// MBID returns the MusicBrainz artist ID, preferring MBId over
// ForeignArtistID.
func (a *LidarrArtist) MBID() string {
	if a.MBId != "" {
		return a.MBId
	}
	return a.ForeignArtistID
}

// Actionable reports whether the payload describes a library change
// worth a source check, as opposed to a connectivity test.
func (p *LidarrPayload) Actionable() bool {
	switch p.EventType {
	case LidarrEventArtistAdd, LidarrEventDownload, LidarrEventAlbumImport:
		return true
	}
	return false
}

// Describe renders a short activity-log line for the payload.
func (p *LidarrPayload) Describe() string {
	name := "unknown artist"
	if p.Artist != nil && p.Artist.Name != "" {
		name = p.Artist.Name
	}
	switch {
	case p.EventType == LidarrEventTest:
		return "Lidarr connectivity test"
	case len(p.Albums) == 1:
		return fmt.Sprintf("Lidarr %s: %s / %s", p.EventType, name, p.Albums[0].Title)
	case len(p.Albums) > 1:
		return fmt.Sprintf("Lidarr %s: %s (%d albums)", p.EventType, name, len(p.Albums))
	default:
		return fmt.Sprintf("Lidarr %s: %s", p.EventType, name)
	}
}

// LidarrAlbum contains album data from a Lidarr webhook.
type LidarrAlbum struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	ForeignAlbumID string `json:"foreignAlbumId"`
}
