package emby

import "time"

// SystemInfo represents the response from GET /System/Info.
type SystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	ID         string `json:"Id"`
}

// VirtualFolder represents a library folder from GET /Library/VirtualFolders.
type VirtualFolder struct {
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"`
	ItemID         string `json:"ItemId"`
}

// MediaItem represents one entry from the Items endpoint. IndexNumber is the
// episode number for episodes and the track number for audio.
type MediaItem struct {
	ID                string    `json:"Id"`
	Name              string    `json:"Name"`
	Type              string    `json:"Type"`
	Path              string    `json:"Path"`
	SeriesName        string    `json:"SeriesName"`
	ParentIndexNumber int       `json:"ParentIndexNumber"`
	IndexNumber       int       `json:"IndexNumber"`
	Album             string    `json:"Album"`
	AlbumArtist       string    `json:"AlbumArtist"`
	Size              int64     `json:"Size"`
	DateCreated       time.Time `json:"DateCreated"`
}

// ItemsResponse wraps paginated item results.
type ItemsResponse struct {
	Items            []MediaItem `json:"Items"`
	TotalRecordCount int         `json:"TotalRecordCount"`
}
