package source

import "time"

// Type classifies how a source is reached and watched.
type Type string

// Known source types.
const (
	// TypeLocal is a plain directory on a local or mounted filesystem.
	TypeLocal Type = "local"
	// TypePlex is an attached Plex library database file.
	TypePlex Type = "plex"
	// TypeEmby is a remote Emby server reached over HTTP.
	TypeEmby Type = "emby"
	// TypeJellyfin is a remote Jellyfin server reached over HTTP.
	TypeJellyfin Type = "jellyfin"
	// TypeLidarr is a remote Lidarr instance reached over HTTP.
	TypeLidarr Type = "lidarr"
)

// Valid reports whether t is a known source type.
func (t Type) Valid() bool {
	switch t {
	case TypeLocal, TypePlex, TypeEmby, TypeJellyfin, TypeLidarr:
		return true
	}
	return false
}

// Remote reports whether the source is reached over the network and must be
// polled rather than watched.
func (t Type) Remote() bool {
	switch t {
	case TypeEmby, TypeJellyfin, TypeLidarr:
		return true
	}
	return false
}

// Filesystem reports whether the source lives on a filesystem path.
func (t Type) Filesystem() bool {
	return t == TypeLocal || t == TypePlex
}

// Source is a configured media provider.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`
	// Path is the library root for local sources or the database file for
	// plex sources. Empty for remote types.
	Path string `json:"path,omitempty"`
	// ConnectionID references the remote server credentials. Empty for
	// filesystem types.
	ConnectionID string    `json:"connection_id,omitempty"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
