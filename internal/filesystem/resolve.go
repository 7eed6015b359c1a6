package filesystem

import "path/filepath"

// ResolvePath follows symlinks in p and returns the cleaned physical path.
// Watch roots must be resolved before use: fsnotify does not follow
// symlinked directories, and a link may point at a network mount that
// needs the polling strategy. When resolution fails (dangling link,
// permission error, path not yet created) the cleaned original is
// returned so the caller can still attach and report the real error.
func ResolvePath(p string) string {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return resolved
}
