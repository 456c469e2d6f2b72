// Package user provides the identity and permission model of a caller.
package user

// Level represents a permission level inside a domain (playlist, library).
type Level string

const (
	LevelNone    Level = ""
	LevelUser    Level = "user"
	LevelManager Level = "manager"
)

// User represents an authenticated caller.
// Identities are issued outside of this service; only the predicates below
// are consumed.
type User struct {
	ID            string // User ID
	Name          string // Display name
	IsSuperuser   bool   // Superuser bypasses every permission check
	PlaylistLevel Level  // Permission level on the playlist
	LibraryLevel  Level  // Permission level on the song library
	IsPlayer      bool   // Player device identity
}

// IsPlaylistManager reports whether the user manages the playlist.
func (u User) IsPlaylistManager() bool {
	return u.IsSuperuser || u.PlaylistLevel == LevelManager
}

// IsPlaylistUser reports whether the user may queue songs.
func (u User) IsPlaylistUser() bool {
	return u.IsPlaylistManager() || u.PlaylistLevel == LevelUser
}

// IsLibraryManager reports whether the user manages the song library.
func (u User) IsLibraryManager() bool {
	return u.IsSuperuser || u.LibraryLevel == LevelManager
}

// ParseLevel parses a level string. Unknown values map to LevelNone.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelUser, LevelManager:
		return Level(s)
	default:
		return LevelNone
	}
}
