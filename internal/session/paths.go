package session

import (
	"os"
	"path/filepath"
	"strings"
)

// BaseDir returns ~/.tocata.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tocata")
}

// Dir returns the identity-specific session directory.
func Dir(identity string) string {
	return filepath.Join(BaseDir(), "sessions", Slug(identity))
}

// DBPath returns the notification store path for an identity.
func DBPath(identity string) string {
	return filepath.Join(Dir(identity), "tocata.db")
}

// LogDir returns the log directory for an identity.
func LogDir(identity string) string {
	return filepath.Join(Dir(identity), "logs")
}

// LogPath returns the daemon log file path for an identity.
func LogPath(identity string) string {
	return filepath.Join(LogDir(identity), "tocatad.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Slug converts an identity (usually an email address) into a
// filesystem-safe directory name. Lowercased; anything outside
// [a-z0-9._-] becomes '_'.
func Slug(identity string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(identity) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == '@':
			b.WriteString("_at_")
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(identity string) error {
	dirs := []string{
		Dir(identity),
		LogDir(identity),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
