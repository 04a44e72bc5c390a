package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatcore.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatcore")
}

// UserDir returns the data directory for one user's session.
func UserDir(userID string) string {
	return filepath.Join(BaseDir(), "users", userID)
}

// DBPath returns the sqlite store path for a user.
func DBPath(userID string) string {
	return filepath.Join(UserDir(userID), "chat.db")
}

// BlobDir returns the attachment blob root for a user.
func BlobDir(userID string) string {
	return filepath.Join(UserDir(userID), "blobs")
}

// LogDir returns the log directory for a user.
func LogDir(userID string) string {
	return filepath.Join(UserDir(userID), "logs")
}

// LogPath returns the daemon log file path for a user.
func LogPath(userID string) string {
	return filepath.Join(LogDir(userID), "chatd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureUserDir creates the user directory tree with owner-only permissions.
func EnsureUserDir(userID string) error {
	dirs := []string{
		UserDir(userID),
		BlobDir(userID),
		LogDir(userID),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
