// Package storage defines the on-disk layout of the learning store with XDG support.
package storage

import (
	"os"
	"path/filepath"
)

const (
	// DefaultStoreName is the filename of the unified store document.
	DefaultStoreName = "learning_store.json"

	backupsDirName   = "backups"
	migrationDirName = "migration_backups"
	locksDirName     = "locks"
)

// Paths resolves every file and directory the store touches from a single
// root. All state lives under Root; nothing is read from process-wide
// globals.
type Paths struct {
	Root      string
	StoreName string
}

// NewPaths returns the layout rooted at dir. An empty storeName selects
// DefaultStoreName.
func NewPaths(dir, storeName string) Paths {
	if storeName == "" {
		storeName = DefaultStoreName
	}
	return Paths{Root: dir, StoreName: storeName}
}

// DefaultRoot returns the platform data directory for the store,
// honoring XDG_DATA_HOME.
func DefaultRoot() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "recall")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".recall")
	}
	return filepath.Join(home, ".local", "share", "recall")
}

// StoreFile is the unified JSON store document.
func (p Paths) StoreFile() string {
	return filepath.Join(p.Root, p.StoreName)
}

// LockDir holds sidecar lock files.
func (p Paths) LockDir() string {
	return filepath.Join(p.Root, locksDirName)
}

// BackupDir holds rotating pre-write snapshots.
func (p Paths) BackupDir() string {
	return filepath.Join(p.Root, backupsDirName)
}

// MigrationBackupDir holds legacy fragments moved aside after unification.
// Files here are retained indefinitely.
func (p Paths) MigrationBackupDir() string {
	return filepath.Join(p.Root, migrationDirName)
}

// LegacyFile resolves a pre-unification fragment filename.
func (p Paths) LegacyFile(name string) string {
	return filepath.Join(p.Root, name)
}

// EnsureLayout creates the root and lock directories. Backup and migration
// directories are created lazily by their owners.
func (p Paths) EnsureLayout() error {
	for _, dir := range []string{p.Root, p.LockDir()} {
		if err := EnsureDir(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDir creates a directory with the specified permissions if it doesn't exist.
func EnsureDir(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
