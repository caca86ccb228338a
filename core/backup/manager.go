// Package backup snapshots the store document before mutating writes and
// rotates snapshots to a fixed retention count. Snapshots are the sole
// recovery source for corruption handling in the storage engine.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultRetention is the number of snapshots kept after rotation.
const DefaultRetention = 10

const timestampLayout = "20060102T150405.000000000"

// Manager owns one backup directory for one store document.
type Manager struct {
	dir       string
	prefix    string
	retention int
	mu        sync.Mutex
}

// Info describes one snapshot on disk.
type Info struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// NewManager builds a manager writing snapshots of storeName into dir.
func NewManager(dir, storeName string, retention int) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		dir:       dir,
		prefix:    strings.TrimSuffix(storeName, ".json"),
		retention: retention,
	}
}

// Snapshot copies the current store document into the backup directory
// with a timestamp suffix. A missing source is a no-op: there is nothing
// to protect yet.
func (m *Manager) Snapshot(srcPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := os.Open(srcPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	timestamp := time.Now().UTC().Format(timestampLayout)
	destPath := filepath.Join(m.dir, fmt.Sprintf("%s_%s.json", m.prefix, timestamp))

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create dest: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("copy: %w", err)
	}
	if err := dest.Sync(); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("sync: %w", err)
	}

	return destPath, nil
}

// EnforceRetention deletes the oldest snapshots beyond the retention
// count. Callers invoke it only after the new store write is durable, so a
// crash mid-rotation never leaves fewer than the prior retained count.
func (m *Manager) EnforceRetention() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.snapshotNames()
	if err != nil {
		return err
	}

	if len(names) <= m.retention {
		return nil
	}

	// Timestamp suffixes sort lexically, oldest first.
	sort.Strings(names)
	for _, name := range names[:len(names)-m.retention] {
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// List returns snapshots newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !m.isSnapshot(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, Info{
			Name:      entry.Name(),
			Path:      filepath.Join(m.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name > backups[j].Name
	})

	return backups, nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (m *Manager) Latest() (*Info, error) {
	backups, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, nil
	}
	return &backups[0], nil
}

// LatestValid walks snapshots newest to oldest and returns the content of
// the first one accepted by validate. Returns nil content when no snapshot
// validates.
func (m *Manager) LatestValid(validate func([]byte) error) ([]byte, string, error) {
	backups, err := m.List()
	if err != nil {
		return nil, "", err
	}

	for _, b := range backups {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			continue
		}
		if validate(data) == nil {
			return data, b.Name, nil
		}
	}

	return nil, "", nil
}

// Restore copies a snapshot over the store document.
func (m *Manager) Restore(dstPath, backupPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup not found: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, src)
	return err
}

func (m *Manager) snapshotNames() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && m.isSnapshot(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (m *Manager) isSnapshot(name string) bool {
	return strings.HasPrefix(name, m.prefix+"_") && strings.HasSuffix(name, ".json")
}
