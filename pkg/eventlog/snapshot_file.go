package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileSnapshotBackend stores one JSON file per session under a
// directory. Files are written to a temp name and renamed into place.
type FileSnapshotBackend struct {
	dir string
}

// NewFileSnapshotBackend creates the backend, creating dir if needed.
func NewFileSnapshotBackend(dir string) (*FileSnapshotBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotBackend{dir: dir}, nil
}

// Name returns the backend name.
func (b *FileSnapshotBackend) Name() string { return "file" }

// Close is a no-op.
func (b *FileSnapshotBackend) Close() error { return nil }

func (b *FileSnapshotBackend) path(sessionID string) string {
	return filepath.Join(b.dir, sessionID+".json")
}

// Save writes the snapshot atomically.
func (b *FileSnapshotBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := b.path(snap.SessionID)
	tmp, err := os.CreateTemp(b.dir, ".tmp-snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for a session.
func (b *FileSnapshotBackend) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := os.ReadFile(b.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Cleanup removes all but the retain most-recently-modified session
// snapshot files.
func (b *FileSnapshotBackend) Cleanup(ctx context.Context, retain int) (int, error) {
	paths, err := filepath.Glob(filepath.Join(b.dir, "boot_*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	type fileAge struct {
		path  string
		mtime int64
	}
	files := make([]fileAge, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		files = append(files, fileAge{path: p, mtime: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime > files[j].mtime
	})

	removed := 0
	for _, f := range files[min(retain, len(files)):] {
		if err := os.Remove(f.path); err == nil {
			removed++
		}
	}
	return removed, nil
}
