// Package watch follows the operations ledger file and streams new
// entries as they are appended, backing the logs --follow mode.
package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bootlens/bootlens/internal/model"
)

// Follower tails a JSONL ledger file.
type Follower struct {
	path string
	log  *slog.Logger

	// OnEntry is invoked for every complete new entry. Corrupt lines
	// are skipped.
	OnEntry func(model.LogEntry)
}

// NewFollower creates a follower for the ledger at path.
func NewFollower(path string, log *slog.Logger, onEntry func(model.LogEntry)) *Follower {
	return &Follower{path: path, log: log, OnEntry: onEntry}
}

// Run watches the ledger until the context is cancelled. Existing
// content is skipped; only entries appended after Run starts are
// delivered. The ledger's directory is watched so a ledger created
// after startup is picked up too.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	// Start at the current end of file, if it exists.
	var offset int64
	if info, err := os.Stat(f.path); err == nil {
		offset = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			newOffset, err := f.drain(offset)
			if err != nil {
				f.log.Error("failed to read ledger tail", "error", err)
				continue
			}
			offset = newOffset
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Error("watch error", "error", err)
		}
	}
}

// drain reads complete lines from offset to EOF and returns the new
// offset. A truncated ledger (smaller than offset) restarts from zero.
func (f *Follower) drain(offset int64) (int64, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return offset, err
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// Partial line: leave it for the next write event.
			return offset, nil
		}
		offset += int64(len(line))

		var entry model.LogEntry
		if jsonErr := json.Unmarshal(line, &entry); jsonErr != nil {
			continue
		}
		if f.OnEntry != nil {
			f.OnEntry(entry)
		}
	}
}
