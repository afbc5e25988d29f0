package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bootlens/bootlens/internal/model"
)

// JSONLBackend stores ledger entries as line-delimited JSON. Each
// append is a single O_APPEND write of one complete line; queries are
// full scans that skip corrupt lines.
type JSONLBackend struct {
	path string
	mu   sync.Mutex
}

// NewJSONLBackend creates a JSONL backend writing to path.
func NewJSONLBackend(path string) *JSONLBackend {
	return &JSONLBackend{path: path}
}

// Name returns the backend name.
func (b *JSONLBackend) Name() string { return "jsonl" }

// Close is a no-op; the file is opened per operation.
func (b *JSONLBackend) Close() error { return nil }

// Append writes one entry as a single JSON line.
func (b *JSONLBackend) Append(ctx context.Context, entry model.LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// QueryBySession scans the full ledger for entries belonging to the
// session, ascending by timestamp.
func (b *JSONLBackend) QueryBySession(ctx context.Context, sessionID string) ([]model.LogEntry, error) {
	entries, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.LogEntry
	for _, e := range entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

// QueryRecent returns up to limit entries, newest first, optionally
// filtered by category.
func (b *JSONLBackend) QueryRecent(ctx context.Context, limit int, category string) ([]model.LogEntry, error) {
	entries, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.LogEntry
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if category != "" && entries[i].Category != category {
			continue
		}
		out = append(out, entries[i])
	}
	return out, nil
}

// scan reads every line of the ledger, skipping corrupt ones. A
// missing ledger file is an empty ledger, not an error.
func (b *JSONLBackend) scan(ctx context.Context) ([]model.LogEntry, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var entries []model.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e model.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// Corrupt line: skip, never fatal.
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to scan ledger: %w", err)
	}
	return entries, nil
}
