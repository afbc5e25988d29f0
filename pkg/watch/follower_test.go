package watch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/applog"
)

// entryCollector accumulates delivered entries thread-safely.
type entryCollector struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func (c *entryCollector) add(e model.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *entryCollector) snapshot() []model.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.LogEntry(nil), c.entries...)
}

func appendLine(t *testing.T, path string, entry model.LogEntry) {
	t.Helper()
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		t.Fatal(err)
	}
}

func waitForEntries(t *testing.T, c *entryCollector, n int) []model.LogEntry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got := c.snapshot()
		if len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d entries, have %d", n, len(c.snapshot()))
	return nil
}

// TestFollowerDeliversAppendedEntries verifies entries written after
// Run starts are streamed, and pre-existing content is skipped.
func TestFollowerDeliversAppendedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operations.jsonl")

	appendLine(t, path, model.LogEntry{Timestamp: 1, Message: "before"})

	collector := &entryCollector{}
	f := NewFollower(path, applog.Discard(), collector.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	appendLine(t, path, model.LogEntry{Timestamp: 2, Message: "first"})
	appendLine(t, path, model.LogEntry{Timestamp: 3, Message: "second"})

	got := waitForEntries(t, collector, 2)
	if got[0].Message != "first" || got[1].Message != "second" {
		t.Errorf("entries = %+v", got)
	}
	for _, e := range got {
		if e.Message == "before" {
			t.Error("pre-existing entry delivered")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

// TestFollowerSkipsCorruptLines verifies a damaged line is dropped and
// following continues.
func TestFollowerSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operations.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	collector := &entryCollector{}
	f := NewFollower(path, applog.Discard(), collector.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString("{corrupt\n")
	file.Close()
	appendLine(t, path, model.LogEntry{Timestamp: 2, Message: "good"})

	got := waitForEntries(t, collector, 1)
	if got[0].Message != "good" {
		t.Errorf("entries = %+v", got)
	}
}

// TestFollowerPicksUpCreatedFile verifies a ledger created after Run
// starts is followed.
func TestFollowerPicksUpCreatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operations.jsonl")

	collector := &entryCollector{}
	f := NewFollower(path, applog.Discard(), collector.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	appendLine(t, path, model.LogEntry{Timestamp: 1, Message: "created"})

	got := waitForEntries(t, collector, 1)
	if got[0].Message != "created" {
		t.Errorf("entries = %+v", got)
	}
}
