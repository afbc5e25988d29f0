// Package export writes diagnostics reports: a JSON bundle, an XLSX
// workbook for humans, and a Parquet table of the ledger for analysis
// tooling.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/eventlog"
	"github.com/bootlens/bootlens/pkg/ledger"
	"github.com/bootlens/bootlens/pkg/session"
)

// Formats supported by the exporter.
const (
	FormatJSON    = "json"
	FormatXLSX    = "xlsx"
	FormatParquet = "parquet"
)

// Options configure one export run.
type Options struct {
	// OutputDir receives the artifacts.
	OutputDir string

	// Formats lists the artifacts to produce (default: json).
	Formats []string

	// RecentLimit bounds the number of ledger entries exported.
	RecentLimit int

	// ShowProgress renders a progress bar on stderr.
	ShowProgress bool
}

// Result reports what was written.
type Result struct {
	Paths        []string
	SessionCount int
	EntryCount   int
}

// Exporter gathers sessions, ledger entries, and event snapshots into
// report artifacts.
type Exporter struct {
	store     *session.Store
	ledger    *ledger.Ledger
	snapshots *eventlog.Snapshots
	log       *slog.Logger
}

// New creates an exporter.
func New(store *session.Store, led *ledger.Ledger, snaps *eventlog.Snapshots, log *slog.Logger) *Exporter {
	return &Exporter{
		store:     store,
		ledger:    led,
		snapshots: snaps,
		log:       log,
	}
}

// bundle is the JSON export envelope.
type bundle struct {
	ExportTimestamp float64              `json:"export_timestamp"`
	Sessions        []*model.BootSession `json:"sessions"`
	LogEntries      []model.LogEntry     `json:"log_entries"`
}

// Export gathers the data once and writes every requested format,
// artifacts in parallel.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Formats) == 0 {
		opts.Formats = []string{FormatJSON}
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 1000
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	entries, err := e.ledger.QueryRecent(ctx, opts.RecentLimit, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	sessions := e.store.History(0)

	data := bundle{
		ExportTimestamp: float64(time.Now().UnixNano()) / 1e9,
		Sessions:        sessions,
		LogEntries:      entries,
	}

	result := &Result{
		SessionCount: len(sessions),
		EntryCount:   len(entries),
	}

	g, gctx := errgroup.WithContext(ctx)
	paths := make([]string, len(opts.Formats))

	for i, format := range opts.Formats {
		switch format {
		case FormatJSON:
			path := filepath.Join(opts.OutputDir, "bootlens_export.json")
			paths[i] = path
			g.Go(func() error { return e.writeJSON(path, data) })
		case FormatXLSX:
			path := filepath.Join(opts.OutputDir, "bootlens_export.xlsx")
			paths[i] = path
			g.Go(func() error { return e.writeXLSX(gctx, path, data, opts.ShowProgress) })
		case FormatParquet:
			path := filepath.Join(opts.OutputDir, "bootlens_ledger.parquet")
			paths[i] = path
			g.Go(func() error { return e.writeParquet(path, entries) })
		default:
			return nil, fmt.Errorf("unknown export format %q", format)
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Paths = paths
	e.log.Info("export complete",
		"formats", opts.Formats,
		"sessions", result.SessionCount,
		"entries", result.EntryCount)
	return result, nil
}

// writeJSON writes the bundle as indented JSON.
func (e *Exporter) writeJSON(path string, data bundle) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export bundle: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write export bundle: %w", err)
	}
	return nil
}
