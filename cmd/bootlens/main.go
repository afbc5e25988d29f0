// Bootlens - Boot session correlation and diagnostics
// Tracks boot sessions, correlates boot-configuration intent with the
// observed boot entry, and collects boot-relevant event log entries.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/bootlens/bootlens/pkg/applog"
	"github.com/bootlens/bootlens/pkg/config"
	"github.com/bootlens/bootlens/pkg/correlate"
	"github.com/bootlens/bootlens/pkg/eventlog"
	"github.com/bootlens/bootlens/pkg/ledger"
	"github.com/bootlens/bootlens/pkg/session"
	"github.com/bootlens/bootlens/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	verbose bool

	// sessions flags
	sessionCount int

	// resolve flags
	expectedEntry string
	sessionFlag   string

	// events flags
	maxEventsFlag int
	saveSnapshot  bool
	bcdErrors     bool
	bootStarts    int

	// logs flags
	logLimit    int
	logCategory string
	logSession  string
	followLogs  bool

	// export flags
	exportFormats []string
	exportDir     string
	exportLimit   int
	showProgress  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bootlens",
	Short: "Bootlens - Correlate boot configuration changes with boot outcomes",
	Long: `Bootlens tracks boot sessions, records boot-configuration intent before
a reboot, and after the reboot compares the actually-booted entry with
what was expected. Mismatches are diagnosed from the recorded operations
and the system event log.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
	RunE:    runStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	sessionsCmd.Flags().IntVarP(&sessionCount, "count", "n", 0, "Number of sessions to show (0 = all)")

	resolveCmd.Flags().StringVar(&expectedEntry, "expected", "", "Expected boot entry (derived from recorded operations if omitted)")
	resolveCmd.Flags().StringVar(&sessionFlag, "session", "", "Session ID to resolve (default: the last unresolved session)")

	eventsCmd.Flags().IntVar(&maxEventsFlag, "max", 0, "Maximum number of events to collect")
	eventsCmd.Flags().BoolVar(&saveSnapshot, "save", false, "Snapshot the events and attach them to the active session")
	eventsCmd.Flags().BoolVar(&bcdErrors, "bcd-errors", false, "Show kernel boot provider errors instead")
	eventsCmd.Flags().IntVar(&bootStarts, "boots", 0, "Show boot-start events for the last N boots instead")
	eventsCmd.Flags().StringVar(&sessionFlag, "session", "", "Show the saved snapshot for a session instead of collecting")

	logsCmd.Flags().IntVarP(&logLimit, "limit", "n", 50, "Maximum number of entries to show")
	logsCmd.Flags().StringVar(&logCategory, "category", "", "Filter by category (e.g. BCD_OPERATION)")
	logsCmd.Flags().StringVar(&logSession, "session", "", "Show all entries for one session, oldest first")
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Stream new entries as they are appended")

	exportCmd.Flags().StringSliceVar(&exportFormats, "format", []string{"json"}, "Export formats (json, xlsx, parquet)")
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", ".", "Output directory")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum number of ledger entries to export")
	exportCmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

// app wires the configured storage, ledger, session, correlation, and
// collection components for one command invocation.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	logCloser io.Closer
	ledger    *ledger.Ledger
	store     *session.Store
	detector  *session.Detector
	engine    *correlate.Engine
	collector *eventlog.Collector
	snapshots *eventlog.Snapshots
	tracer    trace.Tracer
	shutdown  func(context.Context) error
}

// newApp loads configuration and constructs the component graph.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	log, logCloser := newLogger(cfg)

	backend, err := newLedgerBackend(cfg)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	led := ledger.New(backend, log)

	store := session.NewStore(cfg.SessionsPath(), cfg.Storage.MaxSessions, log)
	detector := session.NewDetector(store, session.ExecBootTimeSource{}, cfg.LastBootPath(), cfg.Collector.ProbeTimeout, log)
	engine := correlate.NewEngine(store, led, log)

	source := eventlog.WevtutilSource{}
	collector := eventlog.NewCollector(source, source, eventlog.Options{
		ProbeTimeout:  cfg.Collector.ProbeTimeout,
		QueryTimeout:  cfg.Collector.QueryTimeout,
		EventIDs:      cfg.Collector.BootEventIDs,
		TimestampMode: cfg.Collector.TimestampMode,
	}, log)

	snapBackend, err := newSnapshotBackend(ctx, cfg)
	if err != nil {
		led.Close()
		logCloser.Close()
		return nil, err
	}
	snapshots := eventlog.NewSnapshots(snapBackend, cfg.Snapshot.Retain, log)

	a := &app{
		cfg:       cfg,
		log:       log,
		logCloser: logCloser,
		ledger:    led,
		store:     store,
		detector:  detector,
		engine:    engine,
		collector: collector,
		snapshots: snapshots,
		tracer:    telemetry.Noop(),
	}

	if cfg.Telemetry.Enabled {
		tcfg := telemetry.DefaultConfig(cfg.Telemetry.Endpoint)
		tcfg.ServiceVersion = version
		tracer, shutdown, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			log.Error("failed to initialize telemetry", "error", err)
		} else {
			a.tracer = tracer
			a.shutdown = shutdown
		}
	}
	return a, nil
}

// Close flushes telemetry and releases every backend.
func (a *app) Close(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.log.Error("failed to flush telemetry", "error", err)
		}
	}
	if err := a.snapshots.Close(); err != nil {
		a.log.Error("failed to close snapshot backend", "error", err)
	}
	if err := a.ledger.Close(); err != nil {
		a.log.Error("failed to close ledger backend", "error", err)
	}
	a.logCloser.Close()
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return applog.New(applog.Options{
		Path:      cfg.MirrorLogPath(),
		MaxSizeMB: cfg.Storage.MirrorMaxSizeMB,
		Backups:   cfg.Storage.MirrorBackups,
		Verbose:   verbose,
		Level:     level,
	})
}

func newLedgerBackend(cfg *config.Config) (ledger.Backend, error) {
	switch cfg.Storage.LedgerBackend {
	case "duckdb":
		return ledger.NewDuckDBBackend(cfg.LedgerDBPath())
	default:
		return ledger.NewJSONLBackend(cfg.LedgerPath()), nil
	}
}

func newSnapshotBackend(ctx context.Context, cfg *config.Config) (eventlog.SnapshotBackend, error) {
	switch cfg.Snapshot.Backend {
	case "redis":
		rcfg := eventlog.DefaultRedisSnapshotConfig(cfg.Snapshot.RedisAddress)
		rcfg.Password = cfg.Snapshot.RedisPassword
		return eventlog.NewRedisSnapshotBackend(rcfg)
	case "s3":
		scfg := eventlog.DefaultS3SnapshotConfig(cfg.Snapshot.S3Bucket)
		if cfg.Snapshot.S3Prefix != "" {
			scfg.Prefix = cfg.Snapshot.S3Prefix
		}
		scfg.Region = cfg.Snapshot.S3Region
		return eventlog.NewS3SnapshotBackend(ctx, scfg)
	default:
		return eventlog.NewFileSnapshotBackend(cfg.EventLogDir())
	}
}
