package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/config"
	"github.com/bootlens/bootlens/pkg/correlate"
	"github.com/bootlens/bootlens/pkg/export"
	"github.com/bootlens/bootlens/pkg/tui"
	"github.com/bootlens/bootlens/pkg/watch"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active boot session and its correlation state",
	Long: `Detect the current boot session (creating one on the first run after a
reboot) and show its pending operations, expectation, outcome, and
diagnosis.

Examples:
  bootlens status
  bootlens -v status`,
	RunE: runStatus,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the recorded boot session history",
	Long: `List the bounded boot session history, most recent first.

Examples:
  bootlens sessions
  bootlens sessions -n 3`,
	RunE: runSessions,
}

var recordCmd = &cobra.Command{
	Use:   "record <operation-type> <target-entry>",
	Short: "Record a boot-configuration operation on the active session",
	Long: `Record an operation performed against the boot configuration, e.g. after
setting a one-time boot entry. BOOT_ONCE and SET_DEFAULT operations
produce an expectation for the next boot; other types are recorded for
audit only.

Examples:
  bootlens record BOOT_ONCE "Windows Recovery"
  bootlens record SET_DEFAULT "Windows 11"`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <actual-entry>",
	Short: "Resolve a session's expectation against the observed boot entry",
	Long: `Record the actually-booted entry and compute the match status. Without
--session the last unresolved session carrying an expectation is
resolved. A mismatch triggers diagnosis from the recorded operations and
collected events.

Examples:
  bootlens resolve "Windows 11"
  bootlens resolve "Windows 11" --expected "Windows Recovery"
  bootlens resolve "Windows 11" --session boot_20260829_081500`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Collect boot-relevant entries from the system event log",
	Long: `Query the OS event log for boot-relevant entries. With --save the
collected events are snapshotted for the active session and attached to
it so they can refine a later diagnosis.

Examples:
  bootlens events
  bootlens events --save
  bootlens events --bcd-errors
  bootlens events --boots 3
  bootlens events --session boot_20260829_081500`,
	RunE: runEvents,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query the operations ledger",
	Long: `Show recent ledger entries, newest first, or every entry for one
session, oldest first. With --follow new entries are streamed as they
are appended.

Examples:
  bootlens logs
  bootlens logs -n 20 --category BCD_OPERATION
  bootlens logs --session boot_20260829_081500
  bootlens logs --follow`,
	RunE: runLogs,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions and the ledger as report artifacts",
	Long: `Write the session history and recent ledger entries as report
artifacts: a JSON bundle, an XLSX workbook, and a Parquet table.

Examples:
  bootlens export
  bootlens export --format json,xlsx,parquet -o ./reports
  bootlens export --format parquet --limit 10000`,
	RunE: runExport,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

// runStatus detects the boot session and renders it with the recent
// correlation state.
func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ctx, span := a.tracer.Start(ctx, "status")
	defer span.End()

	sess, err := a.detector.DetectOrCreate(ctx)
	if err != nil {
		return err
	}
	a.engine.Attach(sess)

	fmt.Println(tui.RenderSession(sess))
	fmt.Printf("storage:   %s\n", a.cfg.Storage.Dir)
	fmt.Printf("ledger:    %s\n", a.ledger.Backend().Name())
	fmt.Printf("snapshots: %s\n", a.cfg.Snapshot.Backend)
	fmt.Printf("sessions:  %d of %d\n", a.store.Len(), a.cfg.Storage.MaxSessions)
	return nil
}

// runSessions lists the stored history, most recent first.
func runSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	history := a.store.History(sessionCount)
	if len(history) == 0 {
		fmt.Println("no boot sessions recorded yet")
		return nil
	}
	for _, sess := range history {
		fmt.Println(tui.RenderSession(sess))
	}
	return nil
}

// runRecord appends an operation to the active session.
func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ctx, span := a.tracer.Start(ctx, "record")
	defer span.End()

	sess, err := a.detector.DetectOrCreate(ctx)
	if err != nil {
		return err
	}
	a.engine.Attach(sess)

	opType := strings.ToUpper(args[0])
	op := model.OperationRecord{
		OperationType: opType,
		TargetEntry:   args[1],
	}
	if err := a.engine.RecordIntent(ctx, op); err != nil {
		return err
	}

	fmt.Printf("recorded %s -> %s on %s\n", opType, args[1], sess.ID)
	if !model.ExpectationOp(opType) {
		fmt.Println("note: this operation type does not set an expectation for the next boot")
	}
	return nil
}

// runResolve resolves a session against the observed boot entry.
func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ctx, span := a.tracer.Start(ctx, "resolve")
	defer span.End()

	active, err := a.detector.DetectOrCreate(ctx)
	if err != nil {
		return err
	}
	a.engine.Attach(active)

	sess := resolveTarget(a, active)
	if sess == nil {
		return fmt.Errorf("no session to resolve")
	}

	if err := a.engine.ResolveOutcome(ctx, sess, args[0], expectedEntry); err != nil {
		return err
	}

	// A mismatch diagnosis can be refined by boot-time events.
	if sess.MatchStatus == model.MatchMismatch && !sess.HasEvent(correlate.UnexpectedShutdownEventID) {
		events := a.collector.CollectBootEvents(ctx, sess.BootTime(), a.cfg.Collector.MaxEvents)
		if len(events) > 0 {
			if err := a.engine.AttachEvents(sess, events); err != nil {
				a.log.Error("failed to attach events", "error", err)
			}
			if err := a.engine.ResolveOutcome(ctx, sess, args[0], expectedEntry); err != nil {
				return err
			}
		}
	}

	fmt.Println(tui.RenderSession(sess))
	return nil
}

// resolveTarget picks the session to resolve: an explicit --session,
// else the most recent unresolved session carrying an expectation, else
// the active one.
func resolveTarget(a *app, active *model.BootSession) *model.BootSession {
	if sessionFlag != "" {
		return a.store.Get(sessionFlag)
	}
	for _, sess := range a.store.History(0) {
		if sess.MatchStatus != model.MatchUnknown {
			continue
		}
		for _, op := range sess.PendingOperations {
			if model.ExpectationOp(op.OperationType) {
				return sess
			}
		}
	}
	return active
}

// runEvents collects or loads event log entries.
func runEvents(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ctx, span := a.tracer.Start(ctx, "events")
	defer span.End()

	if sessionFlag != "" {
		events, err := a.snapshots.LoadForSession(ctx, sessionFlag)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Printf("no snapshot for %s\n", sessionFlag)
			return nil
		}
		printEvents(events)
		return nil
	}

	maxEvents := maxEventsFlag
	if maxEvents <= 0 {
		maxEvents = a.cfg.Collector.MaxEvents
	}

	var events []model.EventLogEntry
	switch {
	case bcdErrors:
		events = a.collector.BCDErrorEvents(ctx)
	case bootStarts > 0:
		events = a.collector.SystemBootEvents(ctx, bootStarts)
	default:
		events = a.collector.CollectBootEvents(ctx, time.Time{}, maxEvents)
	}

	if len(events) == 0 {
		if !a.collector.HasPermission(ctx) {
			fmt.Println("no permission to read the event log")
			return nil
		}
		fmt.Println("no matching events")
		return nil
	}
	printEvents(events)

	if saveSnapshot {
		sess, err := a.detector.DetectOrCreate(ctx)
		if err != nil {
			return err
		}
		a.engine.Attach(sess)
		if err := a.snapshots.SaveForSession(ctx, sess.ID, events); err != nil {
			return err
		}
		if err := a.engine.AttachEvents(sess, events); err != nil {
			return err
		}
		fmt.Printf("saved %d events for %s\n", len(events), sess.ID)
	}
	return nil
}

func printEvents(events []model.EventLogEntry) {
	for _, e := range events {
		fmt.Println(tui.RenderEvent(e))
	}
}

// runLogs queries or follows the operations ledger.
func runLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if followLogs {
		if a.cfg.Storage.LedgerBackend != "jsonl" {
			return fmt.Errorf("--follow requires the jsonl ledger backend")
		}
		follower := watch.NewFollower(a.cfg.LedgerPath(), a.log, func(entry model.LogEntry) {
			fmt.Println(tui.RenderEntry(entry))
		})
		fmt.Fprintln(os.Stderr, "following the ledger, Ctrl-C to stop")
		if err := follower.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	var entries []model.LogEntry
	if logSession != "" {
		entries, err = a.ledger.QueryBySession(ctx, logSession)
	} else {
		entries, err = a.ledger.QueryRecent(ctx, logLimit, logCategory)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("no ledger entries")
		return nil
	}
	for _, entry := range entries {
		fmt.Println(tui.RenderEntry(entry))
	}
	return nil
}

// runExport writes the report artifacts.
func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ctx, span := a.tracer.Start(ctx, "export")
	defer span.End()

	exporter := export.New(a.store, a.ledger, a.snapshots, a.log)
	result, err := exporter.Export(ctx, export.Options{
		OutputDir:    exportDir,
		Formats:      exportFormats,
		RecentLimit:  exportLimit,
		ShowProgress: showProgress,
	})
	if err != nil {
		return err
	}

	fmt.Printf("exported %d sessions and %d ledger entries\n", result.SessionCount, result.EntryCount)
	for _, path := range result.Paths {
		fmt.Printf("  %s\n", path)
	}
	return nil
}

// runConfig prints the effective configuration as YAML.
func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
