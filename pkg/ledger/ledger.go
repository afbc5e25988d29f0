// Package ledger provides the durable, append-only record of every
// logged action. Records are never rewritten or deleted; queries are
// full scans bounded by the operational size of the ledger. Two
// backends exist: a line-delimited JSON file (the default, matching the
// on-disk artifact of older builds) and an embedded DuckDB database for
// installations that want transactional writes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bootlens/bootlens/internal/model"
)

// Backend defines the interface for ledger storage backends.
type Backend interface {
	// Append persists one entry. Prior records are never modified.
	Append(ctx context.Context, entry model.LogEntry) error

	// QueryBySession returns all entries for a session, ascending by
	// timestamp. Malformed records are skipped, not fatal.
	QueryBySession(ctx context.Context, sessionID string) ([]model.LogEntry, error)

	// QueryRecent returns up to limit entries, most recent first,
	// optionally filtered by category ("" means all).
	QueryRecent(ctx context.Context, limit int, category string) ([]model.LogEntry, error)

	// Name returns the backend name for logging/debugging.
	Name() string

	// Close releases backend resources.
	Close() error
}

// Ledger wraps a backend with the operation-level recording API used
// by the rest of the system. Every recording method writes one entry
// to the backend, mirrors it to the application log, and returns the
// generated operation ID.
type Ledger struct {
	backend Backend
	log     *slog.Logger

	// sessionID is stamped onto every new entry. Set once the active
	// boot session is known.
	sessionID string

	// now is swappable in tests.
	now func() time.Time
}

// New creates a Ledger over the given backend.
func New(backend Backend, log *slog.Logger) *Ledger {
	return &Ledger{
		backend: backend,
		log:     log,
		now:     time.Now,
	}
}

// SetSessionID sets the boot session stamped onto subsequent entries.
func (l *Ledger) SetSessionID(sessionID string) {
	l.sessionID = sessionID
	l.log.Info("boot session set", "session_id", sessionID)
}

// SessionID returns the currently stamped boot session.
func (l *Ledger) SessionID() string {
	return l.sessionID
}

// Backend exposes the underlying backend for read-only consumers.
func (l *Ledger) Backend() Backend {
	return l.backend
}

// NewOperationID generates a unique operation identifier of the form
// op_YYYYMMDD_HHMMSS_xxxxxxxx.
func (l *Ledger) NewOperationID() string {
	return fmt.Sprintf("op_%s_%s", l.now().Format("20060102_150405"), uuid.NewString()[:8])
}

// Append writes a fully-formed entry to the backend.
func (l *Ledger) Append(ctx context.Context, entry model.LogEntry) error {
	if err := l.backend.Append(ctx, entry); err != nil {
		l.log.Error("failed to write ledger entry", "error", err, "category", entry.Category)
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

// LogUserAction records an action initiated by the operator.
func (l *Ledger) LogUserAction(ctx context.Context, action string, details map[string]any) string {
	opID := l.NewOperationID()
	l.log.Info("USER_ACTION", "action", action, "operation_id", opID)
	l.write(ctx, model.LogEntry{
		Timestamp:   l.stamp(),
		Level:       model.LevelInfo,
		Category:    model.CategoryUserAction,
		OperationID: opID,
		SessionID:   l.sessionID,
		Message:     action,
		Details:     details,
	})
	return opID
}

// CommandResult carries the outcome of an external configuration command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// LogConfigOperation records a boot-configuration mutation with the
// full command invocation. Nonzero exit codes are recorded at ERROR.
func (l *Ledger) LogConfigOperation(ctx context.Context, command string, args []string, result CommandResult) string {
	opID := l.NewOperationID()

	details := map[string]any{
		"command":    command,
		"args":       args,
		"returncode": result.ExitCode,
		"stdout":     truncate(result.Stdout, 500),
		"stderr":     truncate(result.Stderr, 500),
	}

	level := model.LevelInfo
	if result.ExitCode != 0 {
		level = model.LevelError
		l.log.Error("config operation failed", "command", command, "args", args, "stderr", result.Stderr)
	} else {
		l.log.Info("config operation", "command", command, "args", args)
	}

	l.write(ctx, model.LogEntry{
		Timestamp:   l.stamp(),
		Level:       level,
		Category:    model.CategoryConfigOperation,
		OperationID: opID,
		SessionID:   l.sessionID,
		Message:     command + " " + strings.Join(args, " "),
		Details:     details,
	})
	return opID
}

// LogBackupOperation records a backup create/restore/delete outcome.
func (l *Ledger) LogBackupOperation(ctx context.Context, opType, backupName string, success bool, details map[string]any) string {
	opID := l.NewOperationID()

	if details == nil {
		details = map[string]any{}
	}
	details["backup_name"] = backupName
	details["operation_type"] = opType
	details["success"] = success

	level := model.LevelInfo
	outcome := "SUCCESS"
	if !success {
		level = model.LevelError
		outcome = "FAILED"
	}
	msg := fmt.Sprintf("Backup %s: %s - %s", opType, backupName, outcome)

	if success {
		l.log.Info(msg)
	} else {
		l.log.Error(msg)
	}

	l.write(ctx, model.LogEntry{
		Timestamp:   l.stamp(),
		Level:       level,
		Category:    model.CategoryBackupOperation,
		OperationID: opID,
		SessionID:   l.sessionID,
		Message:     msg,
		Details:     details,
	})
	return opID
}

// LogError records an error with its context.
func (l *Ledger) LogError(ctx context.Context, err error, context string, details map[string]any) string {
	opID := l.NewOperationID()

	if details == nil {
		details = map[string]any{}
	}
	details["error_message"] = err.Error()

	l.log.Error("error", "context", context, "error", err)
	l.write(ctx, model.LogEntry{
		Timestamp:   l.stamp(),
		Level:       model.LevelError,
		Category:    model.CategoryError,
		OperationID: opID,
		SessionID:   l.sessionID,
		Message:     context + ": " + err.Error(),
		Details:     details,
	})
	return opID
}

// LogInfo records a general informational message.
func (l *Ledger) LogInfo(ctx context.Context, message, category string, details map[string]any) string {
	opID := l.NewOperationID()
	if category == "" {
		category = model.CategoryInfo
	}

	l.log.Info(message, "category", category)
	l.write(ctx, model.LogEntry{
		Timestamp:   l.stamp(),
		Level:       model.LevelInfo,
		Category:    category,
		OperationID: opID,
		SessionID:   l.sessionID,
		Message:     message,
		Details:     details,
	})
	return opID
}

// QueryBySession returns all ledger entries for a session, ascending.
func (l *Ledger) QueryBySession(ctx context.Context, sessionID string) ([]model.LogEntry, error) {
	return l.backend.QueryBySession(ctx, sessionID)
}

// QueryRecent returns up to limit recent entries, newest first.
func (l *Ledger) QueryRecent(ctx context.Context, limit int, category string) ([]model.LogEntry, error) {
	return l.backend.QueryRecent(ctx, limit, category)
}

// Close releases the backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}

// write appends best-effort: the ledger never propagates append
// failures out of the recording helpers, it only mirrors them.
func (l *Ledger) write(ctx context.Context, entry model.LogEntry) {
	if err := l.backend.Append(ctx, entry); err != nil {
		l.log.Error("failed to write ledger entry", "error", err, "category", entry.Category)
	}
}

func (l *Ledger) stamp() float64 {
	return float64(l.now().UnixNano()) / 1e9
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

