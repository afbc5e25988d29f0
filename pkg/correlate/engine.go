// Package correlate matches operations recorded before a reboot with
// the boot entry observed after it, and diagnoses mismatches.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/ledger"
	"github.com/bootlens/bootlens/pkg/session"
)

// ErrNoActiveSession is returned when an intent is recorded before a
// boot session has been established.
var ErrNoActiveSession = errors.New("no active boot session")

// Engine attaches recorded intent to the active boot session and
// resolves expectation against the observed outcome after reboot.
type Engine struct {
	store  *session.Store
	ledger *ledger.Ledger
	log    *slog.Logger

	active *model.BootSession

	// now is swappable in tests.
	now func() time.Time
}

// NewEngine creates an engine over the session store and ledger.
func NewEngine(store *session.Store, led *ledger.Ledger, log *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		ledger: led,
		log:    log,
		now:    time.Now,
	}
}

// Attach sets the active boot session, normally the one returned by
// the detector at process start.
func (e *Engine) Attach(sess *model.BootSession) {
	e.active = sess
	if sess != nil {
		e.ledger.SetSessionID(sess.ID)
	}
}

// Active returns the attached session, or nil.
func (e *Engine) Active() *model.BootSession {
	return e.active
}

// RecordIntent appends an operation to the active session's pending
// list and to the ledger. Operations of type BOOT_ONCE or SET_DEFAULT
// later produce an expectation for the next boot; any other type is
// recorded for audit only.
func (e *Engine) RecordIntent(ctx context.Context, op model.OperationRecord) error {
	if e.active == nil {
		return ErrNoActiveSession
	}

	now := float64(e.now().UnixNano()) / 1e9
	if op.Timestamp == 0 {
		op.Timestamp = now
	}
	if op.Timestamp > now {
		return fmt.Errorf("operation timestamp %.3f is in the future", op.Timestamp)
	}
	if op.OperationID == "" {
		op.OperationID = e.ledger.NewOperationID()
	}

	e.active.PendingOperations = append(e.active.PendingOperations, op)
	if err := e.store.Save(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if err := e.ledger.Append(ctx, model.LogEntry{
		Timestamp:   op.Timestamp,
		Level:       model.LevelInfo,
		Category:    model.CategoryConfigOperation,
		OperationID: op.OperationID,
		SessionID:   e.active.ID,
		Message:     fmt.Sprintf("%s -> %s", op.OperationType, op.TargetEntry),
		Details: map[string]any{
			"operation_type": op.OperationType,
			"target_entry":   op.TargetEntry,
		},
	}); err != nil {
		return err
	}

	e.log.Info("intent recorded",
		"operation_id", op.OperationID,
		"operation_type", op.OperationType,
		"target_entry", op.TargetEntry,
		"session_id", e.active.ID)
	return nil
}

// ResolveOutcome records the actually-observed boot entry on sess and
// computes the match status. When expected is empty it is derived from
// the pending operations, scanning newest first for a BOOT_ONCE or
// SET_DEFAULT target. Matching is exact string equality. A mismatch
// triggers diagnosis. The session is persisted after every step.
func (e *Engine) ResolveOutcome(ctx context.Context, sess *model.BootSession, actual, expected string) error {
	if sess == nil {
		return ErrNoActiveSession
	}

	sess.ActualBootEntry = actual
	if expected != "" {
		sess.ExpectedBootEntry = expected
	} else if sess.ExpectedBootEntry == "" {
		sess.ExpectedBootEntry = deriveExpected(sess.PendingOperations)
	}
	if err := e.store.Save(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if !sess.Resolved() {
		return nil
	}

	if sess.ActualBootEntry == sess.ExpectedBootEntry {
		sess.MatchStatus = model.MatchOK
	} else {
		sess.MatchStatus = model.MatchMismatch
		sess.Diagnosis = Render(Diagnose(sess))
		e.log.Warn("boot entry mismatch",
			"session_id", sess.ID,
			"expected", sess.ExpectedBootEntry,
			"actual", sess.ActualBootEntry,
			"diagnosis", sess.Diagnosis)
	}
	if err := e.store.Save(); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	e.ledger.LogInfo(ctx,
		fmt.Sprintf("boot outcome resolved: %s", sess.MatchStatus),
		model.CategoryInfo,
		map[string]any{
			"session_id": sess.ID,
			"expected":   sess.ExpectedBootEntry,
			"actual":     sess.ActualBootEntry,
			"status":     sess.MatchStatus.String(),
		})
	return nil
}

// AttachEvents adds collected event log entries to the session and
// persists it, so late-arriving events can refine the diagnosis.
func (e *Engine) AttachEvents(sess *model.BootSession, events []model.EventLogEntry) error {
	if sess == nil {
		return ErrNoActiveSession
	}
	for _, ev := range events {
		sess.AddEvent(ev)
	}
	return e.store.Save()
}

// deriveExpected scans pending operations newest first for the first
// expectation-producing operation and returns its target.
func deriveExpected(ops []model.OperationRecord) string {
	for i := len(ops) - 1; i >= 0; i-- {
		if model.ExpectationOp(ops[i].OperationType) {
			return ops[i].TargetEntry
		}
	}
	return ""
}
