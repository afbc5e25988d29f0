package correlate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/applog"
	"github.com/bootlens/bootlens/pkg/ledger"
	"github.com/bootlens/bootlens/pkg/session"
)

func testEngine(t *testing.T) (*Engine, *session.Store, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	store := session.NewStore(filepath.Join(dir, "boot_sessions.json"), 5, applog.Discard())
	led := ledger.New(ledger.NewJSONLBackend(filepath.Join(dir, "operations.jsonl")), applog.Discard())
	return NewEngine(store, led, applog.Discard()), store, led
}

func attachedSession(t *testing.T, e *Engine, store *session.Store) *model.BootSession {
	t.Helper()
	sess := model.NewBootSession(time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local))
	if err := store.Append(sess); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	e.Attach(sess)
	return sess
}

// TestRecordIntentRequiresSession verifies the sentinel error before a
// session is attached.
func TestRecordIntentRequiresSession(t *testing.T) {
	e, _, _ := testEngine(t)

	err := e.RecordIntent(context.Background(), model.OperationRecord{
		OperationType: model.OpBootOnce,
		TargetEntry:   "Windows Recovery",
	})
	if !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("err = %v, want ErrNoActiveSession", err)
	}
}

// TestRecordIntentPersistsAndLedgers verifies the operation lands on
// the session and in the ledger with a generated ID.
func TestRecordIntentPersistsAndLedgers(t *testing.T) {
	e, store, led := testEngine(t)
	sess := attachedSession(t, e, store)
	ctx := context.Background()

	if err := e.RecordIntent(ctx, model.OperationRecord{
		OperationType: model.OpBootOnce,
		TargetEntry:   "Windows Recovery",
	}); err != nil {
		t.Fatalf("RecordIntent failed: %v", err)
	}

	if len(sess.PendingOperations) != 1 {
		t.Fatalf("PendingOperations = %d, want 1", len(sess.PendingOperations))
	}
	op := sess.PendingOperations[0]
	if op.OperationID == "" || op.Timestamp == 0 {
		t.Errorf("operation not stamped: %+v", op)
	}

	entries, err := led.QueryBySession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("QueryBySession failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	if entries[0].Category != model.CategoryConfigOperation {
		t.Errorf("Category = %q", entries[0].Category)
	}
}

// TestRecordIntentRejectsFutureTimestamp verifies clock-skewed records
// are refused.
func TestRecordIntentRejectsFutureTimestamp(t *testing.T) {
	e, store, _ := testEngine(t)
	attachedSession(t, e, store)

	err := e.RecordIntent(context.Background(), model.OperationRecord{
		OperationType: model.OpBootOnce,
		TargetEntry:   "Windows Recovery",
		Timestamp:     float64(time.Now().Add(time.Hour).UnixNano()) / 1e9,
	})
	if err == nil {
		t.Error("future timestamp accepted")
	}
}

// TestResolveOutcomeMatch verifies exact equality yields MATCH with no
// diagnosis.
func TestResolveOutcomeMatch(t *testing.T) {
	e, store, _ := testEngine(t)
	sess := attachedSession(t, e, store)
	ctx := context.Background()

	if err := e.RecordIntent(ctx, model.OperationRecord{
		OperationType: model.OpSetDefault,
		TargetEntry:   "Windows 11",
	}); err != nil {
		t.Fatalf("RecordIntent failed: %v", err)
	}
	if err := e.ResolveOutcome(ctx, sess, "Windows 11", ""); err != nil {
		t.Fatalf("ResolveOutcome failed: %v", err)
	}

	if sess.MatchStatus != model.MatchOK {
		t.Errorf("MatchStatus = %v, want MATCH", sess.MatchStatus)
	}
	if sess.Diagnosis != "" {
		t.Errorf("Diagnosis = %q, want empty", sess.Diagnosis)
	}
	if sess.ExpectedBootEntry != "Windows 11" {
		t.Errorf("ExpectedBootEntry = %q, want derived target", sess.ExpectedBootEntry)
	}
}

// TestResolveOutcomeMismatchDiagnoses verifies a mismatch renders the
// diagnosis with the boot-once and permission fragments.
func TestResolveOutcomeMismatchDiagnoses(t *testing.T) {
	e, store, _ := testEngine(t)
	sess := attachedSession(t, e, store)
	ctx := context.Background()

	if err := e.RecordIntent(ctx, model.OperationRecord{
		OperationType: model.OpBootOnce,
		TargetEntry:   "Windows Recovery",
	}); err != nil {
		t.Fatalf("RecordIntent failed: %v", err)
	}
	if err := e.ResolveOutcome(ctx, sess, "Windows 11", ""); err != nil {
		t.Fatalf("ResolveOutcome failed: %v", err)
	}

	if sess.MatchStatus != model.MatchMismatch {
		t.Fatalf("MatchStatus = %v, want MISMATCH", sess.MatchStatus)
	}
	if !strings.Contains(sess.Diagnosis, "Boot once may have been cleared or system crashed") {
		t.Errorf("Diagnosis missing boot-once fragment: %q", sess.Diagnosis)
	}
	if !strings.Contains(sess.Diagnosis, "Check operation logs for permission errors") {
		t.Errorf("Diagnosis missing permission fragment: %q", sess.Diagnosis)
	}
}

// TestResolveOutcomeDerivesNewestExpectation verifies the reverse scan
// picks the most recent expectation-producing operation.
func TestResolveOutcomeDerivesNewestExpectation(t *testing.T) {
	e, store, _ := testEngine(t)
	sess := attachedSession(t, e, store)
	ctx := context.Background()

	ops := []model.OperationRecord{
		{OperationType: model.OpSetDefault, TargetEntry: "Windows 11"},
		{OperationType: "BACKUP", TargetEntry: "ignored"},
		{OperationType: model.OpBootOnce, TargetEntry: "Windows Recovery"},
	}
	for _, op := range ops {
		if err := e.RecordIntent(ctx, op); err != nil {
			t.Fatalf("RecordIntent failed: %v", err)
		}
	}

	if err := e.ResolveOutcome(ctx, sess, "Windows Recovery", ""); err != nil {
		t.Fatalf("ResolveOutcome failed: %v", err)
	}
	if sess.ExpectedBootEntry != "Windows Recovery" {
		t.Errorf("ExpectedBootEntry = %q, want newest expectation", sess.ExpectedBootEntry)
	}
	if sess.MatchStatus != model.MatchOK {
		t.Errorf("MatchStatus = %v, want MATCH", sess.MatchStatus)
	}
}

// TestResolveOutcomeWithoutExpectationStaysUnknown verifies a session
// with no expectation stays UNKNOWN after the actual entry arrives.
func TestResolveOutcomeWithoutExpectationStaysUnknown(t *testing.T) {
	e, store, _ := testEngine(t)
	sess := attachedSession(t, e, store)

	if err := e.ResolveOutcome(context.Background(), sess, "Windows 11", ""); err != nil {
		t.Fatalf("ResolveOutcome failed: %v", err)
	}
	if sess.MatchStatus != model.MatchUnknown {
		t.Errorf("MatchStatus = %v, want UNKNOWN", sess.MatchStatus)
	}
	if sess.ActualBootEntry != "Windows 11" {
		t.Errorf("ActualBootEntry = %q", sess.ActualBootEntry)
	}
}

// TestAttachEventsPersists verifies attached events survive a reload.
func TestAttachEventsPersists(t *testing.T) {
	e, store, _ := testEngine(t)
	sess := attachedSession(t, e, store)

	events := []model.EventLogEntry{
		{EventID: 41, Timestamp: sess.BootTimestamp, Level: "Error", Source: "Kernel-Power", Message: "unexpected shutdown"},
	}
	if err := e.AttachEvents(sess, events); err != nil {
		t.Fatalf("AttachEvents failed: %v", err)
	}
	if !sess.HasEvent(41) {
		t.Error("event not attached")
	}
}
