package correlate

import (
	"testing"
	"time"

	"github.com/bootlens/bootlens/internal/model"
)

func mismatchedSession() *model.BootSession {
	sess := model.NewBootSession(time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local))
	sess.ExpectedBootEntry = "Windows Recovery"
	sess.ActualBootEntry = "Windows 11"
	sess.MatchStatus = model.MatchMismatch
	return sess
}

// TestDiagnosePermissionRuleIsUnconditional verifies every mismatch
// carries the permission-check code.
func TestDiagnosePermissionRuleIsUnconditional(t *testing.T) {
	codes := Diagnose(mismatchedSession())
	if len(codes) != 1 || codes[0] != CodeCheckPermissions {
		t.Errorf("codes = %v, want only CodeCheckPermissions", codes)
	}
}

// TestDiagnoseBootOnce verifies a pending one-shot selection adds the
// boot-once code first, once, regardless of how many were recorded.
func TestDiagnoseBootOnce(t *testing.T) {
	sess := mismatchedSession()
	sess.PendingOperations = []model.OperationRecord{
		{OperationType: model.OpBootOnce, TargetEntry: "Windows Recovery"},
		{OperationType: model.OpBootOnce, TargetEntry: "Windows Recovery"},
	}

	codes := Diagnose(sess)
	if len(codes) != 2 {
		t.Fatalf("codes = %v, want 2", codes)
	}
	if codes[0] != CodeBootOnceCleared || codes[1] != CodeCheckPermissions {
		t.Errorf("codes = %v", codes)
	}
}

// TestDiagnoseUnexpectedShutdown verifies the event-41 rule.
func TestDiagnoseUnexpectedShutdown(t *testing.T) {
	sess := mismatchedSession()
	sess.AddEvent(model.EventLogEntry{EventID: UnexpectedShutdownEventID, Level: "Error"})

	codes := Diagnose(sess)
	found := false
	for _, c := range codes {
		if c == CodeUnexpectedShutdown {
			found = true
		}
	}
	if !found {
		t.Errorf("codes = %v, missing CodeUnexpectedShutdown", codes)
	}
}

// TestRenderJoinsFragments verifies the exact operator-facing text.
func TestRenderJoinsFragments(t *testing.T) {
	got := Render([]Code{CodeBootOnceCleared, CodeCheckPermissions, CodeUnexpectedShutdown})
	want := "Boot once may have been cleared or system crashed | " +
		"Check operation logs for permission errors | " +
		"System experienced unexpected shutdown"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

// TestRenderEmptyFallsBack verifies the unknown-cause fallback.
func TestRenderEmptyFallsBack(t *testing.T) {
	if got := Render(nil); got != "Boot entry mismatch - cause unknown" {
		t.Errorf("Render(nil) = %q", got)
	}
}
