package ledger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/applog"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(testBackend(t), applog.Discard())
}

// TestNewOperationIDFormat verifies the op_YYYYMMDD_HHMMSS_xxxxxxxx
// shape and uniqueness.
func TestNewOperationIDFormat(t *testing.T) {
	l := testLedger(t)
	l.now = func() time.Time {
		return time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)
	}

	pattern := regexp.MustCompile(`^op_20260829_081500_[0-9a-f]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		id := l.NewOperationID()
		if !pattern.MatchString(id) {
			t.Fatalf("operation ID %q does not match pattern", id)
		}
		if seen[id] {
			t.Fatalf("duplicate operation ID %q", id)
		}
		seen[id] = true
	}
}

// TestLogConfigOperationTruncatesOutput verifies stdout/stderr are
// bounded at 500 characters and nonzero exits record at ERROR.
func TestLogConfigOperationTruncatesOutput(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	long := strings.Repeat("x", 2000)
	l.LogConfigOperation(ctx, "bcdedit", []string{"/set", "{bootmgr}"}, CommandResult{
		ExitCode: 1,
		Stdout:   long,
		Stderr:   long,
	})

	entries, err := l.QueryRecent(ctx, 1, "")
	if err != nil {
		t.Fatalf("QueryRecent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.Level != model.LevelError {
		t.Errorf("Level = %q, want ERROR", e.Level)
	}
	if e.Category != model.CategoryConfigOperation {
		t.Errorf("Category = %q", e.Category)
	}
	if stdout, _ := e.Details["stdout"].(string); len(stdout) != 500 {
		t.Errorf("stdout length = %d, want 500", len(stdout))
	}
	if stderr, _ := e.Details["stderr"].(string); len(stderr) != 500 {
		t.Errorf("stderr length = %d, want 500", len(stderr))
	}
}

// TestSessionIDStamping verifies entries carry the session set on the
// ledger.
func TestSessionIDStamping(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	l.LogUserAction(ctx, "before session", nil)
	l.SetSessionID("boot_20260829_081500")
	l.LogUserAction(ctx, "after session", nil)

	entries, err := l.QueryBySession(ctx, "boot_20260829_081500")
	if err != nil {
		t.Fatalf("QueryBySession failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries for session, want 1", len(entries))
	}
	if entries[0].Message != "after session" {
		t.Errorf("Message = %q", entries[0].Message)
	}
}

// TestLogErrorDetails verifies the error message lands in the details.
func TestLogErrorDetails(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	l.LogError(ctx, errors.New("access denied"), "setting boot entry", nil)

	entries, err := l.QueryRecent(ctx, 1, model.CategoryError)
	if err != nil {
		t.Fatalf("QueryRecent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if msg, _ := entries[0].Details["error_message"].(string); msg != "access denied" {
		t.Errorf("error_message = %q", msg)
	}
	if !strings.Contains(entries[0].Message, "access denied") {
		t.Errorf("Message = %q", entries[0].Message)
	}
}
