package correlate

import (
	"strings"

	"github.com/bootlens/bootlens/internal/model"
)

// UnexpectedShutdownEventID is the kernel-power event recorded when the
// system restarted without a clean shutdown.
const UnexpectedShutdownEventID = 41

// Code is an enumerated diagnosis finding. The engine produces codes;
// text rendering happens at the presentation boundary.
type Code uint8

const (
	// CodeBootOnceCleared: a one-shot boot selection was pending, and
	// those are cleared by firmware after a single use or lost on crash.
	CodeBootOnceCleared Code = iota
	// CodeCheckPermissions: the configuration change may never have
	// been applied; the operation logs hold the evidence.
	CodeCheckPermissions
	// CodeUnexpectedShutdown: the session's events include an
	// unexpected shutdown, so the boot path may not have been normal.
	CodeUnexpectedShutdown
	// CodeUnknown: no rule matched.
	CodeUnknown
)

// String returns the operator-facing fragment for the code.
func (c Code) String() string {
	switch c {
	case CodeBootOnceCleared:
		return "Boot once may have been cleared or system crashed"
	case CodeCheckPermissions:
		return "Check operation logs for permission errors"
	case CodeUnexpectedShutdown:
		return "System experienced unexpected shutdown"
	default:
		return "Boot entry mismatch - cause unknown"
	}
}

// Diagnose evaluates the rule list against a mismatched session and
// returns the satisfied codes in fixed order. The permission-check
// rule is unconditional, so the result is never empty; this keeps the
// rendered output identical to what earlier releases produced.
func Diagnose(sess *model.BootSession) []Code {
	var codes []Code

	for _, op := range sess.PendingOperations {
		if op.OperationType == model.OpBootOnce {
			codes = append(codes, CodeBootOnceCleared)
			break
		}
	}

	codes = append(codes, CodeCheckPermissions)

	if sess.HasEvent(UnexpectedShutdownEventID) {
		codes = append(codes, CodeUnexpectedShutdown)
	}

	return codes
}

// Render joins diagnosis fragments with " | ". An empty code list
// renders the unknown-cause fallback.
func Render(codes []Code) string {
	if len(codes) == 0 {
		return CodeUnknown.String()
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}
