// Package tui renders sessions, ledger entries, and events for the
// terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bootlens/bootlens/internal/model"
)

var (
	accent  = lipgloss.Color("#FF5F5F")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(white)
	mutedStyle    = lipgloss.NewStyle().Foreground(muted)
	mismatchStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	matchStyle    = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// StatusBadge renders a match status with color.
func StatusBadge(status model.MatchStatus) string {
	switch status {
	case model.MatchOK:
		return matchStyle.Render("MATCH")
	case model.MatchMismatch:
		return mismatchStyle.Render("MISMATCH")
	default:
		return mutedStyle.Render("UNKNOWN")
	}
}

// RenderSession renders one session as a block.
func RenderSession(sess *model.BootSession) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s  %s\n",
		titleStyle.Render(sess.ID),
		mutedStyle.Render(sess.FormattedTime()),
		StatusBadge(sess.MatchStatus))

	if sess.ExpectedBootEntry != "" || sess.ActualBootEntry != "" {
		fmt.Fprintf(&b, "  expected: %s\n  actual:   %s\n",
			orDash(sess.ExpectedBootEntry), orDash(sess.ActualBootEntry))
	}
	if len(sess.PendingOperations) > 0 {
		fmt.Fprintf(&b, "  pending operations:\n")
		for _, op := range sess.PendingOperations {
			fmt.Fprintf(&b, "    %s  %s -> %s\n",
				mutedStyle.Render(op.Time().Format("15:04:05")),
				op.OperationType, op.TargetEntry)
		}
	}
	if sess.Diagnosis != "" {
		fmt.Fprintf(&b, "  diagnosis: %s\n", mismatchStyle.Render(sess.Diagnosis))
	}
	return b.String()
}

// RenderEntry renders one ledger entry as a line.
func RenderEntry(entry model.LogEntry) string {
	level := entry.Level
	if entry.Level == model.LevelError {
		level = mismatchStyle.Render(entry.Level)
	}
	return fmt.Sprintf("%s  %-5s  %-16s  %s",
		mutedStyle.Render(entry.FormattedTime()),
		level, entry.Category, entry.Message)
}

// RenderEvent renders one event log entry as a line.
func RenderEvent(e model.EventLogEntry) string {
	return fmt.Sprintf("%s  %6d  %-12s  %s: %s",
		mutedStyle.Render(e.FormattedTime()),
		e.EventID, e.Level, e.Source, e.Message)
}

func orDash(s string) string {
	if s == "" {
		return mutedStyle.Render("-")
	}
	return s
}
