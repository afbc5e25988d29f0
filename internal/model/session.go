// Package model defines the core data structures for bootlens: boot
// sessions, operation records, ledger entries, and system event log
// entries. All persisted timestamps are float64 seconds since the Unix
// epoch so that artifacts written by older builds keep round-tripping.
package model

import (
	"fmt"
	"time"
)

// MatchStatus describes whether the observed boot entry matched the
// expectation recorded before the reboot.
type MatchStatus uint8

const (
	// MatchUnknown means expected or actual entry is not known yet.
	MatchUnknown MatchStatus = iota
	// MatchOK means expected and actual entries were identical.
	MatchOK
	// MatchMismatch means the machine booted into a different entry.
	MatchMismatch
)

// String returns the wire name of the status.
func (m MatchStatus) String() string {
	switch m {
	case MatchOK:
		return "MATCH"
	case MatchMismatch:
		return "MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// ParseMatchStatus parses a wire status name.
func ParseMatchStatus(s string) MatchStatus {
	switch s {
	case "MATCH":
		return MatchOK
	case "MISMATCH":
		return MatchMismatch
	default:
		return MatchUnknown
	}
}

// MarshalJSON encodes the status as its wire name.
func (m MatchStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON decodes a wire status name.
func (m *MatchStatus) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid match status %q", data)
	}
	*m = ParseMatchStatus(string(data[1 : len(data)-1]))
	return nil
}

// BootSession represents one interval of machine uptime. Operations
// performed during the session are collected as pending operations and
// resolved against the entry observed on the next boot.
type BootSession struct {
	// ID is derived from the boot timestamp (boot_YYYYMMDD_HHMMSS),
	// stable and human-sortable.
	ID string `json:"session_id"`

	// BootTimestamp is the OS-reported boot time, seconds since epoch.
	BootTimestamp float64 `json:"boot_timestamp"`

	// PendingOperations are the operations recorded during this session,
	// in append order. They diagnose the next boot.
	PendingOperations []OperationRecord `json:"previous_operations"`

	// ActualBootEntry is the entry the machine actually booted into.
	ActualBootEntry string `json:"actual_boot_entry,omitempty"`

	// ExpectedBootEntry is the entry the recorded intent predicted.
	ExpectedBootEntry string `json:"expected_boot_entry,omitempty"`

	// MatchStatus stays UNKNOWN until both entries are known.
	MatchStatus MatchStatus `json:"boot_match_status"`

	// Diagnosis is empty until a mismatch has been diagnosed.
	Diagnosis string `json:"diagnosis"`

	// Events are the system event log entries attached to this session.
	Events []EventLogEntry `json:"event_logs"`
}

// NewBootSession creates a session for the given boot time with the
// canonical derived identifier.
func NewBootSession(bootTime time.Time) *BootSession {
	return &BootSession{
		ID:            SessionID(bootTime),
		BootTimestamp: float64(bootTime.UnixNano()) / float64(time.Second),
	}
}

// SessionID derives the canonical session identifier from a boot time.
func SessionID(bootTime time.Time) string {
	return "boot_" + bootTime.Format("20060102_150405")
}

// BootTime returns the boot timestamp as a time.Time.
func (s *BootSession) BootTime() time.Time {
	return timeFromSeconds(s.BootTimestamp)
}

// FormattedTime renders the boot time as "2006-01-02 15:04:05".
func (s *BootSession) FormattedTime() string {
	return s.BootTime().Format("2006-01-02 15:04:05")
}

// HasEvent reports whether any attached event has the given event ID.
func (s *BootSession) HasEvent(eventID int) bool {
	for i := range s.Events {
		if s.Events[i].EventID == eventID {
			return true
		}
	}
	return false
}

// AddEvent attaches an event log entry to the session.
func (s *BootSession) AddEvent(e EventLogEntry) {
	s.Events = append(s.Events, e)
}

// Resolved reports whether both expected and actual entries are known.
func (s *BootSession) Resolved() bool {
	return s.ActualBootEntry != "" && s.ExpectedBootEntry != ""
}

func timeFromSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}
