package model

import "time"

// Operation types that produce an expectation for the next boot. Any
// other type string is recorded for audit only.
const (
	OpBootOnce   = "BOOT_ONCE"
	OpSetDefault = "SET_DEFAULT"
)

// ExpectationOp reports whether an operation type predicts the entry
// the machine should boot into next.
func ExpectationOp(opType string) bool {
	return opType == OpBootOnce || opType == OpSetDefault
}

// OperationRecord is one recorded boot-configuration action. Records
// are immutable once appended to a session's pending list.
type OperationRecord struct {
	// OperationID is unique per operation (op_YYYYMMDD_HHMMSS_xxxxxxxx).
	OperationID string `json:"operation_id"`

	// OperationType is BOOT_ONCE, SET_DEFAULT, or an opaque audit type.
	OperationType string `json:"operation_type"`

	// TargetEntry is the boot entry the operation targeted.
	TargetEntry string `json:"target_entry"`

	// Timestamp is when the operation was performed, seconds since epoch.
	Timestamp float64 `json:"timestamp"`
}

// Time returns the operation timestamp as a time.Time.
func (o OperationRecord) Time() time.Time {
	return timeFromSeconds(o.Timestamp)
}

// Ledger levels.
const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// Ledger categories.
const (
	CategoryUserAction      = "USER_ACTION"
	CategoryConfigOperation = "BCD_OPERATION"
	CategoryBackupOperation = "BACKUP_OPERATION"
	CategoryError           = "ERROR"
	CategoryInfo            = "INFO"
)

// LogEntry is one record in the append-only operation ledger.
type LogEntry struct {
	// Timestamp is seconds since epoch.
	Timestamp float64 `json:"timestamp"`

	// Level is INFO or ERROR.
	Level string `json:"log_level"`

	// Category groups entries (USER_ACTION, BCD_OPERATION, ...).
	Category string `json:"category"`

	// OperationID links the entry to an operation.
	OperationID string `json:"operation_id"`

	// SessionID is the boot session the entry belongs to, if any.
	SessionID string `json:"boot_session_id,omitempty"`

	// Message is the human-readable summary.
	Message string `json:"message"`

	// Details carries structured context for forensics.
	Details map[string]any `json:"details,omitempty"`
}

// Time returns the entry timestamp as a time.Time.
func (e LogEntry) Time() time.Time {
	return timeFromSeconds(e.Timestamp)
}

// FormattedTime renders the timestamp with millisecond precision.
func (e LogEntry) FormattedTime() string {
	return e.Time().Format("2006-01-02 15:04:05.000")
}
