package model

import "time"

// EventLogEntry is one parsed system event log record. Raw preserves
// every field of the source paragraph so nothing is lost to parsing.
type EventLogEntry struct {
	// EventID is the numeric system event identifier.
	EventID int `json:"event_id"`

	// Timestamp is seconds since epoch.
	Timestamp float64 `json:"timestamp"`

	// Level is the source log's severity string (e.g. "Information").
	Level string `json:"level"`

	// Source is the reporting component or log name.
	Source string `json:"source"`

	// Message is the event description.
	Message string `json:"message"`

	// Raw holds all parsed key/value fields from the source paragraph.
	Raw map[string]string `json:"raw_data,omitempty"`
}

// Time returns the event timestamp as a time.Time.
func (e EventLogEntry) Time() time.Time {
	return timeFromSeconds(e.Timestamp)
}

// FormattedTime renders the event timestamp as "2006-01-02 15:04:05".
func (e EventLogEntry) FormattedTime() string {
	return e.Time().Format("2006-01-02 15:04:05")
}
