package eventlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/config"
)

// dateFormats is the ordered list of layouts tried against event
// dates; the first match wins.
var dateFormats = []string{
	"01/02/2006 03:04:05 PM", // US format with AM/PM
	"2006-01-02 15:04:05",    // ISO format
	"02/01/2006 15:04:05",    // EU format
}

// Parser turns raw paragraph output into event entries.
type Parser struct {
	// Mode is config.TimestampLenient or config.TimestampStrict.
	Mode string

	// now is swappable in tests.
	now func() time.Time
}

// NewParser creates a parser in the given timestamp mode.
func NewParser(mode string) *Parser {
	return &Parser{Mode: mode, now: time.Now}
}

// Parse splits the raw output into blank-line-delimited paragraphs of
// "key: value" pairs and converts each paragraph to one entry. A
// paragraph that cannot be converted is skipped and counted; the batch
// always continues.
func (p *Parser) Parse(output, logName string) (entries []model.EventLogEntry, skipped int) {
	fields := map[string]string{}

	flush := func() {
		if len(fields) == 0 {
			return
		}
		if e, ok := p.entry(fields, logName); ok {
			entries = append(entries, e)
		} else {
			skipped++
		}
		fields = map[string]string{}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	flush()

	return entries, skipped
}

// entry converts one parsed paragraph into an event entry.
func (p *Parser) entry(fields map[string]string, logName string) (model.EventLogEntry, bool) {
	idStr := fields["Event ID"]
	if idStr == "" {
		idStr = "0"
	}
	eventID, err := strconv.Atoi(idStr)
	if err != nil {
		return model.EventLogEntry{}, false
	}

	ts, ok := p.timestamp(fields["Date"])
	if !ok {
		return model.EventLogEntry{}, false
	}

	level := fields["Level"]
	if level == "" {
		level = "Information"
	}
	source := fields["Source"]
	if source == "" {
		source = logName
	}
	message := fields["Description"]
	if message == "" {
		message = "No description"
	}

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v
	}

	return model.EventLogEntry{
		EventID:   eventID,
		Timestamp: ts,
		Level:     level,
		Source:    source,
		Message:   message,
		Raw:       raw,
	}, true
}

// timestamp tries the ordered format list. In lenient mode unparsable
// dates fall back to "now"; in strict mode the record is dropped.
func (p *Parser) timestamp(dateStr string) (float64, bool) {
	dateStr = strings.TrimSpace(dateStr)
	for _, layout := range dateFormats {
		if t, err := time.ParseInLocation(layout, dateStr, time.Local); err == nil {
			return float64(t.UnixNano()) / 1e9, true
		}
	}
	if p.Mode == config.TimestampStrict {
		return 0, false
	}
	return float64(p.now().UnixNano()) / 1e9, true
}
