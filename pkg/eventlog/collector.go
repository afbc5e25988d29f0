package eventlog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bootlens/bootlens/internal/model"
)

// BootEventIDs is the built-in allow-list of boot-relevant event
// identifiers queried from the primary log.
var BootEventIDs = []int{
	12,   // boot start
	13,   // boot end
	27,   // boot configuration
	41,   // unexpected shutdown
	1001, // bug check
	6005, // event log service started
	6006, // event log service stopped
	6008, // unexpected shutdown (previous)
	6009, // system boot
}

// bootStartEventIDs mark the beginning of a boot.
var bootStartEventIDs = []int{6005, 6009, 12}

// Options configure a Collector.
type Options struct {
	// ProbeTimeout bounds the one-time permission probe (default 5s).
	ProbeTimeout time.Duration

	// QueryTimeout bounds each event log query (default 10s).
	QueryTimeout time.Duration

	// EventIDs overrides the primary-log allow-list.
	EventIDs []int

	// TimestampMode is the parser mode (lenient by default).
	TimestampMode string
}

// Collector queries the OS event log for boot-relevant entries. All
// collection is gated by a one-time permission probe: once the probe
// fails, every call short-circuits to empty results for the collector's
// lifetime.
type Collector struct {
	source Source
	probe  PermissionProbe
	parser *Parser
	opts   Options
	log    *slog.Logger

	probeOnce     sync.Once
	hasPermission bool
}

// NewCollector creates a collector over the given source and probe.
func NewCollector(source Source, probe PermissionProbe, opts Options, log *slog.Logger) *Collector {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 10 * time.Second
	}
	if len(opts.EventIDs) == 0 {
		opts.EventIDs = BootEventIDs
	}
	return &Collector{
		source: source,
		probe:  probe,
		parser: NewParser(opts.TimestampMode),
		opts:   opts,
		log:    log,
	}
}

// HasPermission runs the permission probe on first use and caches the
// result for the collector's lifetime.
func (c *Collector) HasPermission(ctx context.Context) bool {
	c.probeOnce.Do(func() {
		probeCtx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
		defer cancel()
		c.hasPermission = c.probe.Check(probeCtx)
		if !c.hasPermission {
			c.log.Warn("no permission to read the event log; collection disabled")
		}
	})
	return c.hasPermission
}

// CollectBootEvents queries the primary log for the boot-relevant
// allow-list and the application log without a filter at half the
// budget, merges both, filters to timestamp >= since (when non-zero),
// sorts newest first, and truncates to maxEvents. Query failures and
// timeouts degrade to whatever was collected; nothing propagates.
func (c *Collector) CollectBootEvents(ctx context.Context, since time.Time, maxEvents int) []model.EventLogEntry {
	if !c.HasPermission(ctx) {
		return nil
	}

	events := c.query(ctx, Query{
		Log:       "System",
		XPath:     EventIDFilter(c.opts.EventIDs),
		MaxEvents: maxEvents,
	})
	events = append(events, c.query(ctx, Query{
		Log:       "Application",
		MaxEvents: maxEvents / 2,
	})...)

	if !since.IsZero() {
		sinceTS := float64(since.UnixNano()) / 1e9
		filtered := events[:0]
		for _, e := range events {
			if e.Timestamp >= sinceTS {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	return events
}

// BCDErrorEvents queries the primary log for kernel boot provider
// errors.
func (c *Collector) BCDErrorEvents(ctx context.Context) []model.EventLogEntry {
	if !c.HasPermission(ctx) {
		return nil
	}
	return c.query(ctx, Query{
		Log:       "System",
		XPath:     KernelBootErrorFilter,
		MaxEvents: 50,
	})
}

// SystemBootEvents returns boot-start events for the last bootCount
// boots.
func (c *Collector) SystemBootEvents(ctx context.Context, bootCount int) []model.EventLogEntry {
	events := c.CollectBootEvents(ctx, time.Time{}, bootCount*10)

	var starts []model.EventLogEntry
	for _, e := range events {
		for _, id := range bootStartEventIDs {
			if e.EventID == id {
				starts = append(starts, e)
				break
			}
		}
	}
	if len(starts) > bootCount {
		starts = starts[:bootCount]
	}
	return starts
}

// query runs one bounded query and parses its output. Failures are
// logged and yield no events.
func (c *Collector) query(ctx context.Context, q Query) []model.EventLogEntry {
	queryCtx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	output, err := c.source.Query(queryCtx, q)
	if err != nil {
		c.log.Error("event log query failed", "log", q.Log, "error", err)
		return nil
	}

	events, skipped := c.parser.Parse(output, q.Log)
	if skipped > 0 {
		c.log.Warn("skipped unparsable event records", "log", q.Log, "skipped", skipped)
	}
	return events
}
