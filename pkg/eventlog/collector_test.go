package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bootlens/bootlens/pkg/applog"
	"github.com/bootlens/bootlens/pkg/config"
)

// fakeSource replays canned output per log name and records queries.
type fakeSource struct {
	output  map[string]string
	err     error
	allowed bool
	queries []Query
}

func (f *fakeSource) Query(ctx context.Context, q Query) (string, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return "", f.err
	}
	return f.output[q.Log], nil
}

func (f *fakeSource) Check(ctx context.Context) bool {
	return f.allowed
}

func eventOutput(id int, date string) string {
	return fmt.Sprintf("Event ID: %d\nDate: %s\nLevel: Information\nSource: Kernel\nDescription: event %d\n", id, date, id)
}

// TestCollectorPermissionGate verifies a failed probe short-circuits
// every collection for the collector's lifetime.
func TestCollectorPermissionGate(t *testing.T) {
	src := &fakeSource{allowed: false, output: map[string]string{
		"System": eventOutput(12, "2024-01-01 10:00:00"),
	}}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	if got := c.CollectBootEvents(context.Background(), time.Time{}, 10); got != nil {
		t.Errorf("collected %d events without permission", len(got))
	}
	if len(src.queries) != 0 {
		t.Errorf("source queried %d times despite failed probe", len(src.queries))
	}

	// The probe result is cached; granting permission later changes
	// nothing for this collector.
	src.allowed = true
	if got := c.CollectBootEvents(context.Background(), time.Time{}, 10); got != nil {
		t.Errorf("cached probe result ignored, collected %d events", len(got))
	}
}

// TestCollectBootEvents verifies the two-log query shape, the merge,
// the newest-first order, and the budget.
func TestCollectBootEvents(t *testing.T) {
	src := &fakeSource{allowed: true, output: map[string]string{
		"System": eventOutput(12, "2024-01-01 10:00:00") + "\n" +
			eventOutput(6005, "2024-01-01 10:02:00"),
		"Application": eventOutput(1001, "2024-01-01 10:01:00"),
	}}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	events := c.CollectBootEvents(context.Background(), time.Time{}, 10)
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].EventID != 6005 || events[1].EventID != 1001 || events[2].EventID != 12 {
		t.Errorf("order = %d, %d, %d", events[0].EventID, events[1].EventID, events[2].EventID)
	}

	if len(src.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(src.queries))
	}
	sys := src.queries[0]
	if sys.Log != "System" || !strings.Contains(sys.XPath, "EventID=6005") || sys.MaxEvents != 10 {
		t.Errorf("system query = %+v", sys)
	}
	app := src.queries[1]
	if app.Log != "Application" || app.XPath != "" || app.MaxEvents != 5 {
		t.Errorf("application query = %+v", app)
	}
}

// TestCollectBootEventsSinceFilter verifies older events are dropped.
func TestCollectBootEventsSinceFilter(t *testing.T) {
	src := &fakeSource{allowed: true, output: map[string]string{
		"System": eventOutput(12, "2024-01-01 10:00:00") + "\n" +
			eventOutput(6005, "2024-01-02 10:00:00"),
	}}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local)
	events := c.CollectBootEvents(context.Background(), since, 10)
	if len(events) != 1 || events[0].EventID != 6005 {
		t.Errorf("events = %+v, want only the newer one", events)
	}
}

// TestCollectBootEventsTruncates verifies the maxEvents budget after
// the merge.
func TestCollectBootEventsTruncates(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 6; i++ {
		sb.WriteString(eventOutput(6005, fmt.Sprintf("2024-01-01 10:0%d:00", i)))
		sb.WriteString("\n")
	}
	src := &fakeSource{allowed: true, output: map[string]string{"System": sb.String()}}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	events := c.CollectBootEvents(context.Background(), time.Time{}, 4)
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	// Newest survive the cut.
	if events[0].Time().Minute() != 5 {
		t.Errorf("first event minute = %d, want 5", events[0].Time().Minute())
	}
}

// TestCollectBootEventsQueryFailure verifies failures degrade to empty
// instead of propagating.
func TestCollectBootEventsQueryFailure(t *testing.T) {
	src := &fakeSource{allowed: true, err: errors.New("rpc unavailable")}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	if events := c.CollectBootEvents(context.Background(), time.Time{}, 10); len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
}

// TestBCDErrorEvents verifies the kernel boot provider filter is used.
func TestBCDErrorEvents(t *testing.T) {
	src := &fakeSource{allowed: true, output: map[string]string{
		"System": eventOutput(29, "2024-01-01 10:00:00"),
	}}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	events := c.BCDErrorEvents(context.Background())
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if len(src.queries) != 1 || src.queries[0].XPath != KernelBootErrorFilter {
		t.Errorf("query = %+v", src.queries)
	}
}

// TestSystemBootEvents verifies only boot-start IDs survive and the
// boot count bounds the result.
func TestSystemBootEvents(t *testing.T) {
	src := &fakeSource{allowed: true, output: map[string]string{
		"System": eventOutput(6005, "2024-01-03 10:00:00") + "\n" +
			eventOutput(41, "2024-01-02 12:00:00") + "\n" +
			eventOutput(6009, "2024-01-02 10:00:00") + "\n" +
			eventOutput(12, "2024-01-01 10:00:00"),
	}}
	c := NewCollector(src, src, Options{TimestampMode: config.TimestampStrict}, applog.Discard())

	starts := c.SystemBootEvents(context.Background(), 2)
	if len(starts) != 2 {
		t.Fatalf("starts = %d, want 2", len(starts))
	}
	if starts[0].EventID != 6005 || starts[1].EventID != 6009 {
		t.Errorf("starts = %d, %d", starts[0].EventID, starts[1].EventID)
	}
}
