// Package eventlog collects boot-relevant entries from the OS event
// log, parses the raw paragraph output into structured entries, and
// keeps per-session snapshots for later inspection.
package eventlog

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Query describes one event log query.
type Query struct {
	// Log is the log name, e.g. "System" or "Application".
	Log string

	// XPath is an optional event filter expression.
	XPath string

	// MaxEvents bounds the number of returned events.
	MaxEvents int
}

// Source issues queries against the OS event subsystem and returns the
// raw paragraph-structured text output.
type Source interface {
	Query(ctx context.Context, q Query) (string, error)
}

// PermissionProbe reports whether event log reads are authorized.
type PermissionProbe interface {
	Check(ctx context.Context) bool
}

// EventIDFilter builds an XPath expression selecting the given event
// identifiers.
func EventIDFilter(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("EventID=%d", id)
	}
	return "*[System[" + strings.Join(parts, " or ") + "]]"
}

// KernelBootErrorFilter selects error-level events from the kernel
// boot provider.
const KernelBootErrorFilter = `*[System[Provider[@Name="Microsoft-Windows-Kernel-Boot"] and Level=2]]`

// WevtutilSource queries the Windows event log via the wevtutil tool.
// Each query is a single blocking subprocess invocation bounded by the
// caller's context.
type WevtutilSource struct{}

// Query runs wevtutil qe with the documented argument shape:
// wevtutil qe <log> /c:<max> /rd:true /f:text [/q:<xpath>]
func (WevtutilSource) Query(ctx context.Context, q Query) (string, error) {
	args := Args(q)
	out, err := exec.CommandContext(ctx, "wevtutil", args...).Output()
	if err != nil {
		return "", fmt.Errorf("event log query failed for %s: %w", q.Log, err)
	}
	return string(out), nil
}

// Check issues a minimal one-event query to verify read access.
func (s WevtutilSource) Check(ctx context.Context) bool {
	_, err := s.Query(ctx, Query{Log: "System", MaxEvents: 1})
	return err == nil
}

// Args renders the wevtutil argument list for a query.
func Args(q Query) []string {
	args := []string{"qe", q.Log, fmt.Sprintf("/c:%d", q.MaxEvents), "/rd:true", "/f:text"}
	if q.XPath != "" {
		args = append(args, "/q:"+q.XPath)
	}
	return args
}
