package eventlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bootlens/bootlens/internal/model"
)

// ErrSnapshotNotFound is returned by backends when no snapshot exists
// for a session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the persisted per-session event capture.
type Snapshot struct {
	// SessionID keys the snapshot.
	SessionID string `json:"session_id"`

	// SavedTimestamp is when the snapshot was written, seconds since
	// epoch.
	SavedTimestamp float64 `json:"saved_timestamp"`

	// Events is the captured event sequence.
	Events []model.EventLogEntry `json:"events"`
}

// SnapshotBackend defines the interface for snapshot storage backends.
// Implementations can store snapshots locally, in Redis, or in S3.
type SnapshotBackend interface {
	// Save persists a snapshot, overwriting any previous one for the
	// same session.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves the snapshot for a session, or
	// ErrSnapshotNotFound.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// Cleanup deletes all but the retain most-recently-saved
	// snapshots and returns how many were removed.
	Cleanup(ctx context.Context, retain int) (int, error)

	// Name returns the backend name for logging/debugging.
	Name() string

	// Close releases backend resources.
	Close() error
}

// Snapshots wraps a backend with the retention policy: every save
// triggers a cleanup keeping the most recent snapshots.
type Snapshots struct {
	backend SnapshotBackend
	retain  int
	log     *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewSnapshots creates the snapshot store. retain <= 0 means the
// default of 5.
func NewSnapshots(backend SnapshotBackend, retain int, log *slog.Logger) *Snapshots {
	if retain <= 0 {
		retain = 5
	}
	return &Snapshots{
		backend: backend,
		retain:  retain,
		log:     log,
		now:     time.Now,
	}
}

// SaveForSession persists the events for a session and applies
// retention. Cleanup failures are logged, not propagated: the snapshot
// itself was written.
func (s *Snapshots) SaveForSession(ctx context.Context, sessionID string, events []model.EventLogEntry) error {
	snap := &Snapshot{
		SessionID:      sessionID,
		SavedTimestamp: float64(s.now().UnixNano()) / 1e9,
		Events:         events,
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		s.log.Error("failed to save event snapshot", "session_id", sessionID, "error", err)
		return err
	}

	if removed, err := s.backend.Cleanup(ctx, s.retain); err != nil {
		s.log.Error("snapshot cleanup failed", "error", err)
	} else if removed > 0 {
		s.log.Info("removed old event snapshots", "count", removed)
	}
	return nil
}

// LoadForSession retrieves the events for a session. A missing
// snapshot is an empty sequence, not an error.
func (s *Snapshots) LoadForSession(ctx context.Context, sessionID string) ([]model.EventLogEntry, error) {
	snap, err := s.backend.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil, nil
		}
		s.log.Error("failed to load event snapshot", "session_id", sessionID, "error", err)
		return nil, err
	}
	return snap.Events, nil
}

// Close releases the backend.
func (s *Snapshots) Close() error {
	return s.backend.Close()
}
