package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bootlens/bootlens/internal/model"
	"github.com/bootlens/bootlens/pkg/applog"
)

// fakeBootTimeSource returns a fixed boot time or an error.
type fakeBootTimeSource struct {
	bootTime time.Time
	err      error
}

func (f *fakeBootTimeSource) BootTime(ctx context.Context) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.bootTime, nil
}

func testDetector(t *testing.T, dir string, source BootTimeSource) *Detector {
	t.Helper()
	store := NewStore(filepath.Join(dir, "boot_sessions.json"), 5, applog.Discard())
	return NewDetector(store, source, filepath.Join(dir, "last_boot_time.txt"), time.Second, applog.Discard())
}

// TestDetectCreatesFirstSession verifies the first run creates a
// session and writes the marker.
func TestDetectCreatesFirstSession(t *testing.T) {
	dir := t.TempDir()
	bootTime := time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)
	d := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})

	sess, err := d.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("DetectOrCreate failed: %v", err)
	}
	if sess.ID != model.SessionID(bootTime) {
		t.Errorf("session ID = %s", sess.ID)
	}
	if _, err := os.Stat(filepath.Join(dir, "last_boot_time.txt")); err != nil {
		t.Errorf("marker not written: %v", err)
	}
}

// TestDetectIdempotentWithinProcess verifies repeated calls return the
// same session without creating more.
func TestDetectIdempotentWithinProcess(t *testing.T) {
	dir := t.TempDir()
	d := testDetector(t, dir, &fakeBootTimeSource{bootTime: time.Now()})

	first, err := d.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("DetectOrCreate failed: %v", err)
	}
	second, err := d.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("second DetectOrCreate failed: %v", err)
	}
	if first != second {
		t.Error("repeated calls returned different sessions")
	}
	if d.Store().Len() != 1 {
		t.Errorf("store holds %d sessions, want 1", d.Store().Len())
	}
}

// TestDetectResumesEqualBootTime verifies an unchanged boot time
// resumes the stored session instead of creating a spurious one.
func TestDetectResumesEqualBootTime(t *testing.T) {
	dir := t.TempDir()
	bootTime := time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)

	first := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})
	created, err := first.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("DetectOrCreate failed: %v", err)
	}

	// Same boot time, new process.
	second := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})
	resumed, err := second.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.ID != created.ID {
		t.Errorf("resumed %s, want %s", resumed.ID, created.ID)
	}
	if second.Store().Len() != 1 {
		t.Errorf("store holds %d sessions, want 1", second.Store().Len())
	}
}

// TestDetectNewBootCreatesSession verifies a strictly greater boot
// time starts a new session.
func TestDetectNewBootCreatesSession(t *testing.T) {
	dir := t.TempDir()
	bootTime := time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)

	first := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})
	if _, err := first.DetectOrCreate(context.Background()); err != nil {
		t.Fatalf("DetectOrCreate failed: %v", err)
	}

	second := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime.Add(time.Hour)})
	sess, err := second.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("DetectOrCreate after reboot failed: %v", err)
	}
	if sess.ID != model.SessionID(bootTime.Add(time.Hour)) {
		t.Errorf("session ID = %s", sess.ID)
	}
	if second.Store().Len() != 2 {
		t.Errorf("store holds %d sessions, want 2", second.Store().Len())
	}
}

// TestDetectProbeFailureFallsBack verifies probe failure resumes the
// latest stored session, and errors only with an empty store.
func TestDetectProbeFailureFallsBack(t *testing.T) {
	dir := t.TempDir()
	bootTime := time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)

	first := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})
	created, err := first.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("DetectOrCreate failed: %v", err)
	}

	broken := testDetector(t, dir, &fakeBootTimeSource{err: errors.New("probe blew up")})
	sess, err := broken.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("fallback failed: %v", err)
	}
	if sess.ID != created.ID {
		t.Errorf("fell back to %s, want %s", sess.ID, created.ID)
	}

	empty := testDetector(t, t.TempDir(), &fakeBootTimeSource{err: errors.New("probe blew up")})
	if _, err := empty.DetectOrCreate(context.Background()); err == nil {
		t.Error("expected error with failing probe and empty store")
	}
}

// TestDetectMarkerWithoutStore verifies a present marker with a lost
// store rebuilds the session.
func TestDetectMarkerWithoutStore(t *testing.T) {
	dir := t.TempDir()
	bootTime := time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)

	first := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})
	if _, err := first.DetectOrCreate(context.Background()); err != nil {
		t.Fatalf("DetectOrCreate failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "boot_sessions.json")); err != nil {
		t.Fatal(err)
	}

	second := testDetector(t, dir, &fakeBootTimeSource{bootTime: bootTime})
	sess, err := second.DetectOrCreate(context.Background())
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if sess == nil || sess.ID != model.SessionID(bootTime) {
		t.Errorf("rebuilt session = %+v", sess)
	}
}
