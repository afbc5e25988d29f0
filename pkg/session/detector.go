package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bootlens/bootlens/internal/model"
)

// BootTimeSource reports the OS's last boot time. Implementations are
// expected to be blocking calls bounded by the caller's context.
type BootTimeSource interface {
	BootTime(ctx context.Context) (time.Time, error)
}

// Detector decides whether the current process is running in a new
// boot session or resuming the last observed one. It owns the store
// and the last-boot marker file.
type Detector struct {
	store      *Store
	source     BootTimeSource
	markerPath string
	timeout    time.Duration
	log        *slog.Logger

	// active is the session returned by the first successful
	// DetectOrCreate; repeated calls in one process are idempotent.
	active *model.BootSession
}

// NewDetector creates a detector over the given store and source.
func NewDetector(store *Store, source BootTimeSource, markerPath string, timeout time.Duration, log *slog.Logger) *Detector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Detector{
		store:      store,
		source:     source,
		markerPath: markerPath,
		timeout:    timeout,
		log:        log,
	}
}

// Store returns the session store the detector owns.
func (d *Detector) Store() *Store {
	return d.store
}

// Active returns the session established by DetectOrCreate, or nil.
func (d *Detector) Active() *model.BootSession {
	return d.active
}

// DetectOrCreate probes the OS boot time and compares it with the last
// observed one. A strictly greater (or first-ever) boot time creates a
// new session; an equal timestamp resumes the stored one, so clock
// resolution ties never create spurious sessions. Probe failure
// degrades to resuming the latest stored session.
func (d *Detector) DetectOrCreate(ctx context.Context) (*model.BootSession, error) {
	if d.active != nil {
		return d.active, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	bootTime, err := d.source.BootTime(probeCtx)
	if err != nil {
		d.log.Error("boot time probe failed", "error", err)
		d.active = d.store.Latest()
		if d.active == nil {
			return nil, fmt.Errorf("failed to probe boot time: %w", err)
		}
		return d.active, nil
	}

	current := float64(bootTime.UnixNano()) / 1e9
	last, haveLast := d.loadMarker()

	if haveLast && current <= last {
		d.active = d.store.Latest()
		if d.active == nil {
			// Marker present but store lost: rebuild the session so
			// correlation still has somewhere to attach.
			return d.create(bootTime, current)
		}
		return d.active, nil
	}

	return d.create(bootTime, current)
}

func (d *Detector) create(bootTime time.Time, current float64) (*model.BootSession, error) {
	sess := model.NewBootSession(bootTime)

	if err := d.store.Append(sess); err != nil {
		return nil, err
	}
	if err := d.saveMarker(current); err != nil {
		d.log.Error("failed to save last boot marker", "error", err)
	}

	d.log.Info("new boot session detected", "session_id", sess.ID)
	d.active = sess
	return sess, nil
}

// loadMarker reads the last observed boot timestamp.
func (d *Detector) loadMarker() (float64, bool) {
	data, err := os.ReadFile(d.markerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Error("failed to load last boot marker", "error", err)
		}
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		d.log.Error("failed to parse last boot marker", "error", err)
		return 0, false
	}
	return v, true
}

// saveMarker persists the last observed boot timestamp atomically.
func (d *Detector) saveMarker(ts float64) error {
	return writeFileAtomic(d.markerPath, []byte(strconv.FormatFloat(ts, 'f', -1, 64)))
}
