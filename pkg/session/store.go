// Package session provides boot-session detection and the bounded,
// persisted session history. A session is one interval of machine
// uptime; the store keeps the most recent few and evicts the oldest.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bootlens/bootlens/internal/model"
)

// DefaultMaxSessions is the bounded history size.
const DefaultMaxSessions = 5

// Store is the persisted, bounded collection of boot sessions. All
// mutation goes through Append and Save, which take a process-exclusive
// lock file and replace the store file atomically (write temp, rename).
type Store struct {
	path        string
	maxSessions int
	log         *slog.Logger

	sessions []*model.BootSession
}

// NewStore loads the session store at path. A missing or unreadable
// file yields an empty store; corrupt content is logged and discarded.
func NewStore(path string, maxSessions int, log *slog.Logger) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	s := &Store{
		path:        path,
		maxSessions: maxSessions,
		log:         log,
	}
	s.load()
	return s
}

// load reads the store file. Failures degrade to an empty store.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("failed to load boot sessions", "error", err, "path", s.path)
		}
		return
	}

	var sessions []*model.BootSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.log.Error("failed to decode boot sessions", "error", err, "path", s.path)
		return
	}
	s.sessions = sessions
}

// Sessions returns the stored sessions, oldest first.
func (s *Store) Sessions() []*model.BootSession {
	return s.sessions
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	return len(s.sessions)
}

// Latest returns the most recently appended session, or nil.
func (s *Store) Latest() *model.BootSession {
	if len(s.sessions) == 0 {
		return nil
	}
	return s.sessions[len(s.sessions)-1]
}

// Get returns the session with the given ID, or nil.
func (s *Store) Get(sessionID string) *model.BootSession {
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			return sess
		}
	}
	return nil
}

// History returns up to count sessions, most recent first.
func (s *Store) History(count int) []*model.BootSession {
	if count <= 0 || count > len(s.sessions) {
		count = len(s.sessions)
	}
	out := make([]*model.BootSession, 0, count)
	for i := len(s.sessions) - 1; i >= len(s.sessions)-count; i-- {
		out = append(out, s.sessions[i])
	}
	return out
}

// Append adds a session and persists the store, evicting the oldest
// sessions beyond the bound.
func (s *Store) Append(sess *model.BootSession) error {
	s.sessions = append(s.sessions, sess)
	return s.Save()
}

// Save persists the store under the lock, truncating to the bound
// (oldest evicted first) and replacing the file atomically.
func (s *Store) Save() error {
	unlock, err := acquireLock(s.path + ".lock")
	if err != nil {
		s.log.Error("failed to lock session store", "error", err)
		return fmt.Errorf("failed to lock session store: %w", err)
	}
	defer unlock()

	if len(s.sessions) > s.maxSessions {
		s.sessions = s.sessions[len(s.sessions)-s.maxSessions:]
	}

	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode boot sessions: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.log.Error("failed to save boot sessions", "error", err)
		return fmt.Errorf("failed to save boot sessions: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-sessions-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// acquireLock takes a process-exclusive lock file, stealing locks left
// behind by a crashed process after a minute.
func acquireLock(path string) (func(), error) {
	const staleAfter = time.Minute

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		info, statErr := os.Stat(path)
		if statErr != nil || time.Since(info.ModTime()) < staleAfter {
			return nil, fmt.Errorf("session store locked by another process")
		}
		os.Remove(path)
	}
	return nil, fmt.Errorf("session store locked by another process")
}

