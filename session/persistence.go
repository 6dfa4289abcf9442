package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/helix-chat/sessionguard/security"
)

// defaultPersistDebounce coalesces mutations into one write per quiet
// interval. Validation renews sessions on every request, so a write per
// mutation would turn the hottest path into a disk workload.
const defaultPersistDebounce = 2 * time.Second

// persistedSession is the durable form of one session. The username and
// session ID are the surrounding map keys; timestamps serialize as RFC 3339.
type persistedSession struct {
	CreatedAt    time.Time             `json:"created_at"`
	ExpireTime   time.Time             `json:"expire_time"`
	LastActivity time.Time             `json:"last_activity"`
	Fingerprint  *security.Fingerprint `json:"fingerprint,omitempty"`
}

// persistedFile is the on-disk layout: nested records keyed first by
// username, then by session ID.
type persistedFile map[string]map[string]persistedSession

// markDirty signals the persistence loop that the store changed. Non-blocking;
// coalesces with any signal already pending.
func (s *Store) markDirty() {
	if s.persistPath == "" {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// persistLoop debounces dirty signals into file writes. A failed write is
// logged and retried on the next tick, never surfaced to a foreground
// operation. On shutdown any pending state is flushed.
func (s *Store) persistLoop() {
	defer close(s.persistDone)

	timer := time.NewTimer(s.persistDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-s.dirty:
			if !pending {
				timer.Reset(s.persistDebounce)
				pending = true
			}

		case <-timer.C:
			if err := s.save(); err != nil {
				s.logger.Error("Failed to persist sessions, will retry",
					"path", s.persistPath,
					"error", err)
				s.metrics.PersistErrors.Add(context.Background(), 1)
				timer.Reset(s.persistDebounce)
			} else {
				pending = false
			}

		case <-s.stopPersist:
			// Drain a signal that raced with shutdown, then flush.
			select {
			case <-s.dirty:
				pending = true
			default:
			}
			if pending {
				if err := s.save(); err != nil {
					s.logger.Error("Failed to flush sessions on shutdown",
						"path", s.persistPath,
						"error", err)
				}
			}
			return
		}
	}
}

// save writes a snapshot of the session map to the persistence file using a
// temp-file-then-rename so a crash mid-write never corrupts the store.
func (s *Store) save() error {
	s.mu.Lock()
	snapshot := make(persistedFile, len(s.users))
	for username, bucket := range s.users {
		records := make(map[string]persistedSession, len(bucket))
		for id, sess := range bucket {
			rec := persistedSession{
				CreatedAt:    sess.CreatedAt,
				ExpireTime:   sess.ExpireTime,
				LastActivity: sess.LastActivity,
			}
			if !sess.Fingerprint.IsZero() {
				fp := sess.Fingerprint
				rec.Fingerprint = &fp
			}
			records[id] = rec
		}
		snapshot[username] = records
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	if s.encryptor.IsEnabled() {
		sealed, err := s.encryptor.Encrypt(string(data))
		if err != nil {
			return fmt.Errorf("failed to encrypt sessions: %w", err)
		}
		data = []byte(sealed)
	}

	dir := filepath.Dir(s.persistPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.persistPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.metrics.PersistFlushes.Add(context.Background(), 1)
	s.logger.Debug("Persisted sessions", "path", s.persistPath)
	return nil
}

// load restores sessions from the persistence file. A missing file starts
// empty; a corrupt file is logged and treated as empty state rather than a
// startup failure. Records that are malformed or already expired are
// skipped. Returns the number of sessions restored.
func (s *Store) load() int {
	data, err := os.ReadFile(s.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("Session file does not exist, starting empty",
				"path", s.persistPath)
		} else {
			s.logger.Warn("Failed to read session file, starting empty",
				"path", s.persistPath,
				"error", err)
		}
		return 0
	}

	if s.encryptor.IsEnabled() {
		plain, err := s.encryptor.Decrypt(string(data))
		if err != nil {
			s.logger.Error("Failed to decrypt session file, starting empty",
				"path", s.persistPath,
				"error", err)
			return 0
		}
		data = []byte(plain)
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Error("Session file is corrupt, starting empty",
			"path", s.persistPath,
			"error", err)
		return 0
	}

	now := s.now()
	loaded := 0
	dropped := 0

	s.mu.Lock()
	for username, records := range file {
		for id, rec := range records {
			if username == "" || id == "" || !rec.ExpireTime.After(rec.CreatedAt) {
				s.logger.Warn("Skipping invalid session record",
					"session_id", shortID(id))
				dropped++
				continue
			}
			if _, taken := s.owner[id]; taken {
				s.logger.Warn("Skipping duplicate session ID",
					"session_id", shortID(id))
				dropped++
				continue
			}
			if now.After(rec.ExpireTime) {
				dropped++
				continue
			}

			sess := &Session{
				ID:           id,
				Username:     username,
				CreatedAt:    rec.CreatedAt,
				ExpireTime:   rec.ExpireTime,
				LastActivity: rec.LastActivity,
			}
			if rec.Fingerprint != nil {
				sess.Fingerprint = *rec.Fingerprint
			}
			if sess.LastActivity.IsZero() {
				// Files written before activity tracking carry no
				// last_activity; treat load time as the baseline.
				sess.LastActivity = now
			}

			if s.users[username] == nil {
				s.users[username] = make(map[string]*Session)
			}
			s.users[username][id] = sess
			s.owner[id] = username
			loaded++
		}
	}
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Info("Dropped dead or invalid sessions at load", "dropped", dropped)
		s.markDirty()
	}
	return loaded
}
