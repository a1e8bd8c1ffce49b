// Package titlestore persists user-facing thread titles across console runs.
//
// The only durable client state is a thread-id → title map, kept in an
// embedded Pebble database under the console's state directory. Anything
// unreadable in the database is treated as absent, never as an error: the
// title memory mirrors browser localStorage tolerance, where corrupt stored
// data must degrade to empty rather than break startup.
package titlestore

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/pebble"

	apperrors "github.com/Milix-M/DeepReSearch/pkg/errors"
	"github.com/Milix-M/DeepReSearch/pkg/logger"
)

// keyPrefix namespaces title records so the database can host other
// client-side state later without key collisions.
const keyPrefix = "thread-title/"

// Store is a Pebble-backed title map.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the title database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, apperrors.Wrap(err, "TitleStore.Open", "open pebble db")
	}
	logger.Info("title store opened", logger.FieldPath, dir)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func titleKey(threadID string) []byte {
	return []byte(keyPrefix + threadID)
}

// Get returns the remembered title for a thread, or "" when absent or
// unreadable.
func (s *Store) Get(threadID string) string {
	id := strings.TrimSpace(threadID)
	if s == nil || s.db == nil || id == "" {
		return ""
	}
	value, closer, err := s.db.Get(titleKey(id))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			logger.Warn("title store read failed", logger.FieldThreadID, id, logger.FieldError, err)
		}
		return ""
	}
	title := decodeTitle(value)
	_ = closer.Close()
	return title
}

// Set remembers a title for a thread. An empty title deletes the record.
func (s *Store) Set(threadID, title string) error {
	id := strings.TrimSpace(threadID)
	if s == nil || s.db == nil {
		return apperrors.Wrap(apperrors.ErrClosed, "TitleStore.Set", "store not open")
	}
	if id == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "TitleStore.Set", "empty thread id")
	}
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		if err := s.db.Delete(titleKey(id), pebble.Sync); err != nil {
			return apperrors.Wrap(err, "TitleStore.Set", "delete title")
		}
		return nil
	}
	if err := s.db.Set(titleKey(id), []byte(trimmed), pebble.Sync); err != nil {
		return apperrors.Wrap(err, "TitleStore.Set", "write title")
	}
	return nil
}

// All returns every remembered title. Unreadable records are skipped.
func (s *Store) All() map[string]string {
	out := map[string]string{}
	if s == nil || s.db == nil {
		return out
	}
	prefix := []byte(keyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		logger.Warn("title store iterator failed", logger.FieldError, err)
		return out
	}
	defer func() { _ = iter.Close() }()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		id := string(key[len(prefix):])
		title := decodeTitle(iter.Value())
		if id == "" || title == "" {
			continue
		}
		out[id] = title
	}
	return out
}

// decodeTitle validates a stored value. Corrupt bytes read as absent.
func decodeTitle(raw []byte) string {
	if len(raw) == 0 || !utf8.Valid(raw) {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
