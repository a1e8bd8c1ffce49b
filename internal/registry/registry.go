// Package registry keeps authoritative per-thread metadata: status, title and
// timestamps, merged from the live socket stream and the periodic REST poll.
//
// Merge rules protect against stale signals: a terminal status is never
// downgraded, and last-updated only moves forward. Both sources funnel through
// Ensure/Touch so out-of-order delivery is harmless.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Milix-M/DeepReSearch/pkg/logger"
	"github.com/Milix-M/DeepReSearch/pkg/util"
)

// Status is a thread lifecycle state. The server reports running,
// pending_human and completed; error is attached client-side.
type Status string

const (
	StatusRunning      Status = "running"
	StatusPendingHuman Status = "pending_human"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// titleMaxRunes bounds query-derived fallback titles.
const titleMaxRunes = 40

// Thread is a snapshot of one research thread's metadata.
type Thread struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// TitleStore is the durable title memory consulted during title resolution.
// internal/titlestore satisfies it; tests use an in-memory map.
type TitleStore interface {
	Get(threadID string) string
	Set(threadID, title string) error
	All() map[string]string
}

// Registry is the thread metadata table. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	threads map[string]*Thread
	queries map[string]string
	stored  map[string]string
	titles  TitleStore
	now     func() time.Time
}

// New creates a registry backed by the given title memory. All remembered
// titles are loaded up front so threads rediscovered by the poll resolve to
// their previous names. titles may be nil, in which case titles do not
// persist across runs.
func New(titles TitleStore) *Registry {
	r := &Registry{
		threads: map[string]*Thread{},
		queries: map[string]string{},
		stored:  map[string]string{},
		titles:  titles,
		now:     time.Now,
	}
	if titles != nil {
		for id, t := range titles.All() {
			r.stored[id] = t
		}
	}
	return r
}

// allowTransition reports whether a thread may move from cur to next.
// Completed is terminal; error may still be superseded by a completed or
// error signal but never by running/pending.
func allowTransition(cur, next Status) bool {
	switch cur {
	case StatusCompleted:
		return next == StatusCompleted
	case StatusError:
		return next == StatusCompleted || next == StatusError
	default:
		return true
	}
}

// Ensure creates the thread if absent, or updates title/status/lastUpdated if
// present. A stale status that would downgrade a terminal state is ignored.
// Returns the resulting snapshot.
func (r *Registry) Ensure(threadID, title string, status Status) Thread {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return Thread{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	th, ok := r.threads[id]
	if !ok {
		th = &Thread{
			ID:          id,
			Title:       r.resolveTitleLocked(id, title),
			Status:      status,
			StartedAt:   now,
			LastUpdated: now,
		}
		r.threads[id] = th
		logger.Debug("thread registered",
			logger.FieldThreadID, id, logger.FieldStatus, string(status))
		return *th
	}

	if t := strings.TrimSpace(title); t != "" && t != th.Title {
		th.Title = t
		r.persistTitleLocked(id, t)
	}
	if status != "" && status != th.Status {
		if allowTransition(th.Status, status) {
			th.Status = status
		} else {
			logger.Debug("stale status ignored",
				logger.FieldThreadID, id, logger.FieldStatus, string(status))
		}
	}
	if now.After(th.LastUpdated) {
		th.LastUpdated = now
	}
	return *th
}

// Touch raises the thread's lastUpdated, only if ts is strictly greater.
func (r *Registry) Touch(threadID string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.threads[threadID]
	if !ok {
		return
	}
	if ts.After(th.LastUpdated) {
		th.LastUpdated = ts
	}
}

// RememberQuery records the query that started a thread so the fallback title
// can be derived from it. An id-derived placeholder title is upgraded to the
// query-derived one.
func (r *Registry) RememberQuery(threadID, query string) {
	id := strings.TrimSpace(threadID)
	q := strings.TrimSpace(query)
	if id == "" || q == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[id] = q
	th, ok := r.threads[id]
	if !ok {
		return
	}
	if th.Title == idFallbackTitle(id) {
		th.Title = util.Truncate(q, titleMaxRunes)
		r.persistTitleLocked(id, th.Title)
	}
}

// SetTitle renames a thread explicitly and persists the new title.
func (r *Registry) SetTitle(threadID, title string) {
	id := strings.TrimSpace(threadID)
	t := strings.TrimSpace(title)
	if id == "" || t == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if th, ok := r.threads[id]; ok {
		th.Title = t
	}
	r.persistTitleLocked(id, t)
}

// Get returns a snapshot of one thread.
func (r *Registry) Get(threadID string) (Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	th, ok := r.threads[threadID]
	if !ok {
		return Thread{}, false
	}
	return *th, true
}

// Query returns the remembered originating query for a thread, if any.
func (r *Registry) Query(threadID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queries[threadID]
}

// List returns snapshots of all threads, most recently updated first.
func (r *Registry) List() []Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Thread, 0, len(r.threads))
	for _, th := range r.threads {
		out = append(out, *th)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDsByStatus returns the ids of threads currently in the given status.
func (r *Registry) IDsByStatus(status Status) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, th := range r.threads {
		if th.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// resolveTitleLocked applies the precedence explicit > remembered > fallback.
func (r *Registry) resolveTitleLocked(id, explicit string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		r.persistTitleLocked(id, t)
		return t
	}
	if t := strings.TrimSpace(r.stored[id]); t != "" {
		return t
	}
	// titles persisted after the startup snapshot
	if r.titles != nil {
		if t := strings.TrimSpace(r.titles.Get(id)); t != "" {
			return t
		}
	}
	if q := r.queries[id]; q != "" {
		t := util.Truncate(q, titleMaxRunes)
		r.persistTitleLocked(id, t)
		return t
	}
	return idFallbackTitle(id)
}

func (r *Registry) persistTitleLocked(id, title string) {
	if r.titles == nil {
		return
	}
	if err := r.titles.Set(id, title); err != nil {
		logger.Warn("title persist failed",
			logger.FieldThreadID, id, logger.FieldError, err)
	}
}

// idFallbackTitle derives a short placeholder label from the thread id.
func idFallbackTitle(id string) string {
	short := id
	if runes := []rune(id); len(runes) > 8 {
		short = string(runes[:8])
	}
	return fmt.Sprintf("スレッド %s", short)
}
