// Package insight merges the continuous progress signals (current page being
// read, model reasoning) into a single live message per thread.
//
// The merge is last-write-wins per field: a delta overwrites only the fields
// it carries. When both fields become empty, the thread transitions back to
// "no insight" and its live message is removed.
package insight

import (
	"strings"
	"sync"
	"time"

	"github.com/Milix-M/DeepReSearch/internal/interpret"
	"github.com/Milix-M/DeepReSearch/internal/timeline"
)

// messageTitle heads the live insight message in the transcript.
const messageTitle = "リサーチの進行状況"

// State is a thread's current insight.
type State struct {
	CurrentPage string
	Reasoning   string
	UpdatedAt   time.Time
}

func (s State) empty() bool {
	return s.CurrentPage == "" && s.Reasoning == ""
}

// Outcome describes the effect of applying one delta.
type Outcome struct {
	// Changed is false when the merged state is identical to the current
	// one; callers skip re-rendering and skip touching the thread.
	Changed bool
	// Removed reports that the merged state became empty and the live
	// message should be dropped from the transcript.
	Removed bool
	// Message is the projected live message, valid when Changed && !Removed.
	Message timeline.Message
}

// Aggregator holds per-thread insight state. Safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	byThread map[string]State
	now      func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{byThread: map[string]State{}, now: time.Now}
}

// Apply merges a delta into the thread's insight and projects the result.
// A nil delta is a no-op.
func (a *Aggregator) Apply(threadID string, delta *interpret.InsightDelta) Outcome {
	if delta == nil || threadID == "" {
		return Outcome{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.byThread[threadID]
	merged := cur
	if delta.HasCurrentPage {
		merged.CurrentPage = strings.TrimSpace(delta.CurrentPage)
	}
	if delta.HasReasoning {
		merged.Reasoning = strings.TrimSpace(delta.Reasoning)
	}

	// Identical merge result: repeated reasoning chunks must not cause
	// re-renders or lastUpdated churn.
	if merged.CurrentPage == cur.CurrentPage && merged.Reasoning == cur.Reasoning {
		return Outcome{}
	}

	if merged.empty() {
		delete(a.byThread, threadID)
		return Outcome{Changed: true, Removed: true}
	}

	merged.UpdatedAt = a.now()
	a.byThread[threadID] = merged
	return Outcome{Changed: true, Message: project(threadID, merged)}
}

// Get returns the thread's current insight, if any.
func (a *Aggregator) Get(threadID string) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.byThread[threadID]
	return s, ok
}

// Clear drops a thread's insight, e.g. when a new session starts for its id.
func (a *Aggregator) Clear(threadID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byThread, threadID)
}

// project renders the live message: the page block when a page is known, a
// placeholder line when only reasoning exists. Reasoning travels on the
// message's side channel, not in the body.
func project(threadID string, s State) timeline.Message {
	body := "調査を進めています..."
	if s.CurrentPage != "" {
		body = "**調査中のページ**\n" + s.CurrentPage
	}
	return timeline.Message{
		ID:        timeline.InsightMessageID(threadID),
		Role:      timeline.RoleAssistant,
		Title:     messageTitle,
		Content:   body,
		Reasoning: s.Reasoning,
		CreatedAt: s.UpdatedAt,
	}
}
