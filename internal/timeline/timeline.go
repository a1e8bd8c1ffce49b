// Package timeline holds transcript message types and pure list operations.
//
// Messages are append-only except for two identified mutable slots: the
// per-thread insight message (replaced in place by id) and a message whose
// role/title/content equal the immediately preceding one, which is treated
// as a duplicate and suppressed.
package timeline

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ID prefixes. The prefix identifies the message class so derived views can
// locate interrupt/decision markers without extra bookkeeping.
const (
	PrefixMessage   = "msg"
	PrefixInterrupt = "interrupt"
	PrefixDecision  = "decision"

	insightIDPrefix = "insight-log-"
)

// Message is one durable transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IDGenerator issues client-side monotonic message ids: prefix + unix millis
// + counter. The counter disambiguates colliding timestamps so ordering by id
// stays stable.
type IDGenerator struct {
	mu   sync.Mutex
	seq  uint64
	now  func() time.Time
	salt string
}

// NewIDGenerator creates a generator. salt may be empty; when set it is
// embedded in every id so drafts from different console runs never collide.
func NewIDGenerator(salt string) *IDGenerator {
	return &IDGenerator{now: time.Now, salt: strings.TrimSpace(salt)}
}

// Next returns the next id for the given prefix.
func (g *IDGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	ts := g.now().UnixMilli()
	if g.salt != "" {
		return fmt.Sprintf("%s-%s-%d-%04d", prefix, g.salt, ts, g.seq)
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, ts, g.seq)
}

// InsightMessageID returns the deterministic id of the single live insight
// message for a thread.
func InsightMessageID(threadID string) string {
	return insightIDPrefix + threadID
}

// HasPrefix reports whether a message id belongs to the given class prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}

// AppendDedup appends msg unless the immediately preceding message carries an
// identical role, title and content. Returns the (possibly unchanged) list and
// whether an append happened.
func AppendDedup(list []Message, msg Message) ([]Message, bool) {
	if n := len(list); n > 0 {
		last := list[n-1]
		if last.Role == msg.Role && last.Title == msg.Title && last.Content == msg.Content {
			return list, false
		}
	}
	return append(list, msg), true
}

// ReplaceByID replaces the message with msg.ID in place, or appends it when
// absent. Returns the list and whether the content actually changed.
func ReplaceByID(list []Message, msg Message) ([]Message, bool) {
	for i := range list {
		if list[i].ID != msg.ID {
			continue
		}
		if list[i].Content == msg.Content && list[i].Title == msg.Title &&
			list[i].Reasoning == msg.Reasoning {
			return list, false
		}
		list[i] = msg
		return list, true
	}
	return append(list, msg), true
}

// RemoveByID removes the message with the given id, if present.
func RemoveByID(list []Message, id string) []Message {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// LastWithPrefix returns the id of the last message whose id belongs to the
// given class prefix, or "" when none exists.
func LastWithPrefix(list []Message, prefix string) string {
	for i := len(list) - 1; i >= 0; i-- {
		if HasPrefix(list[i].ID, prefix) {
			return list[i].ID
		}
	}
	return ""
}

// SplitAt partitions the list around the message with the given id. The pivot
// message itself lands in before. An empty or unknown id yields (list, nil).
func SplitAt(list []Message, id string) (before, after []Message) {
	if id == "" {
		return list, nil
	}
	for i := range list {
		if list[i].ID == id {
			return list[:i+1], list[i+1:]
		}
	}
	return list, nil
}
