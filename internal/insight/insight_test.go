package insight

import (
	"strings"
	"testing"

	"github.com/Milix-M/DeepReSearch/internal/interpret"
	"github.com/Milix-M/DeepReSearch/internal/timeline"
)

func pageDelta(page string) *interpret.InsightDelta {
	return &interpret.InsightDelta{CurrentPage: page, HasCurrentPage: true}
}

func reasoningDelta(text string) *interpret.InsightDelta {
	return &interpret.InsightDelta{Reasoning: text, HasReasoning: true}
}

func TestLastWriteWinsPerField(t *testing.T) {
	a := NewAggregator()

	out := a.Apply("t1", pageDelta("A"))
	if !out.Changed || out.Removed {
		t.Fatalf("first delta: %+v", out)
	}
	out = a.Apply("t1", reasoningDelta("B"))
	if !out.Changed {
		t.Fatal("second delta reported no change")
	}

	s, ok := a.Get("t1")
	if !ok || s.CurrentPage != "A" || s.Reasoning != "B" {
		t.Errorf("state = %+v, want page A reasoning B", s)
	}
}

func TestIdenticalDeltaIsNoop(t *testing.T) {
	a := NewAggregator()
	a.Apply("t1", reasoningDelta("same chunk"))

	out := a.Apply("t1", reasoningDelta("same chunk"))
	if out.Changed {
		t.Error("identical merge must short-circuit")
	}
}

func TestBothFieldsEmptyRemovesInsight(t *testing.T) {
	a := NewAggregator()
	a.Apply("t1", &interpret.InsightDelta{
		CurrentPage: "A", HasCurrentPage: true,
		Reasoning: "B", HasReasoning: true,
	})

	out := a.Apply("t1", pageDelta(""))
	if !out.Changed || out.Removed {
		t.Fatalf("clearing one field must not remove: %+v", out)
	}
	out = a.Apply("t1", reasoningDelta(""))
	if !out.Changed || !out.Removed {
		t.Fatalf("clearing the last field must remove: %+v", out)
	}
	if _, ok := a.Get("t1"); ok {
		t.Error("state survived removal")
	}
}

func TestProjectionShape(t *testing.T) {
	a := NewAggregator()
	out := a.Apply("t1", &interpret.InsightDelta{
		CurrentPage: "Mesopotamia を調べるために「cuneiform」を検索中", HasCurrentPage: true,
		Reasoning: "楔形文字の資料を比較する", HasReasoning: true,
	})

	msg := out.Message
	if msg.ID != timeline.InsightMessageID("t1") {
		t.Errorf("id = %q", msg.ID)
	}
	if msg.Role != timeline.RoleAssistant {
		t.Errorf("role = %q", msg.Role)
	}
	if !strings.Contains(msg.Content, "調査中のページ") ||
		!strings.Contains(msg.Content, "cuneiform") {
		t.Errorf("page block missing: %q", msg.Content)
	}
	if msg.Reasoning != "楔形文字の資料を比較する" {
		t.Errorf("reasoning side channel = %q", msg.Reasoning)
	}
	if strings.Contains(msg.Content, "楔形文字") {
		t.Errorf("reasoning leaked into the body: %q", msg.Content)
	}
}

func TestProjectionFallbackWithoutPage(t *testing.T) {
	a := NewAggregator()
	out := a.Apply("t1", reasoningDelta("考え中"))
	if !strings.Contains(out.Message.Content, "調査を進めています") {
		t.Errorf("fallback line missing: %q", out.Message.Content)
	}
	if out.Message.Reasoning != "考え中" {
		t.Errorf("reasoning = %q", out.Message.Reasoning)
	}
}

func TestThreadsAreIndependent(t *testing.T) {
	a := NewAggregator()
	a.Apply("t1", pageDelta("page one"))
	a.Apply("t2", pageDelta("page two"))
	a.Clear("t1")

	if _, ok := a.Get("t1"); ok {
		t.Error("t1 survived Clear")
	}
	if s, ok := a.Get("t2"); !ok || s.CurrentPage != "page two" {
		t.Errorf("t2 affected by clearing t1: %+v", s)
	}
}

func TestNilDeltaIsNoop(t *testing.T) {
	a := NewAggregator()
	if out := a.Apply("t1", nil); out.Changed {
		t.Errorf("nil delta changed state: %+v", out)
	}
	if out := a.Apply("", pageDelta("x")); out.Changed {
		t.Errorf("empty thread id changed state: %+v", out)
	}
}
