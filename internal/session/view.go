package session

import (
	"github.com/Milix-M/DeepReSearch/internal/planform"
	"github.com/Milix-M/DeepReSearch/internal/registry"
	"github.com/Milix-M/DeepReSearch/internal/restapi"
	"github.com/Milix-M/DeepReSearch/internal/timeline"
)

// Step is one entry of the coarse overall-progress tally.
type Step struct {
	Label string
	Done  bool
}

// Progress summarizes how far a thread's workflow has advanced, derived from
// the keys present in the last authoritative state snapshot.
type Progress struct {
	Steps    []Step
	Fraction float64
}

// View is everything the UI renders for the selected thread. It is computed
// fresh on every call, never stored.
type View struct {
	Connecting     bool
	ActiveThreadID string
	Threads        []registry.Thread

	BeforeInterrupt []timeline.Message
	AfterInterrupt  []timeline.Message

	PendingInterrupt *restapi.Interrupt
	PlanForm         planform.Form
	HasPlanForm      bool
	Editing          bool

	// StatusLine is non-empty only while the thread is running with no
	// pending interrupt.
	StatusLine string
	Banner     string
	Report     string
	Progress   Progress
}

// View derives the current UI state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Connecting: c.connecting,
		Banner:     c.banner,
		Threads:    c.registry.List(),
	}
	if c.draftMode {
		return v
	}
	id := c.activeThreadID
	if id == "" {
		return v
	}
	v.ActiveThreadID = id

	msgs := c.messages[id]
	intr := c.interrupts[id]
	v.PendingInterrupt = intr

	// Partition around the last interrupt marker while a decision is
	// pending; otherwise around the last decision marker.
	pivot := ""
	if intr != nil {
		pivot = timeline.LastWithPrefix(msgs, timeline.PrefixInterrupt)
	} else {
		pivot = timeline.LastWithPrefix(msgs, timeline.PrefixDecision)
	}
	v.BeforeInterrupt, v.AfterInterrupt = timeline.SplitAt(msgs, pivot)

	if form, ok := c.planForms[id]; ok {
		v.PlanForm = planform.Clone(form)
		v.HasPlanForm = true
	} else {
		v.PlanForm = planform.Empty()
	}
	v.Editing = c.editing[id]

	if th, ok := c.registry.Get(id); ok && th.Status == registry.StatusRunning && intr == nil {
		v.StatusLine = c.statusLine[id]
	}

	state := c.lastStates[id]
	v.Report = reportText(state)
	v.Progress = progressFrom(state)
	return v
}

// progressFrom maps state keys to the 4-step tally: parameters extracted,
// plan produced, execution underway, report present.
func progressFrom(state map[string]any) Progress {
	steps := []Step{
		{Label: "調査パラメータの抽出", Done: hasKey(state, "research_parameters")},
		{Label: "調査計画の作成", Done: hasKey(state, "research_plan")},
		{Label: "調査の実行", Done: hasKey(state, "analysys") || hasKey(state, "messages")},
		{Label: "レポートの生成", Done: hasKey(state, "report") || hasKey(state, "research_report")},
	}
	done := 0
	for _, s := range steps {
		if s.Done {
			done++
		}
	}
	return Progress{Steps: steps, Fraction: float64(done) / float64(len(steps))}
}

func hasKey(state map[string]any, key string) bool {
	if state == nil {
		return false
	}
	v, ok := state[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// reportText surfaces the final report markdown when present.
func reportText(state map[string]any) string {
	if state == nil {
		return ""
	}
	if s, ok := state["report"].(string); ok && s != "" {
		return s
	}
	if s, ok := state["research_report"].(string); ok && s != "" {
		return s
	}
	return ""
}
