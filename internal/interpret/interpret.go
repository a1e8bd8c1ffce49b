// Package interpret maps raw agent event payloads to display effects.
//
// Events arrive as loosely-typed envelopes {event, name?, data?} produced by
// an LLM-framework stream; no field can be assumed present. Every function
// here is pure and nil-safe: a malformed payload yields "no signal", never an
// error, so one weird frame can never take the session down.
package interpret

import (
	"fmt"
	"strings"

	"github.com/Milix-M/DeepReSearch/pkg/util"
)

// Well-known tool names emitted by the research agent.
const (
	ToolWebResearch   = "web_research"
	ToolSearchReflect = "search_reflect"
	ToolCurrentDate   = "get_current_date"
)

// Fixed status texts shown in the transient status line.
const (
	StatusWebSearch  = "ウェブ検索を実行しています..."
	StatusReflect    = "検索結果を分析しています..."
	StatusDateLookup = "現在の日付を取得しています..."
	StatusConsultLLM = "モデルに問い合わせています..."
	StatusRetrieving = "参考資料を検索しています..."
	StatusResuming   = "処理を再開しています..."
)

// Display caps, in runes.
const (
	searchLineMaxRunes = 200
	reasoningMaxRunes  = 320
)

// StatusUpdate is a transient status-line effect.
type StatusUpdate struct {
	Message   string
	ShouldLog bool // also append to the transcript
	Clear     bool // clear the active status instead of setting one
}

// InsightDelta carries partial updates to a thread's insight state. The Has
// flags distinguish "set to empty" from "not mentioned".
type InsightDelta struct {
	CurrentPage    string
	HasCurrentPage bool
	Reasoning      string
	HasReasoning   bool
}

// Detail is a best-effort transcript entry extracted from an event that did
// not match any status rule.
type Detail struct {
	Title string
	Body  string
}

// Result aggregates every effect one event produces. All fields optional.
type Result struct {
	Status  *StatusUpdate
	Insight *InsightDelta
	Detail  *Detail
}

// Interpret maps one event envelope to its display effects.
func Interpret(payload map[string]any) Result {
	if payload == nil {
		return Result{}
	}
	event := str(payload, "event")
	name := str(payload, "name")
	data := child(payload, "data")

	var res Result
	switch event {
	case "on_chain_start":
		res.Status = &StatusUpdate{Message: chainStartText(name)}
	case "on_chain_resume":
		res.Status = &StatusUpdate{Message: StatusResuming}
	case "on_chain_end":
		res.Status = &StatusUpdate{Clear: true}
		res.Insight = reasoningDelta(data)
	case "on_tool_start":
		res.Status = &StatusUpdate{Message: toolStartText(name)}
		if name == ToolWebResearch {
			res.Insight = searchStartDelta(data)
		}
	case "on_tool_end":
		res.Status = &StatusUpdate{Clear: true}
		if name == ToolWebResearch {
			res.Insight = searchEndDelta(data)
		}
	case "on_llm_start", "on_chat_model_start":
		res.Status = &StatusUpdate{Message: StatusConsultLLM}
	case "on_llm_end", "on_chat_model_end":
		res.Status = &StatusUpdate{Clear: true}
	case "on_retriever_start":
		res.Status = &StatusUpdate{Message: StatusRetrieving}
	case "on_retriever_end":
		res.Status = &StatusUpdate{Clear: true}
	case "on_llm_stream", "on_chat_model_stream", "on_chain_stream":
		res.Insight = reasoningDelta(data)
	default:
		if phase := util.FirstNonEmpty(str(data, "phase"), str(data, "status")); phase != "" {
			res.Status = &StatusUpdate{
				Message:   fmt.Sprintf("%s を進行中", humanize(phase)),
				ShouldLog: true,
			}
		}
	}

	// Generic detail is a pure fallback for events no rule recognized.
	if res.Status == nil && res.Insight == nil {
		res.Detail = extractDetail(payload, event, name, data)
	}
	return res
}

func chainStartText(name string) string {
	if name == "" {
		return "処理を実行しています..."
	}
	return fmt.Sprintf("「%s」を実行しています...", name)
}

func toolStartText(name string) string {
	switch name {
	case ToolWebResearch:
		return StatusWebSearch
	case ToolSearchReflect:
		return StatusReflect
	case ToolCurrentDate:
		return StatusDateLookup
	case "":
		return "ツールを使用しています..."
	default:
		return fmt.Sprintf("ツール「%s」を使用しています...", name)
	}
}

// searchStartDelta builds the "searching for X" insight line from a
// web-search tool-start payload.
func searchStartDelta(data map[string]any) *InsightDelta {
	input := child(data, "input")
	query := util.FirstNonEmpty(str(input, "query"), str(data, "query"))
	section := util.FirstNonEmpty(str(input, "section"), str(data, "section"))
	if query == "" {
		return nil
	}
	var line string
	if section != "" {
		line = fmt.Sprintf("%s を調べるために「%s」を検索中", section, query)
	} else {
		line = fmt.Sprintf("「%s」を検索中", query)
	}
	return &InsightDelta{
		CurrentPage:    util.Truncate(line, searchLineMaxRunes),
		HasCurrentPage: true,
	}
}

// searchEndDelta extracts the first result of a web-search tool-end payload.
func searchEndDelta(data map[string]any) *InsightDelta {
	first := firstResult(data)
	if first == nil {
		return nil
	}
	title := util.FirstNonEmpty(str(first, "title"), str(first, "name"))
	url := util.FirstNonEmpty(str(first, "url"), str(first, "link"), str(first, "href"))
	snippet := util.FirstNonEmpty(str(first, "snippet"), str(first, "body"), str(first, "content"))
	if title == "" && url == "" {
		return nil
	}
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "「%s」を確認中", title)
	} else {
		b.WriteString("ページを確認中")
	}
	if url != "" {
		b.WriteString("\n")
		b.WriteString(url)
	}
	if snippet != "" {
		b.WriteString("\n")
		b.WriteString(util.Truncate(snippet, searchLineMaxRunes))
	}
	return &InsightDelta{CurrentPage: b.String(), HasCurrentPage: true}
}

// firstResult locates the first search-result record under output/results.
func firstResult(data map[string]any) map[string]any {
	output := data["output"]
	if m, ok := output.(map[string]any); ok {
		if results, ok := m["results"].([]any); ok && len(results) > 0 {
			if r, ok := results[0].(map[string]any); ok {
				return r
			}
		}
		return m
	}
	if results, ok := output.([]any); ok && len(results) > 0 {
		if r, ok := results[0].(map[string]any); ok {
			return r
		}
	}
	if results, ok := data["results"].([]any); ok && len(results) > 0 {
		if r, ok := results[0].(map[string]any); ok {
			return r
		}
	}
	return nil
}

// reasoningDelta probes the known nesting spots for model reasoning text.
// Probe order encodes upstream precedence: delta.reasoning first (string,
// array, or object form), then stream text fields, then a message record.
func reasoningDelta(data map[string]any) *InsightDelta {
	text := reasoningText(data)
	if text == "" {
		return nil
	}
	return &InsightDelta{
		Reasoning:    util.Truncate(text, reasoningMaxRunes),
		HasReasoning: true,
	}
}

func reasoningText(data map[string]any) string {
	if data == nil {
		return ""
	}
	delta := child(data, "delta")
	if v, ok := delta["reasoning"]; ok {
		if s := asText(v); s != "" {
			return s
		}
	}
	if v, ok := data["reasoning"]; ok {
		if s := asText(v); s != "" {
			return s
		}
	}
	if s := util.FirstNonEmpty(
		str(delta, "text"), str(delta, "content"),
		str(child(data, "chunk"), "text"),
		str(data, "text"),
	); s != "" {
		return s
	}
	if msg := child(data, "message"); msg != nil {
		return util.FirstNonEmpty(str(msg, "reasoning"), str(msg, "content"))
	}
	return ""
}

// extractDetail pulls a human-readable body out of an unclassified event.
// Returns nil when nothing textual is found or the source looks like
// framework noise.
func extractDetail(payload map[string]any, event, name string, data map[string]any) *Detail {
	title := util.FirstNonEmpty(name, humanize(strings.TrimPrefix(event, "on_")))
	if isNoiseTitle(title) {
		return nil
	}
	body := util.FirstNonEmpty(
		str(payload, "message"),
		asText(data["output"]),
		str(data, "message"),
		str(data, "text"),
		str(child(data, "chunk"), "text"),
		str(child(data, "delta"), "text"),
		str(child(data, "delta"), "content"),
		firstMessageContent(data),
	)
	if body == "" {
		return nil
	}
	return &Detail{Title: title, Body: body}
}

// noise fragments seen in framework-generated node names. Events attributed
// to these produce no transcript entry.
var noiseFragments = []string{
	"chain", "runnable", "langgraph", "__start__", "__end__", "search",
}

func isNoiseTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, frag := range noiseFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func firstMessageContent(data map[string]any) string {
	msgs, ok := data["messages"].([]any)
	if !ok || len(msgs) == 0 {
		return ""
	}
	if m, ok := msgs[0].(map[string]any); ok {
		return str(m, "content")
	}
	return ""
}

// humanize turns snake_case identifiers into display text.
func humanize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

// asText coerces the string-bearing shapes reasoning and output values take:
// a plain string, a list of strings/records, or a record with text/content.
func asText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, item := range t {
			if s := asText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		return util.FirstNonEmpty(str(t, "text"), str(t, "content"), str(t, "summary"))
	default:
		return ""
	}
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func child(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if c, ok := m[key].(map[string]any); ok {
		return c
	}
	return nil
}
