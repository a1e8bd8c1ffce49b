// Package planform converts between the server's nested research-plan
// document and the editable client-side form, and validates edits.
//
// Document shape:
//
//	{
//	  "research_plan": {
//	    "purpose": "...",
//	    "sections": [{"title": "...", "focus": "...", "key_questions": ["..."]}],
//	    "structure": {"introduction": "...", "conclusion": "..."}
//	  },
//	  "meta_analysis": "..."
//	}
//
// Note the asymmetry: meta_analysis sits NEXT TO research_plan at the top
// level, never inside it. That is the upstream source format; Serialize
// reproduces it and Parse expects it.
package planform

import (
	"encoding/json"
	"strings"

	"github.com/Milix-M/DeepReSearch/pkg/logger"
)

// Validation messages, checked in order.
const (
	msgPurposeRequired      = "調査の目的を入力してください。"
	msgSectionRequired      = "少なくとも1つのセクションを入力してください。"
	msgIntroductionRequired = "導入部の説明を入力してください。"
	msgConclusionRequired   = "結論部の説明を入力してください。"
)

// Section is one planned research section.
type Section struct {
	Title        string   `json:"title"`
	Focus        string   `json:"focus"`
	KeyQuestions []string `json:"key_questions"`
}

func (s Section) empty() bool {
	if strings.TrimSpace(s.Title) != "" || strings.TrimSpace(s.Focus) != "" {
		return false
	}
	for _, q := range s.KeyQuestions {
		if strings.TrimSpace(q) != "" {
			return false
		}
	}
	return true
}

// Structure holds the framing texts around the sections.
type Structure struct {
	Introduction string `json:"introduction"`
	Conclusion   string `json:"conclusion"`
}

// Form is the editable plan representation. Invariant: at least one section,
// possibly an empty placeholder.
type Form struct {
	Purpose      string    `json:"purpose"`
	Sections     []Section `json:"sections"`
	Structure    Structure `json:"structure"`
	MetaAnalysis string    `json:"metaAnalysis"`
}

// Empty returns a blank form with the single placeholder section.
func Empty() Form {
	return Form{Sections: []Section{{}}}
}

// Parse builds a form from whatever the server delivered: nil, a JSON
// string, or a document object (nested under research_plan/plan, or flat).
// Anything unparsable degrades to the empty form, never an error.
func Parse(value any) Form {
	switch v := value.(type) {
	case nil:
		return Empty()
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return Empty()
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			logger.Warn("plan JSON unparsable", logger.FieldError, err)
			return Empty()
		}
		return fromDocument(doc)
	case map[string]any:
		return fromDocument(v)
	default:
		return Empty()
	}
}

func fromDocument(doc map[string]any) Form {
	plan := doc
	if nested, ok := doc["research_plan"].(map[string]any); ok {
		plan = nested
	} else if nested, ok := doc["plan"].(map[string]any); ok {
		plan = nested
	}

	form := Form{Purpose: stringField(plan, "purpose")}

	if raw, ok := plan["sections"].([]any); ok {
		for _, item := range raw {
			sec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			form.Sections = append(form.Sections, Section{
				Title:        stringField(sec, "title"),
				Focus:        stringField(sec, "focus"),
				KeyQuestions: stringList(sec["key_questions"]),
			})
		}
	}
	if len(form.Sections) == 0 {
		form.Sections = []Section{{}}
	}

	if structure, ok := plan["structure"].(map[string]any); ok {
		form.Structure.Introduction = stringField(structure, "introduction")
		form.Structure.Conclusion = stringField(structure, "conclusion")
	}

	// meta_analysis lives beside the plan, not inside it.
	form.MetaAnalysis = stringField(doc, "meta_analysis")
	if form.MetaAnalysis == "" {
		form.MetaAnalysis = stringField(doc, "metaAnalysis")
	}
	return form
}

// Serialize emits the wire document. Strings are trimmed and sections with
// no content are dropped.
func Serialize(form Form) map[string]any {
	sections := make([]any, 0, len(form.Sections))
	for _, sec := range form.Sections {
		if sec.empty() {
			continue
		}
		questions := make([]any, 0, len(sec.KeyQuestions))
		for _, q := range sec.KeyQuestions {
			if t := strings.TrimSpace(q); t != "" {
				questions = append(questions, t)
			}
		}
		sections = append(sections, map[string]any{
			"title":         strings.TrimSpace(sec.Title),
			"focus":         strings.TrimSpace(sec.Focus),
			"key_questions": questions,
		})
	}
	return map[string]any{
		"research_plan": map[string]any{
			"purpose":  strings.TrimSpace(form.Purpose),
			"sections": sections,
			"structure": map[string]any{
				"introduction": strings.TrimSpace(form.Structure.Introduction),
				"conclusion":   strings.TrimSpace(form.Structure.Conclusion),
			},
		},
		"meta_analysis": strings.TrimSpace(form.MetaAnalysis),
	}
}

// Validate returns the first failing requirement as a user-facing message,
// or "" when the form can be submitted.
func Validate(form Form) string {
	if strings.TrimSpace(form.Purpose) == "" {
		return msgPurposeRequired
	}
	hasSection := false
	for _, sec := range form.Sections {
		if !sec.empty() {
			hasSection = true
			break
		}
	}
	if !hasSection {
		return msgSectionRequired
	}
	if strings.TrimSpace(form.Structure.Introduction) == "" {
		return msgIntroductionRequired
	}
	if strings.TrimSpace(form.Structure.Conclusion) == "" {
		return msgConclusionRequired
	}
	return ""
}

// Clone returns a deep copy, so in-place edits never leak into the
// last-confirmed snapshot.
func Clone(form Form) Form {
	out := form
	out.Sections = make([]Section, len(form.Sections))
	for i, sec := range form.Sections {
		copied := sec
		copied.KeyQuestions = append([]string(nil), sec.KeyQuestions...)
		out.Sections[i] = copied
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// stringList coerces a key_questions value to strings, skipping anything
// non-textual.
func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
