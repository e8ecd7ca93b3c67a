package generate

import (
	"bytes"
	"encoding/json"
	"strings"

	"school-time-bot/api/internal/draft"
)

// parseStep validates the fence-stripped response of step against doc and
// maps it into the step's Update.
func parseStep(step int, raw string, doc *draft.Document) (Update, *GenerationError) {
	switch step {
	case 1:
		return parseNarrative(raw)
	case 3:
		return parseContentSets(raw)
	case 4:
		return parseStandards(raw, doc)
	case 5:
		return parseTeaching(raw, doc)
	}
	return nil, malformed(step, "no parser for step")
}

func parseNarrative(raw string) (Update, *GenerationError) {
	var n draft.Narrative
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, malformed(1, "decode: %v", err)
	}
	if strings.TrimSpace(n.Necessity) == "" || strings.TrimSpace(n.Overview) == "" {
		return nil, mismatch(1, "necessity and overview are required")
	}
	return NarrativeUpdate{Narrative: n}, nil
}

func parseContentSets(raw string) (Update, *GenerationError) {
	var sets []draft.ContentSet
	if err := json.Unmarshal([]byte(raw), &sets); err != nil {
		return nil, malformed(3, "decode: %v", err)
	}
	if len(sets) != draft.ContentSetCount {
		return nil, mismatch(3, "have %d content sets, want %d", len(sets), draft.ContentSetCount)
	}
	return ContentSetsUpdate{Sets: sets}, nil
}

func parseStandards(raw string, doc *draft.Document) (Update, *GenerationError) {
	var stds []draft.Standard
	if err := json.Unmarshal([]byte(raw), &stds); err != nil {
		return nil, malformed(4, "decode: %v", err)
	}
	if len(stds) != len(doc.ContentSets) {
		return nil, mismatch(4, "have %d standards, want %d (content sets)", len(stds), len(doc.ContentSets))
	}
	prefix := draft.CodePrefix(*doc.Basic)
	for i := range stds {
		if err := stds[i].NormalizeLevels(); err != nil {
			return nil, mismatch(4, "standards[%d]: %v", i, err)
		}
		stds[i].Code = draft.StandardCode(prefix, i+1)
	}
	return StandardsUpdate{Standards: stds}, nil
}

var (
	itemRequired     = []string{"code", "description", "element", "method"}
	criteriaAnyOf    = []string{"criteria_high", "criteria_mid", "criteria_low", "criteria"}
	schemaBRequired  = []string{"teaching_methods", "assessment_plan"}
	methodRequired   = []string{"method", "description"}
	focusRequired    = []string{"focus", "description"}
	schemaARequired  = []string{"teaching_methods_text", "assessment_plan"}
	jsonNull         = []byte("null")
	jsonArrayOpening = []byte("[")
)

func parseTeaching(raw string, doc *draft.Document) (Update, *GenerationError) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, malformed(5, "decode: %v", err)
	}

	switch {
	case has(keys, "teaching_methods_text"):
		if k := missing(keys, schemaARequired); k != "" {
			return nil, mismatch(5, "missing %q", k)
		}
		if !isArray(keys["assessment_plan"]) {
			return nil, mismatch(5, "assessment_plan is not an array")
		}
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(keys["assessment_plan"], &items); err != nil {
			return nil, malformed(5, "assessment_plan: %v", err)
		}
		for i, it := range items {
			if k := missing(it, itemRequired); k != "" {
				return nil, mismatch(5, "assessment_plan[%d]: missing %q", i, k)
			}
			if !hasAny(it, criteriaAnyOf) {
				return nil, mismatch(5, "assessment_plan[%d]: missing criteria", i)
			}
		}
		if len(items) != len(doc.Standards) {
			return nil, mismatch(5, "have %d assessment items, want %d (standards)", len(items), len(doc.Standards))
		}
	case has(keys, "teaching_methods"):
		if k := missing(keys, schemaBRequired); k != "" {
			return nil, mismatch(5, "missing %q", k)
		}
		if !isArray(keys["teaching_methods"]) || !isArray(keys["assessment_plan"]) {
			return nil, mismatch(5, "teaching_methods and assessment_plan must be arrays")
		}
		if gerr := checkItems("teaching_methods", keys["teaching_methods"], methodRequired); gerr != nil {
			return nil, gerr
		}
		if gerr := checkItems("assessment_plan", keys["assessment_plan"], focusRequired); gerr != nil {
			return nil, gerr
		}
	default:
		return nil, mismatch(5, "neither teaching_methods_text nor teaching_methods present")
	}

	var t draft.TeachingAssessment
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, malformed(5, "decode: %v", err)
	}
	if t.Schema == draft.SchemaStandards {
		for i := range t.Plan {
			t.Plan[i].Code = doc.Standards[i].Code
			t.Plan[i].Description = doc.Standards[i].Description
		}
	}
	return TeachingUpdate{Teaching: t}, nil
}

// parseLessonBatch accepts a bare array or {"lesson_plans": [...]}.
func parseLessonBatch(raw string) ([]draft.LessonPlan, *GenerationError) {
	b := bytes.TrimSpace([]byte(raw))
	if !bytes.HasPrefix(b, jsonArrayOpening) {
		var wrapped struct {
			Lessons json.RawMessage `json:"lesson_plans"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return nil, malformed(6, "decode: %v", err)
		}
		if !isArray(wrapped.Lessons) {
			return nil, mismatch(6, "lesson_plans is not an array")
		}
		b = wrapped.Lessons
	}
	var lessons []draft.LessonPlan
	if err := json.Unmarshal(b, &lessons); err != nil {
		return nil, malformed(6, "decode lessons: %v", err)
	}
	if len(lessons) == 0 {
		return nil, mismatch(6, "empty lesson batch")
	}
	return lessons, nil
}

func has(m map[string]json.RawMessage, k string) bool {
	v, ok := m[k]
	return ok && len(v) > 0 && !bytes.Equal(bytes.TrimSpace(v), jsonNull)
}

func hasAny(m map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if has(m, k) {
			return true
		}
	}
	return false
}

func missing(m map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if !has(m, k) {
			return k
		}
	}
	return ""
}

// checkItems requires every object of the array raw to carry keys.
func checkItems(name string, raw json.RawMessage, keys []string) *GenerationError {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return malformed(5, "%s: %v", name, err)
	}
	for i, it := range items {
		if k := missing(it, keys); k != "" {
			return mismatch(5, "%s[%d]: missing %q", name, i, k)
		}
	}
	return nil
}

func isArray(v json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(v), jsonArrayOpening)
}
