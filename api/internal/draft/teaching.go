package draft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Schema tags which teaching/assessment payload a document carries.
type Schema string

const (
	// SchemaStandards keys the assessment plan to achievement standards.
	SchemaStandards Schema = "standards"
	// SchemaFocus is the earlier layout with free method/focus lists.
	SchemaFocus Schema = "focus"
)

type AssessmentItem struct {
	Code         string `json:"code"`
	Description  string `json:"description"`
	Element      string `json:"element"`
	Method       string `json:"method"`
	CriteriaHigh string `json:"criteria_high"`
	CriteriaMid  string `json:"criteria_mid"`
	CriteriaLow  string `json:"criteria_low"`
}

// UnmarshalJSON migrates the legacy single "criteria" string into the
// three-level fields.
func (a *AssessmentItem) UnmarshalJSON(b []byte) error {
	type plain AssessmentItem
	var raw struct {
		plain
		Criteria string `json:"criteria"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = AssessmentItem(raw.plain)
	if a.CriteriaHigh == "" && a.CriteriaMid == "" && a.CriteriaLow == "" && strings.TrimSpace(raw.Criteria) != "" {
		a.CriteriaHigh, a.CriteriaMid, a.CriteriaLow = MigrateCriteria(raw.Criteria)
	}
	return nil
}

// MigrateCriteria splits a legacy criteria text. Lines starting with 상, 중 or
// 하 followed by a separator go to that level; everything else goes to mid.
func MigrateCriteria(s string) (high, mid, low string) {
	var h, m, l []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lv, rest, ok := cutLevelPrefix(line)
		switch {
		case !ok:
			m = append(m, line)
		case lv == LevelA:
			h = append(h, rest)
		case lv == LevelB:
			m = append(m, rest)
		default:
			l = append(l, rest)
		}
	}
	return strings.Join(h, "\n"), strings.Join(m, "\n"), strings.Join(l, "\n")
}

func cutLevelPrefix(line string) (Level, string, bool) {
	line = strings.TrimPrefix(line, "(")
	line = strings.TrimPrefix(line, "[")
	r := []rune(line)
	if len(r) < 2 {
		return "", "", false
	}
	var lv Level
	switch r[0] {
	case '상':
		lv = LevelA
	case '중':
		lv = LevelB
	case '하':
		lv = LevelC
	default:
		return "", "", false
	}
	switch r[1] {
	case ':', '：', ')', ']', '-', ' ', '\t':
	default:
		return "", "", false
	}
	rest := strings.TrimLeft(string(r[2:]), " :：-)]\t")
	return lv, rest, true
}

type TeachingMethod struct {
	Method      string `json:"method"`
	Description string `json:"description"`
}

type FocusItem struct {
	Focus       string `json:"focus"`
	Description string `json:"description"`
}

// TeachingAssessment is a tagged variant: SchemaStandards uses MethodsText
// and Plan, SchemaFocus uses Methods and FocusPlan.
type TeachingAssessment struct {
	Schema      Schema
	MethodsText string
	Plan        []AssessmentItem
	Methods     []TeachingMethod
	FocusPlan   []FocusItem
}

func (t *TeachingAssessment) clone() *TeachingAssessment {
	return &TeachingAssessment{
		Schema:      t.Schema,
		MethodsText: t.MethodsText,
		Plan:        slices.Clone(t.Plan),
		Methods:     slices.Clone(t.Methods),
		FocusPlan:   slices.Clone(t.FocusPlan),
	}
}

// MethodLines returns the non-blank lines of MethodsText.
func (t *TeachingAssessment) MethodLines() []string {
	var out []string
	for _, l := range strings.Split(t.MethodsText, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (t TeachingAssessment) MarshalJSON() ([]byte, error) {
	if t.Schema == SchemaFocus {
		return json.Marshal(struct {
			Schema  Schema           `json:"schema"`
			Methods []TeachingMethod `json:"teaching_methods"`
			Plan    []FocusItem      `json:"assessment_plan"`
		}{SchemaFocus, nonNil(t.Methods), nonNil(t.FocusPlan)})
	}
	return json.Marshal(struct {
		Schema      Schema           `json:"schema"`
		MethodsText string           `json:"teaching_methods_text"`
		Plan        []AssessmentItem `json:"assessment_plan"`
	}{SchemaStandards, t.MethodsText, nonNil(t.Plan)})
}

// UnmarshalJSON picks the schema from the explicit tag when present, and
// otherwise from the presence of "teaching_methods".
func (t *TeachingAssessment) UnmarshalJSON(b []byte) error {
	var raw struct {
		Schema      Schema          `json:"schema"`
		MethodsText string          `json:"teaching_methods_text"`
		Methods     json.RawMessage `json:"teaching_methods"`
		Plan        json.RawMessage `json:"assessment_plan"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	schema := raw.Schema
	if schema == "" {
		schema = SchemaStandards
		if isPresent(raw.Methods) {
			schema = SchemaFocus
		}
	}
	out := TeachingAssessment{Schema: schema}
	switch schema {
	case SchemaStandards:
		out.MethodsText = raw.MethodsText
		if isPresent(raw.Plan) {
			if err := json.Unmarshal(raw.Plan, &out.Plan); err != nil {
				return fmt.Errorf("assessment_plan: %w", err)
			}
		}
	case SchemaFocus:
		if isPresent(raw.Methods) {
			if err := json.Unmarshal(raw.Methods, &out.Methods); err != nil {
				return fmt.Errorf("teaching_methods: %w", err)
			}
		}
		if isPresent(raw.Plan) {
			if err := json.Unmarshal(raw.Plan, &out.FocusPlan); err != nil {
				return fmt.Errorf("assessment_plan: %w", err)
			}
		}
	default:
		return fmt.Errorf("teaching_and_assessment: unknown schema %q", schema)
	}
	*t = out
	return nil
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// SyncAssessmentMirrors copies code and description from the standards into
// the schema A plan items at the same index.
func (d *Document) SyncAssessmentMirrors() {
	if d.Teaching == nil || d.Teaching.Schema != SchemaStandards {
		return
	}
	for i := range d.Teaching.Plan {
		if i >= len(d.Standards) {
			break
		}
		d.Teaching.Plan[i].Code = d.Standards[i].Code
		d.Teaching.Plan[i].Description = d.Standards[i].Description
	}
}
