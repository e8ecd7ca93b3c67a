package draft

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ContentSetCount is the fixed number of content sets in a plan.
const ContentSetCount = 4

type ContentElements struct {
	Knowledge []string `json:"knowledge_and_understanding"`
	Process   []string `json:"process_and_skills"`
	Values    []string `json:"values_and_attitudes"`
}

func (e ContentElements) clone() ContentElements {
	return ContentElements{
		Knowledge: slices.Clone(e.Knowledge),
		Process:   slices.Clone(e.Process),
		Values:    slices.Clone(e.Values),
	}
}

type ContentSet struct {
	Domain   string          `json:"domain"`
	KeyIdeas []string        `json:"key_ideas"`
	Elements ContentElements `json:"content_elements"`
}

func (c ContentSet) clone() ContentSet {
	return ContentSet{Domain: c.Domain, KeyIdeas: slices.Clone(c.KeyIdeas), Elements: c.Elements.clone()}
}

type LessonPlan struct {
	LessonNumber string `json:"lesson_number"`
	Topic        string `json:"topic"`
	Content      string `json:"content"`
	Materials    string `json:"materials"`
}

// UnmarshalJSON accepts lesson_number as either a string or a number.
func (l *LessonPlan) UnmarshalJSON(b []byte) error {
	type plain LessonPlan
	var raw struct {
		plain
		LessonNumber json.RawMessage `json:"lesson_number"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*l = LessonPlan(raw.plain)
	l.LessonNumber = ""
	if isPresent(raw.LessonNumber) {
		var s string
		if err := json.Unmarshal(raw.LessonNumber, &s); err == nil {
			l.LessonNumber = strings.TrimSpace(s)
			return nil
		}
		var n json.Number
		if err := json.Unmarshal(raw.LessonNumber, &n); err != nil {
			return fmt.Errorf("lesson_number: %w", err)
		}
		l.LessonNumber = n.String()
	}
	return nil
}

// Document is the draft curriculum plan accumulated across wizard steps.
// A nil pointer or empty slice means the field is absent.
type Document struct {
	Basic       *BasicInfo          `json:"basic_info,omitempty"`
	Narrative   *Narrative          `json:"narrative,omitempty"`
	ContentSets []ContentSet        `json:"content_sets,omitempty"`
	Standards   []Standard          `json:"standards,omitempty"`
	Teaching    *TeachingAssessment `json:"teaching_and_assessment,omitempty"`
	Lessons     []LessonPlan        `json:"lesson_plans,omitempty"`

	// Summary fields recomputed from ContentSets on confirm.
	KeyIdeas []string         `json:"key_ideas,omitempty"`
	Domain   string           `json:"domain,omitempty"`
	Elements *ContentElements `json:"content_elements,omitempty"`
}

func (d *Document) IsEmpty() bool {
	return d.Basic == nil && d.Narrative == nil && len(d.ContentSets) == 0 &&
		len(d.Standards) == 0 && d.Teaching == nil && len(d.Lessons) == 0 &&
		len(d.KeyIdeas) == 0 && d.Domain == "" && d.Elements == nil
}

func (d *Document) Clone() *Document {
	out := &Document{Domain: d.Domain, KeyIdeas: slices.Clone(d.KeyIdeas)}
	if d.Basic != nil {
		b := d.Basic.clone()
		out.Basic = &b
	}
	if d.Narrative != nil {
		n := *d.Narrative
		out.Narrative = &n
	}
	for _, c := range d.ContentSets {
		out.ContentSets = append(out.ContentSets, c.clone())
	}
	for _, s := range d.Standards {
		out.Standards = append(out.Standards, s.clone())
	}
	if d.Teaching != nil {
		out.Teaching = d.Teaching.clone()
	}
	out.Lessons = slices.Clone(d.Lessons)
	if d.Elements != nil {
		e := d.Elements.clone()
		out.Elements = &e
	}
	return out
}

// PaddedContentSets returns a copy of the content sets padded with empty sets
// up to ContentSetCount.
func (d *Document) PaddedContentSets() []ContentSet {
	out := make([]ContentSet, 0, ContentSetCount)
	for _, c := range d.ContentSets {
		out = append(out, c.clone())
	}
	for len(out) < ContentSetCount {
		out = append(out, ContentSet{})
	}
	return out
}

// DeriveSummary refreshes KeyIdeas, Domain and Elements from ContentSets.
func (d *Document) DeriveSummary() {
	d.KeyIdeas = nil
	d.Domain = ""
	d.Elements = nil
	for _, c := range d.ContentSets {
		d.KeyIdeas = append(d.KeyIdeas, c.KeyIdeas...)
	}
	if len(d.ContentSets) > 0 {
		d.Domain = d.ContentSets[0].Domain
		e := d.ContentSets[0].Elements.clone()
		d.Elements = &e
	}
}

// TotalHours is 0 when basic info has not been submitted.
func (d *Document) TotalHours() int {
	if d.Basic == nil {
		return 0
	}
	return d.Basic.TotalHours
}

// RenumberLessons rewrites lesson numbers to "1".."N" in slice order.
func RenumberLessons(lessons []LessonPlan) {
	for i := range lessons {
		lessons[i].LessonNumber = strconv.Itoa(i + 1)
	}
}

// CheckInvariants reports every structural rule the document currently
// breaks. Absent fields are never a violation.
func (d *Document) CheckInvariants() []error {
	var errs []error
	if n := len(d.ContentSets); n != 0 && n != ContentSetCount {
		errs = append(errs, fmt.Errorf("content_sets: have %d, want %d", n, ContentSetCount))
	}
	if len(d.Standards) > 0 && len(d.Standards) != len(d.ContentSets) {
		errs = append(errs, fmt.Errorf("standards: have %d, want %d (content sets)", len(d.Standards), len(d.ContentSets)))
	}
	if d.Basic != nil && len(d.Standards) > 0 {
		prefix := CodePrefix(*d.Basic)
		for i, s := range d.Standards {
			if want := StandardCode(prefix, i+1); s.Code != want {
				errs = append(errs, fmt.Errorf("standards[%d]: code %q, want %q", i, s.Code, want))
			}
		}
	}
	for i, s := range d.Standards {
		if !s.hasCanonicalLevels() {
			errs = append(errs, fmt.Errorf("standards[%d]: levels must be A, B, C", i))
		}
	}
	if t := d.Teaching; t != nil && t.Schema == SchemaStandards && len(t.Plan) > 0 {
		if len(t.Plan) != len(d.Standards) {
			errs = append(errs, fmt.Errorf("assessment_plan: have %d, want %d (standards)", len(t.Plan), len(d.Standards)))
		} else {
			for i, it := range t.Plan {
				if it.Code != d.Standards[i].Code || it.Description != d.Standards[i].Description {
					errs = append(errs, fmt.Errorf("assessment_plan[%d]: diverges from standard %q", i, d.Standards[i].Code))
				}
			}
		}
	}
	if len(d.Lessons) > 0 {
		if h := d.TotalHours(); h > 0 && len(d.Lessons) != h {
			errs = append(errs, fmt.Errorf("lesson_plans: have %d, want %d (total hours)", len(d.Lessons), h))
		}
		for i, l := range d.Lessons {
			if l.LessonNumber != strconv.Itoa(i+1) {
				errs = append(errs, fmt.Errorf("lesson_plans[%d]: number %q, want %d", i, l.LessonNumber, i+1))
				break
			}
		}
	}
	return errs
}
