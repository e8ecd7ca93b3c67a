package wizard

import (
	"encoding/json"
	"fmt"
	"slices"

	"school-time-bot/api/internal/draft"
)

// Form is the edit payload of one step. Confirm accepts only the variant
// matching the current step.
type Form interface {
	Step() Step
	apply(d *draft.Document) error
}

type BasicForm struct {
	Basic     draft.BasicInfo `json:"basic_info"`
	Narrative draft.Narrative `json:"narrative"`
}

func (BasicForm) Step() Step { return StepBasicInfo }

func (f BasicForm) apply(d *draft.Document) error {
	if err := f.Basic.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	b, n := f.Basic, f.Narrative
	b.Grades = slices.Clone(b.Grades)
	b.Subjects = slices.Clone(b.Subjects)
	b.Semesters = slices.Clone(b.Semesters)
	d.Basic = &b
	d.Narrative = &n
	rebase(d)
	return nil
}

// rebase brings data saved by later steps back in line with the basic info:
// standard codes follow the new prefix and the lesson plan is resized to the
// new total hours.
func rebase(d *draft.Document) {
	if len(d.Standards) > 0 {
		d.Standards = padStandards(d.Standards, len(d.Standards), prefixOf(d))
		d.SyncAssessmentMirrors()
	}
	if len(d.Lessons) > 0 {
		d.Lessons = padLessons(d.Lessons, d.TotalHours())
	}
}

type ContentSetsForm struct {
	Sets []draft.ContentSet `json:"content_sets"`
}

func (ContentSetsForm) Step() Step { return StepContentSets }

func (f ContentSetsForm) apply(d *draft.Document) error {
	sets := slices.Clone(f.Sets)
	if len(sets) > draft.ContentSetCount {
		sets = sets[:draft.ContentSetCount]
	}
	d.ContentSets = sets
	d.ContentSets = d.PaddedContentSets()
	d.DeriveSummary()
	return nil
}

// StandardsForm carries the edited standards. Codes are always derived from
// basic info, whatever the form says.
type StandardsForm struct {
	Standards []draft.Standard `json:"standards"`
}

func (StandardsForm) Step() Step { return StepStandards }

func (f StandardsForm) apply(d *draft.Document) error {
	stds := padStandards(f.Standards, len(d.ContentSets), prefixOf(d))
	for i := range stds {
		if err := stds[i].NormalizeLevels(); err != nil {
			return fmt.Errorf("%w: standards[%d]: %v", ErrInvalidForm, i, err)
		}
	}
	d.Standards = stds
	d.SyncAssessmentMirrors()
	return nil
}

// TeachingForm edits the teaching and assessment plan. Code and description
// of schema A items are overwritten from the standards on confirm.
type TeachingForm struct {
	Teaching draft.TeachingAssessment `json:"teaching_and_assessment"`
}

func (TeachingForm) Step() Step { return StepTeaching }

func (f TeachingForm) apply(d *draft.Document) error {
	t := f.Teaching
	if t.Schema == "" {
		t.Schema = draft.SchemaStandards
	}
	switch t.Schema {
	case draft.SchemaStandards:
		t.Plan = padPlan(t.Plan, len(d.Standards))
		t.Methods, t.FocusPlan = nil, nil
	case draft.SchemaFocus:
		t.Methods = slices.Clone(t.Methods)
		t.FocusPlan = slices.Clone(t.FocusPlan)
		t.MethodsText, t.Plan = "", nil
	default:
		return fmt.Errorf("%w: unknown schema %q", ErrInvalidForm, t.Schema)
	}
	d.Teaching = &t
	d.SyncAssessmentMirrors()
	return nil
}

type LessonsForm struct {
	Lessons []draft.LessonPlan `json:"lesson_plans"`
}

func (LessonsForm) Step() Step { return StepLessons }

func (f LessonsForm) apply(d *draft.Document) error {
	d.Lessons = padLessons(f.Lessons, d.TotalHours())
	return nil
}

// DecodeForm decodes a JSON form body for step.
func DecodeForm(step Step, b []byte) (Form, error) {
	var (
		f   Form
		err error
	)
	switch step {
	case StepBasicInfo:
		var v BasicForm
		if err = json.Unmarshal(b, &v); err == nil {
			f = v
		}
	case StepContentSets:
		var v ContentSetsForm
		if err = json.Unmarshal(b, &v); err == nil {
			f = v
		}
	case StepStandards:
		var v StandardsForm
		if err = json.Unmarshal(b, &v); err == nil {
			f = v
		}
	case StepTeaching:
		var v TeachingForm
		if err = json.Unmarshal(b, &v); err == nil {
			f = v
		}
	case StepLessons:
		var v LessonsForm
		if err = json.Unmarshal(b, &v); err == nil {
			f = v
		}
	default:
		return nil, ErrNoGeneration
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	return f, nil
}

// formFor builds the pre-filled form of step from the document.
func formFor(step Step, d *draft.Document) Form {
	switch step {
	case StepBasicInfo:
		f := BasicForm{}
		if d.Basic != nil {
			c := d.Clone()
			f.Basic = *c.Basic
		}
		if d.Narrative != nil {
			f.Narrative = *d.Narrative
		}
		return f
	case StepContentSets:
		return ContentSetsForm{Sets: d.PaddedContentSets()}
	case StepStandards:
		return StandardsForm{Standards: padStandards(d.Standards, len(d.ContentSets), prefixOf(d))}
	case StepTeaching:
		if d.Teaching == nil {
			return TeachingForm{Teaching: draft.TeachingAssessment{
				Schema: draft.SchemaStandards,
				Plan:   padPlan(nil, len(d.Standards), d.Standards...),
			}}
		}
		t := *d.Clone().Teaching
		if t.Schema == draft.SchemaStandards {
			t.Plan = padPlan(t.Plan, len(d.Standards), d.Standards...)
		}
		return TeachingForm{Teaching: t}
	case StepLessons:
		return LessonsForm{Lessons: padLessons(d.Lessons, d.TotalHours())}
	}
	return nil
}

func prefixOf(d *draft.Document) string {
	if d.Basic == nil {
		return ""
	}
	return draft.CodePrefix(*d.Basic)
}

func padStandards(in []draft.Standard, n int, prefix string) []draft.Standard {
	out := make([]draft.Standard, n)
	for i := range out {
		if i < len(in) {
			out[i] = in[i]
			out[i].Levels = slices.Clone(in[i].Levels)
		} else {
			out[i].Levels = draft.EmptyLevels()
		}
		if prefix != "" {
			out[i].Code = draft.StandardCode(prefix, i+1)
		}
	}
	return out
}

// padPlan resizes the plan to n items, copying mirrors from stds when given.
func padPlan(in []draft.AssessmentItem, n int, stds ...draft.Standard) []draft.AssessmentItem {
	out := make([]draft.AssessmentItem, n)
	copy(out, in)
	for i := range out {
		if i < len(stds) {
			out[i].Code = stds[i].Code
			out[i].Description = stds[i].Description
		}
	}
	return out
}

func padLessons(in []draft.LessonPlan, n int) []draft.LessonPlan {
	if n <= 0 {
		n = len(in)
	}
	out := make([]draft.LessonPlan, n)
	copy(out, in)
	draft.RenumberLessons(out)
	return out
}
