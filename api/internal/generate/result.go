package generate

import (
	"fmt"

	"school-time-bot/api/internal/draft"
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeMalformed means the response was unusable and Update holds the
	// empty default for the step.
	OutcomeMalformed
	// OutcomeSkipped is returned for steps without a generation rule.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeSkipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Kind string

const (
	KindMalformed     Kind = "malformed"
	KindShapeMismatch Kind = "shape_mismatch"
	KindUnavailable   Kind = "unavailable"
)

type GenerationError struct {
	Kind  Kind
	Step  int
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate step %d: %s: %v", e.Step, e.Kind, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func malformed(step int, format string, args ...any) *GenerationError {
	return &GenerationError{Kind: KindMalformed, Step: step, Cause: fmt.Errorf(format, args...)}
}

func mismatch(step int, format string, args ...any) *GenerationError {
	return &GenerationError{Kind: KindShapeMismatch, Step: step, Cause: fmt.Errorf(format, args...)}
}

type Result struct {
	Step     int
	Outcome  Outcome
	Update   Update
	Problems []error
	Raw      string
}

// Update is the typed payload a step produces. Apply writes it into the
// document, replacing the step's fields.
type Update interface {
	Step() int
	Apply(d *draft.Document)
}

type NarrativeUpdate struct{ Narrative draft.Narrative }

func (u NarrativeUpdate) Step() int { return 1 }
func (u NarrativeUpdate) Apply(d *draft.Document) {
	n := u.Narrative
	d.Narrative = &n
}

type ContentSetsUpdate struct{ Sets []draft.ContentSet }

func (u ContentSetsUpdate) Step() int { return 3 }
func (u ContentSetsUpdate) Apply(d *draft.Document) {
	d.ContentSets = u.Sets
	d.DeriveSummary()
}

type StandardsUpdate struct{ Standards []draft.Standard }

func (u StandardsUpdate) Step() int { return 4 }
func (u StandardsUpdate) Apply(d *draft.Document) {
	d.Standards = u.Standards
	d.SyncAssessmentMirrors()
}

type TeachingUpdate struct{ Teaching draft.TeachingAssessment }

func (u TeachingUpdate) Step() int { return 5 }
func (u TeachingUpdate) Apply(d *draft.Document) {
	t := u.Teaching
	d.Teaching = &t
	d.SyncAssessmentMirrors()
}

type LessonsUpdate struct{ Lessons []draft.LessonPlan }

func (u LessonsUpdate) Step() int { return 6 }
func (u LessonsUpdate) Apply(d *draft.Document) {
	d.Lessons = u.Lessons
	draft.RenumberLessons(d.Lessons)
}

// emptyUpdate is the default-typed value stored when a response is unusable.
func emptyUpdate(step int) Update {
	switch step {
	case 1:
		return NarrativeUpdate{}
	case 3:
		return ContentSetsUpdate{}
	case 4:
		return StandardsUpdate{}
	case 5:
		return TeachingUpdate{Teaching: draft.TeachingAssessment{Schema: draft.SchemaStandards}}
	case 6:
		return LessonsUpdate{}
	}
	return nil
}
