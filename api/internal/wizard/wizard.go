package wizard

import (
	"context"
	"errors"
	"fmt"

	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/generate"
)

var (
	ErrAlreadyGenerated = errors.New("wizard: step already generated")
	ErrNotGenerated     = errors.New("wizard: step not generated yet")
	ErrNoGeneration     = errors.New("wizard: step has nothing to generate or confirm")
	ErrJumpLocked       = errors.New("wizard: jump is available after the final review has been reached")
	ErrInvalidStep      = errors.New("wizard: step out of range")
	ErrFormMismatch     = errors.New("wizard: form does not match the current step")
	ErrInvalidForm      = errors.New("wizard: invalid form")
	ErrMissingBasicInfo = generate.ErrMissingBasicInfo
)

// Generator produces the update for one step.
type Generator interface {
	Generate(ctx context.Context, step int, doc *draft.Document) (generate.Result, error)
}

// Wizard is the step pointer over one Draft Document. It is not safe for
// concurrent use; Session serializes access.
type Wizard struct {
	doc       *draft.Document
	step      Step
	generated map[Step]bool
	reached   bool
	problems  []string
}

func New() *Wizard {
	return &Wizard{doc: &draft.Document{}, step: FirstStep, generated: map[Step]bool{}}
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) Generated() bool { return w.generated[w.step] }

func (w *Wizard) ReviewReached() bool { return w.reached }

// Document returns a deep copy of the draft.
func (w *Wizard) Document() *draft.Document { return w.doc.Clone() }

// Problems are the recovered generation failures of the last Generate call.
func (w *Wizard) Problems() []string { return w.problems }

// SubmitBasicInfo stores validated basic info ahead of generating step 1.
func (w *Wizard) SubmitBasicInfo(b draft.BasicInfo) error {
	if w.step != StepBasicInfo {
		return ErrFormMismatch
	}
	if w.generated[StepBasicInfo] {
		return ErrAlreadyGenerated
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	w.doc.Basic = (&draft.Document{Basic: &b}).Clone().Basic
	rebase(w.doc)
	return nil
}

// Generate runs the gateway for the current step. Malformed results still
// move the step to generated; an unavailable generator leaves it untouched.
func (w *Wizard) Generate(ctx context.Context, gen Generator) (generate.Result, error) {
	if !w.step.Generates() {
		return generate.Result{}, ErrNoGeneration
	}
	if w.generated[w.step] {
		return generate.Result{}, ErrAlreadyGenerated
	}
	if w.doc.Basic == nil {
		return generate.Result{}, ErrMissingBasicInfo
	}
	res, err := gen.Generate(ctx, int(w.step), w.doc)
	if err != nil {
		return res, err
	}
	if res.Update != nil {
		res.Update.Apply(w.doc)
	}
	w.problems = nil
	for _, p := range res.Problems {
		w.problems = append(w.problems, p.Error())
	}
	w.generated[w.step] = true
	return res, nil
}

// Edit reopens the saved values of the current step as a form without
// calling the generator.
func (w *Wizard) Edit() error {
	if !w.step.Generates() {
		return ErrNoGeneration
	}
	if w.generated[w.step] {
		return ErrAlreadyGenerated
	}
	if w.doc.Basic == nil {
		return ErrMissingBasicInfo
	}
	w.generated[w.step] = true
	return nil
}

// Form returns the pre-filled edit form of the current step.
func (w *Wizard) Form() (Form, error) {
	if !w.step.Generates() {
		return nil, ErrNoGeneration
	}
	if !w.generated[w.step] {
		return nil, ErrNotGenerated
	}
	return formFor(w.step, w.doc), nil
}

// Confirm commits f and advances to the next step in ungenerated.
func (w *Wizard) Confirm(f Form) error {
	if !w.step.Generates() {
		return ErrNoGeneration
	}
	if f == nil || f.Step() != w.step {
		return ErrFormMismatch
	}
	if !w.generated[w.step] {
		return ErrNotGenerated
	}
	if err := f.apply(w.doc); err != nil {
		return err
	}
	delete(w.generated, w.step)
	w.step++
	if w.step == StepFinalReview {
		w.reached = true
	}
	return nil
}

// Continue leaves the approval export step.
func (w *Wizard) Continue() error {
	if w.step != StepApproval {
		return ErrInvalidStep
	}
	w.step = StepContentSets
	return nil
}

// Jump moves to any step once the final review has been reached. Sub-state
// markers are left as they are.
func (w *Wizard) Jump(to Step) error {
	if !to.Valid() {
		return ErrInvalidStep
	}
	if !w.reached {
		return ErrJumpLocked
	}
	w.step = to
	return nil
}

func (w *Wizard) Reset() {
	w.doc = &draft.Document{}
	w.step = FirstStep
	w.generated = map[Step]bool{}
	w.reached = false
	w.problems = nil
}

// Snapshot is a read-only view for the surfaces.
type Snapshot struct {
	Step          Step            `json:"step"`
	Label         string          `json:"label"`
	Generated     bool            `json:"generated"`
	ReviewReached bool            `json:"review_reached"`
	Problems      []string        `json:"problems,omitempty"`
	Violations    []string        `json:"violations,omitempty"`
	Document      *draft.Document `json:"document"`
}

func (w *Wizard) Snapshot() Snapshot {
	s := Snapshot{
		Step:          w.step,
		Label:         w.step.Label(),
		Generated:     w.generated[w.step],
		ReviewReached: w.reached,
		Problems:      append([]string(nil), w.problems...),
		Document:      w.doc.Clone(),
	}
	for _, err := range w.doc.CheckInvariants() {
		s.Violations = append(s.Violations, err.Error())
	}
	return s
}
