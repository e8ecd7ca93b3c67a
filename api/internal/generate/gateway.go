package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"school-time-bot/api/internal/corpus"
	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/logger"
	"school-time-bot/api/internal/prompt"
	"school-time-bot/api/internal/store"
	"school-time-bot/api/internal/util"
)

var ErrMissingBasicInfo = errors.New("generate: basic info has not been submitted")

const contextPassages = 3

type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]corpus.Passage, error)
}

type Recorder interface {
	Insert(ctx context.Context, rec store.GenerationRecord) error
}

type Gateway struct {
	engine   llm.Engine
	prompts  *prompt.Catalogue
	log      *logger.Logger
	corpus   Retriever
	recorder Recorder
	session  string

	batchSize  int
	batchDelay time.Duration
	sleep      func(time.Duration)
}

type Option func(*Gateway)

func WithCorpus(r Retriever) Option { return func(g *Gateway) { g.corpus = r } }

func WithRecorder(r Recorder) Option { return func(g *Gateway) { g.recorder = r } }

// WithLessonBatches sets the lesson batch size and the pause after each
// successful batch that is followed by another.
func WithLessonBatches(size int, delay time.Duration) Option {
	return func(g *Gateway) {
		if size > 0 {
			g.batchSize = size
		}
		g.batchDelay = delay
	}
}

func WithSleep(fn func(time.Duration)) Option { return func(g *Gateway) { g.sleep = fn } }

func New(engine llm.Engine, prompts *prompt.Catalogue, log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		engine:     engine,
		prompts:    prompts,
		log:        log,
		batchSize:  10,
		batchDelay: time.Second,
		sleep:      time.Sleep,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Bind returns a copy of the gateway that records under session and calls eng.
func (g *Gateway) Bind(session string, eng llm.Engine) *Gateway {
	cp := *g
	cp.session = session
	if eng != nil {
		cp.engine = eng
	}
	cp.log = g.log.With("session_ref", session, "engine", cp.engine.Name())
	return &cp
}

func (g *Gateway) Engine() llm.Engine { return g.engine }

// SuggestedQuestions are offered by the chat surfaces before the first question.
func (g *Gateway) SuggestedQuestions() []string { return g.prompts.SuggestedQuestions }

type promptData struct {
	Basic       draft.BasicInfo
	Narrative   draft.Narrative
	ContentSets []draft.ContentSet
	Standards   []draft.Standard
	Teaching    *draft.TeachingAssessment
	Prefix      string
	Context     string
	SetCount    int
	From, To    int
}

// Generate runs the generation rule of step against doc. Malformed responses
// are recovered into Result; only an unavailable generator returns an error.
func (g *Gateway) Generate(ctx context.Context, step int, doc *draft.Document) (Result, error) {
	sp, ok := g.prompts.Step(step)
	if !ok {
		return Result{Step: step, Outcome: OutcomeSkipped}, nil
	}
	if doc.Basic == nil {
		return Result{}, ErrMissingBasicInfo
	}

	data := promptData{
		Basic:       *doc.Basic,
		ContentSets: doc.ContentSets,
		Standards:   doc.Standards,
		Teaching:    doc.Teaching,
		Prefix:      draft.CodePrefix(*doc.Basic),
		Context:     g.retrieve(ctx, sp.Query),
		SetCount:    draft.ContentSetCount,
	}
	if doc.Narrative != nil {
		data.Narrative = *doc.Narrative
	}

	var (
		res Result
		err error
	)
	if step == 6 {
		res, err = g.generateLessons(ctx, sp, data, doc.TotalHours())
	} else {
		res, err = g.generateOnce(ctx, step, sp, data, doc)
	}
	g.record(ctx, step, res, err)
	return res, err
}

func (g *Gateway) generateOnce(ctx context.Context, step int, sp *prompt.Step, data promptData, doc *draft.Document) (Result, error) {
	user, err := g.prompts.Render(step, data)
	if err != nil {
		return Result{}, err
	}
	raw, err := g.engine.Complete(ctx, llm.Request{
		System:      g.prompts.System,
		User:        user,
		MaxTokens:   sp.MaxTokens,
		Temperature: sp.Temperature,
		JSON:        true,
	})
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			return Result{Step: step}, &GenerationError{Kind: KindUnavailable, Step: step, Cause: err}
		}
		gerr := malformed(step, "%v", err)
		return g.fallback(step, raw, gerr), nil
	}

	upd, gerr := parseStep(step, util.StripCodeFences(raw), doc)
	if gerr != nil {
		return g.fallback(step, raw, gerr), nil
	}
	return Result{Step: step, Outcome: OutcomeOK, Update: upd, Raw: raw}, nil
}

func (g *Gateway) fallback(step int, raw string, gerr *GenerationError) Result {
	g.log.Warn("generation recovered with empty default", "step", step, "kind", string(gerr.Kind), "error", gerr.Cause)
	return Result{Step: step, Outcome: OutcomeMalformed, Update: emptyUpdate(step), Problems: []error{gerr}, Raw: raw}
}

type Batch struct{ From, To int }

// Batches splits 1..total into consecutive ranges of at most size lessons.
func Batches(total, size int) []Batch {
	if total <= 0 || size <= 0 {
		return nil
	}
	var out []Batch
	for from := 1; from <= total; from += size {
		out = append(out, Batch{From: from, To: min(from+size-1, total)})
	}
	return out
}

func (g *Gateway) generateLessons(ctx context.Context, sp *prompt.Step, data promptData, total int) (Result, error) {
	const step = 6
	res := Result{Step: step}
	var (
		lessons []draft.LessonPlan
		raws    []string
	)
	batches := Batches(total, g.batchSize)
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return Result{Step: step}, &GenerationError{Kind: KindUnavailable, Step: step, Cause: llm.WrapUnavailable(fmt.Sprintf("lessons %d-%d", b.From, b.To), err)}
		}
		data.From, data.To = b.From, b.To
		user, err := g.prompts.Render(step, data)
		if err != nil {
			return Result{}, err
		}
		raw, err := g.engine.Complete(ctx, llm.Request{
			System:      g.prompts.System,
			User:        user,
			MaxTokens:   sp.MaxTokens,
			Temperature: sp.Temperature,
			JSON:        true,
		})
		raws = append(raws, raw)
		if err != nil {
			if (i == 0 && errors.Is(err, llm.ErrUnavailable)) || ctx.Err() != nil {
				return Result{Step: step}, &GenerationError{Kind: KindUnavailable, Step: step, Cause: err}
			}
			res.Problems = append(res.Problems, batchError(b, err))
			g.log.Warn("lesson batch failed", "from", b.From, "to", b.To, "error", err)
			continue
		}
		got, gerr := parseLessonBatch(util.StripCodeFences(raw))
		if gerr != nil {
			res.Problems = append(res.Problems, batchError(b, gerr))
			g.log.Warn("lesson batch skipped", "from", b.From, "to", b.To, "error", gerr)
			continue
		}
		if want := b.To - b.From + 1; len(got) > want {
			got = got[:want]
		}
		lessons = append(lessons, got...)
		if i < len(batches)-1 && g.batchDelay > 0 {
			g.sleep(g.batchDelay)
		}
	}

	draft.RenumberLessons(lessons)
	res.Raw = strings.Join(raws, "\n")
	res.Update = LessonsUpdate{Lessons: lessons}
	res.Outcome = OutcomeOK
	if len(lessons) == 0 {
		res.Outcome = OutcomeMalformed
	}
	return res, nil
}

func batchError(b Batch, err error) error {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return &GenerationError{Kind: gerr.Kind, Step: 6, Cause: fmt.Errorf("lessons %d-%d: %w", b.From, b.To, gerr.Cause)}
	}
	kind := KindMalformed
	if errors.Is(err, llm.ErrUnavailable) {
		kind = KindUnavailable
	}
	return &GenerationError{Kind: kind, Step: 6, Cause: fmt.Errorf("lessons %d-%d: %w", b.From, b.To, err)}
}

// retrieve returns an empty context when no corpus is configured or the
// search fails.
func (g *Gateway) retrieve(ctx context.Context, query string) string {
	return g.retrieveK(ctx, query, contextPassages)
}

func (g *Gateway) retrieveK(ctx context.Context, query string, k int) string {
	if g.corpus == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	ps, err := g.corpus.Search(ctx, query, k)
	if err != nil {
		g.log.Warn("reference corpus unavailable", "query", query, "error", err)
		return ""
	}
	return corpus.JoinPassages(ps)
}

func (g *Gateway) record(ctx context.Context, step int, res Result, err error) {
	var gerr *GenerationError
	if g.recorder == nil || (err != nil && !errors.As(err, &gerr)) {
		return
	}
	rec := store.GenerationRecord{
		Session: g.session,
		Step:    step,
		Engine:  g.engine.Name(),
		Model:   g.engine.GetModel(),
		Outcome: res.Outcome.String(),
		Raw:     res.Raw,
	}
	if err != nil {
		rec.Outcome = string(KindUnavailable)
		rec.Problems = append(rec.Problems, err.Error())
	}
	for _, p := range res.Problems {
		rec.Problems = append(rec.Problems, p.Error())
	}
	if err := g.recorder.Insert(context.WithoutCancel(ctx), rec); err != nil {
		g.log.Warn("generation log write failed", "step", step, "error", err)
	}
}
