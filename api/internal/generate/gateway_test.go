package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"school-time-bot/api/internal/corpus"
	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/logger"
	"school-time-bot/api/internal/prompt"
	"school-time-bot/api/internal/store"
)

type reply struct {
	text string
	err  error
}

// scriptedEngine returns replies in order and remembers every request.
type scriptedEngine struct {
	replies []reply
	reqs    []llm.Request
}

func (e *scriptedEngine) Name() string     { return "fake" }
func (e *scriptedEngine) GetModel() string { return "fake-1" }
func (e *scriptedEngine) Complete(_ context.Context, req llm.Request) (string, error) {
	e.reqs = append(e.reqs, req)
	if len(e.reqs) > len(e.replies) {
		return "", errors.New("no scripted reply")
	}
	r := e.replies[len(e.reqs)-1]
	return r.text, r.err
}

type fakeCorpus struct {
	err     error
	queries []string
}

func (c *fakeCorpus) Search(_ context.Context, q string, k int) ([]corpus.Passage, error) {
	c.queries = append(c.queries, q)
	if c.err != nil {
		return nil, c.err
	}
	return []corpus.Passage{{Text: "참고A"}, {Text: "참고B"}}, nil
}

type memRecorder struct{ recs []store.GenerationRecord }

func (m *memRecorder) Insert(_ context.Context, rec store.GenerationRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func newGateway(t *testing.T, eng llm.Engine, opts ...Option) *Gateway {
	t.Helper()
	cat, err := prompt.Default()
	if err != nil {
		t.Fatalf("prompt.Default: %v", err)
	}
	return New(eng, cat, logger.NewNop(), opts...)
}

func baseDoc(hours int) *draft.Document {
	return &draft.Document{Basic: &draft.BasicInfo{
		SchoolLevel:  draft.Elementary,
		Grades:       []string{"4학년"},
		Subjects:     []string{"사회"},
		ActivityName: "텃밭가꾸기",
		TotalHours:   hours,
		WeeklyHours:  1,
		Semesters:    []string{"1학기"},
	}}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func contentSets(n int) []draft.ContentSet {
	out := make([]draft.ContentSet, n)
	for i := range out {
		out[i] = draft.ContentSet{Domain: fmt.Sprintf("영역%d", i+1), KeyIdeas: []string{"k"}}
	}
	return out
}

func TestSkippedSteps(t *testing.T) {
	eng := &scriptedEngine{}
	g := newGateway(t, eng)
	for _, step := range []int{2, 7} {
		res, err := g.Generate(context.Background(), step, &draft.Document{})
		if err != nil || res.Outcome != OutcomeSkipped || res.Update != nil {
			t.Fatalf("step %d: %+v, %v", step, res, err)
		}
	}
	if len(eng.reqs) != 0 {
		t.Fatalf("skipped steps called the engine %d times", len(eng.reqs))
	}
}

func TestNarrativeStripsFences(t *testing.T) {
	eng := &scriptedEngine{replies: []reply{{text: "```json\n{\"necessity\":\"n\",\"overview\":\"o\",\"characteristics\":\"c\"}\n```"}}}
	g := newGateway(t, eng)
	res, err := g.Generate(context.Background(), 1, baseDoc(34))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Outcome != OutcomeOK {
		t.Fatalf("outcome = %s (%v)", res.Outcome, res.Problems)
	}
	doc := baseDoc(34)
	res.Update.Apply(doc)
	if doc.Narrative.Necessity != "n" || doc.Narrative.Character != "c" {
		t.Fatalf("narrative = %+v", doc.Narrative)
	}
	if eng.reqs[0].MaxTokens != 1800 || eng.reqs[0].System == "" || !strings.Contains(eng.reqs[0].User, "텃밭가꾸기") {
		t.Fatalf("request = %+v", eng.reqs[0])
	}
}

func TestContentSetsRequireExactlyFour(t *testing.T) {
	for _, n := range []int{0, 3, 5} {
		eng := &scriptedEngine{replies: []reply{{text: mustJSON(t, contentSets(n))}}}
		res, err := newGateway(t, eng).Generate(context.Background(), 3, baseDoc(34))
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if res.Outcome != OutcomeMalformed {
			t.Fatalf("n=%d: outcome = %s", n, res.Outcome)
		}
		var gerr *GenerationError
		if !errors.As(res.Problems[0], &gerr) || gerr.Kind != KindShapeMismatch {
			t.Fatalf("n=%d: problem = %v", n, res.Problems)
		}
		doc := baseDoc(34)
		doc.ContentSets = contentSets(4)
		res.Update.Apply(doc)
		if len(doc.ContentSets) != 0 {
			t.Fatalf("n=%d: fallback kept %d sets", n, len(doc.ContentSets))
		}
	}

	eng := &scriptedEngine{replies: []reply{{text: mustJSON(t, contentSets(4))}}}
	res, _ := newGateway(t, eng).Generate(context.Background(), 3, baseDoc(34))
	if res.Outcome != OutcomeOK {
		t.Fatalf("4 sets: outcome = %s %v", res.Outcome, res.Problems)
	}
}

func TestMalformedJSON(t *testing.T) {
	eng := &scriptedEngine{replies: []reply{{text: "죄송합니다, 다시 시도해 주세요."}}}
	res, err := newGateway(t, eng).Generate(context.Background(), 3, baseDoc(34))
	if err != nil {
		t.Fatalf("malformed must not return an error: %v", err)
	}
	var gerr *GenerationError
	if res.Outcome != OutcomeMalformed || !errors.As(res.Problems[0], &gerr) || gerr.Kind != KindMalformed {
		t.Fatalf("res = %+v", res)
	}
}

func TestStandardsCountAndCodes(t *testing.T) {
	doc := baseDoc(34)
	doc.ContentSets = contentSets(4)

	gen := []map[string]any{}
	for i := 0; i < 4; i++ {
		gen = append(gen, map[string]any{
			"code":        "wrong",
			"description": fmt.Sprintf("성취기준%d", i+1),
			"levels": []map[string]string{
				{"level": "C", "description": "하"}, {"level": "A", "description": "상"}, {"level": "B", "description": "중"},
			},
		})
	}
	eng := &scriptedEngine{replies: []reply{{text: mustJSON(t, gen)}, {text: mustJSON(t, gen[:3])}}}
	g := newGateway(t, eng)

	res, err := g.Generate(context.Background(), 4, doc)
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("Generate: %+v, %v", res, err)
	}
	res.Update.Apply(doc)
	if doc.Standards[0].Code != "4사텃밭-01" || doc.Standards[3].Code != "4사텃밭-04" {
		t.Fatalf("codes = %s .. %s", doc.Standards[0].Code, doc.Standards[3].Code)
	}
	if doc.Standards[0].Levels[0].Level != draft.LevelA || doc.Standards[0].Levels[0].Description != "상" {
		t.Fatalf("levels = %+v", doc.Standards[0].Levels)
	}
	if !strings.Contains(eng.reqs[0].User, "4사텃밭-01") {
		t.Fatalf("prompt lacks derived prefix")
	}

	res, err = g.Generate(context.Background(), 4, doc)
	if err != nil || res.Outcome != OutcomeMalformed {
		t.Fatalf("3 of 4 standards: %+v, %v", res, err)
	}
	res.Update.Apply(doc)
	if doc.Standards != nil {
		t.Fatalf("mismatch must give an empty list, got %d", len(doc.Standards))
	}
}

func TestTeachingSchemas(t *testing.T) {
	doc := baseDoc(34)
	doc.Standards = []draft.Standard{
		{Code: "4사텃밭-01", Description: "one", Levels: draft.EmptyLevels()},
		{Code: "4사텃밭-02", Description: "two", Levels: draft.EmptyLevels()},
	}
	schemaA := `{"teaching_methods_text":"• 토의\n• 실습","assessment_plan":[
{"code":"x","description":"y","element":"e1","method":"m1","criteria":"상: h\n중: m\n하: l"},
{"code":"x","description":"y","element":"e2","method":"m2","criteria_high":"h","criteria_mid":"m","criteria_low":"l"}]}`
	missingMethod := `{"teaching_methods_text":"t","assessment_plan":[{"code":"x","description":"y","element":"e","criteria":"c"},{"code":"x","description":"y","element":"e","method":"m","criteria":"c"}]}`
	schemaB := `{"teaching_methods":[{"method":"프로젝트","description":"d"}],"assessment_plan":[{"focus":"참여","description":"d"}]}`
	short := `{"teaching_methods_text":"t","assessment_plan":[{"code":"x","description":"y","element":"e","method":"m","criteria":"c"}]}`
	schemaBNoFocus := `{"teaching_methods":[{"method":"프로젝트","description":"d"}],"assessment_plan":[{"x":1}]}`
	schemaBNoDesc := `{"teaching_methods":[{"method":"프로젝트"}],"assessment_plan":[]}`

	eng := &scriptedEngine{replies: []reply{{text: schemaA}, {text: missingMethod}, {text: schemaB}, {text: short}, {text: schemaBNoFocus}, {text: schemaBNoDesc}}}
	g := newGateway(t, eng)

	res, _ := g.Generate(context.Background(), 5, doc)
	if res.Outcome != OutcomeOK {
		t.Fatalf("schema A: %v", res.Problems)
	}
	upd := res.Update.(TeachingUpdate)
	if upd.Teaching.Plan[0].Code != "4사텃밭-01" || upd.Teaching.Plan[1].Description != "two" {
		t.Fatalf("mirrors not synced: %+v", upd.Teaching.Plan)
	}
	if upd.Teaching.Plan[0].CriteriaLow != "l" {
		t.Fatalf("legacy criteria not migrated: %+v", upd.Teaching.Plan[0])
	}

	res, _ = g.Generate(context.Background(), 5, doc)
	if res.Outcome != OutcomeMalformed || !strings.Contains(res.Problems[0].Error(), `"method"`) {
		t.Fatalf("missing method: %+v", res)
	}

	res, _ = g.Generate(context.Background(), 5, doc)
	if res.Outcome != OutcomeOK || res.Update.(TeachingUpdate).Teaching.Schema != draft.SchemaFocus {
		t.Fatalf("schema B: %+v", res)
	}

	res, _ = g.Generate(context.Background(), 5, doc)
	if res.Outcome != OutcomeMalformed {
		t.Fatalf("plan shorter than standards must be rejected")
	}
	if tu := res.Update.(TeachingUpdate); tu.Teaching.Schema != draft.SchemaStandards || len(tu.Teaching.Plan) != 0 {
		t.Fatalf("fallback teaching = %+v", tu.Teaching)
	}

	res, _ = g.Generate(context.Background(), 5, doc)
	if res.Outcome != OutcomeMalformed || !strings.Contains(res.Problems[0].Error(), `assessment_plan[0]: missing "focus"`) {
		t.Fatalf("schema B item without focus: %+v", res.Problems)
	}
	res, _ = g.Generate(context.Background(), 5, doc)
	if res.Outcome != OutcomeMalformed || !strings.Contains(res.Problems[0].Error(), `teaching_methods[0]: missing "description"`) {
		t.Fatalf("schema B method without description: %+v", res.Problems)
	}
}

func lessonRows(from, to int) []map[string]any {
	var ls []map[string]any
	for i := from; i <= to; i++ {
		ls = append(ls, map[string]any{"lesson_number": 100 + i, "topic": fmt.Sprintf("주제%d", i)})
	}
	return ls
}

func lessonBatch(from, to int) string {
	b, _ := json.Marshal(map[string]any{"lesson_plans": lessonRows(from, to)})
	return "```json\n" + string(b) + "\n```"
}

// bareLessons is the unwrapped array form some models answer with.
func bareLessons(from, to int) string {
	b, _ := json.Marshal(lessonRows(from, to))
	return string(b)
}

func TestBatches(t *testing.T) {
	got := Batches(29, 10)
	want := []Batch{{1, 10}, {11, 20}, {21, 29}}
	if len(got) != len(want) {
		t.Fatalf("Batches(29,10) = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch %d = %v, want %v", i, got[i], want[i])
		}
	}
	if len(Batches(10, 10)) != 1 || Batches(0, 10) != nil {
		t.Fatalf("edge batches")
	}
}

func TestLessonsBatchedAndRenumbered(t *testing.T) {
	eng := &scriptedEngine{replies: []reply{
		{text: lessonBatch(1, 10)}, {text: lessonBatch(11, 20)}, {text: lessonBatch(21, 29)},
	}}
	var slept []time.Duration
	g := newGateway(t, eng, WithLessonBatches(10, time.Second), WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	doc := baseDoc(29)
	res, err := g.Generate(context.Background(), 6, doc)
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("Generate: %+v, %v", res, err)
	}
	if len(eng.reqs) != 3 {
		t.Fatalf("engine calls = %d, want 3", len(eng.reqs))
	}
	for i, rng := range []string{"1차시부터 10차시까지", "11차시부터 20차시까지", "21차시부터 29차시까지"} {
		if !strings.Contains(eng.reqs[i].User, rng) {
			t.Fatalf("batch %d prompt lacks %q", i, rng)
		}
		if eng.reqs[i].Temperature != 0.5 || eng.reqs[i].MaxTokens != 2000 {
			t.Fatalf("batch %d request = %+v", i, eng.reqs[i])
		}
	}
	if len(slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(slept))
	}

	res.Update.Apply(doc)
	if len(doc.Lessons) != 29 {
		t.Fatalf("lessons = %d", len(doc.Lessons))
	}
	for i, l := range doc.Lessons {
		if l.LessonNumber != fmt.Sprint(i+1) {
			t.Fatalf("lesson %d numbered %q", i, l.LessonNumber)
		}
	}
	if doc.Lessons[28].Topic != "주제29" {
		t.Fatalf("last topic = %q", doc.Lessons[28].Topic)
	}
}

func TestLessonBatchFailureIsSkipped(t *testing.T) {
	eng := &scriptedEngine{replies: []reply{
		{text: lessonBatch(1, 10)},
		{text: "not json"},
		{err: llm.Unavailable("timeout")},
		{text: bareLessons(31, 40)},
	}}
	g := newGateway(t, eng, WithLessonBatches(10, 0))
	res, err := g.Generate(context.Background(), 6, baseDoc(40))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	lu := res.Update.(LessonsUpdate)
	if len(lu.Lessons) != 20 || len(res.Problems) != 2 {
		t.Fatalf("lessons = %d, problems = %v", len(lu.Lessons), res.Problems)
	}
	if lu.Lessons[10].Topic != "주제31" || lu.Lessons[19].LessonNumber != "20" {
		t.Fatalf("concatenation = %+v", lu.Lessons[10])
	}
}

// cancellingEngine answers the first call and then cancels the request
// context, as a surface deadline firing mid-plan would.
type cancellingEngine struct {
	scriptedEngine
	cancel context.CancelFunc
}

func (e *cancellingEngine) Complete(ctx context.Context, req llm.Request) (string, error) {
	out, err := e.scriptedEngine.Complete(ctx, req)
	e.cancel()
	return out, err
}

func TestLessonsStopWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng := &cancellingEngine{
		scriptedEngine: scriptedEngine{replies: []reply{{text: lessonBatch(1, 10)}}},
		cancel:         cancel,
	}
	g := newGateway(t, eng, WithLessonBatches(10, 0))

	res, err := g.Generate(ctx, 6, baseDoc(68))
	var gerr *GenerationError
	if !errors.As(err, &gerr) || gerr.Kind != KindUnavailable || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if res.Update != nil || len(eng.reqs) != 1 {
		t.Fatalf("update = %v, calls = %d", res.Update, len(eng.reqs))
	}
}

func TestUnavailableIsReturned(t *testing.T) {
	rec := &memRecorder{}
	eng := &scriptedEngine{replies: []reply{{err: llm.Unavailable("openai 401")}}}
	g := newGateway(t, eng, WithRecorder(rec)).Bind("chat:1", nil)

	_, err := g.Generate(context.Background(), 3, baseDoc(34))
	var gerr *GenerationError
	if !errors.As(err, &gerr) || gerr.Kind != KindUnavailable || !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(rec.recs) != 1 || rec.recs[0].Outcome != "unavailable" || rec.recs[0].Session != "chat:1" {
		t.Fatalf("records = %+v", rec.recs)
	}

	eng = &scriptedEngine{replies: []reply{{err: llm.Unavailable("down")}}}
	_, err = newGateway(t, eng).Generate(context.Background(), 6, baseDoc(12))
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("first lesson batch unavailable: err = %v", err)
	}
}

func TestRetrievalEnrichesAndDegrades(t *testing.T) {
	fc := &fakeCorpus{}
	eng := &scriptedEngine{replies: []reply{{text: mustJSON(t, contentSets(4))}, {text: mustJSON(t, contentSets(4))}, {text: `{"necessity":"n","overview":"o"}`}}}
	g := newGateway(t, eng, WithCorpus(fc))

	if _, err := g.Generate(context.Background(), 3, baseDoc(34)); err != nil {
		t.Fatal(err)
	}
	if fc.queries[0] != "내용체계" || !strings.Contains(eng.reqs[0].User, "참고A\n\n참고B") {
		t.Fatalf("context not injected: queries=%v", fc.queries)
	}

	fc.err = errors.New("index missing")
	res, err := g.Generate(context.Background(), 3, baseDoc(34))
	if err != nil || res.Outcome != OutcomeOK {
		t.Fatalf("retrieval failure must not fail the step: %+v, %v", res, err)
	}
	if strings.Contains(eng.reqs[1].User, "참고 자료") {
		t.Fatalf("failed retrieval still rendered a context block")
	}

	if _, err := g.Generate(context.Background(), 1, baseDoc(34)); err != nil {
		t.Fatal(err)
	}
	if len(fc.queries) != 2 {
		t.Fatalf("step 1 must not query the corpus, queries=%v", fc.queries)
	}
}

func TestAsk(t *testing.T) {
	eng := &scriptedEngine{replies: []reply{{text: " 🐰 안녕하세요! "}}}
	g := newGateway(t, eng, WithCorpus(&fakeCorpus{}))
	hist := make([]Turn, 8)
	for i := range hist {
		hist[i] = Turn{Question: fmt.Sprintf("q%d", i), Answer: "a"}
	}
	out, err := g.Ask(context.Background(), "자율시간이 뭐예요?", hist)
	if err != nil || out != "🐰 안녕하세요!" {
		t.Fatalf("Ask = %q, %v", out, err)
	}
	req := eng.reqs[0]
	if req.MaxTokens != 512 || strings.Contains(req.User, "질문: q1\n") || !strings.Contains(req.User, "질문: q7") {
		t.Fatalf("ask request = %+v", req)
	}
	if !strings.Contains(req.User, "관련 정보: 참고A") {
		t.Fatalf("ask lacks context")
	}
	if _, err := g.Ask(context.Background(), "  ", nil); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("empty question: want error")
	}
	if len(g.SuggestedQuestions()) != 3 {
		t.Fatalf("suggested questions")
	}
}

func TestMissingBasicInfo(t *testing.T) {
	_, err := newGateway(t, &scriptedEngine{}).Generate(context.Background(), 3, &draft.Document{})
	if !errors.Is(err, ErrMissingBasicInfo) {
		t.Fatalf("err = %v", err)
	}
}
