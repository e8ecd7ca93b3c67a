package telegram

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/wizard"
)

// Text forms are blocks of "[항목]" headers followed by the value lines.
// Decoding starts from a base form, so a pasted subset of blocks edits only
// those fields.

var errNoBlocks = errors.New("no [항목] blocks found")

var reHeader = regexp.MustCompile(`^\[([^\[\]]+)\]\s*$`)

type field struct {
	key string
	get func() string
	set func(string) error
}

type block struct {
	key, value string
}

// parseBlocks splits text into blocks. Text before the first header is ignored.
func parseBlocks(in string) []block {
	var (
		out []block
		cur *block
		buf []string
	)
	flush := func() {
		if cur != nil {
			cur.value = strings.TrimSpace(strings.Join(buf, "\n"))
			out = append(out, *cur)
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(in, "\r\n", "\n"), "\n") {
		if m := reHeader.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			cur, buf = &block{key: strings.TrimSpace(m[1])}, nil
			continue
		}
		if cur != nil {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

// EncodeForm renders f as text blocks.
func EncodeForm(f wizard.Form) string {
	fields, _ := bind(f)
	var sb strings.Builder
	for _, fl := range fields {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", fl.key, fl.get())
	}
	return strings.TrimRight(sb.String(), "\n")
}

// DecodeForm overlays the blocks in text onto base.
func DecodeForm(base wizard.Form, in string) (wizard.Form, error) {
	blocks := parseBlocks(in)
	if len(blocks) == 0 {
		return nil, errNoBlocks
	}
	fields, result := bind(base)
	byKey := make(map[string]field, len(fields))
	for _, fl := range fields {
		byKey[normKey(fl.key)] = fl
	}
	for _, b := range blocks {
		fl, ok := byKey[normKey(b.key)]
		if !ok {
			return nil, fmt.Errorf("알 수 없는 항목 [%s]", b.key)
		}
		if err := fl.set(b.value); err != nil {
			return nil, fmt.Errorf("[%s]: %w", b.key, err)
		}
	}
	return result(), nil
}

func normKey(k string) string { return strings.Join(strings.Fields(k), "") }

func bind(f wizard.Form) ([]field, func() wizard.Form) {
	switch v := f.(type) {
	case wizard.BasicForm:
		return basicFields(&v), func() wizard.Form { return v }
	case wizard.ContentSetsForm:
		v.Sets = append([]draft.ContentSet(nil), v.Sets...)
		return contentFields(&v), func() wizard.Form { return v }
	case wizard.StandardsForm:
		v.Standards = append([]draft.Standard(nil), v.Standards...)
		return standardFields(&v), func() wizard.Form { return v }
	case wizard.TeachingForm:
		v.Teaching.Plan = append([]draft.AssessmentItem(nil), v.Teaching.Plan...)
		v.Teaching.Methods = append([]draft.TeachingMethod(nil), v.Teaching.Methods...)
		v.Teaching.FocusPlan = append([]draft.FocusItem(nil), v.Teaching.FocusPlan...)
		return teachingFields(&v), func() wizard.Form { return v }
	case wizard.LessonsForm:
		v.Lessons = append([]draft.LessonPlan(nil), v.Lessons...)
		return lessonFields(&v), func() wizard.Form { return v }
	}
	return nil, func() wizard.Form { return f }
}

func text(p *string) field {
	return field{get: func() string { return *p }, set: func(s string) error { *p = s; return nil }}
}

// list joins with sep and splits on commas, or on newlines when sep is one.
func list(p *[]string, sep string) field {
	return field{
		get: func() string { return strings.Join(*p, sep) },
		set: func(s string) error { *p = splitList(s, sep); return nil },
	}
}

func number(p *int) field {
	return field{
		get: func() string { return strconv.Itoa(*p) },
		set: func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("숫자가 아닙니다: %q", s)
			}
			*p = n
			return nil
		},
	}
}

func named(key string, f field) field {
	f.key = key
	return f
}

func splitList(s, sep string) []string {
	cut := ","
	if sep == "\n" {
		cut = "\n"
	}
	var out []string
	for _, p := range strings.Split(s, cut) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func basicFields(f *wizard.BasicForm) []field {
	b, n := &f.Basic, &f.Narrative
	level := field{
		get: func() string { return string(b.SchoolLevel) },
		set: func(s string) error { b.SchoolLevel = draft.SchoolLevel(strings.TrimSpace(s)); return nil },
	}
	return []field{
		named("학교급", level),
		named("대상학년", list(&b.Grades, ", ")),
		named("연계교과", list(&b.Subjects, ", ")),
		named("활동명", text(&b.ActivityName)),
		named("요구사항", text(&b.Requirements)),
		named("총차시", number(&b.TotalHours)),
		named("주당차시", number(&b.WeeklyHours)),
		named("운영학기", list(&b.Semesters, ", ")),
		named("필요성", text(&n.Necessity)),
		named("개요", text(&n.Overview)),
		named("성격", text(&n.Character)),
	}
}

func contentFields(f *wizard.ContentSetsForm) []field {
	var out []field
	for i := range f.Sets {
		c, k := &f.Sets[i], i+1
		out = append(out,
			named(fmt.Sprintf("세트%d 영역명", k), text(&c.Domain)),
			named(fmt.Sprintf("세트%d 핵심아이디어", k), list(&c.KeyIdeas, "\n")),
			named(fmt.Sprintf("세트%d 지식·이해", k), list(&c.Elements.Knowledge, "\n")),
			named(fmt.Sprintf("세트%d 과정·기능", k), list(&c.Elements.Process, "\n")),
			named(fmt.Sprintf("세트%d 가치·태도", k), list(&c.Elements.Values, "\n")),
		)
	}
	return out
}

func standardFields(f *wizard.StandardsForm) []field {
	var out []field
	for i := range f.Standards {
		s, k := &f.Standards[i], i+1
		s.Levels = append([]draft.LevelDescriptor(nil), s.Levels...)
		out = append(out, named(fmt.Sprintf("성취기준%d", k), text(&s.Description)))
		for j := range s.Levels {
			l := &s.Levels[j]
			out = append(out, named(fmt.Sprintf("성취기준%d %s", k, l.Level.Label()), text(&l.Description)))
		}
	}
	return out
}

func teachingFields(f *wizard.TeachingForm) []field {
	t := &f.Teaching
	if t.Schema == draft.SchemaFocus {
		var out []field
		for i := range t.Methods {
			m, k := &t.Methods[i], i+1
			out = append(out,
				named(fmt.Sprintf("방법%d", k), text(&m.Method)),
				named(fmt.Sprintf("방법%d 설명", k), text(&m.Description)))
		}
		for i := range t.FocusPlan {
			p, k := &t.FocusPlan[i], i+1
			out = append(out,
				named(fmt.Sprintf("중점%d", k), text(&p.Focus)),
				named(fmt.Sprintf("중점%d 설명", k), text(&p.Description)))
		}
		return out
	}
	out := []field{named("교수학습방법", text(&t.MethodsText))}
	for i := range t.Plan {
		it, k := &t.Plan[i], i+1
		out = append(out,
			named(fmt.Sprintf("평가%d 평가요소", k), text(&it.Element)),
			named(fmt.Sprintf("평가%d 평가방법", k), text(&it.Method)),
			named(fmt.Sprintf("평가%d 상", k), text(&it.CriteriaHigh)),
			named(fmt.Sprintf("평가%d 중", k), text(&it.CriteriaMid)),
			named(fmt.Sprintf("평가%d 하", k), text(&it.CriteriaLow)),
		)
	}
	return out
}

func lessonFields(f *wizard.LessonsForm) []field {
	var out []field
	for i := range f.Lessons {
		l, k := &f.Lessons[i], i+1
		out = append(out,
			named(fmt.Sprintf("%d차시 학습주제", k), text(&l.Topic)),
			named(fmt.Sprintf("%d차시 학습내용", k), text(&l.Content)),
			named(fmt.Sprintf("%d차시 교수학습자료", k), text(&l.Materials)),
		)
	}
	return out
}

// chunkBlocks splits an encoded form at blank lines so each part fits a
// Telegram message.
func chunkBlocks(s string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, part := range strings.Split(s, "\n\n") {
		if cur.Len() > 0 && cur.Len()+len(part)+2 > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(part)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
