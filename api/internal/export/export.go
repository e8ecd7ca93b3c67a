package export

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"school-time-bot/api/internal/draft"
)

var ErrNoSections = errors.New("export: no sections selected")

// Section is one sheet of the full workbook.
type Section int

const (
	SectionBasicInfo Section = iota + 1
	SectionContentSets
	SectionStandards
	SectionTeaching
	SectionLessons
)

// Sections lists every section in canonical sheet order.
var Sections = []Section{SectionBasicInfo, SectionContentSets, SectionStandards, SectionTeaching, SectionLessons}

var sectionNames = map[Section]string{
	SectionBasicInfo:   "기본정보",
	SectionContentSets: "내용체계",
	SectionStandards:   "성취기준",
	SectionTeaching:    "교수학습및평가",
	SectionLessons:     "차시별계획",
}

// SheetName is the worksheet title of the section.
func (s Section) SheetName() string { return sectionNames[s] }

var sectionAliases = map[string]Section{
	"basic":     SectionBasicInfo,
	"content":   SectionContentSets,
	"standards": SectionStandards,
	"teaching":  SectionTeaching,
	"lessons":   SectionLessons,
	"교수학습 및 평가": SectionTeaching,
}

// ParseSection accepts a sheet name, its spaced display form or a short
// English key.
func ParseSection(s string) (Section, bool) {
	s = strings.TrimSpace(s)
	if sec, ok := sectionAliases[strings.ToLower(s)]; ok {
		return sec, true
	}
	for sec, name := range sectionNames {
		if name == s {
			return sec, true
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= int(SectionBasicInfo) && n <= int(SectionLessons) {
		return Section(n), true
	}
	return 0, false
}

// ParseSections parses a comma separated list. An empty list selects every
// section.
func ParseSections(list string) ([]Section, error) {
	if strings.TrimSpace(list) == "" {
		return slices.Clone(Sections), nil
	}
	var out []Section
	for _, p := range strings.Split(list, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		sec, ok := ParseSection(p)
		if !ok {
			return nil, fmt.Errorf("export: unknown section %q", strings.TrimSpace(p))
		}
		out = append(out, sec)
	}
	return out, nil
}

type Column struct {
	Header string
	Width  float64
}

type Sheet struct {
	Name    string
	Columns []Column
	Rows    [][]string
}

type Workbook struct {
	Sheets []Sheet
}

// Sheet returns the sheet called name.
func (wb Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range wb.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

// Export flattens doc into the selected sheets, in canonical order.
func Export(doc *draft.Document, sections []Section) (Workbook, error) {
	var wb Workbook
	for _, sec := range Sections {
		if !slices.Contains(sections, sec) {
			continue
		}
		wb.Sheets = append(wb.Sheets, build(sec, doc))
	}
	if len(wb.Sheets) == 0 {
		return Workbook{}, ErrNoSections
	}
	return wb, nil
}

func build(sec Section, doc *draft.Document) Sheet {
	switch sec {
	case SectionBasicInfo:
		return basicSheet(doc)
	case SectionContentSets:
		return contentSheet(doc)
	case SectionStandards:
		return standardsSheet(doc)
	case SectionTeaching:
		return teachingSheet(doc)
	default:
		return lessonsSheet(doc)
	}
}

var basicLabels = []string{"학교급", "대상학년", "총차시", "주당차시", "운영 학기", "연계 교과", "활동명", "요구사항", "필요성", "개요", "성격"}

// basicValues returns the eleven basic info and narrative values in
// canonical order.
func basicValues(doc *draft.Document) []string {
	vals := make([]string, len(basicLabels))
	if b := doc.Basic; b != nil {
		vals[0] = string(b.SchoolLevel)
		vals[1] = strings.Join(b.Grades, ", ")
		vals[2] = strconv.Itoa(b.TotalHours)
		vals[3] = strconv.Itoa(b.WeeklyHours)
		vals[4] = strings.Join(b.Semesters, ", ")
		vals[5] = strings.Join(b.Subjects, ", ")
		vals[6] = b.ActivityName
		vals[7] = b.Requirements
	}
	if n := doc.Narrative; n != nil {
		vals[8] = n.Necessity
		vals[9] = n.Overview
		vals[10] = n.Character
	}
	return vals
}

func basicSheet(doc *draft.Document) Sheet {
	s := Sheet{Name: SectionBasicInfo.SheetName(), Columns: []Column{{"항목", 20}, {"내용", 60}}}
	for i, v := range basicValues(doc) {
		s.Rows = append(s.Rows, []string{basicLabels[i], v})
	}
	return s
}

func contentSheet(doc *draft.Document) Sheet {
	s := Sheet{Name: SectionContentSets.SheetName(), Columns: []Column{{"구분", 25}, {"내용", 80}}}
	for i, c := range doc.ContentSets {
		n := i + 1
		s.Rows = append(s.Rows, []string{fmt.Sprintf("영역명 (세트%d)", n), c.Domain})
		add := func(label string, items []string) {
			for _, it := range items {
				s.Rows = append(s.Rows, []string{fmt.Sprintf("%s (세트%d)", label, n), it})
			}
		}
		add("핵심 아이디어", c.KeyIdeas)
		add("지식·이해", c.Elements.Knowledge)
		add("과정·기능", c.Elements.Process)
		add("가치·태도", c.Elements.Values)
	}
	if len(s.Rows) == 0 {
		s.Rows = [][]string{{"내용체계 없음", ""}}
	}
	return s
}

func standardsSheet(doc *draft.Document) Sheet {
	s := Sheet{Name: SectionStandards.SheetName(), Columns: []Column{{"성취기준코드", 15}, {"성취기준설명", 50}, {"수준", 10}, {"수준별설명", 60}}}
	for _, std := range doc.Standards {
		for _, l := range std.Levels {
			s.Rows = append(s.Rows, []string{std.Code, std.Description, l.Level.Label(), l.Description})
		}
	}
	return padEmpty(s)
}

const (
	kindMethod = "교수학습방법"
	kindPlan   = "평가계획"
)

func teachingSheet(doc *draft.Document) Sheet {
	s := Sheet{Name: SectionTeaching.SheetName(), Columns: []Column{
		{"유형", 14}, {"코드", 14}, {"성취기준", 30}, {"평가요소", 30}, {"평가방법", 30}, {"평가기준", 30},
	}}
	if t := doc.Teaching; t != nil {
		switch t.Schema {
		case draft.SchemaFocus:
			for _, m := range t.Methods {
				s.Rows = append(s.Rows, []string{kindMethod, "", "", m.Method, m.Description, ""})
			}
			for _, f := range t.FocusPlan {
				s.Rows = append(s.Rows, []string{kindPlan, "", "", f.Focus, f.Description, ""})
			}
		default:
			for _, line := range t.MethodLines() {
				s.Rows = append(s.Rows, []string{kindMethod, "", "", "", line, ""})
			}
			for _, it := range t.Plan {
				s.Rows = append(s.Rows, []string{kindPlan, it.Code, it.Description, it.Element, it.Method, criteria(it)})
			}
		}
	}
	return padEmpty(s)
}

func criteria(it draft.AssessmentItem) string {
	return fmt.Sprintf("상: %s\n중: %s\n하: %s", it.CriteriaHigh, it.CriteriaMid, it.CriteriaLow)
}

func lessonsSheet(doc *draft.Document) Sheet {
	s := Sheet{Name: SectionLessons.SheetName(), Columns: []Column{{"차시", 10}, {"학습주제", 30}, {"학습내용", 80}, {"교수학습자료", 50}}}
	for _, l := range doc.Lessons {
		s.Rows = append(s.Rows, []string{l.LessonNumber, l.Topic, l.Content, l.Materials})
	}
	return padEmpty(s)
}

// padEmpty gives a sheet without data a single row of empty cells.
func padEmpty(s Sheet) Sheet {
	if len(s.Rows) == 0 {
		s.Rows = [][]string{make([]string, len(s.Columns))}
	}
	return s
}
