package draft

import (
	"fmt"
	"slices"
	"strings"
)

type Level string

const (
	LevelA Level = "A"
	LevelB Level = "B"
	LevelC Level = "C"
)

var Levels = []Level{LevelA, LevelB, LevelC}

// Label is the display label used in exports: A→상, B→중, C→하.
func (l Level) Label() string {
	switch l {
	case LevelA:
		return "상"
	case LevelB:
		return "중"
	case LevelC:
		return "하"
	}
	return string(l)
}

// ParseLevel accepts A/B/C in any case and the 상/중/하 labels.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "상":
		return LevelA, true
	case "B", "중":
		return LevelB, true
	case "C", "하":
		return LevelC, true
	}
	return "", false
}

type LevelDescriptor struct {
	Level       Level  `json:"level"`
	Description string `json:"description"`
}

type Standard struct {
	Code        string            `json:"code"`
	Description string            `json:"description"`
	Levels      []LevelDescriptor `json:"levels"`
}

func (s Standard) clone() Standard {
	s.Levels = slices.Clone(s.Levels)
	return s
}

func (s Standard) hasCanonicalLevels() bool {
	if len(s.Levels) != len(Levels) {
		return false
	}
	for i, l := range s.Levels {
		if l.Level != Levels[i] {
			return false
		}
	}
	return true
}

// NormalizeLevels maps level labels to A/B/C and orders them. It fails when
// the result is not exactly one descriptor per level.
func (s *Standard) NormalizeLevels() error {
	byLevel := make(map[Level]string, len(Levels))
	for _, l := range s.Levels {
		lv, ok := ParseLevel(string(l.Level))
		if !ok {
			return fmt.Errorf("standard %q: unknown level %q", s.Code, l.Level)
		}
		if _, dup := byLevel[lv]; dup {
			return fmt.Errorf("standard %q: duplicate level %s", s.Code, lv)
		}
		byLevel[lv] = l.Description
	}
	if len(byLevel) != len(Levels) {
		return fmt.Errorf("standard %q: have %d levels, want %d", s.Code, len(byLevel), len(Levels))
	}
	s.Levels = s.Levels[:0]
	for _, lv := range Levels {
		s.Levels = append(s.Levels, LevelDescriptor{Level: lv, Description: byLevel[lv]})
	}
	return nil
}

// EmptyLevels is the A/B/C skeleton used for blank standards in edit forms.
func EmptyLevels() []LevelDescriptor {
	out := make([]LevelDescriptor, 0, len(Levels))
	for _, lv := range Levels {
		out = append(out, LevelDescriptor{Level: lv})
	}
	return out
}

// CodePrefix concatenates the first grade without its "학년" suffix, the first
// rune of the first subject and the first two runes of the activity name.
// "4학년", "사회", "텃밭가꾸기" gives "4사텃밭".
func CodePrefix(b BasicInfo) string {
	var sb strings.Builder
	if len(b.Grades) > 0 {
		sb.WriteString(strings.TrimSpace(strings.ReplaceAll(b.Grades[0], "학년", "")))
	}
	if len(b.Subjects) > 0 {
		if r := []rune(strings.TrimSpace(b.Subjects[0])); len(r) > 0 {
			sb.WriteRune(r[0])
		}
	}
	name := []rune(strings.TrimSpace(b.ActivityName))
	if len(name) > 2 {
		name = name[:2]
	}
	sb.WriteString(string(name))
	return sb.String()
}

// StandardCode formats the n-th (1-based) code for prefix: "4사텃밭-01".
func StandardCode(prefix string, n int) string {
	return fmt.Sprintf("%s-%02d", prefix, n)
}
