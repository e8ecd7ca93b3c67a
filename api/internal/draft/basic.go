package draft

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

type SchoolLevel string

const (
	Elementary SchoolLevel = "초등학교"
	Middle     SchoolLevel = "중학교"
)

var (
	GradeOptions = map[SchoolLevel][]string{
		Elementary: {"3학년", "4학년", "5학년", "6학년"},
		Middle:     {"1학년", "2학년", "3학년"},
	}
	SubjectOptions = map[SchoolLevel][]string{
		Elementary: {"국어", "수학", "사회", "과학", "영어", "음악", "미술", "체육", "실과", "도덕"},
		Middle:     {"국어", "수학", "사회/역사", "과학/기술", "영어", "음악", "미술", "체육", "정보", "도덕"},
	}
	SemesterOptions = []string{"1학기", "2학기"}
)

const DefaultTotalHours = 34

type BasicInfo struct {
	SchoolLevel  SchoolLevel `json:"school_type" validate:"required,oneof=초등학교 중학교"`
	Grades       []string    `json:"grades" validate:"required,min=1,dive,required"`
	Subjects     []string    `json:"subjects" validate:"required,min=1,dive,required"`
	ActivityName string      `json:"activity_name" validate:"required"`
	Requirements string      `json:"requirements"`
	TotalHours   int         `json:"total_hours" validate:"min=1,max=68"`
	WeeklyHours  int         `json:"weekly_hours" validate:"min=1,max=2"`
	Semesters    []string    `json:"semester" validate:"required,min=1,dive,oneof=1학기 2학기"`
}

var validate = validator.New()

// Validate checks struct tags and that grades/subjects belong to the school level.
func (b BasicInfo) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("basic info: %w", err)
	}
	for _, g := range b.Grades {
		if !slices.Contains(GradeOptions[b.SchoolLevel], g) {
			return fmt.Errorf("basic info: grade %q not offered for %s", g, b.SchoolLevel)
		}
	}
	for _, s := range b.Subjects {
		if !slices.Contains(SubjectOptions[b.SchoolLevel], s) {
			return fmt.Errorf("basic info: subject %q not offered for %s", s, b.SchoolLevel)
		}
	}
	return nil
}

func (b BasicInfo) clone() BasicInfo {
	b.Grades = slices.Clone(b.Grades)
	b.Subjects = slices.Clone(b.Subjects)
	b.Semesters = slices.Clone(b.Semesters)
	return b
}

type Narrative struct {
	Necessity string `json:"necessity"`
	Overview  string `json:"overview"`
	Character string `json:"characteristics,omitempty"`
}
