package export

import (
	"fmt"
	"slices"
	"strings"

	"school-time-bot/api/internal/draft"
)

const ApprovalSheetName = "자율시간 승인 신청서"

// ApprovalFields are the selectable rows of the approval form, in canonical
// order. They mirror the basic info sheet with spaced labels.
var ApprovalFields = []string{"학교급", "대상 학년", "총 차시", "주당 차시", "운영 학기", "연계 교과", "활동명", "요구사항", "필요성", "개요", "성격"}

// ParseApprovalFields parses a comma separated field list; blank selects all.
func ParseApprovalFields(list string) ([]string, error) {
	if strings.TrimSpace(list) == "" {
		return slices.Clone(ApprovalFields), nil
	}
	var out []string
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !slices.Contains(ApprovalFields, p) {
			return nil, fmt.Errorf("export: unknown approval field %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}

// Approval builds the single-sheet approval form with the selected fields.
func Approval(doc *draft.Document, fields []string) (Workbook, error) {
	s := Sheet{Name: ApprovalSheetName, Columns: []Column{{"항목", 20}, {"내용", 50}}}
	vals := basicValues(doc)
	for i, f := range ApprovalFields {
		if slices.Contains(fields, f) {
			s.Rows = append(s.Rows, []string{f, vals[i]})
		}
	}
	if len(s.Rows) == 0 {
		return Workbook{}, ErrNoSections
	}
	return Workbook{Sheets: []Sheet{s}}, nil
}

const (
	PlanFallbackName     = "학교자율시간계획서"
	ApprovalFallbackName = "자율시간승인신청서"
)

// FileName derives the download name from the activity name.
func FileName(doc *draft.Document, fallback string) string {
	name := ""
	if doc != nil && doc.Basic != nil {
		name = sanitize(doc.Basic.ActivityName)
	}
	if name == "" {
		name = fallback
	}
	return name + ".xlsx"
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
