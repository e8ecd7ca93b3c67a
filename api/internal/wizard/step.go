package wizard

import "fmt"

type Step int

const (
	StepBasicInfo Step = iota + 1
	StepApproval
	StepContentSets
	StepStandards
	StepTeaching
	StepLessons
	StepFinalReview
)

const (
	FirstStep = StepBasicInfo
	LastStep  = StepFinalReview
)

var labels = map[Step]string{
	StepBasicInfo:   "기본정보",
	StepApproval:    "승인 신청서",
	StepContentSets: "내용체계",
	StepStandards:   "성취기준",
	StepTeaching:    "교수학습 및 평가",
	StepLessons:     "차시별계획",
	StepFinalReview: "최종 검토",
}

func (s Step) Valid() bool { return s >= FirstStep && s <= LastStep }

// Label is the Korean step title shown by the surfaces.
func (s Step) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return fmt.Sprintf("step %d", int(s))
}

func (s Step) String() string { return fmt.Sprintf("%d. %s", int(s), s.Label()) }

// Generates reports whether the step has a generate/confirm pair.
func (s Step) Generates() bool {
	return s == StepBasicInfo || (s >= StepContentSets && s <= StepLessons)
}
