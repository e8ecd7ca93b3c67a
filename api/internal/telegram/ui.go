package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"school-time-bot/api/internal/wizard"
)

const (
	cbGenerate = "gen"
	cbEdit     = "edit"
	cbSave     = "save"
	cbNext     = "next"
	cbExport   = "export"
	cbApproval = "approval"
	cbReset    = "reset"
	cbJump     = "jump:"
)

func button(label, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, data)
}

// stepKeyboard offers the actions legal in the current sub-state.
func stepKeyboard(s wizard.Snapshot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	switch {
	case s.Step == wizard.StepApproval:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button("📥 승인 신청서", cbApproval),
			button("다음 단계로 ▶", cbNext),
		))
	case s.Step == wizard.StepFinalReview:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button("📥 Excel 다운로드", cbExport),
			button("📥 승인 신청서", cbApproval),
		))
		rows = append(rows, jumpRow())
	case s.Generated:
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("💾 저장 및 다음 단계로", cbSave)))
	case s.Step == wizard.StepBasicInfo && s.Document.Basic == nil:
		// basic info is submitted as a pasted text form first
	default:
		gen := tgbotapi.NewInlineKeyboardRow(button("✨ "+s.Label+" 생성", cbGenerate))
		if s.ReviewReached {
			gen = append(gen, button("✏️ 저장된 내용 수정", cbEdit))
		}
		rows = append(rows, gen)
	}
	if s.ReviewReached && s.Step != wizard.StepFinalReview {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🏁 최종 검토로", fmt.Sprintf("%s%d", cbJump, wizard.StepFinalReview))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🔄 처음부터", cbReset)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func jumpRow() []tgbotapi.InlineKeyboardButton {
	var row []tgbotapi.InlineKeyboardButton
	for _, st := range []wizard.Step{wizard.StepBasicInfo, wizard.StepContentSets, wizard.StepStandards, wizard.StepTeaching, wizard.StepLessons} {
		row = append(row, button(fmt.Sprintf("✏️%d", int(st)), fmt.Sprintf("%s%d", cbJump, int(st))))
	}
	return row
}

func progress(cur wizard.Step) string {
	var sb strings.Builder
	for st := wizard.FirstStep; st <= wizard.LastStep; st++ {
		mark := "○"
		switch {
		case st < cur:
			mark = "●"
		case st == cur:
			mark = "▶"
		}
		fmt.Fprintf(&sb, "%s %d. %s\n", mark, int(st), st.Label())
	}
	return sb.String()
}
