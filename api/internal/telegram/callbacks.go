package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/wizard"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	data := cb.Data
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch {
	case data == cbGenerate:
		r.dropKeyboard(cid, cb.Message.MessageID)
		r.onGenerate(cid)
	case data == cbSave:
		r.dropKeyboard(cid, cb.Message.MessageID)
		r.onSave(cid)
	case data == cbEdit:
		r.dropKeyboard(cid, cb.Message.MessageID)
		r.transition(cid, (*wizard.Wizard).Edit)
	case data == cbNext:
		r.dropKeyboard(cid, cb.Message.MessageID)
		r.transition(cid, (*wizard.Wizard).Continue)
	case data == cbExport:
		r.exportPlan(cid, "")
	case data == cbApproval:
		r.exportApproval(cid, "")
	case data == cbReset:
		r.dropKeyboard(cid, cb.Message.MessageID)
		r.reset(cid)
	case strings.HasPrefix(data, cbJump):
		n, err := strconv.Atoi(strings.TrimPrefix(data, cbJump))
		if err != nil {
			return
		}
		r.jump(cid, wizard.Step(n))
	}
}

func (r *Router) dropKeyboard(chatID int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{})
	_, _ = r.Bot.Request(edit)
}

func (r *Router) transition(chatID int64, fn func(*wizard.Wizard) error) {
	sess := r.session(chatID)
	if err := sess.Do(fn); err != nil {
		r.sendError(chatID, err)
		r.showStep(chatID)
		return
	}
	sess.ClearSurface()
	r.showStep(chatID)
}

func (r *Router) onGenerate(chatID int64) {
	r.send(chatID, "⏳ 생성 중입니다. 잠시만 기다려 주세요...")

	var res generate.Result
	err := r.session(chatID).Do(func(w *wizard.Wizard) error {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
		defer cancel()
		var err error
		res, err = w.Generate(ctx, r.gateway(chatID))
		return err
	})
	if err != nil {
		r.Log.Warn("generate failed", "chat_id", chatID, "error", err)
		r.sendError(chatID, err)
		r.showStep(chatID)
		return
	}
	r.Log.Info("step generated", "chat_id", chatID, "step", res.Step, "outcome", res.Outcome.String(), "problems", len(res.Problems))
	if res.Outcome == generate.OutcomeMalformed {
		r.send(chatID, "⚠️ 생성 결과를 해석하지 못해 빈 양식을 준비했습니다. 직접 입력하거나 처음부터 다시 생성해 주세요.")
	}
	r.showStep(chatID)
}

// onSave confirms the staged text form, or the generated content unchanged
// when nothing was pasted.
func (r *Router) onSave(chatID int64) {
	sess := r.session(chatID)
	err := sess.Do(func(w *wizard.Wizard) error {
		f, ok := sess.TakeStaged(w.Step())
		if !ok {
			var err error
			if f, err = w.Form(); err != nil {
				return err
			}
		}
		return w.Confirm(f)
	})
	if err != nil {
		r.sendError(chatID, err)
		r.showStep(chatID)
		return
	}
	r.send(chatID, "💾 저장했습니다.")
	r.showStep(chatID)
}
