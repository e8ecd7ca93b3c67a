package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/logger"
	"school-time-bot/api/internal/store"
	"school-time-bot/api/internal/util"
	"school-time-bot/api/internal/wizard"
)

const messageLimit = 3900

// Sender is the part of *tgbotapi.BotAPI the router uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Router struct {
	Bot      Sender
	Sessions *wizard.Store
	Gateway  *generate.Gateway
	Engines  *llm.Engines
	Log      *logger.Logger

	// History is the generation log; nil disables /history.
	History store.History

	// GenerateTimeout bounds one generate action, lesson batches included.
	GenerateTimeout time.Duration
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}
	txt := strings.TrimSpace(msg.Text)
	if txt == "" {
		return
	}
	if sess := r.session(cid); sess.Mode() == modeAsk {
		sess.SetMode("")
		r.answer(cid, txt)
		return
	}
	r.acceptText(cid, txt)
}

func (r *Router) gateway(chatID int64) *generate.Gateway {
	return r.Gateway.Bind(sessionID(chatID), r.session(chatID).Engine())
}

func (r *Router) timeout() time.Duration {
	if r.GenerateTimeout > 0 {
		return r.GenerateTimeout
	}
	return 3 * time.Minute
}

func basicTemplate() wizard.BasicForm {
	return wizard.BasicForm{Basic: draft.BasicInfo{
		SchoolLevel: draft.Elementary,
		TotalHours:  draft.DefaultTotalHours,
		WeeklyHours: 1,
		Semesters:   []string{"1학기"},
	}}
}

// acceptText treats pasted text as a form. At step 1 before generation it
// submits basic info; in a generated step it stages the edit for saving.
func (r *Router) acceptText(chatID int64, txt string) {
	var reply string
	sess := r.session(chatID)
	err := sess.Do(func(w *wizard.Wizard) error {
		switch {
		case w.Step() == wizard.StepBasicInfo && !w.Generated():
			base := basicTemplate()
			if d := w.Document(); d.Basic != nil {
				base.Basic = *d.Basic
			}
			f, err := DecodeForm(base, txt)
			if err != nil {
				return err
			}
			if err := w.SubmitBasicInfo(f.(wizard.BasicForm).Basic); err != nil {
				return err
			}
			reply = "✅ 기본정보를 저장했습니다. [생성] 버튼으로 필요성·개요·성격을 만들어 보세요."
		case w.Generated():
			base, err := w.Form()
			if err != nil {
				return err
			}
			f, err := DecodeForm(base, txt)
			if err != nil {
				return err
			}
			sess.Stage(f)
			reply = "📝 수정 내용을 받았습니다. [저장] 버튼을 누르면 반영됩니다."
		default:
			return errNoBlocks
		}
		return nil
	})
	if errors.Is(err, errNoBlocks) {
		r.send(chatID, "양식은 [항목] 형식으로 보내 주세요. 현재 양식은 /form, 질문은 /ask 로 할 수 있습니다.")
		return
	}
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	r.sendWithKeyboard(chatID, reply)
}

// showStep sends the progress, the current form when one is open, and the
// action keyboard.
func (r *Router) showStep(chatID int64) {
	var (
		snap wizard.Snapshot
		form wizard.Form
	)
	_ = r.session(chatID).Do(func(w *wizard.Wizard) error {
		snap = w.Snapshot()
		if snap.Generated {
			form, _ = w.Form()
		}
		return nil
	})

	if form != nil {
		r.sendForm(chatID, snap, form)
	} else if snap.Step == wizard.StepBasicInfo && snap.Document.Basic == nil {
		r.send(chatID, "아래 기본정보 양식을 복사해 채운 뒤 보내 주세요.")
		r.sendChunks(chatID, EncodeForm(basicTemplate()))
	}

	var sb strings.Builder
	sb.WriteString(progress(snap.Step))
	sb.WriteString("\n")
	sb.WriteString(stepHint(snap))
	if snap.Step == wizard.StepFinalReview {
		sb.WriteString("\n\n")
		sb.WriteString(reviewSummary(snap))
	}
	r.sendMarkup(chatID, sb.String(), stepKeyboard(snap))
}

func (r *Router) sendForm(chatID int64, snap wizard.Snapshot, f wizard.Form) {
	head := "✏️ 생성된 내용입니다. 수정할 [항목]만 복사해 고친 뒤 보내고 [저장]을 누르세요."
	if sf, ok := f.(wizard.StandardsForm); ok {
		var codes []string
		for i, s := range sf.Standards {
			codes = append(codes, fmt.Sprintf("성취기준%d: %s", i+1, s.Code))
		}
		head += "\n코드는 자동으로 부여됩니다.\n" + strings.Join(codes, "\n")
	}
	if len(snap.Problems) > 0 {
		head += "\n\n⚠️ " + strings.Join(snap.Problems, "\n⚠️ ")
	}
	r.send(chatID, head)
	r.sendChunks(chatID, EncodeForm(f))
}

func stepHint(s wizard.Snapshot) string {
	switch {
	case s.Step == wizard.StepApproval:
		return "기본정보로 승인 신청서를 내려받을 수 있습니다. /approval 항목,항목 으로 일부만 고를 수도 있습니다."
	case s.Step == wizard.StepFinalReview:
		return "최종 검토 단계입니다. Excel을 내려받거나 각 단계로 돌아가 수정할 수 있습니다."
	case s.Generated:
		return s.Label + " 내용을 확인하고 저장하세요."
	case s.Step == wizard.StepBasicInfo && s.Document.Basic == nil:
		return "기본정보를 입력해 주세요."
	default:
		return s.Label + " 단계입니다. [생성] 버튼을 누르세요."
	}
}

func reviewSummary(s wizard.Snapshot) string {
	d := s.Document
	var sb strings.Builder
	if d.Basic != nil {
		fmt.Fprintf(&sb, "활동명: %s\n", d.Basic.ActivityName)
		fmt.Fprintf(&sb, "대상: %s %s, 총 %d차시\n", d.Basic.SchoolLevel, strings.Join(d.Basic.Grades, ", "), d.Basic.TotalHours)
	}
	fmt.Fprintf(&sb, "내용체계 %d세트, 성취기준 %d개, 차시별 계획 %d차시", len(d.ContentSets), len(d.Standards), len(d.Lessons))
	for _, v := range s.Violations {
		sb.WriteString("\n⚠️ ")
		sb.WriteString(v)
	}
	return sb.String()
}

func (r *Router) send(chatID int64, text string) {
	if len(text) > messageLimit {
		text = truncate(text, messageLimit) + "…"
	}
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.Log.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) sendChunks(chatID int64, text string) {
	for _, part := range chunkBlocks(text, messageLimit) {
		r.send(chatID, part)
	}
}

func (r *Router) sendMarkup(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, truncate(text, messageLimit))
	msg.ReplyMarkup = kb
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) sendWithKeyboard(chatID int64, text string) {
	var snap wizard.Snapshot
	_ = r.session(chatID).Do(func(w *wizard.Wizard) error { snap = w.Snapshot(); return nil })
	r.sendMarkup(chatID, text, stepKeyboard(snap))
}

func (r *Router) sendDocument(chatID int64, name string, data []byte) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	if _, err := r.Bot.Send(doc); err != nil {
		r.Log.Warn("telegram document failed", "chat_id", chatID, "file", name, "error", err)
		r.send(chatID, "파일 전송에 실패했습니다. 잠시 후 다시 시도해 주세요.")
	}
}

func (r *Router) sendError(chatID int64, err error) {
	r.send(chatID, userMessage(err))
}

// userMessage maps wizard and generation errors to chat replies.
func userMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "⚠️ 생성 시간이 초과되었습니다. 다시 시도해 주세요."
	case errors.Is(err, llm.ErrUnavailable):
		return "⚠️ 생성 서비스에 연결할 수 없습니다. 잠시 후 다시 시도해 주세요."
	case errors.Is(err, wizard.ErrAlreadyGenerated):
		return "이미 생성된 단계입니다. 내용을 수정한 뒤 저장하세요."
	case errors.Is(err, wizard.ErrNotGenerated):
		return "먼저 이 단계의 내용을 생성해 주세요."
	case errors.Is(err, wizard.ErrNoGeneration):
		return "이 단계에는 생성하거나 저장할 내용이 없습니다."
	case errors.Is(err, wizard.ErrJumpLocked):
		return "단계 이동은 최종 검토에 도달한 뒤에 사용할 수 있습니다."
	case errors.Is(err, wizard.ErrInvalidStep):
		return "지금은 할 수 없는 단계 이동입니다."
	case errors.Is(err, wizard.ErrFormMismatch):
		return "현재 단계와 맞지 않는 양식입니다. /form 으로 현재 양식을 확인하세요."
	case errors.Is(err, wizard.ErrMissingBasicInfo):
		return "기본정보를 먼저 입력해 주세요."
	case errors.Is(err, wizard.ErrInvalidForm):
		return "입력값을 확인해 주세요: " + err.Error()
	}
	return "오류: " + err.Error()
}

func truncate(s string, n int) string { return util.TruncateBytes(s, n) }
