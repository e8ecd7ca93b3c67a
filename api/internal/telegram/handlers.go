package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/export"
	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/wizard"
)

const helpText = `학교자율시간 계획서 작성 도우미입니다.
/status 현재 단계 보기
/form 현재 단계 양식 받기
/step N 단계 이동 (최종 검토 후)
/export [시트,...] Excel 다운로드
/approval [항목,...] 승인 신청서 다운로드
/engine [gpt|gemini] [모델] 생성 엔진 선택
/ask 질문 자율시간 도우미에게 묻기
/history 최근 생성 기록
/reset 처음부터 다시`

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		r.session(cid).ClearSurface()
		r.send(cid, helpText)
		r.showStep(cid)
	case "help":
		r.send(cid, helpText)
	case "status", "form":
		r.showStep(cid)
	case "step":
		n, err := strconv.Atoi(args)
		if err != nil {
			r.send(cid, "사용법: /step 1..7")
			return
		}
		r.jump(cid, wizard.Step(n))
	case "export":
		r.exportPlan(cid, args)
	case "approval":
		r.exportApproval(cid, args)
	case "engine":
		r.handleEngineCommand(cid, strings.Fields(args))
	case "ask":
		if args == "" {
			r.session(cid).SetMode(modeAsk)
			r.send(cid, "🐰 무엇이 궁금하세요? 질문을 보내 주세요.\n\n추천 질문:\n• "+strings.Join(r.Gateway.SuggestedQuestions(), "\n• "))
			return
		}
		r.answer(cid, args)
	case "history":
		r.showHistory(cid)
	case "reset":
		r.reset(cid)
	default:
		r.send(cid, "알 수 없는 명령입니다. /help")
	}
}

func (r *Router) jump(chatID int64, to wizard.Step) {
	sess := r.session(chatID)
	if err := sess.Do(func(w *wizard.Wizard) error { return w.Jump(to) }); err != nil {
		r.sendError(chatID, err)
		return
	}
	sess.ClearSurface()
	r.showStep(chatID)
}

func (r *Router) reset(chatID int64) {
	sess := r.session(chatID)
	_ = sess.Do(func(w *wizard.Wizard) error { w.Reset(); return nil })
	sess.ClearSurface()
	r.send(chatID, "🔄 처음부터 다시 시작합니다.")
	r.showStep(chatID)
}

func (r *Router) exportPlan(chatID int64, args string) {
	sections, err := export.ParseSections(args)
	if err != nil {
		r.send(chatID, err.Error()+"\n시트: 기본정보, 내용체계, 성취기준, 교수학습및평가, 차시별계획")
		return
	}
	doc := r.document(chatID)
	wb, err := export.Export(doc, sections)
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	r.sendWorkbook(chatID, export.FileName(doc, export.PlanFallbackName), wb)
}

func (r *Router) exportApproval(chatID int64, args string) {
	fields, err := export.ParseApprovalFields(args)
	if err != nil {
		r.send(chatID, err.Error()+"\n항목: "+strings.Join(export.ApprovalFields, ", "))
		return
	}
	doc := r.document(chatID)
	wb, err := export.Approval(doc, fields)
	if errors.Is(err, export.ErrNoSections) {
		r.send(chatID, "최소 하나의 항목을 선택해 주세요.")
		return
	}
	if err != nil {
		r.sendError(chatID, err)
		return
	}
	r.sendWorkbook(chatID, export.FileName(doc, export.ApprovalFallbackName), wb)
}

func (r *Router) sendWorkbook(chatID int64, name string, wb export.Workbook) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, wb); err != nil {
		r.Log.Error("xlsx render failed", "chat_id", chatID, "error", err)
		r.sendError(chatID, err)
		return
	}
	r.sendDocument(chatID, name, buf.Bytes())
}

func (r *Router) document(chatID int64) (doc *draft.Document) {
	_ = r.session(chatID).Do(func(w *wizard.Wizard) error { doc = w.Document(); return nil })
	return doc
}

// answer runs the assistant chat for one question.
func (r *Router) answer(chatID int64, question string) {
	sess := r.session(chatID)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	out, err := r.gateway(chatID).Ask(ctx, question, sess.History())
	if err != nil {
		r.Log.Warn("ask failed", "chat_id", chatID, "error", err)
		r.sendError(chatID, err)
		return
	}
	sess.AddTurn(generate.Turn{Question: question, Answer: out})
	r.send(chatID, out)
}

// showHistory lists the latest generation attempts of the chat.
func (r *Router) showHistory(chatID int64) {
	if r.History == nil {
		r.send(chatID, "생성 기록 저장소가 설정되지 않았습니다.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := r.History.Recent(ctx, sessionID(chatID), 5)
	if err != nil {
		r.Log.Warn("history read failed", "chat_id", chatID, "error", err)
		r.sendError(chatID, err)
		return
	}
	if len(recs) == 0 {
		r.send(chatID, "아직 생성 기록이 없습니다.")
		return
	}
	var b strings.Builder
	b.WriteString("🗂 최근 생성 기록")
	for _, rec := range recs {
		fmt.Fprintf(&b, "\n\n%s · %s · %s (%s %s)",
			rec.CreatedAt.Format("01-02 15:04"), wizard.Step(rec.Step).Label(), rec.Outcome, rec.Engine, rec.Model)
		for _, p := range rec.Problems {
			b.WriteString("\n  - " + truncate(p, 200))
		}
	}
	r.send(chatID, b.String())
}
