package handle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"school-time-bot/api/internal/draft"
	"school-time-bot/api/internal/export"
	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/store"
	"school-time-bot/api/internal/wizard"
)

type SessionResponse struct {
	SessionID string          `json:"session_id"`
	State     wizard.Snapshot `json:"state"`
}

type GenerateResponse struct {
	Outcome  string          `json:"outcome"`
	Problems []string        `json:"problems,omitempty"`
	Form     wizard.Form     `json:"form"`
	State    wizard.Snapshot `json:"state"`
}

type EngineRequest struct {
	LLMName string `json:"llm_name"`
}

type JumpRequest struct {
	Step int `json:"step"`
}

func (h *Handle) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	h.log.Info("session created", "session", s.ID)
	writeJSON(w, http.StatusCreated, h.respond(s))
}

func (h *Handle) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) respond(s *wizard.Session) SessionResponse {
	var snap wizard.Snapshot
	_ = s.Do(func(wz *wizard.Wizard) error { snap = wz.Snapshot(); return nil })
	return SessionResponse{SessionID: s.ID, State: snap}
}

func (h *Handle) State(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	writeJSON(w, http.StatusOK, h.respond(s))
}

func (h *Handle) SubmitBasicInfo(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	var b draft.BasicInfo
	if err := decodeBody(w, r, &b); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Do(func(wz *wizard.Wizard) error { return wz.SubmitBasicInfo(b) }); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.respond(s))
}

func (h *Handle) SetEngine(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	var req EngineRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	var eng llm.Engine
	if strings.TrimSpace(req.LLMName) != "" {
		var err error
		if eng, err = h.engs.GetEngine(req.LLMName); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	s.SetEngine(eng)
	writeJSON(w, http.StatusOK, h.respond(s))
}

func (h *Handle) Generate(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	gw := h.boundGateway(s)
	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()

	var out GenerateResponse
	err := s.Do(func(wz *wizard.Wizard) error {
		res, err := wz.Generate(ctx, gw)
		if err != nil {
			return err
		}
		out.Outcome = res.Outcome.String()
		out.Problems = wz.Problems()
		out.Form, _ = wz.Form()
		out.State = wz.Snapshot()
		return nil
	})
	if err != nil {
		h.log.Warn("generate failed", "session", s.ID, "error", err)
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) Form(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	var f wizard.Form
	err := s.Do(func(wz *wizard.Wizard) error {
		var err error
		f, err = wz.Form()
		return err
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Confirm decodes the body as the form of the session's current step.
func (h *Handle) Confirm(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	err = s.Do(func(wz *wizard.Wizard) error {
		f, err := wizard.DecodeForm(wz.Step(), body)
		if err != nil {
			return err
		}
		return wz.Confirm(f)
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.respond(s))
}

func (h *Handle) transition(fn func(*wizard.Wizard) error) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
		if err := s.Do(fn); err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.respond(s))
	}
}

func (h *Handle) Jump(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	var req JumpRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.transition(func(wz *wizard.Wizard) error { return wz.Jump(wizard.Step(req.Step)) })(w, r, s)
}

func (h *Handle) Reset(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	h.transition(func(wz *wizard.Wizard) error { wz.Reset(); return nil })(w, r, s)
}

func (h *Handle) document(s *wizard.Session) *draft.Document {
	var d *draft.Document
	_ = s.Do(func(wz *wizard.Wizard) error { d = wz.Document(); return nil })
	return d
}

func (h *Handle) ExportPlan(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	sections, err := export.ParseSections(r.URL.Query().Get("sections"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	doc := h.document(s)
	wb, err := export.Export(doc, sections)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.sendWorkbook(w, export.FileName(doc, export.PlanFallbackName), wb)
}

func (h *Handle) ExportApproval(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	q := r.URL.Query()
	fields, err := export.ParseApprovalFields(q.Get("fields"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if q.Has("fields") && strings.TrimSpace(q.Get("fields")) == "" {
		h.fail(w, export.ErrNoSections)
		return
	}
	doc := h.document(s)
	wb, err := export.Approval(doc, fields)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.sendWorkbook(w, export.FileName(doc, export.ApprovalFallbackName), wb)
}

// sendWorkbook renders to memory first so a failure can still be reported
// as JSON.
func (h *Handle) sendWorkbook(w http.ResponseWriter, name string, wb export.Workbook) {
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, wb); err != nil {
		h.fail(w, err)
		return
	}
	setDownloadHeaders(w, name)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

func (h *Handle) Ask(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), askTimeout)
	defer cancel()

	answer, err := h.boundGateway(s).Ask(ctx, req.Question, s.History())
	if errors.Is(err, generate.ErrEmptyQuestion) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	s.AddTurn(generate.Turn{Question: req.Question, Answer: answer})
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}

func (h *Handle) SuggestedQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"questions": h.gateway.SuggestedQuestions()})
}

type GenerationView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Step      int       `json:"step"`
	Engine    string    `json:"engine"`
	Model     string    `json:"model"`
	Outcome   string    `json:"outcome"`
	Problems  []string  `json:"problems,omitempty"`
}

// Generations lists the latest generation attempts of the session.
func (h *Handle) Generations(w http.ResponseWriter, r *http.Request, s *wizard.Session) {
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "generation log is not configured"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a number"})
			return
		}
		limit = n
	}
	recs, err := h.history.Recent(r.Context(), s.ID, store.ClampLimit(limit))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]GenerationView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, GenerationView{
			ID:        rec.ID.String(),
			CreatedAt: rec.CreatedAt,
			Step:      rec.Step,
			Engine:    rec.Engine,
			Model:     rec.Model,
			Outcome:   rec.Outcome,
			Problems:  rec.Problems,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]GenerationView{"generations": out})
}
