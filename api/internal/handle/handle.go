package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"school-time-bot/api/internal/export"
	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/logger"
	"school-time-bot/api/internal/store"
	"school-time-bot/api/internal/wizard"
)

const (
	generateTimeout = 180 * time.Second
	askTimeout      = 70 * time.Second
	maxBody         = 1 << 20
)

type Handle struct {
	sessions *wizard.Store
	gateway  *generate.Gateway
	engs     *llm.Engines
	history  store.History
	log      *logger.Logger
}

func New(sessions *wizard.Store, gateway *generate.Gateway, engs *llm.Engines, log *logger.Logger) *Handle {
	return &Handle{
		sessions: sessions,
		gateway:  gateway,
		engs:     engs,
		log:      log,
	}
}

// WithHistory enables the generation log endpoint.
func (h *Handle) WithHistory(hist store.History) *Handle {
	h.history = hist
	return h
}

// Routes registers the session API on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", h.withSession(h.State))
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("PUT /v1/sessions/{id}/basic-info", h.withSession(h.SubmitBasicInfo))
	mux.HandleFunc("PUT /v1/sessions/{id}/engine", h.withSession(h.SetEngine))
	mux.HandleFunc("POST /v1/sessions/{id}/generate", h.withSession(h.Generate))
	mux.HandleFunc("GET /v1/sessions/{id}/form", h.withSession(h.Form))
	mux.HandleFunc("POST /v1/sessions/{id}/confirm", h.withSession(h.Confirm))
	mux.HandleFunc("POST /v1/sessions/{id}/edit", h.withSession(h.transition((*wizard.Wizard).Edit)))
	mux.HandleFunc("POST /v1/sessions/{id}/continue", h.withSession(h.transition((*wizard.Wizard).Continue)))
	mux.HandleFunc("POST /v1/sessions/{id}/jump", h.withSession(h.Jump))
	mux.HandleFunc("POST /v1/sessions/{id}/reset", h.withSession(h.Reset))
	mux.HandleFunc("GET /v1/sessions/{id}/export.xlsx", h.withSession(h.ExportPlan))
	mux.HandleFunc("GET /v1/sessions/{id}/approval.xlsx", h.withSession(h.ExportApproval))
	mux.HandleFunc("POST /v1/sessions/{id}/ask", h.withSession(h.Ask))
	mux.HandleFunc("GET /v1/sessions/{id}/generations", h.withSession(h.Generations))
	mux.HandleFunc("GET /v1/questions", h.SuggestedQuestions)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *wizard.Session)

func (h *Handle) withSession(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.sessions.Lookup(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		fn(w, r, s)
	}
}

// boundGateway binds the gateway to the session and its chosen engine.
func (h *Handle) boundGateway(s *wizard.Session) *generate.Gateway {
	return h.gateway.Bind(s.ID, s.Engine())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	return dec.Decode(v)
}

// statusFor maps wizard and generation errors to HTTP status codes. A
// deadline wins over unavailability since engines wrap context errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, wizard.ErrInvalidForm),
		errors.Is(err, wizard.ErrInvalidStep),
		errors.Is(err, wizard.ErrFormMismatch),
		errors.Is(err, export.ErrNoSections):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrAlreadyGenerated),
		errors.Is(err, wizard.ErrNotGenerated),
		errors.Is(err, wizard.ErrNoGeneration),
		errors.Is(err, wizard.ErrJumpLocked),
		errors.Is(err, wizard.ErrMissingBasicInfo):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handle) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "status", code, "error", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func setDownloadHeaders(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''`+url.PathEscape(name))
}
