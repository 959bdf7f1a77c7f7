// Package handler exposes the HTTP API: a student-facing test-taking surface
// and a cookie-authenticated admin surface.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appI18n "github.com/pavelanni/quizgate/internal/i18n"
	"github.com/pavelanni/quizgate/internal/model"
	"github.com/pavelanni/quizgate/internal/session"
	"github.com/pavelanni/quizgate/internal/store"
)

// tabSwitchLimit mirrors the session package's auto-submit threshold for the
// warning message shown to students.
const tabSwitchLimit = 3

// Config holds handler-level settings.
type Config struct {
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	ctrl   *session.Controller
	config Config

	mu   sync.Mutex
	live map[string]*liveSession
}

// liveSession pairs an in-progress session with its own lock. Session
// transitions are not safe to run concurrently, so every event handler takes
// the per-session lock first.
type liveSession struct {
	mu   sync.Mutex
	sess *session.Session
}

// New creates a new Handler.
func New(s *store.Store, ctrl *session.Controller, cfg Config) *Handler {
	return &Handler{
		store:  s,
		ctrl:   ctrl,
		config: cfg,
		live:   make(map[string]*liveSession),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/tests/{testID}/start", h.handleStartTest)
		r.Route("/sessions/{token}", func(r chi.Router) {
			r.Post("/answers", h.handleAnswer)
			r.Post("/visibility", h.handleVisibility)
			r.Post("/submit", h.handleSubmit)
		})
	})

	r.Post("/admin/login", h.handleLogin)
	r.Post("/admin/logout", h.handleLogout)
	r.Route("/admin/api", func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Use(h.requireAuth)
		r.Use(requireRole(model.UserRoleAdmin))
		r.Get("/tests", h.handleListTests)
		r.Post("/tests", h.handleUploadTest)
		r.Post("/tests/{testID}/status", h.handleSetStatus)
		r.Delete("/tests/{testID}", h.handleDeleteTest)
		r.Get("/tests/{testID}/submissions", h.handleListSubmissions)
		r.Get("/tests/{testID}/reports/marks.csv", h.handleMarksReport)
		r.Get("/tests/{testID}/reports/responses.csv", h.handleResponsesReport)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type startRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Register bool   `json:"register"`
}

type startResponse struct {
	Token     string               `json:"token"`
	TestID    string               `json:"testId"`
	Title     string               `json:"title"`
	Questions []model.QuestionView `json:"questions"`
}

func (h *Handler) handleStartTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	ctx := r.Context()

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.ctrl.Start(session.StartRequest{
		TestID:   testID,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Register: req.Register,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidTestID):
			respondError(w, http.StatusNotFound, appI18n.T(ctx, "InvalidTestID"))
		case errors.Is(err, session.ErrTestClosed):
			respondError(w, http.StatusForbidden, appI18n.T(ctx, "TestClosed"))
		case errors.Is(err, session.ErrAuthFailed):
			if req.Register {
				respondError(w, http.StatusConflict, appI18n.T(ctx, "EmailTaken"))
				return
			}
			respondError(w, http.StatusUnauthorized, appI18n.T(ctx, "AuthFailed"))
		case errors.Is(err, session.ErrAlreadyAttempted):
			respondError(w, http.StatusConflict,
				appI18n.Td(ctx, "AlreadyAttempted", map[string]any{"TestID": testID}))
		default:
			slog.Error("start session", "test_id", testID, "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	test := sess.Test()
	if len(test.Questions) == 0 {
		respondError(w, http.StatusUnprocessableEntity, appI18n.T(ctx, "EmptyTest"))
		return
	}

	token := uuid.NewString()
	h.mu.Lock()
	h.live[token] = &liveSession{sess: sess}
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, startResponse{
		Token:     token,
		TestID:    test.ID,
		Title:     test.Title,
		Questions: sess.Questions(),
	})
}

func (h *Handler) liveFor(r *http.Request) *liveSession {
	token := chi.URLParam(r, "token")
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live[token]
}

type answerRequest struct {
	Question int    `json:"question"`
	Answer   string `json:"answer"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(r)
	if ls == nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ls.mu.Lock()
	err := ls.sess.RecordAnswer(req.Question, req.Answer)
	ls.mu.Unlock()
	if err != nil {
		if errors.Is(err, session.ErrNotInProgress) {
			respondError(w, http.StatusConflict, "session is not accepting answers")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

type visibilityResponse struct {
	TabSwitches   int                 `json:"tabSwitches"`
	AutoSubmitted bool                `json:"autoSubmitted"`
	Message       string              `json:"message,omitempty"`
	Submission    *submissionResponse `json:"submission,omitempty"`
}

func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(r)
	if ls == nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	ctx := r.Context()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	fired := ls.sess.VisibilityLost()
	if !fired {
		respondJSON(w, http.StatusOK, visibilityResponse{
			TabSwitches: ls.sess.TabSwitches(),
			Message: appI18n.Td(ctx, "TabSwitchWarning",
				map[string]any{"Limit": tabSwitchLimit}),
		})
		return
	}

	sub, err := h.ctrl.Submit(ctx, ls.sess)
	if err != nil {
		slog.Error("auto-submit failed", "error", err)
		respondError(w, http.StatusInternalServerError, appI18n.T(ctx, "GradingFailed"))
		return
	}

	h.release(chi.URLParam(r, "token"))
	respondJSON(w, http.StatusOK, visibilityResponse{
		TabSwitches:   ls.sess.TabSwitches(),
		AutoSubmitted: true,
		Message:       appI18n.T(ctx, "AutoSubmitted"),
		Submission:    submissionView(sub),
	})
}

type submissionResponse struct {
	ID       string                 `json:"id"`
	Score    model.Score            `json:"score"`
	Analysis map[int]model.Analysis `json:"analysis,omitempty"`
}

func submissionView(sub *model.Submission) *submissionResponse {
	resp := &submissionResponse{ID: sub.ID, Analysis: sub.Analysis}
	if sub.Score != nil {
		resp.Score = *sub.Score
	}
	return resp
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ls := h.liveFor(r)
	if ls == nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	ctx := r.Context()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	sub, err := h.ctrl.Submit(ctx, ls.sess)
	if err != nil {
		if errors.Is(err, session.ErrNotInProgress) {
			respondError(w, http.StatusConflict, "session already submitted")
			return
		}
		respondError(w, http.StatusInternalServerError, appI18n.T(ctx, "GradingFailed"))
		return
	}

	h.release(chi.URLParam(r, "token"))
	respondJSON(w, http.StatusOK, map[string]any{
		"message":    appI18n.T(ctx, "SubmittedOK"),
		"submission": submissionView(sub),
	})
}

// release drops a finished session from the live registry.
func (h *Handler) release(token string) {
	h.mu.Lock()
	delete(h.live, token)
	h.mu.Unlock()
}
