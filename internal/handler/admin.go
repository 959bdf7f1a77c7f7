package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizgate/internal/ingest"
	"github.com/pavelanni/quizgate/internal/model"
	"github.com/pavelanni/quizgate/internal/report"
	"github.com/pavelanni/quizgate/internal/store"
)

// maxUploadSize caps question source uploads at 10 MiB.
const maxUploadSize = 10 << 20

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.GetAllTests()
	if err != nil {
		slog.Error("list tests", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if summaries == nil {
		summaries = []model.TestSummary{}
	}
	respondJSON(w, http.StatusOK, summaries)
}

// handleUploadTest publishes a test from a multipart form: a "file" part with
// the question source (.txt, .csv or .xlsx) plus "test_id" and "title" fields.
func (h *Handler) handleUploadTest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	testID := r.FormValue("test_id")
	title := r.FormValue("title")
	if testID == "" || title == "" {
		respondError(w, http.StatusBadRequest, "test_id and title are required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	questions, err := ingest.FromReader(header.Filename, file)
	if err != nil {
		var pe *ingest.ParseError
		if errors.As(err, &pe) {
			respondError(w, http.StatusUnprocessableEntity, pe.Error())
			return
		}
		respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("parse %s: %v", header.Filename, err))
		return
	}
	if len(questions) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no questions found in source file")
		return
	}

	test := model.Test{
		ID:        testID,
		Title:     title,
		Questions: questions,
		Status:    model.TestActive,
	}
	if err := h.store.CreateTest(test); err != nil {
		if errors.Is(err, store.ErrTestExists) {
			respondError(w, http.StatusConflict, fmt.Sprintf("test %s already exists", testID))
			return
		}
		slog.Error("create test", "test_id", testID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("test published", "test_id", testID, "questions", len(questions), "source", header.Filename)
	respondJSON(w, http.StatusCreated, map[string]any{
		"testId":        testID,
		"title":         title,
		"questionCount": len(questions),
	})
}

type statusRequest struct {
	Status model.TestStatus `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != model.TestActive && req.Status != model.TestClosed {
		respondError(w, http.StatusBadRequest, "status must be active or closed")
		return
	}

	if err := h.store.SetTestStatus(testID, req.Status); err != nil {
		if errors.Is(err, store.ErrTestNotFound) {
			respondError(w, http.StatusNotFound, "test not found")
			return
		}
		slog.Error("set test status", "test_id", testID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"testId": testID, "status": string(req.Status)})
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")

	if err := h.store.DeleteTest(testID); err != nil {
		if errors.Is(err, store.ErrTestNotFound) {
			respondError(w, http.StatusNotFound, "test not found")
			return
		}
		slog.Error("delete test", "test_id", testID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")

	subs, err := h.store.GetSubmissionsForTest(testID)
	if err != nil {
		slog.Error("list submissions", "test_id", testID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	respondJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleMarksReport(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, "marks", report.WriteMarksCSV)
}

func (h *Handler) handleResponsesReport(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, "responses", report.WriteResponsesCSV)
}

func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, kind string,
	write func(w io.Writer, test model.Test, subs []model.Submission) error,
) {
	testID := chi.URLParam(r, "testID")

	test, err := h.store.GetTest(testID)
	if err != nil {
		if errors.Is(err, store.ErrTestNotFound) {
			respondError(w, http.StatusNotFound, "test not found")
			return
		}
		slog.Error("load test for report", "test_id", testID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	subs, err := h.store.GetSubmissionsForTest(testID)
	if err != nil {
		slog.Error("load submissions for report", "test_id", testID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s_%s.csv"`, testID, kind))
	if err := write(w, test, subs); err != nil {
		slog.Error("write report", "test_id", testID, "kind", kind, "error", err)
	}
}
