package sectiontest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"wyspamat/internal/app/apiresp"
	"wyspamat/internal/auth"
	"wyspamat/internal/content"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc testService
}

type testService interface {
	SubmitTest(ctx context.Context, userID, islandID string) (*TestResult, error)
	History(ctx context.Context, userID, sectionID string, limit int) ([]HistoryEntry, error)
}

type submitTestRequest struct {
	IslandID string `json:"island_id"`
}

func NewHandler(svc testService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IslandID == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "island_id is required")
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.svc.SubmitTest(r.Context(), user.ID, req.IslandID)
	if err != nil {
		switch {
		case errors.Is(err, content.ErrIslandNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "island not found")
		case errors.Is(err, content.ErrSectionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "section not found")
		case errors.Is(err, ErrNotATestIsland):
			apiresp.WriteError(w, r, http.StatusBadRequest, "not a test island")
		case errors.Is(err, ErrQuestionCountMismatch):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, content.ErrAnswerKeyMissing):
			apiresp.WriteError(w, r, http.StatusInternalServerError, "missing answer key for exercise")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to submit test")
		}
		return
	}

	apiresp.WriteOK(w, r, http.StatusOK, result)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	entries, err := h.svc.History(r.Context(), user.ID, chi.URLParam(r, "sectionID"), 20)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load test history")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, entries)
}
