package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"wyspamat/internal/app/apiresp"
	"wyspamat/internal/auth"
	"wyspamat/internal/content"
	"wyspamat/internal/grading"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc      attemptService
	progress progressUpserter
}

type attemptService interface {
	RecordAttempt(ctx context.Context, in RecordAttemptInput) (*AttemptOutcome, error)
	ListAttempts(ctx context.Context, userID, exerciseID string, limit int) ([]Attempt, error)
}

// progressUpserter is the slice of the progress aggregator the submit flow
// needs: crediting the island item once an answer is correct.
type progressUpserter interface {
	UpsertCompletionForExercise(ctx context.Context, userID, islandID, exerciseID string, pointsEarned int, lastAnswer json.RawMessage) error
}

type recordAttemptRequest struct {
	ExerciseID   string          `json:"exercise_id"`
	IslandID     string          `json:"island_id"`
	Answer       json.RawMessage `json:"answer"`
	TimeSpentSec int             `json:"time_spent_sec"`
}

func NewHandler(svc attemptService, progress progressUpserter) *Handler {
	return &Handler{svc: svc, progress: progress}
}

func (h *Handler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req recordAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExerciseID == "" || req.IslandID == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "exercise_id and island_id are required")
		return
	}

	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	outcome, err := h.svc.RecordAttempt(r.Context(), RecordAttemptInput{
		UserID:       user.ID,
		ExerciseID:   req.ExerciseID,
		IslandID:     req.IslandID,
		Answer:       req.Answer,
		TimeSpentSec: req.TimeSpentSec,
	})
	if err != nil {
		switch {
		case errors.Is(err, content.ErrExerciseNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "exercise not found")
		case errors.Is(err, content.ErrAnswerKeyMissing):
			apiresp.WriteError(w, r, http.StatusInternalServerError, "missing answer key for exercise")
		case errors.Is(err, grading.ErrUnsupportedAnswerType):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to record attempt")
		}
		return
	}

	if outcome.IsCorrect {
		if err := h.progress.UpsertCompletionForExercise(r.Context(), user.ID, req.IslandID, req.ExerciseID, outcome.PointsAwarded, req.Answer); err != nil {
			apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to save progress")
			return
		}
	}

	apiresp.WriteOK(w, r, http.StatusOK, outcome)
}

// History returns the learner's attempt log for one exercise, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	attempts, err := h.svc.ListAttempts(r.Context(), user.ID, chi.URLParam(r, "exerciseID"), 0)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load attempt history")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, attempts)
}
