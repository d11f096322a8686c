package billing

import (
	"context"
	"net/http"

	"wyspamat/internal/app/apiresp"
	"wyspamat/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc accessService
}

type accessService interface {
	HasAccess(ctx context.Context, email, courseID string) (bool, error)
}

type accessResponse struct {
	Access   bool   `json:"access"`
	Email    string `json:"email"`
	CourseID string `json:"course_id"`
}

func NewHandler(svc accessService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) HasAccess(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	if user.Email == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "user has no email")
		return
	}

	access, err := h.svc.HasAccess(r.Context(), user.Email, courseID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to check access")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, accessResponse{
		Access:   access,
		Email:    user.Email,
		CourseID: courseID,
	})
}
