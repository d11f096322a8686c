package progress

import (
	"context"
	"errors"
	"net/http"

	"wyspamat/internal/app/apiresp"
	"wyspamat/internal/auth"
	"wyspamat/internal/content"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc     progressService
	islands islandReader
}

type progressService interface {
	IslandStats(ctx context.Context, userID, islandID string) (*IslandStats, error)
	ItemProgressFor(ctx context.Context, userID string, itemIDs []string) (map[string]ItemProgress, error)
	SectionStats(ctx context.Context, userID, sectionID string) (*SectionStats, error)
}

type islandReader interface {
	GetIsland(ctx context.Context, islandID string) (*content.Island, error)
	ListExerciseItems(ctx context.Context, islandID string) ([]content.IslandItem, error)
}

type islandProgressResponse struct {
	Island *content.Island         `json:"island"`
	Stats  *IslandStats            `json:"stats"`
	Items  map[string]ItemProgress `json:"items"`
}

func NewHandler(svc progressService, islands islandReader) *Handler {
	return &Handler{svc: svc, islands: islands}
}

func (h *Handler) IslandProgress(w http.ResponseWriter, r *http.Request) {
	islandID := chi.URLParam(r, "islandID")
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	island, err := h.islands.GetIsland(r.Context(), islandID)
	if err != nil {
		if errors.Is(err, content.ErrIslandNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "island not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load island")
		return
	}

	stats, err := h.svc.IslandStats(r.Context(), user.ID, islandID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load island progress")
		return
	}

	items, err := h.islands.ListExerciseItems(r.Context(), islandID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load island items")
		return
	}
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}
	byItem, err := h.svc.ItemProgressFor(r.Context(), user.ID, itemIDs)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load item progress")
		return
	}

	apiresp.WriteOK(w, r, http.StatusOK, islandProgressResponse{
		Island: island,
		Stats:  stats,
		Items:  byItem,
	})
}

func (h *Handler) SectionProgress(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionID")
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.svc.SectionStats(r.Context(), user.ID, sectionID)
	if err != nil {
		if errors.Is(err, content.ErrSectionNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "section not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load section progress")
		return
	}

	apiresp.WriteOK(w, r, http.StatusOK, stats)
}
