package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/peerprep/matching-server-go/internal/errors"
	"github.com/peerprep/matching-server-go/internal/httputil"
	"github.com/peerprep/matching-server-go/internal/model"
	"github.com/peerprep/matching-server-go/internal/repository"
)

type HistoryHandler struct {
	historyRepo repository.MatchHistoryRepository
}

func NewHistoryHandler(historyRepo repository.MatchHistoryRepository) *HistoryHandler {
	return &HistoryHandler{historyRepo: historyRepo}
}

func (h *HistoryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/users/{userId}", h.ListByUser)
	r.Get("/{matchId}", h.GetByMatch)

	return r
}

// GET /v1/history/users/{userId}?limit=&offset=
func (h *HistoryHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	page := ParsePagination(r)

	rows, err := h.historyRepo.FindByUserID(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to list match history")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if rows == nil {
		rows = []model.MatchHistory{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  rows,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// GET /v1/history/{matchId}
func (h *HistoryHandler) GetByMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchId")
	if err := uuid.Validate(matchID); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("matchId", "must be a UUID"))
		return
	}

	row, err := h.historyRepo.FindByMatchID(r.Context(), matchID)
	if err != nil {
		log.Error().Err(err).Str("matchId", matchID).Msg("failed to load match history")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if row == nil {
		httputil.WriteError(w, apperrors.MatchNotFound())
		return
	}

	writeJSON(w, http.StatusOK, row)
}
