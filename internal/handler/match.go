package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/peerprep/matching-server-go/internal/errors"
	"github.com/peerprep/matching-server-go/internal/httputil"
	"github.com/peerprep/matching-server-go/internal/pool"
	"github.com/peerprep/matching-server-go/internal/service"
)

type MatchHandler struct {
	sessions *service.SessionService
	pools    *pool.Manager
}

func NewMatchHandler(sessions *service.SessionService, pools *pool.Manager) *MatchHandler {
	return &MatchHandler{
		sessions: sessions,
		pools:    pools,
	}
}

func (h *MatchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/matches/{userId}", h.GetMatch)
	r.Get("/pools", h.ListPools)

	return r
}

// GET /v1/matches/{userId}
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("userId"))
		return
	}

	status := h.sessions.Status(userID)
	if status == nil {
		httputil.WriteError(w, apperrors.MatchNotFound())
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// GET /v1/pools
func (h *MatchHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	stats := h.pools.Stats()

	partitions := make([]map[string]any, 0, len(stats))
	total := 0
	for _, s := range stats {
		partitions = append(partitions, map[string]any{
			"complexity": s.Key.Complexity,
			"category":   s.Key.Category,
			"language":   s.Key.Language,
			"pending":    s.Pending,
		})
		total += s.Pending
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"partitions": partitions,
		"total":      total,
	})
}
