package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// ArbHandler serves persisted arbs.
type ArbHandler struct {
	store  domain.ArbStore
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(store domain.ArbStore, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{store: store, logger: logger}
}

type listArbResponse struct {
	Arbs []*domain.Arb `json:"arbs"`
}

// ListRecent returns the most recent arbs.
// GET /api/arbs/recent?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	arbs, err := h.store.ListRecent(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list arbs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list arbs")
		return
	}
	if arbs == nil {
		arbs = []*domain.Arb{}
	}
	writeJSON(w, http.StatusOK, listArbResponse{Arbs: arbs})
}

// GetArb returns one arb with its legs and snapshot log.
// GET /api/arbs/{id}
func (h *ArbHandler) GetArb(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	arb, err := h.store.GetArb(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "arb not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get arb failed",
			slog.String("arb_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load arb")
		return
	}
	writeJSON(w, http.StatusOK, arb)
}
