package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/arjunp-dev/ledgermind/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type GroundingHandler struct {
	svc      *service.GroundingService
	weights  *service.WeightEngine
	batchCap int
}

func NewGroundingHandler(svc *service.GroundingService, weights *service.WeightEngine, batchCap int) *GroundingHandler {
	return &GroundingHandler{svc: svc, weights: weights, batchCap: batchCap}
}

// Ground re-verifies a single memory against ground truth and returns the
// resulting snapshot.
func (h *GroundingHandler) Ground(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	snap, err := h.svc.Ground(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMemoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to ground memory")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type groundBatchRequest struct {
	IDs []string `json:"ids"`
	Cap int      `json:"cap,omitempty"`
}

// GroundBatch verifies up to a cap of memories in one run; overflow comes
// back in the deferred list. Callers may request a smaller cap than the
// server's, never a larger one.
func (h *GroundingHandler) GroundBatch(w http.ResponseWriter, r *http.Request) {
	var req groundBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if req.Cap < 0 {
		writeError(w, http.StatusBadRequest, "cap must be positive")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid memory id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	result, err := h.svc.GroundBatch(r.Context(), ids, clampCap(req.Cap, h.batchCap))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to ground batch")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// clampCap bounds a caller-requested batch cap by the server's; zero
// means the server default.
func clampCap(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

func (h *GroundingHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	snaps, err := h.svc.Snapshots(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

// Weights exposes the current adaptive evidence weights and whether the
// engine fell back to the static baseline.
func (h *GroundingHandler) Weights(w http.ResponseWriter, r *http.Request) {
	weights, fellBack := h.weights.Weights(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"weights":         weights,
		"static_fallback": fellBack,
	})
}
