package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ConflictHandler struct {
	svc *service.ConflictService
}

func NewConflictHandler(svc *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{svc: svc}
}

type detectConflictsRequest struct {
	IDs       []string          `json:"ids"`
	TopicKeys map[string]string `json:"topic_keys,omitempty"`
}

func (h *ConflictHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var req detectConflictsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) < 2 {
		writeError(w, http.StatusBadRequest, "at least two ids are required")
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

	topicKeys := make(map[uuid.UUID]string, len(req.TopicKeys))
	for raw, key := range req.TopicKeys {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid topic key id: "+raw)
			return
		}
		topicKeys[id] = key
	}

	conflicts, err := h.svc.Detect(r.Context(), ids, topicKeys)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to detect conflicts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (h *ConflictHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	open, err := h.svc.ListOpen(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conflicts": open})
}

type resolveConflictRequest struct {
	Strategy string `json:"strategy,omitempty"`
}

// Resolve applies a strategy, or runs the automatic cascade when the body
// names none. A manual-only conflict comes back with its open options.
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	conflictID := chi.URLParam(r, "id")
	if conflictID == "" {
		writeError(w, http.StatusBadRequest, "conflict id is required")
		return
	}

	var req resolveConflictRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.svc.Resolve(r.Context(), conflictID, domain.ResolutionStrategy(req.Strategy))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflictNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrConflictResolved):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidStrategy),
			errors.Is(err, service.ErrStrategyNotViable):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to resolve conflict")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
