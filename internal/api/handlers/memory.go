package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/domain"
	"github.com/arjunp-dev/ledgermind/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type MemoryHandler struct {
	svc *service.MemoryService
}

func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

type createMemoryRequest struct {
	Kind         string               `json:"kind"`
	Summary      string               `json:"summary"`
	Confidence   float64              `json:"confidence"`
	Importance   string               `json:"importance,omitempty"`
	ValidFrom    *time.Time           `json:"valid_from,omitempty"`
	ExternalRefs []domain.ExternalRef `json:"external_refs,omitempty"`
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m := &domain.Memory{
		Kind:         req.Kind,
		Summary:      req.Summary,
		Confidence:   req.Confidence,
		Importance:   domain.Importance(req.Importance),
		ExternalRefs: req.ExternalRefs,
	}
	if req.ValidFrom != nil {
		m.ValidFrom = *req.ValidFrom
	}

	if err := h.svc.Create(r.Context(), m); err != nil {
		switch {
		case errors.Is(err, service.ErrSummaryEmpty),
			errors.Is(err, service.ErrInvalidConfidence),
			errors.Is(err, service.ErrInvalidImportance):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create memory")
		}
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// GetByID returns the latest version, or with ?as_of=RFC3339, the version
// that was latest at that transaction-time instant.
func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var m *domain.Memory
	if asOf := r.URL.Query().Get("as_of"); asOf != "" {
		at, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of timestamp")
			return
		}
		m, err = h.svc.GetAsOf(r.Context(), id, at)
		if err != nil {
			h.writeGetError(w, err)
			return
		}
	} else {
		m, err = h.svc.Get(r.Context(), id)
		if err != nil {
			h.writeGetError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, m)
}

// List returns the latest versions recorded since ?since (RFC3339,
// default 24h ago), newest first.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
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

	memories, err := h.svc.ListRecent(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list memories")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (h *MemoryHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	versions, err := h.svc.Versions(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var patch domain.MemoryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMemoryNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrMemoryArchived),
			errors.Is(err, service.ErrSummaryEmpty),
			errors.Is(err, service.ErrInvalidConfidence),
			errors.Is(err, service.ErrInvalidImportance):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update memory")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

type closeMemoryRequest struct {
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// Close ends the memory's valid time. Defaults to now when no timestamp
// is given.
func (h *MemoryHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var req closeMemoryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	until := time.Now()
	if req.ValidUntil != nil {
		until = *req.ValidUntil
	}

	m, err := h.svc.CloseValidTime(r.Context(), id, until)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMemoryNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to close memory")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

type archiveMemoryRequest struct {
	Reason string `json:"reason"`
}

func (h *MemoryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var req archiveMemoryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	m, err := h.svc.Archive(r.Context(), id, req.Reason)
	if err != nil {
		if errors.Is(err, service.ErrMemoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to archive memory")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

type adjustConfidenceRequest struct {
	Mode   string  `json:"mode"`
	Amount float64 `json:"amount"`
}

func (h *MemoryHandler) AdjustConfidence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var req adjustConfidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.svc.AdjustConfidence(r.Context(), id, domain.AdjustmentMode(req.Mode), req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMemoryNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrMemoryArchived),
			errors.Is(err, service.ErrInvalidAdjustMode):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to adjust confidence")
		}
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *MemoryHandler) writeGetError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrMemoryNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to get memory")
}
