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

type GraphHandler struct {
	svc *service.GraphService
}

func NewGraphHandler(svc *service.GraphService) *GraphHandler {
	return &GraphHandler{svc: svc}
}

type addEdgeRequest struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Relation string   `json:"relation"`
	Strength float64  `json:"strength"`
	Evidence []string `json:"evidence,omitempty"`
}

func (h *GraphHandler) AddEdge(w http.ResponseWriter, r *http.Request) {
	var req addEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source_id")
		return
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target_id")
		return
	}

	edge := &domain.CausalEdge{
		SourceID: sourceID,
		TargetID: targetID,
		Relation: domain.RelationType(req.Relation),
		Strength: req.Strength,
		Evidence: req.Evidence,
	}

	if err := h.svc.AddEdge(r.Context(), edge); err != nil {
		if errors.Is(err, service.ErrInvalidEdge) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to add edge")
		return
	}

	writeJSON(w, http.StatusCreated, edge)
}

// Edges lists a memory's live edges. ?direction=in lists incoming edges,
// out (the default) lists outgoing ones.
func (h *GraphHandler) Edges(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var edges []domain.CausalEdge
	switch r.URL.Query().Get("direction") {
	case "", "out":
		edges, err = h.svc.EdgesFrom(r.Context(), id)
	case "in":
		edges, err = h.svc.EdgesTo(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "direction must be in or out")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list edges")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"edges": edges})
}

// Trace walks the graph from a root memory. ?direction=origins walks
// incoming edges, effects (the default) walks outgoing ones.
func (h *GraphHandler) Trace(w http.ResponseWriter, r *http.Request) {
	root, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	direction := domain.TraceEffects
	if d := r.URL.Query().Get("direction"); d != "" {
		direction = domain.TraceDirection(d)
		if direction != domain.TraceOrigins && direction != domain.TraceEffects {
			writeError(w, http.StatusBadRequest, "direction must be origins or effects")
			return
		}
	}

	maxDepth := service.DefaultMaxDepth
	if d := r.URL.Query().Get("max_depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid max_depth")
			return
		}
		maxDepth = n
	}

	result, err := h.svc.Trace(r.Context(), root, direction, maxDepth)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to trace graph")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *GraphHandler) FindPath(w http.ResponseWriter, r *http.Request) {
	from, err := uuid.Parse(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from id")
		return
	}
	to, err := uuid.Parse(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to id")
		return
	}

	maxHops := service.DefaultMaxHops
	if hops := r.URL.Query().Get("max_hops"); hops != "" {
		n, err := strconv.Atoi(hops)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid max_hops")
			return
		}
		maxHops = n
	}

	path, err := h.svc.FindPath(r.Context(), from, to, maxHops)
	if err != nil {
		if errors.Is(err, service.ErrNoPath) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to find path")
		return
	}

	writeJSON(w, http.StatusOK, path)
}

type pruneRequest struct {
	MinStrength float64 `json:"min_strength"`
}

// Prune soft-deletes edges below a strength floor. Zero means the
// service default threshold.
func (h *GraphHandler) Prune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	pruned, err := h.svc.Prune(r.Context(), req.MinStrength)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to prune edges")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"pruned": pruned})
}
