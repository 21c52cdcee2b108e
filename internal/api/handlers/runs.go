package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/work"
	"github.com/stockmonitor/monthend/internal/workflow"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// offCycleTimeout bounds a background off-cycle execution.
const offCycleTimeout = 5 * time.Minute

// RunHandler handles run-related API endpoints
type RunHandler struct {
	runs            contracts.RunRepository
	recommendations contracts.RecommendationRepository
	exclusions      contracts.ExclusionRepository
	monthEnd        *workflow.MonthEnd
	pool            *work.Pool
	logger          *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(
	runs contracts.RunRepository,
	recs contracts.RecommendationRepository,
	excls contracts.ExclusionRepository,
	monthEnd *workflow.MonthEnd,
	pool *work.Pool,
	log *logger.Logger,
) *RunHandler {
	return &RunHandler{
		runs:            runs,
		recommendations: recs,
		exclusions:      excls,
		monthEnd:        monthEnd,
		pool:            pool,
		logger:          log,
	}
}

// List returns the caller's runs, newest first
// GET /api/runs?limit=20
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.ListByUser(r.Context(), uid, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// TriggerOffCycle starts an on-demand run in the background. Progress
// streams over the /ws/runs socket.
// POST /api/runs
func (h *RunHandler) TriggerOffCycle(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	h.pool.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, offCycleTimeout)
		defer cancel()

		run, err := h.monthEnd.TriggerOffCycle(ctx, uid)
		if err != nil {
			h.logger.WithError(err).WithField("user_id", uid).Error("Off-cycle run failed")
			return
		}
		h.logger.WithFields(map[string]interface{}{
			"user_id": uid,
			"run_id":  run.ID,
		}).Info("Off-cycle run completed")
	})

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Off-cycle run started; follow progress on /ws/runs",
	})
}

// Get returns one run
// GET /api/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// GetRecommendations returns a run's recommendation lines in rank order
// GET /api/runs/{id}/recommendations
func (h *RunHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	recs, err := h.recommendations.ListByRun(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list recommendations")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve recommendations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":          run.ID,
		"status":          run.Status,
		"decision":        run.Decision,
		"decision_reason": run.DecisionReason,
		"recommendations": recs,
	})
}

// GetExclusions returns a run's exclusion audit lines
// GET /api/runs/{id}/exclusions
func (h *RunHandler) GetExclusions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	excls, err := h.exclusions.ListByRun(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list exclusions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve exclusions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     id,
		"exclusions": excls,
		"count":      len(excls),
	})
}
