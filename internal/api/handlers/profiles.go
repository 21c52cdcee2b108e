package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stockmonitor/monthend/internal/constraint"
	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// ProfileHandler handles constraint profile API endpoints
type ProfileHandler struct {
	profiles contracts.ProfileRepository
	logger   *logger.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles contracts.ProfileRepository, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   log,
	}
}

// GetActive returns the caller's active constraint profile
// GET /api/profiles/active
func (h *ProfileHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	p, err := h.profiles.GetActive(r.Context(), uid)
	if err != nil {
		respondError(w, http.StatusNotFound, "No active constraint profile")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// Create inserts a new constraint profile at version 1
// POST /api/profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}

	var p contracts.ConstraintProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.ID = uuid.NewString()
	p.UserID = uid

	if err := h.profiles.Create(r.Context(), &p); err != nil {
		h.respondProfileError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

// CreateVersion inserts a new version of an existing profile. The prior
// version stays untouched so finalized runs keep their audit trail.
// POST /api/profiles/{id}/versions
func (h *ProfileHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}
	id := mux.Vars(r)["id"]

	existing, err := h.profiles.GetByID(r.Context(), id)
	if err != nil || existing.UserID != uid {
		respondError(w, http.StatusNotFound, "Profile not found")
		return
	}

	var p contracts.ConstraintProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p.ID = id
	p.UserID = uid

	next, err := h.profiles.CreateVersion(r.Context(), &p)
	if err != nil {
		h.respondProfileError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, next)
}

// Activate makes one profile the active one for the caller
// POST /api/profiles/{id}/activate
func (h *ProfileHandler) Activate(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return
	}
	id := mux.Vars(r)["id"]

	if err := h.profiles.Activate(r.Context(), uid, id); err != nil {
		h.logger.WithError(err).Error("Failed to activate profile")
		respondError(w, http.StatusNotFound, "Profile not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ProfileHandler) respondProfileError(w http.ResponseWriter, err error) {
	var verr *constraint.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}
	h.logger.WithError(err).Error("Failed to save profile")
	respondError(w, http.StatusInternalServerError, "Failed to save profile")
}
