package handlers

import (
	"io"
	"net/http"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/internal/holdings"
	"github.com/stockmonitor/monthend/pkg/logger"
)

// HoldingHandler handles portfolio and holdings API endpoints
type HoldingHandler struct {
	portfolios contracts.PortfolioRepository
	holdings   contracts.HoldingRepository
	calculator *holdings.Calculator
	logger     *logger.Logger
}

// NewHoldingHandler creates a new holdings handler
func NewHoldingHandler(
	portfolios contracts.PortfolioRepository,
	holdingRepo contracts.HoldingRepository,
	calc *holdings.Calculator,
	log *logger.Logger,
) *HoldingHandler {
	return &HoldingHandler{
		portfolios: portfolios,
		holdings:   holdingRepo,
		calculator: calc,
		logger:     log,
	}
}

func (h *HoldingHandler) portfolio(w http.ResponseWriter, r *http.Request) *contracts.Portfolio {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusBadRequest, "Missing user id")
		return nil
	}
	p, err := h.portfolios.GetByUser(r.Context(), uid)
	if err != nil {
		respondError(w, http.StatusNotFound, "Portfolio not found")
		return nil
	}
	return p
}

// GetPortfolio returns the caller's portfolio
// GET /api/portfolio
func (h *HoldingHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p := h.portfolio(w, r)
	if p == nil {
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListHoldings returns the portfolio's positions
// GET /api/portfolio/holdings
func (h *HoldingHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	p := h.portfolio(w, r)
	if p == nil {
		return
	}

	hs, err := h.holdings.ListByPortfolio(r.Context(), p.ID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list holdings")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve holdings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": p.ID,
		"holdings":     hs,
		"count":        len(hs),
	})
}

// Upload replaces the portfolio's holdings from a CSV body. Validation
// runs row by row; any invalid row rejects the whole upload and the
// response lists every error with its row number.
// POST /api/portfolio/holdings/upload
func (h *HoldingHandler) Upload(w http.ResponseWriter, r *http.Request) {
	p := h.portfolio(w, r)
	if p == nil {
		return
	}

	var body io.Reader = r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		body = file
	}

	result, err := holdings.ParseUpload(p.ID, body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(result.Errors) > 0 {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"status": "rejected",
			"errors": result.Errors,
		})
		return
	}

	if err := h.holdings.ReplaceAll(r.Context(), p.ID, result.Holdings); err != nil {
		h.logger.WithError(err).Error("Failed to replace holdings")
		respondError(w, http.StatusInternalServerError, "Failed to save holdings")
		return
	}

	if err := h.calculator.Recalculate(r.Context(), p.ID); err != nil {
		h.logger.WithError(err).Warn("Post-upload recalculation failed")
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": len(result.Holdings),
	})
}

// Recalculate refreshes prices and recomputes the portfolio
// POST /api/portfolio/recalculate
func (h *HoldingHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	p := h.portfolio(w, r)
	if p == nil {
		return
	}

	if err := h.calculator.Recalculate(r.Context(), p.ID); err != nil {
		h.logger.WithError(err).Error("Recalculation failed")
		respondError(w, http.StatusInternalServerError, "Recalculation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
