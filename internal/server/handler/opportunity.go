package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// OpportunityReader is the part of the opportunity service the handlers
// use.
type OpportunityReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
	Get(ctx context.Context, id string) (service.OpportunityDetail, error)
	ListUnreconciled(ctx context.Context, limit int) ([]domain.ExecutionLeg, error)
}

// OpportunityHandler serves opportunity and leg endpoints.
type OpportunityHandler struct {
	svc    OpportunityReader
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(svc OpportunityReader, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logger}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.ArbitrageOpportunity `json:"opportunities"`
}

type opportunityResponse struct {
	Opportunity domain.ArbitrageOpportunity `json:"opportunity"`
	Legs        []domain.ExecutionLeg       `json:"legs"`
}

type listLegsResponse struct {
	Legs []domain.ExecutionLeg `json:"legs"`
}

// ListRecent returns the newest opportunities.
// GET /api/opportunities/recent?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opps, err := h.svc.ListRecent(r.Context(), parseLimit(r, defaultListLimit, maxListLimit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}

// Get returns one opportunity with its execution legs.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get opportunity failed",
			slog.String("opportunity_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}

	legs := detail.Legs
	if legs == nil {
		legs = []domain.ExecutionLeg{}
	}
	writeJSON(w, http.StatusOK, opportunityResponse{Opportunity: detail.Opportunity, Legs: legs})
}

// ListUnreconciled returns placed buy legs whose sell leg failed.
// GET /api/legs/unreconciled?limit=20
func (h *OpportunityHandler) ListUnreconciled(w http.ResponseWriter, r *http.Request) {
	legs, err := h.svc.ListUnreconciled(r.Context(), parseLimit(r, defaultListLimit, maxListLimit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list unreconciled legs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list unreconciled legs")
		return
	}
	if legs == nil {
		legs = []domain.ExecutionLeg{}
	}
	writeJSON(w, http.StatusOK, listLegsResponse{Legs: legs})
}
