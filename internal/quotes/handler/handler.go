// Package handler provides HTTP handlers for the quotes module.
package handler

import (
	"context"
	"net/http"

	"procurement_backend/internal/quotes/repository"
	"procurement_backend/internal/quotes/service"
	"procurement_backend/internal/quotes/transport"
	"procurement_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles operator-facing quote decisions.
type Handler struct {
	svc *service.Service
}

// New creates a new quotes handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the operator quote routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/award", h.Award)
	rg.POST("/:id/reject", h.Reject)
}

// Award handles POST /api/v1/quotes/:id/award
func (h *Handler) Award(c *gin.Context) {
	h.decide(c, h.svc.Award)
}

// Reject handles POST /api/v1/quotes/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.decide(c, h.svc.Reject)
}

func (h *Handler) decide(c *gin.Context, run func(ctx context.Context, id uuid.UUID) (*repository.Quote, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid quote ID", nil)
		return
	}

	quote, err := run(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromQuote(quote))
}
