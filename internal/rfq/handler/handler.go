// Package handler provides HTTP handlers for the rfq module.
package handler

import (
	"context"
	"net/http"

	"procurement_backend/internal/dispatch"
	quoterepo "procurement_backend/internal/quotes/repository"
	"procurement_backend/internal/rfq/repository"
	"procurement_backend/internal/rfq/service"
	"procurement_backend/internal/rfq/transport"
	"procurement_backend/platform/httpkit"
	"procurement_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request body"
const msgValidationFailed = "validation failed"

// TaskViewer exposes the notification tasks of an RFQ for the operator view.
type TaskViewer interface {
	ListByRFQ(ctx context.Context, rfqID uuid.UUID) ([]dispatch.Task, error)
	ListFollowUps(ctx context.Context, limit int) ([]dispatch.Task, error)
}

// QuoteViewer exposes the quotes of an RFQ for the operator view.
type QuoteViewer interface {
	ListByRFQ(ctx context.Context, rfqID uuid.UUID) ([]quoterepo.Quote, error)
}

// Handler handles RFQ lifecycle requests.
type Handler struct {
	svc    *service.Service
	tasks  TaskViewer
	quotes QuoteViewer
	val    *validator.Validator
}

// New creates a new rfq handler.
func New(svc *service.Service, tasks TaskViewer, quotes QuoteViewer, val *validator.Validator) *Handler {
	return &Handler{svc: svc, tasks: tasks, quotes: quotes, val: val}
}

// RegisterRoutes registers the rfq routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/dispatch", h.Dispatch)
	rg.POST("/:id/close", h.Close)
}

// RegisterTaskRoutes registers the cross-RFQ task routes.
func (h *Handler) RegisterTaskRoutes(rg *gin.RouterGroup) {
	rg.GET("/follow-ups", h.FollowUps)
}

// Create handles POST /api/v1/rfqs
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateRFQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	items := make([]repository.RequisitionItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, repository.RequisitionItem{
			Name:          it.Name,
			Specification: it.Specification,
			Quantity:      it.Quantity,
			Unit:          it.Unit,
		})
	}

	rfq, err := h.svc.CreateRFQ(c.Request.Context(), req.RequisitionID, req.PaymentTerms, items)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromRFQ(rfq, nil, nil, nil))
}

// Get handles GET /api/v1/rfqs/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid rfq ID", nil)
		return
	}

	ctx := c.Request.Context()
	rfq, items, err := h.svc.Get(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}

	tasks, err := h.tasks.ListByRFQ(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}
	quotes, err := h.quotes.ListByRFQ(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromRFQ(rfq, items, tasks, quotes))
}

// Dispatch handles POST /api/v1/rfqs/:id/dispatch
func (h *Handler) Dispatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid rfq ID", nil)
		return
	}

	created, err := h.svc.Dispatch(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.DispatchResponse{
		RFQID:        id,
		Status:       repository.StatusSent,
		TasksCreated: created,
	})
}

// Close handles POST /api/v1/rfqs/:id/close
func (h *Handler) Close(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid rfq ID", nil)
		return
	}

	if err := h.svc.Close(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": repository.StatusClosed})
}

// FollowUps handles GET /api/v1/tasks/follow-ups
func (h *Handler) FollowUps(c *gin.Context) {
	tasks, err := h.tasks.ListFollowUps(c.Request.Context(), 100)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, transport.FromTask(t))
	}
	httpkit.OK(c, out)
}
