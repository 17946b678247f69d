// Package handler provides HTTP handlers for the suppliers module.
package handler

import (
	"net/http"

	"procurement_backend/internal/suppliers/repository"
	"procurement_backend/internal/suppliers/transport"
	"procurement_backend/platform/httpkit"
	"procurement_backend/platform/phone"
	"procurement_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request body"
const msgValidationFailed = "validation failed"

// Handler handles supplier directory requests.
type Handler struct {
	repo *repository.Repository
	val  *validator.Validator
}

// New creates a new suppliers handler.
func New(repo *repository.Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

// RegisterRoutes registers the supplier routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.GET("", h.ListEligible)
}

// Create handles POST /api/v1/suppliers
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	supplier := &repository.Supplier{
		Name:         req.Name,
		ContactPhone: phone.NormalizeE164(req.ContactPhone),
		ContactEmail: req.ContactEmail,
		Categories:   req.Categories,
		Active:       true,
	}
	if err := h.repo.Create(c.Request.Context(), supplier); httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromSupplier(supplier))
}

// Get handles GET /api/v1/suppliers/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid supplier ID", nil)
		return
	}

	supplier, err := h.repo.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSupplier(supplier))
}

// ListEligible handles GET /api/v1/suppliers?category=...
func (h *Handler) ListEligible(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		httpkit.Error(c, http.StatusBadRequest, "category query parameter is required", nil)
		return
	}

	suppliers, err := h.repo.ListEligible(c.Request.Context(), category)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.SupplierResponse, 0, len(suppliers))
	for i := range suppliers {
		out = append(out, transport.FromSupplier(&suppliers[i]))
	}
	httpkit.OK(c, out)
}
