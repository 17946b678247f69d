package handler

import (
	"net/http"

	"procurement_backend/internal/quotes/service"
	"procurement_backend/internal/quotes/transport"
	"procurement_backend/platform/httpkit"
	"procurement_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request body"
const msgValidationFailed = "validation failed"

// PublicHandler handles the supplier-facing quote submission endpoint.
// Authentication of suppliers happens in the surrounding gateway; this layer
// only enforces the ledger's invariants.
type PublicHandler struct {
	svc *service.Service
	val *validator.Validator
}

// NewPublicHandler creates a new public quotes handler.
func NewPublicHandler(svc *service.Service, val *validator.Validator) *PublicHandler {
	return &PublicHandler{svc: svc, val: val}
}

// RegisterRoutes registers the public quote routes.
func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Submit)
}

// Submit handles POST /api/v1/public/quotes
func (h *PublicHandler) Submit(c *gin.Context) {
	var req transport.SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	quote, err := h.svc.Submit(c.Request.Context(), req.SupplierID, req.RFQID, req.LineItemID, req.Payload, req.PaymentTerms)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromQuote(quote))
}
