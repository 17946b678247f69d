// Package rfq provides the RFQ bounded context module: requisition intake,
// line-item materialization and the dispatch that fans out supplier
// notifications.
package rfq

import (
	apphttp "procurement_backend/internal/http"
	"procurement_backend/internal/rfq/handler"
	"procurement_backend/internal/rfq/repository"
	"procurement_backend/internal/rfq/service"
	"procurement_backend/platform/logger"
	"procurement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the rfq bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the rfq module.
func NewModule(pool *pgxpool.Pool, cls service.Classifier, planner service.FanOutPlanner,
	tasks handler.TaskViewer, quotes handler.QuoteViewer,
	val *validator.Validator, log *logger.Logger, classifyConcurrency int) *Module {

	repo := repository.New(pool)
	svc := service.New(repo, cls, planner, log, classifyConcurrency)
	h := handler.New(svc, tasks, quotes, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "rfq"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts rfq routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/rfqs"))
	m.handler.RegisterTaskRoutes(ctx.V1.Group("/tasks"))
}
