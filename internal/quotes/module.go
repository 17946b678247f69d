// Package quotes provides the quote ledger bounded context module: one slot
// per (supplier, rfq, line item), supplier submissions and operator decisions.
package quotes

import (
	"procurement_backend/internal/events"
	apphttp "procurement_backend/internal/http"
	"procurement_backend/internal/quotes/handler"
	"procurement_backend/internal/quotes/repository"
	"procurement_backend/internal/quotes/service"
	"procurement_backend/platform/logger"
	"procurement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the quotes bounded context module implementing http.Module.
type Module struct {
	handler       *handler.Handler
	publicHandler *handler.PublicHandler
	service       *service.Service
	repo          *repository.Repository
}

// NewModule creates and initializes the quotes module with all its dependencies.
// tasks and rfqs are the cross-module hooks a submission triggers.
func NewModule(pool *pgxpool.Pool, tasks service.TaskFinisher, rfqs service.RFQProgressor, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, tasks, rfqs, log)
	svc.SetEventBus(bus)

	return &Module{
		handler:       handler.New(svc),
		publicHandler: handler.NewPublicHandler(svc, val),
		service:       svc,
		repo:          repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "quotes"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts quote routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/quotes"))
	m.publicHandler.RegisterRoutes(ctx.V1.Group("/public/quotes"))
}
