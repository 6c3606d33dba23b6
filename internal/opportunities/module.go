// Package opportunities provides the pipeline bounded context module: the
// opportunity store, the stage state machine, and its audit log.
package opportunities

import (
	"pipeline_backend/internal/events"
	apphttp "pipeline_backend/internal/http"
	"pipeline_backend/internal/opportunities/handler"
	"pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/internal/opportunities/service"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the opportunities bounded context module implementing http.Module.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule wires the opportunities module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo, bus, log)

	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "opportunities" }

// Service exposes the opportunity service to sibling modules; bookings and
// suggestions drive stage transitions through it.
func (m *Module) Service() *service.Service { return m.svc }

// RegisterRoutes mounts the opportunity routes under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/opportunities"))
}
