// Package suggestions provides the post-call suggestion bounded context:
// notes intake, LLM stage analysis, and the human review queue.
package suggestions

import (
	"pipeline_backend/internal/events"
	apphttp "pipeline_backend/internal/http"
	"pipeline_backend/internal/suggestions/analyzer"
	"pipeline_backend/internal/suggestions/handler"
	"pipeline_backend/internal/suggestions/repository"
	"pipeline_backend/internal/suggestions/service"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the suggestions bounded context module implementing http.Module.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule wires the suggestions module. The analyst may be nil when no
// model API key is configured; notes intake then fails as unavailable while
// the review endpoints keep working for suggestions that already exist.
func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
	bookings service.BookingGateway,
	opportunities service.OpportunityGateway,
	analyst *analyzer.Analyzer,
) *Module {
	repo := repository.New(pool)

	var svc *service.Service
	if analyst == nil {
		svc = service.NewService(repo, bookings, opportunities, nil, bus, log)
	} else {
		svc = service.NewService(repo, bookings, opportunities, analyst, bus, log)
	}

	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "suggestions" }

// RegisterRoutes mounts the review queue and the per-booking notes intake
// under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/suggestions"), ctx.Protected.Group("/bookings"))
}
