// Package bookings provides the scheduling bounded context module: slot
// conflict checking, guarded booking writes, and the public booking link.
package bookings

import (
	"pipeline_backend/internal/bookings/handler"
	"pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/bookings/service"
	"pipeline_backend/internal/events"
	apphttp "pipeline_backend/internal/http"
	oppsvc "pipeline_backend/internal/opportunities/service"
	"pipeline_backend/platform/config"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the bookings bounded context module implementing http.Module.
type Module struct {
	svc           *service.Service
	handler       *handler.Handler
	publicHandler *handler.PublicHandler
}

// NewModule wires the bookings module. The calendar reader may be backed by
// a nil client when no external calendar is configured; the conflict check
// then degrades to internal bookings only.
func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	val *validator.Validator,
	cfg *config.Config,
	log *logger.Logger,
	cal service.CalendarReader,
	opportunities *oppsvc.Service,
	dispatcher service.Dispatcher,
) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo, cal, opportunities, dispatcher, bus, log)
	svc.SetPublicLinkTTL(cfg.GetPublicLinkTTL())

	return &Module{
		svc:           svc,
		handler:       handler.New(svc, val),
		publicHandler: handler.NewPublicHandler(svc, val, cfg),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "bookings" }

// Service exposes the booking service to sibling modules (post-call
// suggestions read and annotate bookings).
func (m *Module) Service() *service.Service { return m.svc }

// RegisterRoutes mounts staff routes under the authenticated group and the
// customer booking link under the rate-limited public group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/bookings"))
	m.publicHandler.RegisterRoutes(ctx.Public.Group("/bookings"))
}
