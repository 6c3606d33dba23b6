// Package tasks provides the work item bounded context module. Tasks are
// created by staff and by post-booking automation (preparation tasks).
package tasks

import (
	"context"
	"fmt"
	"strings"

	"pipeline_backend/internal/events"
	apphttp "pipeline_backend/internal/http"
	"pipeline_backend/internal/tasks/handler"
	"pipeline_backend/internal/tasks/repository"
	"pipeline_backend/internal/tasks/service"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the tasks bounded context module implementing http.Module.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// NewModule wires the tasks module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.NewService(repo, bus, log)

	return &Module{
		svc:     svc,
		handler: handler.New(svc, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "tasks" }

// Service exposes the task service so automation can create prep tasks.
func (m *Module) Service() *service.Service { return m.svc }

// RegisterRoutes mounts the task routes under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/tasks"))
}

// RegisterHandlers subscribes the module to domain events. A due booking
// reminder becomes an open task on the owner's list.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.BookingReminderDue{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		due, ok := event.(events.BookingReminderDue)
		if !ok {
			return nil
		}

		title := fmt.Sprintf("Upcoming %s", strings.ReplaceAll(due.Type, "-", " "))
		if due.ContactName != "" {
			title += " with " + due.ContactName
		}

		startTime := due.StartTime
		_, err := m.svc.Create(ctx, repository.CreateParams{
			OpportunityID: &due.OpportunityID,
			BookingID:     &due.BookingID,
			AssigneeID:    due.OwnerID,
			Title:         title,
			DueAt:         &startTime,
		})
		return err
	}))
}
