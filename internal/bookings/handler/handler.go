package handler

import (
	"net/http"
	"time"

	"pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/bookings/service"
	"pipeline_backend/internal/bookings/transport"
	"pipeline_backend/platform/httpkit"
	"pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler serves the authenticated staff booking endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/availability", h.CheckAvailability)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/outcome", h.RecordOutcome)
	rg.POST("/:id/reschedule", h.Reschedule)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actorID := identity.UserID()

	result, err := h.svc.Create(c.Request.Context(), service.CreateParams{
		OpportunityID:   req.OpportunityID,
		Type:            req.Type,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Channel:         service.ChannelStaff,
		ActorID:         &actorID,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewCreateBookingResponse(result))
}

// List returns the bookings attached to one opportunity.
func (h *Handler) List(c *gin.Context) {
	opportunityID, err := uuid.Parse(c.Query("opportunityId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "opportunityId query parameter is required", nil)
		return
	}

	bookings, err := h.svc.ListForOpportunity(c.Request.Context(), opportunityID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"bookings": transport.NewBookingResponseList(bookings)})
}

// CheckAvailability runs the conflict check for a proposed window without
// writing anything.
func (h *Handler) CheckAvailability(c *gin.Context) {
	opportunityID, err := uuid.Parse(c.Query("opportunityId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "opportunityId query parameter is required", nil)
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "start must be an RFC3339 timestamp", nil)
		return
	}
	duration := 30 * time.Minute
	if raw := c.Query("durationMinutes"); raw != "" {
		parsed, parseErr := time.ParseDuration(raw + "m")
		if parseErr != nil {
			httpkit.Error(c, http.StatusBadRequest, "durationMinutes must be a number", nil)
			return
		}
		duration = parsed
	}

	result, err := h.svc.CheckAvailability(c.Request.Context(), opportunityID, start, duration)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.AvailabilityResponse{
		Available: !result.Conflict,
		Source:    result.Source,
		Warnings:  result.Warnings,
	})
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	booking, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewBookingResponse(booking))
}

func (h *Handler) RecordOutcome(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actorID := identity.UserID()

	booking, err := h.svc.RecordOutcome(c.Request.Context(), id, repository.Outcome(req.Outcome), &actorID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewBookingResponse(booking))
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actorID := identity.UserID()

	result, err := h.svc.Reschedule(c.Request.Context(), id, req.StartTime, req.DurationMinutes, &actorID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewCreateBookingResponse(result))
}
