package handler

import (
	"net/http"

	"pipeline_backend/internal/opportunities/domain"
	"pipeline_backend/internal/suggestions/service"
	"pipeline_backend/internal/suggestions/transport"
	"pipeline_backend/platform/httpkit"
	"pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler serves the post-call notes and suggestion review endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the review queue under rg and the notes intake under
// the bookings group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, bookings *gin.RouterGroup) {
	rg.GET("", h.ListPending)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/confirm", h.Confirm)
	rg.POST("/:id/override", h.Override)
	rg.POST("/:id/dismiss", h.Dismiss)

	bookings.POST("/:id/notes", h.SubmitNotes)
	bookings.GET("/:id/suggestion", h.GetForBooking)
}

// SubmitNotes stores call notes on a booking and kicks off the analysis.
func (h *Handler) SubmitNotes(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.SubmitNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	suggestion, err := h.svc.SubmitNotes(c.Request.Context(), bookingID, req.Notes)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewSuggestionResponse(suggestion))
}

// ListPending returns the open review queue, oldest first.
func (h *Handler) ListPending(c *gin.Context) {
	suggestions, err := h.svc.ListPending(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewSuggestionListResponse(suggestions))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	suggestion, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewSuggestionResponse(suggestion))
}

// GetForBooking fetches the suggestion attached to a booking.
func (h *Handler) GetForBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	suggestion, err := h.svc.GetForBooking(c.Request.Context(), bookingID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewSuggestionResponse(suggestion))
}

func (h *Handler) Confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Confirm(c.Request.Context(), id, identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewReviewResponse(result))
}

func (h *Handler) Override(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.OverrideRequest
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

	result, err := h.svc.Override(c.Request.Context(), id, domain.Stage(req.Stage), identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewReviewResponse(result))
}

func (h *Handler) Dismiss(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Dismiss(c.Request.Context(), id, identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewReviewResponse(result))
}
