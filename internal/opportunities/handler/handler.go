package handler

import (
	"net/http"
	"strconv"

	"pipeline_backend/internal/opportunities/domain"
	"pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/internal/opportunities/service"
	"pipeline_backend/internal/opportunities/transport"
	"pipeline_backend/platform/httpkit"
	"pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

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
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/stage-log", h.GetStageLog)
	rg.POST("/:id/stage", h.OverrideStage)
	rg.POST("/:id/lost", h.MarkLost)
	rg.POST("/:id/complete", h.MarkComplete)
	rg.POST("/:id/deposit-paid", h.RecordDepositPaid)
	rg.POST("/:id/onboarding-complete", h.RecordOnboardingComplete)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateOpportunityRequest
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

	ownerID := identity.UserID()
	if req.OwnerID != nil {
		ownerID = *req.OwnerID
	}

	opp, err := h.svc.Create(c.Request.Context(), service.CreateParams{
		OwnerID:            ownerID,
		ContactName:        req.ContactName,
		ContactPhone:       req.ContactPhone,
		ContactEmail:       req.ContactEmail,
		ValueEstimateCents: req.ValueEstimateCents,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewOpportunityResponse(opp))
}

func (h *Handler) List(c *gin.Context) {
	params := repository.ListParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}

	if raw := c.Query("stage"); raw != "" {
		stage := domain.Stage(raw)
		if !domain.IsKnownStage(stage) {
			httpkit.Error(c, http.StatusBadRequest, "unknown stage filter", nil)
			return
		}
		params.Stage = &stage
	}
	if raw := c.Query("ownerId"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid ownerId filter", nil)
			return
		}
		params.OwnerID = &ownerID
	}

	items, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	responses := make([]transport.OpportunityResponse, 0, len(items))
	for i := range items {
		responses = append(responses, transport.NewOpportunityResponse(&items[i]))
	}

	httpkit.OK(c, transport.OpportunityListResponse{
		Items:    responses,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	opp, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewOpportunityResponse(opp))
}

func (h *Handler) GetStageLog(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	entries, err := h.svc.GetStageLog(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	opp, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	replayed := service.ReplayLog(entries)
	httpkit.OK(c, gin.H{
		"entries":       transport.NewStageLogResponse(entries),
		"currentStage":  string(opp.Stage),
		"replayedStage": string(replayed),
		"consistent":    replayed == opp.Stage,
	})
}

// OverrideStage moves the opportunity to an arbitrary stage on behalf of the
// authenticated staff member. The transition is audited like any other.
func (h *Handler) OverrideStage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.OverrideStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	stage := domain.Stage(req.Stage)
	if !domain.IsKnownStage(stage) {
		httpkit.Error(c, http.StatusBadRequest, "unknown stage", nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.ManualOverride(c.Request.Context(), id, identity.UserID(), stage, req.Note)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTransitionResponse(result))
}

func (h *Handler) MarkLost(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.MarkLostRequest
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

	result, err := h.svc.MarkLost(c.Request.Context(), id, identity.UserID(), req.Reason)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTransitionResponse(result))
}

func (h *Handler) MarkComplete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.MarkComplete(c.Request.Context(), id, identity.UserID())
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTransitionResponse(result))
}

func (h *Handler) RecordDepositPaid(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actorID := identity.UserID()

	result, err := h.svc.RecordDepositPaid(c.Request.Context(), id, &actorID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTransitionResponse(result))
}

func (h *Handler) RecordOnboardingComplete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actorID := identity.UserID()

	result, err := h.svc.RecordOnboardingComplete(c.Request.Context(), id, &actorID)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTransitionResponse(result))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
