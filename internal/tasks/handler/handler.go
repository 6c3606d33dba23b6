package handler

import (
	"context"
	"net/http"
	"strconv"

	"pipeline_backend/internal/tasks/repository"
	"pipeline_backend/internal/tasks/service"
	"pipeline_backend/internal/tasks/transport"
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
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/reopen", h.Reopen)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateTaskRequest
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

	assigneeID := identity.UserID()
	if req.AssigneeID != nil {
		assigneeID = *req.AssigneeID
	}

	task, err := h.svc.Create(c.Request.Context(), repository.CreateParams{
		OpportunityID: req.OpportunityID,
		AssigneeID:    assigneeID,
		Title:         req.Title,
		Description:   req.Description,
		DueAt:         req.DueAt,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewTaskResponse(task))
}

func (h *Handler) List(c *gin.Context) {
	params := repository.ListParams{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}

	if raw := c.Query("assigneeId"); raw != "" {
		assigneeID, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid assigneeId filter", nil)
			return
		}
		params.AssigneeID = &assigneeID
	}
	if raw := c.Query("opportunityId"); raw != "" {
		opportunityID, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid opportunityId filter", nil)
			return
		}
		params.OpportunityID = &opportunityID
	}
	if raw := c.Query("status"); raw != "" {
		status := repository.Status(raw)
		if status != repository.StatusOpen && status != repository.StatusDone {
			httpkit.Error(c, http.StatusBadRequest, "unknown status filter", nil)
			return
		}
		params.Status = &status
	}

	tasks, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	items := make([]transport.TaskResponse, 0, len(tasks))
	for i := range tasks {
		items = append(items, transport.NewTaskResponse(&tasks[i]))
	}

	httpkit.OK(c, transport.TaskListResponse{
		Items:    items,
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

	task, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTaskResponse(task))
}

func (h *Handler) Complete(c *gin.Context) {
	h.setStatus(c, h.svc.Complete)
}

func (h *Handler) Reopen(c *gin.Context) {
	h.setStatus(c, h.svc.Reopen)
}

func (h *Handler) setStatus(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) (*repository.Task, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	task, err := apply(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.NewTaskResponse(task))
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
