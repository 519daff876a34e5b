package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"procflow/internal/api/dto"
	"procflow/internal/domain"
	"procflow/internal/service"
)

type WorkflowHandler struct {
	service service.WorkflowService
}

func NewWorkflowHandler(svc service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// Register mounts the workflow routes on an API group.
func (h *WorkflowHandler) Register(api *gin.RouterGroup) {
	api.POST("/workflows", h.StartWorkflow)
	api.GET("/workflows/:thread_id", h.InspectWorkflow)
	api.POST("/workflows/:thread_id/resume", h.ResumeWorkflow)
	api.POST("/workflows/:thread_id/run", h.RunWorkflow)
	api.POST("/workflows/:thread_id/cancel", h.CancelWorkflow)
	api.GET("/workflows/:thread_id/transitions", h.ListTransitions)
}

func (h *WorkflowHandler) StartWorkflow(c *gin.Context) {
	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.service.Start(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *WorkflowHandler) ResumeWorkflow(c *gin.Context) {
	var req dto.ResumeWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.service.Resume(c.Request.Context(), c.Param("thread_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// RunWorkflow re-drives an instance from its current node. Retry path for
// instances parked at a node whose collaborator failed.
func (h *WorkflowHandler) RunWorkflow(c *gin.Context) {
	v, err := h.service.Run(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *WorkflowHandler) CancelWorkflow(c *gin.Context) {
	var req dto.CancelWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.service.Cancel(c.Request.Context(), c.Param("thread_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *WorkflowHandler) InspectWorkflow(c *gin.Context) {
	v, err := h.service.Inspect(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *WorkflowHandler) ListTransitions(c *gin.Context) {
	transitions, err := h.service.Transitions(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

// respondError maps the engine's error taxonomy to status codes. Stale
// versions and invalid resumes are conflicts the caller can resolve by
// re-inspecting; collaborator failures are upstream errors and the
// instance stays retryable.
func respondError(c *gin.Context, err error) {
	var (
		invalidResume *domain.InvalidResumeError
		validation    *domain.ValidationError
		collaborator  *domain.CollaboratorError
		config        *domain.ConfigurationError
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStaleVersion):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, domain.ErrUnknownWorkflowType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &invalidResume):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &collaborator):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	case errors.As(err, &config):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
