package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-ops/relay/internal/models"
	"github.com/agent-ops/relay/internal/session/actor"
	"github.com/agent-ops/relay/pkg/logger"
	"github.com/agent-ops/relay/pkg/types"
)

// SessionHandler serves the session lifecycle control surface.
type SessionHandler struct {
	registry *actor.Registry
}

func NewSessionHandler(registry *actor.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// StartSession handles POST /v1/sessions/:id/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req types.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	a, err := h.registry.GetOrCreate(c.Param("id"))
	if err != nil {
		respondActorError(c, err)
		return
	}

	token, err := a.Start(c.Request.Context(), actor.StartParams{
		UserID:      req.UserID,
		Workspace:   req.Workspace,
		RunnerToken: req.RunnerToken,
		SandboxID:   req.SandboxID,
		TunnelURLs:  req.TunnelURLs,
	})
	if err != nil {
		respondActorError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.StartSessionResponse{
		Success:     true,
		Status:      models.SessionStatusRunning,
		RunnerToken: token,
	})
}

// StopSession handles POST /v1/sessions/:id/stop
func (h *SessionHandler) StopSession(c *gin.Context) {
	var req types.StopSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
			return
		}
	}

	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondActorError(c, err)
		return
	}
	if err := a.Stop(c.Request.Context(), req.Reason); err != nil {
		respondActorError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}

// SessionStatus handles GET /v1/sessions/:id/status
func (h *SessionHandler) SessionStatus(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondActorError(c, err)
		return
	}

	status, err := a.Status(c.Request.Context())
	if err != nil {
		respondActorError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SubmitPrompt handles POST /v1/sessions/:id/prompt
func (h *SessionHandler) SubmitPrompt(c *gin.Context) {
	var req types.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondActorError(c, err)
		return
	}

	promptID, queued, err := a.SubmitPrompt(c.Request.Context(), req.Content)
	if err != nil {
		respondActorError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.PromptResponse{
		Success:  true,
		PromptID: promptID,
		Queued:   queued,
	})
}

// ClearQueue handles POST /v1/sessions/:id/clear-queue
func (h *SessionHandler) ClearQueue(c *gin.Context) {
	a, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondActorError(c, err)
		return
	}

	cleared, err := a.ClearQueue(c.Request.Context())
	if err != nil {
		respondActorError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ClearQueueResponse{Success: true, Cleared: cleared})
}

// WipeSession handles DELETE /v1/sessions/:id
func (h *SessionHandler) WipeSession(c *gin.Context) {
	if err := h.registry.Wipe(c.Request.Context(), c.Param("id")); err != nil {
		respondActorError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}

// respondActorError maps actor sentinel errors onto HTTP statuses.
func respondActorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, actor.ErrInvalidSessionID):
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, actor.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, actor.ErrRunnerTokenMismatch):
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, actor.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, types.ErrorResponse{Error: err.Error()})
	default:
		logger.Errorf("[api] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal error"})
	}
}
