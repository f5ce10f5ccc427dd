package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlegis/legisrag/internal/pkg/errcode"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
	"github.com/openlegis/legisrag/internal/pkg/response"
	"github.com/openlegis/legisrag/internal/service"
)

type AskHandler struct {
	assistant *service.AssistantService
}

func NewAskHandler(assistant *service.AssistantService) *AskHandler {
	return &AskHandler{assistant: assistant}
}

type askRequest struct {
	Query string `json:"query"`
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	session, err := h.assistant.Ask(c.Request.Context(), req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *AskHandler) Themes(c *gin.Context) {
	themes, err := h.assistant.Themes(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"themes": themes})
}

func (h *AskHandler) Search(c *gin.Context) {
	query := c.Query("q")
	theme := c.Query("theme")
	k, _ := strconv.Atoi(c.Query("k"))
	result, err := h.assistant.Search(c.Request.Context(), query, theme, k)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AskHandler) Summaries(c *gin.Context) {
	summaries, err := h.assistant.Summaries(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"summaries": summaries})
}

func handleError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, apperrors.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, apperrors.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, apperrors.ErrIndexUnavailable):
		response.Error(c, errcode.ErrIndexUnavailable, "index not ready")
	case errors.Is(err, apperrors.ErrLLMUnavailable):
		response.Error(c, errcode.ErrLLMUnavailable, "llm unavailable")
	case errors.Is(err, apperrors.ErrCancelled):
		response.Error(c, errcode.ErrSessionCancelled, "session cancelled")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
