package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperpilot/internal/pkg/errcode"
	"github.com/xxxsen/paperpilot/internal/pkg/response"
	"github.com/xxxsen/paperpilot/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type startSessionRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (h *ChatHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	session, err := h.chat.StartSession(c.Request.Context(), getUserID(c), req.DocumentID, req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, sessions)
}

func (h *ChatHandler) History(c *gin.Context) {
	turns, err := h.chat.History(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, turns)
}

// Ask answers a question over the session's retrieval scope. A degraded
// answer still carries citations, so it is returned to the caller instead
// of the bare error.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "question is required")
		return
	}
	answer, err := h.chat.Ask(c.Request.Context(), getUserID(c), c.Param("id"), req.Question)
	if err != nil && answer == nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
