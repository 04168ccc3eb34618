package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tgo/docqa/internal/middleware"
	"github.com/tgo/docqa/internal/pkg/response"
	"github.com/tgo/docqa/internal/service"
)

type QAHandler struct {
	svc *service.AnswerService
}

func NewQAHandler(svc *service.AnswerService) *QAHandler {
	return &QAHandler{svc: svc}
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

func (h *QAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "question is required")
		return
	}

	answer, err := h.svc.Ask(c.Request.Context(), middleware.GetOwnerID(c), req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, answer)
}
