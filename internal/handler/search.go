package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tgo/docqa/internal/middleware"
	"github.com/tgo/docqa/internal/pkg/response"
	"github.com/tgo/docqa/internal/service"
)

type SearchHandler struct {
	documents *service.DocumentService
	retrieval *service.RetrievalService
}

func NewSearchHandler(documents *service.DocumentService, retrieval *service.RetrievalService) *SearchHandler {
	return &SearchHandler{documents: documents, retrieval: retrieval}
}

func (h *SearchHandler) FullText(c *gin.Context) {
	limit, offset := pagination(c)

	docs, total, err := h.documents.SearchFullText(c.Request.Context(), middleware.GetOwnerID(c), c.Query("q"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, docs, total, limit, offset)
}

func (h *SearchHandler) Semantic(c *gin.Context) {
	matches, err := h.retrieval.SemanticSearch(c.Request.Context(), middleware.GetOwnerID(c), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"data": matches, "total": len(matches)})
}
