package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/pkg/response"
	"github.com/tgo/docqa/internal/service"
)

var generationMessages = map[string]string{
	service.CategoryRateLimited: "The answer service is busy, please try again shortly",
	service.CategoryTimeout:     "The answer service timed out, please try again",
	service.CategoryUnavailable: "The answer service is currently unavailable",
}

// respondError maps service errors onto the error envelope. Provider and
// database messages never reach the client.
func respondError(c *gin.Context, err error) {
	var genErr *service.GenerationError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, model.ErrDocumentNotFound):
		response.NotFound(c, "DOCUMENT")
	case errors.Is(err, service.ErrFileTooLarge), errors.As(err, &maxBytes):
		response.TooLarge(c, "File exceeds the maximum upload size")
	case errors.Is(err, service.ErrEmptyFile):
		response.BadRequest(c, "File is empty")
	case errors.Is(err, service.ErrNotPDF):
		response.Error(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only PDF files are accepted", nil)
	case errors.Is(err, service.ErrEmptyQuery):
		response.BadRequest(c, "Query must not be empty")
	case errors.As(err, &genErr):
		msg, ok := generationMessages[genErr.Category]
		if !ok {
			msg = generationMessages[service.CategoryUnavailable]
		}
		status := http.StatusServiceUnavailable
		if genErr.Category == service.CategoryTimeout {
			status = http.StatusGatewayTimeout
		}
		response.Error(c, status, "ANSWER_UNAVAILABLE", msg, gin.H{"category": genErr.Category})
	case errors.Is(err, service.ErrEmbeddingUnavailable):
		response.ServiceUnavailable(c, "EMBEDDING_UNAVAILABLE", "The search service is currently unavailable")
	default:
		_ = c.Error(err)
		response.InternalError(c, "Internal server error")
	}
}
