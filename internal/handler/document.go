package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tgo/docqa/internal/middleware"
	"github.com/tgo/docqa/internal/model"
	"github.com/tgo/docqa/internal/pkg/response"
	"github.com/tgo/docqa/internal/service"
)

// multipart framing and form fields on top of the file itself
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	svc           *service.DocumentService
	maxUploadSize int64
}

func NewDocumentHandler(svc *service.DocumentService, maxUploadSize int64) *DocumentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 50 << 20
	}
	return &DocumentHandler{svc: svc, maxUploadSize: maxUploadSize}
}

type DocumentStatusResponse struct {
	ID           uuid.UUID            `json:"id"`
	Status       model.DocumentStatus `json:"status"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(c, "File exceeds the maximum upload size")
			return
		}
		response.BadRequest(c, "file is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "could not read uploaded file")
		return
	}
	defer f.Close()

	doc, err := h.svc.Upload(c.Request.Context(), service.UploadInput{
		OwnerID:     middleware.GetOwnerID(c),
		Title:       c.PostForm("title"),
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Reader:      f,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, doc)
}

// List returns the owner's documents newest first, or ranked by full-text
// relevance when search is given.
func (h *DocumentHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	ownerID := middleware.GetOwnerID(c)

	if q := strings.TrimSpace(c.Query("search")); q != "" {
		docs, total, err := h.svc.SearchFullText(c.Request.Context(), ownerID, q, limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		response.List(c, docs, total, limit, offset)
		return
	}

	docs, total, err := h.svc.List(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, docs, total, limit, offset)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := h.svc.Get(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, DocumentStatusResponse{ID: doc.ID, Status: doc.Status, ErrorMessage: doc.ErrorMessage})
}

func (h *DocumentHandler) Chunks(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	chunks, err := h.svc.ListChunks(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if chunks == nil {
		chunks = []model.DocumentChunk{}
	}
	response.Success(c, gin.H{"data": chunks, "total": len(chunks)})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), middleware.GetOwnerID(c), id); err != nil {
		respondError(c, err)
		return
	}
	response.NoContent(c)
}

func documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
