package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperpilot/internal/pkg/errcode"
	"github.com/xxxsen/paperpilot/internal/pkg/response"
	"github.com/xxxsen/paperpilot/internal/service"
)

const maxUploadBytes = 32 << 20

type PaperHandler struct {
	papers *service.PaperService
}

func NewPaperHandler(papers *service.PaperService) *PaperHandler {
	return &PaperHandler{papers: papers}
}

type createPaperRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

type generateFlashcardsRequest struct {
	Count int `json:"count"`
}

func (h *PaperHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if file.Size > maxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file too large")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	title := c.PostForm("title")
	doc, err := h.papers.Upload(c.Request.Context(), getUserID(c), title, file.Filename, opened, file.Size)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *PaperHandler) Create(c *gin.Context) {
	var req createPaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "title and content are required")
		return
	}
	doc, err := h.papers.CreateFromText(c.Request.Context(), getUserID(c), req.Title, req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *PaperHandler) List(c *gin.Context) {
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 0)
	docs, err := h.papers.List(c.Request.Context(), getUserID(c), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *PaperHandler) Get(c *gin.Context) {
	doc, err := h.papers.Get(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *PaperHandler) Delete(c *gin.Context) {
	if err := h.papers.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *PaperHandler) Retry(c *gin.Context) {
	if err := h.papers.RetryIngest(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queued": true})
}

func (h *PaperHandler) Summary(c *gin.Context) {
	summary, err := h.papers.GenerateSummary(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"summary": summary})
}

func (h *PaperHandler) GenerateFlashcards(c *gin.Context) {
	var req generateFlashcardsRequest
	_ = c.ShouldBindJSON(&req)
	cards, err := h.papers.GenerateFlashcards(c.Request.Context(), getUserID(c), c.Param("id"), req.Count)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cards)
}

func (h *PaperHandler) ListFlashcards(c *gin.Context) {
	cards, err := h.papers.ListFlashcards(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cards)
}
