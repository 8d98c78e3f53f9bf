package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/pkg/errcode"
	"github.com/xxxsen/ragkb/internal/pkg/response"
	"github.com/xxxsen/ragkb/internal/service"
)

type RAGHandler struct {
	rag *service.RAGService
}

func NewRAGHandler(rag *service.RAGService) *RAGHandler {
	return &RAGHandler{rag: rag}
}

type ragQueryRequest struct {
	KBID      string `json:"kb_id"`
	Query     string `json:"query"`
	Mode      string `json:"search_type"`
	TopK      int    `json:"top_k"`
	MaxTokens int    `json:"max_tokens"`
	UseRerank bool   `json:"use_rerank"`
}

func (h *RAGHandler) Query(c *gin.Context) {
	var req ragQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.KBID == "" || req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "kb_id and query required")
		return
	}
	mode, err := model.ParseSearchMode(req.Mode)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, err.Error())
		return
	}
	answer, err := h.rag.Answer(c.Request.Context(), getTenantID(c), &service.RAGRequest{
		KBID:      req.KBID,
		Query:     req.Query,
		Mode:      mode,
		TopK:      req.TopK,
		MaxTokens: req.MaxTokens,
		UseRerank: req.UseRerank,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
