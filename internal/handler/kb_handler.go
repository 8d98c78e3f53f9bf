package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragkb/internal/pkg/errcode"
	"github.com/xxxsen/ragkb/internal/pkg/response"
	"github.com/xxxsen/ragkb/internal/service"
)

type KnowledgeBaseHandler struct {
	kbs *service.KnowledgeBaseService
}

func NewKnowledgeBaseHandler(kbs *service.KnowledgeBaseService) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{kbs: kbs}
}

type kbRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *KnowledgeBaseHandler) Create(c *gin.Context) {
	var req kbRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	kb, err := h.kbs.Create(c.Request.Context(), getTenantID(c), req.Name, req.Description)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, kb)
}

func (h *KnowledgeBaseHandler) List(c *gin.Context) {
	kbs, err := h.kbs.List(c.Request.Context(), getTenantID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, kbs)
}

func (h *KnowledgeBaseHandler) Get(c *gin.Context) {
	kb, err := h.kbs.Get(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, kb)
}

func (h *KnowledgeBaseHandler) Delete(c *gin.Context) {
	if err := h.kbs.Delete(c.Request.Context(), getTenantID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *KnowledgeBaseHandler) ListDocuments(c *gin.Context) {
	docs, err := h.kbs.ListDocuments(c.Request.Context(), getTenantID(c), c.Param("id"), 200)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *KnowledgeBaseHandler) Stats(c *gin.Context) {
	chunkCount, err := h.kbs.Stats(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chunk_count": chunkCount})
}
