package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/pkg/errcode"
	"github.com/xxxsen/ragkb/internal/pkg/response"
	"github.com/xxxsen/ragkb/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
	TopK  int    `json:"top_k"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	mode, err := model.ParseSearchMode(req.Mode)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, err.Error())
		return
	}
	result, err := h.search.Search(c.Request.Context(), getTenantID(c), &service.SearchRequest{
		KBID:  c.Param("id"),
		Query: req.Query,
		Mode:  mode,
		TopK:  req.TopK,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"results":  result.Chunks,
		"mode":     result.Mode,
		"degraded": result.Degraded,
	})
}
