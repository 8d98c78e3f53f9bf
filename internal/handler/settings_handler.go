package handler

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/pkg/errcode"
	"github.com/xxxsen/ragkb/internal/pkg/response"
)

type SettingsHandler struct {
	cfg *config.Config
	db  *sql.DB
}

func NewSettingsHandler(cfg *config.Config, db *sql.DB) *SettingsHandler {
	return &SettingsHandler{cfg: cfg, db: db}
}

func (h *SettingsHandler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		response.Error(c, errcode.ErrInternal, "database unreachable")
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}

// Settings exposes the non-secret runtime knobs for debugging.
func (h *SettingsHandler) Settings(c *gin.Context) {
	response.Success(c, gin.H{
		"app_name":         h.cfg.AppName,
		"environment":      h.cfg.Environment,
		"vector_dimension": h.cfg.AI.VectorDimension,
		"embed_model":      h.cfg.AI.Embed.Model,
		"chat_model":       h.cfg.AI.Chat.Model,
		"retrieval":        h.cfg.Retrieval,
		"ingest":           h.cfg.Ingest,
	})
}
