package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/middleware"
	"github.com/xxxsen/ragkb/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
	"github.com/xxxsen/ragkb/internal/pkg/response"
)

func getTenantID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextTenantIDKey)
	tenantID, _ := value.(string)
	return tenantID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("tenant_id", getTenantID(c)),
		zap.Error(err),
	)
	if appErr.IsRetryable(err) {
		c.Header("Retry-After", "1")
	}
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrExtract), errors.Is(err, appErr.ErrEmptyText):
		response.Error(c, errcode.ErrExtractFailed, "extraction failed")
	case errors.Is(err, appErr.ErrEmbedding):
		response.Error(c, errcode.ErrAIUnavailable, "embedding provider unavailable")
	case errors.Is(err, appErr.ErrIngest):
		response.Error(c, errcode.ErrIngestFailed, "document could not be accepted")
	case errors.Is(err, appErr.ErrSearchUnavailable):
		response.Error(c, errcode.ErrSearchUnavailable, "search temporarily unavailable")
	case errors.Is(err, appErr.ErrGenerate):
		response.Error(c, errcode.ErrGenerateFailed, "answer generation failed")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
