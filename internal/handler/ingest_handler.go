package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragkb/internal/pkg/errcode"
	"github.com/xxxsen/ragkb/internal/pkg/response"
	"github.com/xxxsen/ragkb/internal/service"
)

type IngestHandler struct {
	ingest        *service.IngestService
	maxUploadSize int64
}

func NewIngestHandler(ingest *service.IngestService, maxUploadSize int64) *IngestHandler {
	return &IngestHandler{ingest: ingest, maxUploadSize: maxUploadSize}
}

type ingestTextRequest struct {
	Text           string                 `json:"text"`
	Source         string                 `json:"source"`
	IdempotencyKey string                 `json:"idempotency_key"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// Ingest accepts either a multipart file upload or a JSON body with raw
// text. Both resolve to the same pipeline entry point.
func (h *IngestHandler) Ingest(c *gin.Context) {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/") {
		h.ingestFile(c)
		return
	}
	h.ingestText(c)
}

func (h *IngestHandler) ingestText(c *gin.Context) {
	var req ingestTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.Error(c, errcode.ErrInvalid, "text required")
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}
	h.submit(c, &service.IngestRequest{
		KBID:           c.Param("id"),
		Source:         req.Source,
		ContentType:    "text/plain",
		IdempotencyKey: key,
		Metadata:       req.Metadata,
		Content:        strings.NewReader(req.Text),
		Size:           int64(len(req.Text)),
	})
}

func (h *IngestHandler) ingestFile(c *gin.Context) {
	if h.maxUploadSize > 0 && c.Request.ContentLength > h.maxUploadSize {
		response.Error(c, errcode.ErrInvalidFile, "file too large")
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "cannot read file")
		return
	}
	defer file.Close()

	source := c.PostForm("source")
	if source == "" {
		source = fileHeader.Filename
	}
	key := c.PostForm("idempotency_key")
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}
	metadata, err := parseMetadataForm(c.PostForm("metadata"))
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "metadata must be a json object")
		return
	}
	h.submit(c, &service.IngestRequest{
		KBID:           c.Param("id"),
		Source:         source,
		ContentType:    detectContentType(fileHeader.Filename, fileHeader.Header.Get("Content-Type")),
		IdempotencyKey: key,
		Metadata:       metadata,
		Content:        file,
		Size:           fileHeader.Size,
	})
}

// parseMetadataForm decodes the optional metadata form field. Anything that
// is not a JSON object is rejected.
func parseMetadataForm(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func (h *IngestHandler) submit(c *gin.Context, req *service.IngestRequest) {
	result, err := h.ingest.Ingest(c.Request.Context(), getTenantID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"document": result.Document,
		"accepted": result.Accepted,
	})
}

// DownloadDocument streams the original uploaded payload back to the caller.
func (h *IngestHandler) DownloadDocument(c *gin.Context) {
	doc, reader, err := h.ingest.OpenDocument(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer reader.Close()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Source))
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func (h *IngestHandler) GetDocument(c *gin.Context) {
	doc, err := h.ingest.GetDocument(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// detectContentType prefers the filename extension over the multipart header
// because browsers commonly send markdown as application/octet-stream.
func detectContentType(filename, headerType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	// .md is missing from the stdlib mime table on some platforms.
	if ext == ".md" || ext == ".markdown" {
		return "text/markdown"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	if headerType != "" {
		return headerType
	}
	return "text/plain"
}
