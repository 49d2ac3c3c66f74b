package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
)

// Handler handles API requests
type Handler struct {
	gateway gateway.Gateway
	logger  *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(gw gateway.Gateway, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		gateway: gw,
		logger:  logger,
	}
}

// CommentRequest is the body of POST /api/v1/comments
type CommentRequest struct {
	Video   domain.Video `json:"video"`
	Content string       `json:"content"`
}

// BatchRequest is the body of POST /api/v1/batches
type BatchRequest struct {
	Videos  []domain.Video `json:"videos"`
	Content string         `json:"content"`
}

// TemplateRequest is the body of the template create and update routes
type TemplateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// BatchCreated is returned by POST /api/v1/batches
type BatchCreated struct {
	BatchID string `json:"batch_id"`
}

// LoginValidity is returned by GET /api/v1/auth/valid
type LoginValidity struct {
	Valid bool `json:"valid"`
}

// CommentInterval is returned by GET /api/v1/comments/interval
type CommentInterval struct {
	Seconds int `json:"seconds"`
}

// GetUserInfo returns the logged-in account, or null
// GET /api/v1/auth/user
func (h *Handler) GetUserInfo(c *gin.Context) {
	user, err := h.gateway.GetUserInfo(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": user,
	})
}

// GetLoginQRCode issues a login QR code
// POST /api/v1/auth/qrcode
func (h *Handler) GetLoginQRCode(c *gin.Context) {
	qr, err := h.gateway.GetLoginQRCode(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": qr,
	})
}

// PollLoginStatus reports the scan status of a QR code
// GET /api/v1/auth/qrcode/:key/status
func (h *Handler) PollLoginStatus(c *gin.Context) {
	outcome, err := h.gateway.PollLoginStatus(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": outcome,
	})
}

// Logout forgets the saved login
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.gateway.Logout(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CheckLoginValid reports whether the saved login still works
// GET /api/v1/auth/valid
func (h *Handler) CheckLoginValid(c *gin.Context) {
	valid, err := h.gateway.CheckLoginValid(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": LoginValidity{Valid: valid},
	})
}

// GetCommentInterval returns the gap between comments in seconds
// GET /api/v1/comments/interval
func (h *Handler) GetCommentInterval(c *gin.Context) {
	seconds, err := h.gateway.GetCommentInterval(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": CommentInterval{Seconds: seconds},
	})
}

// SendComment posts a single comment
// POST /api/v1/comments
func (h *Handler) SendComment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	result, err := h.gateway.SendComment(c.Request.Context(), req.Video, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// BatchSendComments starts a comment batch
// POST /api/v1/batches
func (h *Handler) BatchSendComments(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	id, err := h.gateway.BatchSendComments(c.Request.Context(), req.Videos, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": BatchCreated{BatchID: id},
	})
}

// GetBatchStatus returns the progress of a batch
// GET /api/v1/batches/:id
func (h *Handler) GetBatchStatus(c *gin.Context) {
	st, err := h.gateway.GetBatchStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": st,
	})
}

// CancelBatch stops a batch
// POST /api/v1/batches/:id/cancel
func (h *Handler) CancelBatch(c *gin.Context) {
	if err := h.gateway.CancelBatch(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ClearBatch forgets a batch
// DELETE /api/v1/batches/:id
func (h *Handler) ClearBatch(c *gin.Context) {
	if err := h.gateway.ClearBatch(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SearchVideos searches videos by keyword
// GET /api/v1/videos/search?keyword=...&page=1&page_size=20&order=totalrank
func (h *Handler) SearchVideos(c *gin.Context) {
	query := domain.SearchQuery{
		Keyword:  c.Query("keyword"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
		Order:    domain.SearchOrder(c.Query("order")),
	}
	if query.Order != "" && !query.Order.Valid() {
		h.respondError(c, apperrors.NewBadRequestError("unknown search order: "+string(query.Order)))
		return
	}

	page, err := h.gateway.SearchVideos(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": page,
	})
}

// GetTemplates lists comment templates
// GET /api/v1/templates
func (h *Handler) GetTemplates(c *gin.Context) {
	templates, err := h.gateway.GetTemplates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": templates,
	})
}

// CreateTemplate adds a comment template
// POST /api/v1/templates
func (h *Handler) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	tpl, err := h.gateway.CreateTemplate(c.Request.Context(), req.Name, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": tpl,
	})
}

// UpdateTemplate replaces a template's name and content
// PUT /api/v1/templates/:id
func (h *Handler) UpdateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperrors.NewBadRequestError("invalid request body"))
		return
	}

	tpl, err := h.gateway.UpdateTemplate(c.Request.Context(), c.Param("id"), req.Name, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": tpl,
	})
}

// DeleteTemplate removes a template
// DELETE /api/v1/templates/:id
func (h *Handler) DeleteTemplate(c *gin.Context) {
	if err := h.gateway.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HealthCheck returns the health status
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// queryInt returns 0 for missing or malformed values, which the search defaults replace
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// statusFor maps an error code to an HTTP status
func statusFor(code apperrors.ErrCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := statusFor(appErr.Code)
		if status == http.StatusInternalServerError {
			h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		}
		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if appErr.UpstreamCode != 0 {
			body["upstream_code"] = appErr.UpstreamCode
		}
		c.JSON(status, gin.H{
			"error": body,
		})
		return
	}

	h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
