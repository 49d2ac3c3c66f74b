// Package client is the HTTP client for the bili-comment API. *Client
// satisfies gateway.Gateway, so the CLI controllers can run against a
// remote backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
)

// Options configures a Client
type Options struct {
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is the API client for bili-comment
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient creates a new API client
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpClient := &http.Client{}
	if opts.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	httpClient.Timeout = opts.Timeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// GetUserInfo retrieves the logged-in account, nil when nobody is logged in
func (c *Client) GetUserInfo(ctx context.Context) (*domain.UserIdentity, error) {
	var response struct {
		Data *domain.UserIdentity `json:"data"`
	}
	if err := c.do(ctx, gateway.OpGetUserInfo, http.MethodGet, "/api/v1/auth/user", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetLoginQRCode requests a new login QR code
func (c *Client) GetLoginQRCode(ctx context.Context) (*domain.QRCredential, error) {
	var response struct {
		Data *domain.QRCredential `json:"data"`
	}
	if err := c.do(ctx, gateway.OpGetLoginQRCode, http.MethodPost, "/api/v1/auth/qrcode", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// PollLoginStatus checks the scan status of a QR code
func (c *Client) PollLoginStatus(ctx context.Context, qrcodeKey string) (*domain.LoginPollOutcome, error) {
	path := fmt.Sprintf("/api/v1/auth/qrcode/%s/status", url.PathEscape(qrcodeKey))

	var response struct {
		Data *domain.LoginPollOutcome `json:"data"`
	}
	if err := c.do(ctx, gateway.OpPollLoginStatus, http.MethodGet, path, nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// Logout forgets the saved login on the backend
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, gateway.OpLogout, http.MethodPost, "/api/v1/auth/logout", nil, nil, nil)
}

// CheckLoginValid reports whether the backend's login still works
func (c *Client) CheckLoginValid(ctx context.Context) (bool, error) {
	var response struct {
		Data struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	if err := c.do(ctx, gateway.OpCheckLoginValid, http.MethodGet, "/api/v1/auth/valid", nil, nil, &response); err != nil {
		return false, err
	}
	return response.Data.Valid, nil
}

// GetCommentInterval returns the backend's gap between comments in seconds
func (c *Client) GetCommentInterval(ctx context.Context) (int, error) {
	var response struct {
		Data struct {
			Seconds int `json:"seconds"`
		} `json:"data"`
	}
	if err := c.do(ctx, gateway.OpGetCommentInterval, http.MethodGet, "/api/v1/comments/interval", nil, nil, &response); err != nil {
		return 0, err
	}
	return response.Data.Seconds, nil
}

// SendComment posts a single comment
func (c *Client) SendComment(ctx context.Context, video domain.Video, content string) (*domain.CommentResult, error) {
	body := map[string]any{"video": video, "content": content}

	var response struct {
		Data *domain.CommentResult `json:"data"`
	}
	if err := c.do(ctx, gateway.OpSendComment, http.MethodPost, "/api/v1/comments", nil, body, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// BatchSendComments starts a comment batch and returns its id
func (c *Client) BatchSendComments(ctx context.Context, videos []domain.Video, content string) (string, error) {
	body := map[string]any{"videos": videos, "content": content}

	var response struct {
		Data struct {
			BatchID string `json:"batch_id"`
		} `json:"data"`
	}
	if err := c.do(ctx, gateway.OpBatchSendComments, http.MethodPost, "/api/v1/batches", nil, body, &response); err != nil {
		return "", err
	}
	return response.Data.BatchID, nil
}

// GetBatchStatus retrieves the progress of a batch
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	path := "/api/v1/batches/" + url.PathEscape(batchID)

	var response struct {
		Data *domain.BatchStatus `json:"data"`
	}
	if err := c.do(ctx, gateway.OpGetBatchStatus, http.MethodGet, path, nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// CancelBatch stops a batch
func (c *Client) CancelBatch(ctx context.Context, batchID string) error {
	path := fmt.Sprintf("/api/v1/batches/%s/cancel", url.PathEscape(batchID))
	return c.do(ctx, gateway.OpCancelBatch, http.MethodPost, path, nil, nil, nil)
}

// ClearBatch forgets a batch
func (c *Client) ClearBatch(ctx context.Context, batchID string) error {
	path := "/api/v1/batches/" + url.PathEscape(batchID)
	return c.do(ctx, gateway.OpClearBatch, http.MethodDelete, path, nil, nil, nil)
}

// SearchVideos searches videos by keyword
func (c *Client) SearchVideos(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error) {
	params := url.Values{}
	params.Set("keyword", query.Keyword)
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(query.PageSize))
	}
	if query.Order != "" {
		params.Set("order", string(query.Order))
	}

	var response struct {
		Data *domain.SearchResultPage `json:"data"`
	}
	if err := c.do(ctx, gateway.OpSearchVideos, http.MethodGet, "/api/v1/videos/search", params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetTemplates lists comment templates
func (c *Client) GetTemplates(ctx context.Context) ([]domain.CommentTemplate, error) {
	var response struct {
		Data []domain.CommentTemplate `json:"data"`
	}
	if err := c.do(ctx, gateway.OpGetTemplates, http.MethodGet, "/api/v1/templates", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// CreateTemplate adds a comment template
func (c *Client) CreateTemplate(ctx context.Context, name, content string) (*domain.CommentTemplate, error) {
	body := map[string]string{"name": name, "content": content}

	var response struct {
		Data *domain.CommentTemplate `json:"data"`
	}
	if err := c.do(ctx, gateway.OpCreateTemplate, http.MethodPost, "/api/v1/templates", nil, body, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// UpdateTemplate replaces a template's name and content
func (c *Client) UpdateTemplate(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error) {
	path := "/api/v1/templates/" + url.PathEscape(id)
	body := map[string]string{"name": name, "content": content}

	var response struct {
		Data *domain.CommentTemplate `json:"data"`
	}
	if err := c.do(ctx, gateway.OpUpdateTemplate, http.MethodPut, path, nil, body, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteTemplate removes a template
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	path := "/api/v1/templates/" + url.PathEscape(id)
	return c.do(ctx, gateway.OpDeleteTemplate, http.MethodDelete, path, nil, nil, nil)
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, "health_check", http.MethodGet, "/health", nil, nil, nil)
}

// errorResponse is the error body written by the API
type errorResponse struct {
	Error *struct {
		Code         apperrors.ErrCode `json:"code"`
		Message      string            `json:"message"`
		UpstreamCode int               `json:"upstream_code"`
	} `json:"error"`
}

// do performs a request and decodes the JSON response into result.
// Unreachable servers and unreadable replies are transport errors;
// error bodies from the API are application errors carrying an *AppError.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body, result any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return gateway.Transport(op, err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return gateway.Transport(op, fmt.Errorf("failed to encode request: %w", err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return gateway.Transport(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "op", op, "error", err)
		return gateway.Transport(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request", "op", op, "method", method, "path", path, "status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error == nil {
			return gateway.Transport(op, fmt.Errorf("API error: %s - %s", resp.Status, strings.TrimSpace(string(data))))
		}
		return gateway.Application(op, &apperrors.AppError{
			Code:         errResp.Error.Code,
			Message:      errResp.Error.Message,
			UpstreamCode: errResp.Error.UpstreamCode,
		})
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return gateway.Transport(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
