package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/gateway/gatewaytest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(fake *gatewaytest.Fake, token string) *gin.Engine {
	return SetupRoutes(NewHandler(fake, nil), token)
}

func serve(router http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code         string `json:"code"`
		Message      string `json:"message"`
		UpstreamCode int    `json:"upstream_code"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NewNotFoundError("batch"), http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", apperrors.NewUnauthorizedError("login"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", apperrors.NewForbiddenError("no"), http.StatusForbidden, "FORBIDDEN"},
		{"bad request", apperrors.NewBadRequestError("bad"), http.StatusBadRequest, "BAD_REQUEST"},
		{"rate limited", apperrors.NewRateLimitedError("slow down"), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"upstream", apperrors.NewUpstreamError(12025, "closed"), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"wrapped", gateway.Application(gateway.OpGetBatchStatus, apperrors.NewNotFoundError("batch")), http.StatusNotFound, "NOT_FOUND"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &gatewaytest.Fake{
				GetBatchStatusFunc: func(ctx context.Context, id string) (*domain.BatchStatus, error) {
					return nil, tt.err
				},
			}
			w := serve(newRouter(fake, ""), http.MethodGet, "/api/v1/batches/b1", "")
			require.Equal(t, tt.status, w.Code)
			require.Equal(t, tt.code, decodeError(t, w).Error.Code)
		})
	}
}

func TestRespondError_UpstreamCode(t *testing.T) {
	fake := &gatewaytest.Fake{
		SendCommentFunc: func(ctx context.Context, v domain.Video, content string) (*domain.CommentResult, error) {
			return nil, apperrors.NewUpstreamError(12015, "captcha")
		},
	}
	w := serve(newRouter(fake, ""), http.MethodPost, "/api/v1/comments", `{"video":{"aid":1},"content":"hi"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeError(t, w)
	require.Equal(t, 12015, body.Error.UpstreamCode)
	require.Equal(t, "captcha verification required", body.Error.Message)
}

func TestSearchVideos_ParsesQuery(t *testing.T) {
	var got domain.SearchQuery
	fake := &gatewaytest.Fake{
		SearchVideosFunc: func(ctx context.Context, q domain.SearchQuery) (*domain.SearchResultPage, error) {
			got = q
			return &domain.SearchResultPage{Page: q.Page, Total: 1, Items: []domain.Video{{BVID: "BV1"}}}, nil
		},
	}
	router := newRouter(fake, "")

	w := serve(router, http.MethodGet, "/api/v1/videos/search?keyword=go&page=2&page_size=10&order=click", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, domain.SearchQuery{Keyword: "go", Page: 2, PageSize: 10, Order: domain.SearchOrderClick}, got)

	var body struct {
		Data domain.SearchResultPage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Data.Page)
	require.Len(t, body.Data.Items, 1)

	w = serve(router, http.MethodGet, "/api/v1/videos/search?keyword=go&order=newest", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 1, fake.Calls(gateway.OpSearchVideos))
}

func TestBatchRoutes(t *testing.T) {
	var cancelled, cleared string
	fake := &gatewaytest.Fake{
		BatchSendCommentsFunc: func(ctx context.Context, videos []domain.Video, content string) (string, error) {
			require.Len(t, videos, 2)
			require.Equal(t, "hello", content)
			return "b1", nil
		},
		CancelBatchFunc: func(ctx context.Context, id string) error {
			cancelled = id
			return nil
		},
		ClearBatchFunc: func(ctx context.Context, id string) error {
			cleared = id
			return nil
		},
	}
	router := newRouter(fake, "")

	w := serve(router, http.MethodPost, "/api/v1/batches", `{"videos":[{"aid":1},{"aid":2}],"content":"hello"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"data":{"batch_id":"b1"}}`, w.Body.String())

	w = serve(router, http.MethodPost, "/api/v1/batches/b1/cancel", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "b1", cancelled)

	w = serve(router, http.MethodDelete, "/api/v1/batches/b1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "b1", cleared)

	w = serve(router, http.MethodPost, "/api/v1/batches", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateRoutes(t *testing.T) {
	fake := &gatewaytest.Fake{
		CreateTemplateFunc: func(ctx context.Context, name, content string) (*domain.CommentTemplate, error) {
			return &domain.CommentTemplate{ID: "t1", Name: name, Content: content}, nil
		},
		UpdateTemplateFunc: func(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error) {
			return &domain.CommentTemplate{ID: id, Name: name, Content: content}, nil
		},
		DeleteTemplateFunc: func(ctx context.Context, id string) error {
			return apperrors.NewNotFoundError("template")
		},
	}
	router := newRouter(fake, "")

	w := serve(router, http.MethodPost, "/api/v1/templates", `{"name":"n","content":"c"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(router, http.MethodPut, "/api/v1/templates/t1", `{"name":"n2","content":"c2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"content":"c2"`)

	w = serve(router, http.MethodDelete, "/api/v1/templates/t9", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "template not found", decodeError(t, w).Error.Message)
}

func TestBearerAuth(t *testing.T) {
	fake := &gatewaytest.Fake{
		CheckLoginValidFunc: func(ctx context.Context) (bool, error) { return true, nil },
	}
	router := newRouter(fake, "secret")

	w := serve(router, http.MethodGet, "/api/v1/auth/valid", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(router, http.MethodGet, "/api/v1/auth/valid", "", "Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, fake.Calls(gateway.OpCheckLoginValid))

	w = serve(router, http.MethodGet, "/api/v1/auth/valid", "", "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"valid":true}}`, w.Body.String())

	// health and metrics stay open
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/metrics", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	w := serve(newRouter(&gatewaytest.Fake{}, "secret"), http.MethodOptions, "/api/v1/templates", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
