// Package bilibili talks to the bilibili web API: QR login, account info,
// comment posting and video search.
package bilibili

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	apperrors "github.com/kurihiro0119/bili-comment/internal/errors"
)

const (
	DefaultPassportURL = "https://passport.bilibili.com"
	DefaultAPIURL      = "https://api.bilibili.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://www.bilibili.com"

	// credentialTTL is how long a confirmed login is trusted.
	credentialTTL = 30 * 24 * time.Hour
)

// Client is the platform API used by the backend
type Client interface {
	GenerateQRCode(ctx context.Context) (*domain.QRCredential, error)
	// PollQRCode returns the login credential when the status is confirmed.
	PollQRCode(ctx context.Context, qrcodeKey string) (*domain.LoginPollOutcome, *domain.LoginCredential, error)
	// UserInfo returns nil when no account is logged in.
	UserInfo(ctx context.Context) (*domain.UserIdentity, error)
	SendComment(ctx context.Context, aid int64, content string) (*domain.CommentResult, error)
	SearchVideos(ctx context.Context, query domain.SearchQuery) (*domain.SearchResultPage, error)

	SetCredential(cred *domain.LoginCredential)
	Credential() *domain.LoginCredential
	LoggedIn() bool
}

// Options configures a Client
type Options struct {
	PassportURL string
	APIURL      string
	Timeout     time.Duration
	// RetryDelay is the pause between search attempts.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// webClient implements Client over HTTP
type webClient struct {
	passportURL string
	apiURL      string
	httpClient  *http.Client
	retryDelay  time.Duration
	logger      *slog.Logger

	mu         sync.RWMutex
	credential *domain.LoginCredential
}

// NewClient creates a new platform client
func NewClient(opts Options) Client {
	if opts.PassportURL == "" {
		opts.PassportURL = DefaultPassportURL
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &webClient{
		passportURL: strings.TrimRight(opts.PassportURL, "/"),
		apiURL:      strings.TrimRight(opts.APIURL, "/"),
		httpClient:  &http.Client{Timeout: opts.Timeout},
		retryDelay:  opts.RetryDelay,
		logger:      opts.Logger,
	}
}

// envelope is the common response wrapper of the platform API
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

func (e *envelope[T]) result() (*T, error) {
	if e.Code != 0 {
		return nil, apperrors.NewUpstreamError(e.Code, e.Message)
	}
	if e.Data == nil {
		return nil, apperrors.NewInternalError("response has no data", nil)
	}
	return e.Data, nil
}

func (c *webClient) SetCredential(cred *domain.LoginCredential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = cred
}

func (c *webClient) Credential() *domain.LoginCredential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.credential == nil {
		return nil
	}
	cred := *c.credential
	return &cred
}

func (c *webClient) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential != nil
}

// GenerateQRCode requests a login QR code and renders it to a PNG data URI
func (c *webClient) GenerateQRCode(ctx context.Context) (*domain.QRCredential, error) {
	var resp envelope[struct {
		URL       string `json:"url"`
		QRCodeKey string `json:"qrcode_key"`
	}]
	if _, err := c.getJSON(ctx, c.passportURL+"/x/passport-login/web/qrcode/generate", nil, &resp); err != nil {
		return nil, err
	}
	data, err := resp.result()
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(data.URL, qrcode.Medium, 256)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render QR code", err)
	}

	return &domain.QRCredential{
		URL:         data.URL,
		QRCodeKey:   data.QRCodeKey,
		ImageBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// PollQRCode checks the scan status of a QR code.
// On confirmation the credential is also held by the client.
func (c *webClient) PollQRCode(ctx context.Context, qrcodeKey string) (*domain.LoginPollOutcome, *domain.LoginCredential, error) {
	var resp envelope[struct {
		URL     string `json:"url"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}]
	params := url.Values{"qrcode_key": {qrcodeKey}}
	httpResp, err := c.getJSON(ctx, c.passportURL+"/x/passport-login/web/qrcode/poll", params, &resp)
	if err != nil {
		return nil, nil, err
	}
	data, err := resp.result()
	if err != nil {
		return nil, nil, err
	}

	switch data.Code {
	case 0:
		cred := parseLoginCookies(httpResp.Cookies(), data.URL, time.Now())
		if cred != nil {
			c.SetCredential(cred)
		} else {
			c.logger.Warn("login confirmed but no credential in response")
		}
		return &domain.LoginPollOutcome{Status: domain.LoginStatusConfirmed, Message: "login succeeded"}, cred, nil
	case 86038:
		return &domain.LoginPollOutcome{Status: domain.LoginStatusExpired, Message: "QR code expired"}, nil, nil
	case 86090:
		return &domain.LoginPollOutcome{Status: domain.LoginStatusScanned, Message: "scanned, confirm on your phone"}, nil, nil
	case 86101:
		return &domain.LoginPollOutcome{Status: domain.LoginStatusWaiting, Message: "waiting for scan"}, nil, nil
	default:
		return &domain.LoginPollOutcome{Status: domain.LoginStatusError, Message: data.Message}, nil, nil
	}
}

// parseLoginCookies reads the credential from Set-Cookie headers, falling
// back to the query of the redirect URL.
func parseLoginCookies(cookies []*http.Cookie, redirect string, now time.Time) *domain.LoginCredential {
	values := map[string]string{}
	for _, ck := range cookies {
		switch ck.Name {
		case "SESSDATA", "bili_jct", "DedeUserID":
			values[ck.Name] = ck.Value
		}
	}
	if u, err := url.Parse(redirect); err == nil {
		q := u.Query()
		for _, name := range []string{"SESSDATA", "bili_jct", "DedeUserID"} {
			if _, ok := values[name]; !ok && q.Get(name) != "" {
				values[name] = q.Get(name)
			}
		}
	}

	if values["SESSDATA"] == "" || values["bili_jct"] == "" || values["DedeUserID"] == "" {
		return nil
	}
	return &domain.LoginCredential{
		SESSDATA:   values["SESSDATA"],
		BiliJct:    values["bili_jct"],
		DedeUserID: values["DedeUserID"],
		ExpiresAt:  now.Add(credentialTTL),
	}
}

// UserInfo fetches the logged-in account from the nav endpoint
func (c *webClient) UserInfo(ctx context.Context) (*domain.UserIdentity, error) {
	if !c.LoggedIn() {
		return nil, nil
	}

	var resp envelope[struct {
		IsLogin bool   `json:"isLogin"`
		MID     int64  `json:"mid"`
		Uname   string `json:"uname"`
		Face    string `json:"face"`
	}]
	if _, err := c.getJSON(ctx, c.apiURL+"/x/web-interface/nav", nil, &resp); err != nil {
		return nil, err
	}
	// nav answers -101 with isLogin=false for expired sessions
	if resp.Code == -101 {
		return nil, nil
	}
	data, err := resp.result()
	if err != nil {
		return nil, err
	}
	if !data.IsLogin {
		return nil, nil
	}
	return &domain.UserIdentity{
		ID:              data.MID,
		DisplayName:     data.Uname,
		AvatarURL:       data.Face,
		IsAuthenticated: true,
	}, nil
}

// SendComment posts a comment on the video with the given aid.
// A rejection by the platform is reported in the result, not as an error.
func (c *webClient) SendComment(ctx context.Context, aid int64, content string) (*domain.CommentResult, error) {
	cred := c.Credential()
	if cred == nil {
		return nil, apperrors.NewUnauthorizedError("not logged in")
	}

	form := url.Values{
		"oid":     {fmt.Sprint(aid)},
		"type":    {"1"}, // video
		"message": {content},
		"csrf":    {cred.BiliJct},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/x/v2/reply/add", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp envelope[struct {
		RPID *int64 `json:"rpid"`
	}]
	if _, err := c.do(req, &resp); err != nil {
		return nil, err
	}

	if resp.Code != 0 {
		c.logger.Warn("comment rejected", "aid", aid, "code", resp.Code, "message", resp.Message)
		return &domain.CommentResult{
			Success:      false,
			ErrorMessage: apperrors.UpstreamMessage(resp.Code, resp.Message),
		}, nil
	}

	result := &domain.CommentResult{Success: true}
	if resp.Data != nil {
		result.CommentID = resp.Data.RPID
	}
	c.logger.Info("comment sent", "aid", aid, "rpid", result.CommentID)
	return result, nil
}

func (c *webClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) (*http.Response, error) {
	if params != nil {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, out)
}

func (c *webClient) do(req *http.Request, out any) (*http.Response, error) {
	body, resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", req.URL.Path, err)
	}
	return resp, nil
}

// send performs the request with browser headers and returns the raw body.
func (c *webClient) send(req *http.Request) ([]byte, *http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	if cred := c.Credential(); cred != nil {
		req.Header.Set("Cookie", cred.CookieString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("request %s: unexpected status %s", req.URL.Path, resp.Status)
	}
	return body, resp, nil
}
