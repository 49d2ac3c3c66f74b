package domain

import (
	"fmt"
	"time"
)

// UserIdentity represents the logged-in bilibili account
type UserIdentity struct {
	ID              int64  `json:"mid"`
	DisplayName     string `json:"uname"`
	AvatarURL       string `json:"face"`
	IsAuthenticated bool   `json:"is_login"`
}

// LoginCredential holds the cookies obtained from a confirmed QR login
type LoginCredential struct {
	SESSDATA   string    `json:"sessdata"`
	BiliJct    string    `json:"bili_jct"`
	DedeUserID string    `json:"dede_user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CookieString renders the credential as a Cookie header value
func (c *LoginCredential) CookieString() string {
	return fmt.Sprintf("SESSDATA=%s; bili_jct=%s; DedeUserID=%s", c.SESSDATA, c.BiliJct, c.DedeUserID)
}

// Expired reports whether the credential is no longer usable at now
func (c *LoginCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// QRCredential is issued once per login attempt
type QRCredential struct {
	URL         string `json:"url"`
	QRCodeKey   string `json:"qrcode_key"`
	ImageBase64 string `json:"image_base64"`
}

// LoginStatus represents the state of a QR login attempt
type LoginStatus string

const (
	LoginStatusWaiting   LoginStatus = "waiting"
	LoginStatusScanned   LoginStatus = "scanned"
	LoginStatusConfirmed LoginStatus = "confirmed"
	LoginStatusExpired   LoginStatus = "expired"
	LoginStatusError     LoginStatus = "error"
)

// IsTerminal reports whether no further progress is expected for the attempt
func (s LoginStatus) IsTerminal() bool {
	switch s {
	case LoginStatusConfirmed, LoginStatusExpired, LoginStatusError:
		return true
	}
	return false
}

// LoginPollOutcome is the result of one QR status poll
type LoginPollOutcome struct {
	Status  LoginStatus `json:"status"`
	Message string      `json:"message"`
}
