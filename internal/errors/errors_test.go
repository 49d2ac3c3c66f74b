package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewInternalError("failed to save template", cause)

	require.Equal(t, "INTERNAL_ERROR: failed to save template (disk full)", err.Error())
	require.ErrorIs(t, err, cause)

	require.Equal(t, "NOT_FOUND: template not found", NewNotFoundError("template").Error())
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("get batch: %w", NewNotFoundError("batch"))

	require.True(t, IsNotFound(wrapped))
	require.False(t, IsUnauthorized(wrapped))
	require.False(t, IsRateLimited(wrapped))

	require.True(t, IsUnauthorized(NewUnauthorizedError("please log in first")))
	require.True(t, IsRateLimited(NewRateLimitedError("slow down")))
	require.Equal(t, ErrCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestNewUpstreamError_UsesKnownMessages(t *testing.T) {
	cases := []struct {
		code    int
		message string
		want    string
	}{
		{-101, "账号未登录", "account is not logged in"},
		{12025, "closed", "comments are closed for this video"},
		{12009, "", "comments are being sent too frequently"},
		{99999, "mystery", "error 99999: mystery"},
	}

	for _, tc := range cases {
		err := NewUpstreamError(tc.code, tc.message)
		require.Equal(t, ErrCodeUpstream, err.Code)
		require.Equal(t, tc.code, err.UpstreamCode)
		require.Equal(t, tc.want, err.Message)
	}
}
