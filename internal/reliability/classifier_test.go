package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsRetryableHTTPStatus(tc.code), "status %d", tc.code)
	}
}

func TestIsRetryableError(t *testing.T) {
	require.False(t, IsRetryableError(nil))
	require.False(t, IsRetryableError(context.Canceled))
	require.False(t, IsRetryableError(fmt.Errorf("send: %w", context.DeadlineExceeded)))
	require.False(t, IsRetryableError(errors.New("boom")))

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	require.True(t, IsRetryableError(fmt.Errorf("send request: %w", opErr)))
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	require.Equal(t, base, ExponentialBackoff(0, base, capDur))
	require.Equal(t, 200*time.Millisecond, ExponentialBackoff(1, base, capDur))
	require.Equal(t, capDur, ExponentialBackoff(10, base, capDur))
}
