package reliability

import (
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
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsRetryableHTTPStatus(tc.code), "status %d", tc.code)
	}
}

func TestIsRetryableRealtimeMessageType(t *testing.T) {
	require.True(t, IsRetryableRealtimeMessageType("rate_limited"))
	require.True(t, IsRetryableRealtimeMessageType("queue_overflow"))
	require.False(t, IsRetryableRealtimeMessageType("auth_failed"))
	require.False(t, IsRetryableRealtimeMessageType(""))
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	require.Equal(t, base, ExponentialBackoff(0, base, capDur))
	require.Equal(t, 200*time.Millisecond, ExponentialBackoff(1, base, capDur))
	require.Equal(t, 400*time.Millisecond, ExponentialBackoff(2, base, capDur))
	require.Equal(t, capDur, ExponentialBackoff(3, base, capDur))
	require.Equal(t, capDur, ExponentialBackoff(10, base, capDur))
}
