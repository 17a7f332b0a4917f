package portal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTooEarlyCountdownFormat(t *testing.T) {
	v := TooEarly(900)
	require.Equal(t, StateTooEarly, v.State)
	require.Equal(t, "Interview not yet available (00:15:00)", v.Message)
	require.Equal(t, int64(900), v.SecondsRemaining)

	v = TooEarly(3 * 3600)
	require.Equal(t, "Interview not yet available (03:00:00)", v.Message)
}

func TestViewsNeverCarryDetail(t *testing.T) {
	for _, v := range []View{Expired(), Degraded(), Failure()} {
		require.Empty(t, v.SessionID)
		require.NotEmpty(t, v.Message)
	}
}
