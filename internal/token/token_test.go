package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interviewrt/core/internal/clockid"
)

type fakeStore struct {
	interviews map[string]Interview
}

func (f *fakeStore) GetInterview(_ context.Context, id string) (Interview, error) {
	iv, ok := f.interviews[id]
	if !ok {
		return Interview{}, errors.New("not found")
	}
	return iv, nil
}

func (f *fakeStore) AttachSession(_ context.Context, interviewID, sessionID string) error {
	iv := f.interviews[interviewID]
	iv.SessionID = sessionID
	f.interviews[interviewID] = iv
	return nil
}

func newService(t *testing.T, store *fakeStore) (*Service, *clockid.FakeClock) {
	t.Helper()
	clock := clockid.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	keys, err := clockid.NewKeyRing("k1", map[string][]byte{"k1": []byte("test-secret-value")})
	require.NoError(t, err)
	return NewService(clock, keys, store, 15*time.Minute, 10*time.Minute), clock
}

func TestIssueAndRedeemRoundTrip(t *testing.T) {
	start := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{interviews: map[string]Interview{
		"iv1": {ID: "iv1", ScheduledStartUTC: start, ScheduledEndUTC: start.Add(30 * time.Minute), Status: "Scheduled"},
	}}
	svc, _ := newService(t, store)

	tok, err := svc.Issue(store.interviews["iv1"])
	require.NoError(t, err)

	handle, err := svc.Redeem(context.Background(), tok.Value, start)
	require.NoError(t, err)
	require.False(t, handle.Resumed)
	require.NotEmpty(t, handle.SessionID)

	// Resumption within the window returns the same session.
	handle2, err := svc.Redeem(context.Background(), tok.Value, start.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, handle2.Resumed)
	require.Equal(t, handle.SessionID, handle2.SessionID)
}

func TestRedeemTooEarly(t *testing.T) {
	start := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{interviews: map[string]Interview{
		"iv1": {ID: "iv1", ScheduledStartUTC: start, ScheduledEndUTC: start.Add(30 * time.Minute), Status: "Scheduled"},
	}}
	svc, _ := newService(t, store)

	tok, err := svc.Issue(store.interviews["iv1"])
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), tok.Value, start.Add(-20*time.Minute))
	var tooEarly ErrTooEarly
	require.True(t, errors.As(err, &tooEarly))
	require.Equal(t, int64(300), tooEarly.SecondsRemaining)
}

func TestRedeemExpired(t *testing.T) {
	start := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{interviews: map[string]Interview{
		"iv1": {ID: "iv1", ScheduledStartUTC: start, ScheduledEndUTC: start.Add(30 * time.Minute), Status: "Scheduled"},
	}}
	svc, _ := newService(t, store)

	tok, err := svc.Issue(store.interviews["iv1"])
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), tok.Value, start.Add(time.Hour))
	require.ErrorIs(t, err, ErrExpired)
}

func TestRedeemRejectsBitFlip(t *testing.T) {
	start := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	store := &fakeStore{interviews: map[string]Interview{
		"iv1": {ID: "iv1", ScheduledStartUTC: start, ScheduledEndUTC: start.Add(30 * time.Minute), Status: "Scheduled"},
	}}
	svc, _ := newService(t, store)

	tok, err := svc.Issue(store.interviews["iv1"])
	require.NoError(t, err)

	flipped := []byte(tok.Value)
	flipped[len(flipped)-1] ^= 1
	_, err = svc.Redeem(context.Background(), string(flipped), start)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRedeemAlreadyTerminal(t *testing.T) {
	start := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	for _, status := range []string{"Completed", "Abandoned", "Expired"} {
		store := &fakeStore{interviews: map[string]Interview{
			"iv1": {ID: "iv1", ScheduledStartUTC: start, ScheduledEndUTC: start.Add(30 * time.Minute), Status: status},
		}}
		svc, _ := newService(t, store)

		tok, err := svc.Issue(store.interviews["iv1"])
		require.NoError(t, err)

		_, err = svc.Redeem(context.Background(), tok.Value, start)
		require.ErrorIs(t, err, ErrAlreadyTerminal, "status %s", status)
	}
}

func TestIssueRequiresScheduledStart(t *testing.T) {
	store := &fakeStore{interviews: map[string]Interview{}}
	svc, _ := newService(t, store)

	_, err := svc.Issue(Interview{ID: "iv2"})
	require.ErrorIs(t, err, ErrNoScheduledStart)
}
