package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/interviewrt/core/internal/config"
)

func adminMiddlewareServer(token string) http.Handler {
	s := New(Deps{Config: config.Config{AdminBearerToken: token}})
	return s.requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireAdminRejectsMissingToken(t *testing.T) {
	h := adminMiddlewareServer("secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminRejectsWrongToken(t *testing.T) {
	h := adminMiddlewareServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminAcceptsToken(t *testing.T) {
	h := adminMiddlewareServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAdminDisabledWithoutConfiguredToken(t *testing.T) {
	h := adminMiddlewareServer("")
	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSlotFromRequestValidation(t *testing.T) {
	_, err := slotFromRequest(createSlotRequest{Company: "acme"}, 10)
	require.Error(t, err)

	slot, err := slotFromRequest(createSlotRequest{
		Company: "acme", AIType: "Technical", Date: "2026-03-02", Start: "10:00", Capacity: 2,
	}, 10)
	require.NoError(t, err)
	// End defaults to start + SLOT_DEFAULT_DURATION_MIN.
	require.Equal(t, 10, slot.End.Minute())
	require.Equal(t, 10, slot.Start.Hour())

	_, err = slotFromRequest(createSlotRequest{
		Company: "acme", AIType: "Technical", Date: "2026-03-02", Start: "10:00", End: "09:00", Capacity: 2,
	}, 10)
	require.Error(t, err)
}
