package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewHTTPClient(ts.URL+"/", ts.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_DecodesPair(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "kenji@example.com", body["email"])

		writeJSON(w, http.StatusOK, map[string]any{
			"user":               map[string]any{"id": "u1", "username": "kenji", "email": "kenji@example.com"},
			"access_token":       "A1",
			"refresh_token":      "R1",
			"token_type":         "Bearer",
			"access_expires_at":  exp,
			"refresh_expires_at": exp,
		})
	})

	res, err := c.Login(context.Background(), "kenji@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, "A1", res.Tokens.AccessToken)
	assert.Equal(t, "R1", res.Tokens.RefreshToken)
	assert.True(t, exp.Equal(res.Tokens.AccessExpiresAt))
}

func TestMe_SendsBearer(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "username": "kenji"})
	})

	u, err := c.Me(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "kenji", u.Username)
}

func TestChangeEmail_PutsAddress(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me/email", r.URL.Path)
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer A1", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@example.com", body["email"])

		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "email": "new@example.com", "email_verified": false})
	})

	u, err := c.ChangeEmail(context.Background(), "A1", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.False(t, u.EmailVerified)
}

func TestErrorEnvelopeMapping(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusUnauthorized, "UNAUTHENTICATED", ErrUnauthorized},
		{http.StatusUnauthorized, "SESSION_INVALID", ErrSessionInvalid},
		{http.StatusUnauthorized, "INVALID_CREDENTIALS", ErrInvalidCredentials},
		{http.StatusConflict, "CONFLICT", ErrConflict},
		{http.StatusTooManyRequests, "RATE_LIMITED", ErrRateLimited},
		{http.StatusBadRequest, "VALIDATION_FAILED", ErrInvalidRequest},
		{http.StatusBadRequest, "VERIFICATION_INVALID", ErrVerificationInvalid},
		{http.StatusBadRequest, "VERIFICATION_EXPIRED", ErrVerificationExpired},
		{http.StatusInternalServerError, "INTERNAL_ERROR", ErrUnavailable},
		{http.StatusBadGateway, "", ErrUnavailable},
		{http.StatusTeapot, "SOMETHING_NEW", ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error_code": tt.code, "error_message": "msg"})
			})

			_, err := c.Refresh(context.Background(), "R1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNonJSONErrorFallsBackToStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := c.Me(context.Background(), "A1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	c := NewHTTPClient(ts.URL, nil)
	err := c.Logout(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsTransient(err))
}

func TestContextCancelIsUnavailable(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Refresh(ctx, "R1")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestVerifyEmail_EscapesSecret(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/verify-email/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
	})

	msg, err := c.VerifyEmail(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "email verified", msg)
}
