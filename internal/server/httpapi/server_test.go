package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/cryptox"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wadai/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("http-test-secret")

type outbox struct {
	mu      sync.Mutex
	secrets map[string]string
}

func (o *outbox) SendVerification(_ context.Context, to, _, secret string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.secrets["verify:"+to] = secret
	return nil
}

func (o *outbox) SendPasswordReset(_ context.Context, to, _, secret string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.secrets["reset:"+to] = secret
	return nil
}

func (o *outbox) get(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.secrets[key]
}

func newTestServer(t *testing.T) (*httptest.Server, *outbox) {
	t.Helper()

	rm := repomanager.NewMemoryRepositoryManager()
	logger := logging.Nop()
	mail := &outbox{secrets: map[string]string{}}

	tokens := services.NewTokenService(rm, auth.NewTokenIssuer(testSecret, "wadai", 15*time.Minute), time.Hour, logger)
	verification := services.NewVerificationService(rm, time.Hour)
	hasher := cryptox.NewPasswordHasher(cryptox.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
	users := services.NewUserService(rm, tokens, verification, hasher, mail, nil, logger)

	srv := NewHTTPServer(":0", logger, users, auth.NewTokenVerifier(testSecret, "wadai"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mail
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func register(t *testing.T, ts *httptest.Server, username, email string) map[string]any {
	t.Helper()
	resp, body := do(t, ts, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body
}

func TestRegisterLoginMe(t *testing.T) {
	ts, _ := newTestServer(t)

	body := register(t, ts, "kenji", "kenji@example.com")
	assert.Equal(t, "Bearer", body["token_type"])
	assert.NotEmpty(t, body["refresh_token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "kenji@example.com", user["email"])
	assert.Equal(t, false, user["email_verified"])

	resp, body := do(t, ts, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "kenji@example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access := body["access_token"].(string)

	resp, me := do(t, ts, http.MethodGet, "/users/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "kenji", me["username"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestRegister_Errors(t *testing.T) {
	ts, _ := newTestServer(t)
	register(t, ts, "kenji", "kenji@example.com")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate", map[string]string{"username": "kenji", "email": "other@example.com", "password": "correct horse"}, http.StatusConflict, codeConflict},
		{"short password", map[string]string{"username": "amara", "email": "amara@example.com", "password": "short"}, http.StatusBadRequest, codeValidationFailed},
		{"bad email", map[string]string{"username": "amara", "email": "nope", "password": "correct horse"}, http.StatusBadRequest, codeValidationFailed},
		{"malformed json", `{"username":`, http.StatusBadRequest, codeInvalidRequest},
		{"unknown field", map[string]string{"username": "amara", "email": "amara@example.com", "password": "correct horse", "role": "admin"}, http.StatusBadRequest, codeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, ts, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error_code"])
			assert.NotEmpty(t, body["error_message"])
		})
	}
}

func TestValidationMessageUsesJSONNames(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := do(t, ts, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "amara",
		"email":    "amara@example.com",
	})
	assert.Contains(t, body["error_message"], "password: required")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts, _ := newTestServer(t)
	register(t, ts, "kenji", "kenji@example.com")

	for _, email := range []string{"kenji@example.com", "nobody@example.com"} {
		resp, body := do(t, ts, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    email,
			"password": "wrong password",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, codeInvalidCredentials, body["error_code"])
	}
}

func TestRefreshRotation(t *testing.T) {
	ts, _ := newTestServer(t)
	first := register(t, ts, "kenji", "kenji@example.com")["refresh_token"].(string)

	resp, body := do(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": first})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := body["refresh_token"].(string)
	assert.NotEqual(t, first, second)
	assert.Nil(t, body["user"])

	resp, body = do(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": first})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeSessionInvalid, body["error_code"])

	resp, _ = do(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": second})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	ts, _ := newTestServer(t)
	refresh := register(t, ts, "kenji", "kenji@example.com")["refresh_token"].(string)

	resp, _ := do(t, ts, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": "unknown"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeSessionInvalid, body["error_code"])
}

func TestLogoutAll(t *testing.T) {
	ts, _ := newTestServer(t)
	reg := register(t, ts, "kenji", "kenji@example.com")

	resp, _ := do(t, ts, http.MethodPost, "/auth/logout-all", reg["access_token"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": reg["refresh_token"].(string)})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := do(t, ts, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeUnauthenticated, body["error_code"])
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	resp, body = do(t, ts, http.MethodGet, "/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeUnauthenticated, body["error_code"])

	resp, _ = do(t, ts, http.MethodPost, "/auth/change-password", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyEmail(t *testing.T) {
	ts, mail := newTestServer(t)
	access := register(t, ts, "kenji", "kenji@example.com")["access_token"].(string)
	secret := mail.get("verify:kenji@example.com")
	require.NotEmpty(t, secret)

	resp, body := do(t, ts, http.MethodGet, "/auth/verify-email/"+secret, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "email verified", body["message"])

	resp, body = do(t, ts, http.MethodGet, "/auth/verify-email/"+secret, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeVerificationInvalid, body["error_code"])

	resp, body = do(t, ts, http.MethodPost, "/auth/resend-verification", access, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "email already verified", body["message"])

	_, me := do(t, ts, http.MethodGet, "/users/me", access, nil)
	assert.Equal(t, true, me["email_verified"])
}

func TestPasswordReset(t *testing.T) {
	ts, mail := newTestServer(t)
	refresh := register(t, ts, "kenji", "kenji@example.com")["refresh_token"].(string)

	_, unknown := do(t, ts, http.MethodPost, "/auth/request-password-reset", "", map[string]string{"email": "nobody@example.com"})
	resp, known := do(t, ts, http.MethodPost, "/auth/request-password-reset", "", map[string]string{"email": "kenji@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, unknown, known)

	secret := mail.get("reset:kenji@example.com")
	require.NotEmpty(t, secret)

	resp, _ = do(t, ts, http.MethodPost, "/auth/reset-password/"+secret, "", map[string]string{"new_password": "battery staple"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, ts, http.MethodPost, "/auth/reset-password/"+secret, "", map[string]string{"new_password": "battery staple"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeVerificationInvalid, body["error_code"])

	resp, _ = do(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/auth/login", "", map[string]string{"email": "kenji@example.com", "password": "battery staple"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	ts, _ := newTestServer(t)
	access := register(t, ts, "kenji", "kenji@example.com")["access_token"].(string)

	resp, body := do(t, ts, http.MethodPost, "/auth/change-password", access, map[string]string{
		"current_password": "wrong password",
		"new_password":     "battery staple",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeInvalidCredentials, body["error_code"])

	resp, _ = do(t, ts, http.MethodPost, "/auth/change-password", access, map[string]string{
		"current_password": "correct horse",
		"new_password":     "battery staple",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangeEmail(t *testing.T) {
	ts, mail := newTestServer(t)
	access := register(t, ts, "kenji", "kenji@example.com")["access_token"].(string)
	register(t, ts, "aiko", "aiko@example.com")

	resp, _ := do(t, ts, http.MethodPut, "/users/me/email", "", map[string]string{"email": "new@example.com"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := do(t, ts, http.MethodPut, "/users/me/email", access, map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, codeValidationFailed, body["error_code"])

	resp, body = do(t, ts, http.MethodPut, "/users/me/email", access, map[string]string{"email": "aiko@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, codeConflict, body["error_code"])

	resp, body = do(t, ts, http.MethodPut, "/users/me/email", access, map[string]string{"email": "New@Example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "new@example.com", body["email"])
	assert.Equal(t, false, body["email_verified"])

	secret := mail.get("verify:new@example.com")
	require.NotEmpty(t, secret)
	resp, _ = do(t, ts, http.MethodGet, "/auth/verify-email/"+secret, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, me := do(t, ts, http.MethodGet, "/users/me", access, nil)
	assert.Equal(t, "new@example.com", me["email"])
	assert.Equal(t, true, me["email_verified"])
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := do(t, ts, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNotFound, body["error_code"])

	resp, _ = do(t, ts, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type stubAccounts struct {
	Accounts
	loginErr error
	panicky  bool
}

func (s *stubAccounts) Login(context.Context, string, string) (*models.User, *services.TokenPair, error) {
	if s.panicky {
		panic("boom")
	}
	return nil, nil, s.loginErr
}

type stubVerifier struct{ err error }

func (v stubVerifier) Verify(string) (*auth.Claims, error) { return nil, v.err }

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rate limited", common.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited},
		{"store down", errors.New("db error: connection refused"), http.StatusInternalServerError, codeInternal},
		{"wrapped", errors.Join(errors.New("ctx"), common.ErrInvalidCredentials), http.StatusUnauthorized, codeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewHTTPServer(":0", logging.Nop(), &stubAccounts{loginErr: tt.err}, stubVerifier{})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))

			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.ErrorCode)
			assert.NotContains(t, body.ErrorMessage, "connection refused")
		})
	}
}

func TestExpiredAccessToken(t *testing.T) {
	srv := NewHTTPServer(":0", logging.Nop(), &stubAccounts{}, stubVerifier{err: common.ErrAccessExpired})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "bearer some.jwt.token")

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error_code":"UNAUTHENTICATED","error_message":"unauthenticated"}`, rec.Body.String())
}

func TestTokenRejections_IdenticalBodies(t *testing.T) {
	serve := func(v Verifier, header string) (int, string) {
		srv := NewHTTPServer(":0", logging.Nop(), &stubAccounts{}, v)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code, rec.Body.String()
	}

	wantCode, want := serve(stubVerifier{err: common.ErrAccessExpired}, "Bearer x")
	require.Equal(t, http.StatusUnauthorized, wantCode)

	for _, err := range []error{common.ErrTokenMalformed, common.ErrSignatureInvalid, common.ErrInvalidTokenClaim} {
		code, body := serve(stubVerifier{err: err}, "Bearer x")
		assert.Equal(t, wantCode, code, err.Error())
		assert.Equal(t, want, body, err.Error())
	}

	code, body := serve(stubVerifier{}, "")
	assert.Equal(t, wantCode, code, "missing bearer")
	assert.Equal(t, want, body, "missing bearer")

	user := &models.User{ID: "u1", Username: "kenji", Email: "kenji@example.com"}
	expired, _, err := auth.NewTokenIssuer(testSecret, "wadai", -time.Minute).IssueAccessToken(user)
	require.NoError(t, err)
	forged, _, err := auth.NewTokenIssuer([]byte("another-secret"), "wadai", time.Hour).IssueAccessToken(user)
	require.NoError(t, err)

	verifier := auth.NewTokenVerifier(testSecret, "wadai")
	for name, token := range map[string]string{"expired": expired, "bad signature": forged, "malformed": "not-a-jwt"} {
		code, body := serve(verifier, "Bearer "+token)
		assert.Equal(t, wantCode, code, name)
		assert.Equal(t, want, body, name)
	}
}

func TestRecoverer(t *testing.T) {
	srv := NewHTTPServer(":0", logging.Nop(), &stubAccounts{panicky: true}, stubVerifier{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), codeInternal)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		token, ok := bearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}
