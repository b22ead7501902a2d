package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/wadai/internal/client/models"
	"github.com/dmitrijs2005/wadai/internal/common"
)

const defaultTimeout = 30 * time.Second

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthResult is what register and login return.
type AuthResult struct {
	User   *models.User
	Tokens *models.TokenPair
}

type Client interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accessToken string) error
	Me(ctx context.Context, accessToken string) (*models.User, error)
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error
	ChangeEmail(ctx context.Context, accessToken, email string) (*models.User, error)
	ResendVerification(ctx context.Context, accessToken string) (string, error)
	VerifyEmail(ctx context.Context, secret string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, secret, newPassword string) error
}

// HTTPClient implements Client over the server's JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client for baseURL. A nil hc gets a default client
// with a 30 second timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type authPayload struct {
	User *models.User `json:"user"`
	models.TokenPair
}

type messagePayload struct {
	Message string `json:"message"`
}

type errorPayload struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	var out authPayload
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &out); err != nil {
		return nil, err
	}
	return &AuthResult{User: out.User, Tokens: &out.TokenPair}, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out authPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &AuthResult{User: out.User, Tokens: &out.TokenPair}, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	var out authPayload
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", "", body, &out); err != nil {
		return nil, err
	}
	return &out.TokenPair, nil
}

func (c *HTTPClient) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refresh_token": refreshToken}
	return c.do(ctx, http.MethodPost, "/auth/logout", "", body, nil)
}

func (c *HTTPClient) LogoutAll(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout-all", accessToken, nil, nil)
}

func (c *HTTPClient) Me(ctx context.Context, accessToken string) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/users/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	body := map[string]string{"current_password": currentPassword, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, "/auth/change-password", accessToken, body, nil)
}

func (c *HTTPClient) ChangeEmail(ctx context.Context, accessToken, email string) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPut, "/users/me/email", accessToken, map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendVerification returns the server's message, which tells a fresh
// email apart from an address that is already verified.
func (c *HTTPClient) ResendVerification(ctx context.Context, accessToken string) (string, error) {
	var out messagePayload
	if err := c.do(ctx, http.MethodPost, "/auth/resend-verification", accessToken, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *HTTPClient) VerifyEmail(ctx context.Context, secret string) (string, error) {
	var out messagePayload
	if err := c.do(ctx, http.MethodGet, "/auth/verify-email/"+url.PathEscape(secret), "", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *HTTPClient) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/request-password-reset", "", map[string]string{"email": email}, nil)
}

func (c *HTTPClient) ResetPassword(ctx context.Context, secret, newPassword string) error {
	body := map[string]string{"new_password": newPassword}
	return c.do(ctx, http.MethodPost, "/auth/reset-password/"+url.PathEscape(secret), "", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return mapResponseError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// codeErrors maps the server's closed error_code set onto sentinels.
var codeErrors = map[string]error{
	"UNAUTHENTICATED":      ErrUnauthorized,
	"SESSION_INVALID":      ErrSessionInvalid,
	"INVALID_CREDENTIALS":  ErrInvalidCredentials,
	"CONFLICT":             ErrConflict,
	"RATE_LIMITED":         ErrRateLimited,
	"VALIDATION_FAILED":    ErrInvalidRequest,
	"INVALID_REQUEST":      ErrInvalidRequest,
	"NOT_FOUND":            ErrInvalidRequest,
	"VERIFICATION_INVALID": ErrVerificationInvalid,
	"VERIFICATION_EXPIRED": ErrVerificationExpired,
	"INTERNAL_ERROR":       ErrUnavailable,
}

func mapResponseError(resp *http.Response) error {
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var e errorPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e); err != nil {
		return fmt.Errorf("%w: status %d", statusFallback(resp.StatusCode), resp.StatusCode)
	}

	sentinel, ok := codeErrors[e.ErrorCode]
	if !ok {
		sentinel = statusFallback(resp.StatusCode)
	}
	if e.ErrorMessage == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, e.ErrorMessage)
}

// statusFallback classifies answers without a recognizable envelope, e.g.
// from a proxy in front of the server.
func statusFallback(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 400 && status < 500:
		return ErrInvalidRequest
	default:
		return ErrUnavailable
	}
}

// IsTransient reports whether err may go away on retry without user action.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
