// Package httpapi exposes the account and session operations over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/dmitrijs2005/wadai/internal/server/services"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

// Accounts is the service layer the handlers call.
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, *services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.User, *services.TokenPair, error)
	Refresh(ctx context.Context, refreshSecret string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshSecret string) error
	LogoutAll(ctx context.Context, userID string) error
	VerifyEmail(ctx context.Context, secret string) (bool, error)
	ResendVerification(ctx context.Context, userID string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, secret, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	ChangeEmail(ctx context.Context, userID, newEmail string) (*models.User, error)
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
}

// Verifier validates access tokens.
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

type HTTPServer struct {
	address  string
	accounts Accounts
	verifier Verifier
	validate *validator.Validate
	logger   logging.Logger
}

func NewHTTPServer(address string, l logging.Logger, accounts Accounts, verifier Verifier) *HTTPServer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &HTTPServer{
		address:  address,
		accounts: accounts,
		verifier: verifier,
		validate: v,
		logger:   l.With("module", "http_server"),
	}
}

// Handler builds the router with all middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
	})

	r.Use(s.recoverer)
	r.Use(securityHeaders)
	r.Use(s.accessLog)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	a.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	a.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	a.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	a.HandleFunc("/verify-email/{secret}", s.handleVerifyEmail).Methods(http.MethodGet)
	a.HandleFunc("/request-password-reset", s.handleRequestPasswordReset).Methods(http.MethodPost)
	a.HandleFunc("/reset-password/{secret}", s.handleResetPassword).Methods(http.MethodPost)

	a.Handle("/change-password", s.requireAccessToken(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPost)
	a.Handle("/resend-verification", s.requireAccessToken(http.HandlerFunc(s.handleResendVerification))).Methods(http.MethodPost)
	a.Handle("/logout-all", s.requireAccessToken(http.HandlerFunc(s.handleLogoutAll))).Methods(http.MethodPost)

	u := r.PathPrefix("/users").Subrouter()
	u.Use(s.requireAccessToken)
	u.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	u.HandleFunc("/me/email", s.handleChangeEmail).Methods(http.MethodPut)

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
