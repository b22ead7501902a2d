package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/server/services"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("malformed request body")

// decode reads a JSON body into dst and validates it. Malformed JSON yields
// errBadBody, failed validation common.ErrValidation.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", common.ErrValidation, validationMessage(err))
	}
	return nil
}

// decodeOrReject writes the 400 itself and reports whether the handler may
// continue.
func (s *HTTPServer) decodeOrReject(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := s.decode(w, r, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	default:
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	}
	return false
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	user, pair, err := s.accounts.Register(r.Context(), services.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		User:          newUserResponse(user),
		tokenResponse: newTokenResponse(pair, time.Now()),
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	user, pair, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:          newUserResponse(user),
		tokenResponse: newTokenResponse(pair, time.Now()),
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	pair, err := s.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{tokenResponse: newTokenResponse(pair, time.Now())})
}

// handleLogout always answers 200; the client clears its state regardless.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	if err := s.accounts.Logout(r.Context(), req.RefreshToken); err != nil {
		s.logger.Warn(r.Context(), "logout revoke failed", "error", err)
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	secret := mux.Vars(r)["secret"]

	already, err := s.accounts.VerifyEmail(r.Context(), secret)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	msg := "email verified"
	if already {
		msg = "email already verified"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *HTTPServer) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	if err := s.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "if the account exists, a reset link has been sent"})
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	if err := s.accounts.ResetPassword(r.Context(), mux.Vars(r)["secret"], req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req changePasswordRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	if err := s.accounts.ChangePassword(r.Context(), claims.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

func (s *HTTPServer) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req changeEmailRequest
	if !s.decodeOrReject(w, r, &req) {
		return
	}

	user, err := s.accounts.ChangeEmail(r.Context(), claims.UserID(), req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *HTTPServer) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	err := s.accounts.ResendVerification(r.Context(), claims.UserID())
	switch {
	case errors.Is(err, common.ErrEmailAlreadyVerified):
		writeJSON(w, http.StatusOK, messageResponse{Message: "email already verified"})
	case err != nil:
		s.writeServiceError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: "verification email sent"})
	}
}

func (s *HTTPServer) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if err := s.accounts.LogoutAll(r.Context(), claims.UserID()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "all sessions revoked"})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	user, err := s.accounts.CurrentUser(r.Context(), claims.UserID())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "unknown user")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}
