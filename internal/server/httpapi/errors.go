package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/go-playground/validator/v10"
)

// Error codes returned in the error envelope. The set is closed; clients
// switch on it.
const (
	codeInvalidCredentials  = "INVALID_CREDENTIALS"
	codeUnauthenticated     = "UNAUTHENTICATED"
	codeSessionInvalid      = "SESSION_INVALID"
	codeVerificationInvalid = "VERIFICATION_INVALID"
	codeVerificationExpired = "VERIFICATION_EXPIRED"
	codeConflict            = "CONFLICT"
	codeValidationFailed    = "VALIDATION_FAILED"
	codeInvalidRequest      = "INVALID_REQUEST"
	codeRateLimited         = "RATE_LIMITED"
	codeNotFound            = "NOT_FOUND"
	codeInternal            = "INTERNAL_ERROR"
)

// unauthenticatedMessage is the only answer for a rejected access token,
// whatever the verifier found wrong with it.
const unauthenticatedMessage = "unauthenticated"

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorTable is matched in order with errors.Is.
var errorTable = []errorMapping{
	{common.ErrInvalidCredentials, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password"},
	{common.ErrTokenMalformed, http.StatusUnauthorized, codeUnauthenticated, unauthenticatedMessage},
	{common.ErrSignatureInvalid, http.StatusUnauthorized, codeUnauthenticated, unauthenticatedMessage},
	{common.ErrInvalidTokenClaim, http.StatusUnauthorized, codeUnauthenticated, unauthenticatedMessage},
	{common.ErrAccessExpired, http.StatusUnauthorized, codeUnauthenticated, unauthenticatedMessage},
	{common.ErrRefreshNotFound, http.StatusUnauthorized, codeSessionInvalid, "session is no longer valid"},
	{common.ErrRefreshExpired, http.StatusUnauthorized, codeSessionInvalid, "session is no longer valid"},
	{common.ErrRefreshRevoked, http.StatusUnauthorized, codeSessionInvalid, "session is no longer valid"},
	{common.ErrVerificationNotFound, http.StatusBadRequest, codeVerificationInvalid, "invalid or used link"},
	{common.ErrVerificationTypeMismatch, http.StatusBadRequest, codeVerificationInvalid, "invalid or used link"},
	{common.ErrVerificationAlreadyUsed, http.StatusBadRequest, codeVerificationInvalid, "invalid or used link"},
	{common.ErrVerificationExpired, http.StatusBadRequest, codeVerificationExpired, "link expired"},
	{common.ErrUsernameOrEmailTaken, http.StatusConflict, codeConflict, "username or email already registered"},
	{common.ErrValidation, http.StatusBadRequest, codeValidationFailed, "validation failed"},
	{common.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited, "too many attempts, try again later"},
	{common.ErrorNotFound, http.StatusNotFound, codeNotFound, "not found"},
}

func lookupError(err error) (int, string, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.message
		}
	}
	return http.StatusInternalServerError, codeInternal, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", common.BearerScheme)
	}
	writeJSON(w, status, errorResponse{ErrorCode: code, ErrorMessage: message})
}

// writeServiceError maps err onto the envelope. Unmapped errors are logged
// and answered with a generic 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := lookupError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", routeTemplate(r), "error", err)
	}
	writeError(w, status, code, message)
}

// validationMessage flattens validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
