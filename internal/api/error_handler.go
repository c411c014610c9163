package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sflow/user-access/internal/core/domain"
)

// Client-facing messages. Authentication failures share one message so the
// response never reveals which check failed.
const (
	msgAuthRequired        = "Authentication required"
	msgAccessDenied        = "Access denied"
	msgProtectedTarget     = "Cannot delete admin user"
	msgUserNotFound        = "User not found"
	msgInvalidRole         = "Invalid role: must be one of ADMIN, MODERATOR, USER"
	msgInvalidUserID       = "Invalid user id"
	msgUserExists          = "User already exists"
	msgProviderUnavailable = "Identity provider unavailable"
	msgInternal            = "Internal server error"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders the envelope {status, error, message, path, timestamp}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return newHTTPErrorHandler(log, time.Now)
}

func newHTTPErrorHandler(log zerolog.Logger, now func() time.Time) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err)
		logError(log, err, code, c)

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{
			Status:    code,
			Error:     http.StatusText(code),
			Message:   msg,
			Path:      c.Request().URL.Path,
			Timestamp: now().UTC().Format(time.RFC3339),
		})
	}
}

func resolveError(err error) (int, string) {
	// Known domain errors → deterministic HTTP codes.
	switch {
	case domain.IsAuthFailure(err):
		return http.StatusUnauthorized, msgAuthRequired
	case errors.Is(err, domain.ErrIdentityProviderUnavailable):
		return http.StatusServiceUnavailable, msgProviderUnavailable
	case errors.Is(err, domain.ErrInsufficientRole):
		return http.StatusForbidden, msgAccessDenied
	case errors.Is(err, domain.ErrProtectedTarget):
		return http.StatusForbidden, msgProtectedTarget
	case errors.Is(err, domain.ErrUserNotFound):
		var nf *domain.UserNotFoundError
		if errors.As(err, &nf) {
			return http.StatusNotFound, nf.Error()
		}
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest, msgInvalidRole
	case errors.Is(err, domain.ErrInvalidUserID):
		return http.StatusBadRequest, msgInvalidUserID
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, msgUserExists
	}

	// Echo's own errors (router 404/405, bind failures, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, msgInternal
		}
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	return http.StatusInternalServerError, msgInternal
}

func logError(log zerolog.Logger, err error, code int, c echo.Context) {
	evt := log.Debug()
	if code >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).
		Int("status", code).
		Str("stage", string(domain.StageOf(err))).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("request failed")
}
