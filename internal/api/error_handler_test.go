package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sflow/user-access/internal/core/domain"
)

func TestHTTPErrorHandler_Envelope(t *testing.T) {
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"missing credential", domain.FailedAt(domain.StageAuthenticating, domain.ErrAuthMissing), http.StatusUnauthorized, "Authentication required"},
		{"invalid credential", fmt.Errorf("%w: bad signature", domain.ErrAuthInvalid), http.StatusUnauthorized, "Authentication required"},
		{"unknown subject", domain.ErrUnknownSubject, http.StatusUnauthorized, "Authentication required"},
		{"insufficient role", domain.FailedAt(domain.StageAuthorizing, domain.ErrInsufficientRole), http.StatusForbidden, "Access denied"},
		{"protected target", domain.ErrProtectedTarget, http.StatusForbidden, "Cannot delete admin user"},
		{"not found", domain.ErrUserNotFound, http.StatusNotFound, "User not found"},
		{"not found with id", domain.FailedAt(domain.StageResolvingTarget, &domain.UserNotFoundError{ID: 9}), http.StatusNotFound, "User not found with id: 9"},
		{"invalid role", domain.ErrInvalidRole, http.StatusBadRequest, "Invalid role: must be one of ADMIN, MODERATOR, USER"},
		{"invalid id", fmt.Errorf("%w: \"abc\"", domain.ErrInvalidUserID), http.StatusBadRequest, "Invalid user id"},
		{"provider down", domain.ErrIdentityProviderUnavailable, http.StatusServiceUnavailable, "Identity provider unavailable"},
		{"echo not found", echo.ErrNotFound, http.StatusNotFound, "Not Found"},
		{"echo internal", echo.NewHTTPError(http.StatusBadGateway, "upstream secret"), http.StatusBadGateway, "Internal server error"},
		{"unexpected", errors.New("pq: connection reset"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/9?x=1", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			newHTTPErrorHandler(zerolog.Nop(), func() time.Time { return fixed })(tt.err, c)

			require.Equal(t, tt.wantCode, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Status)
			assert.Equal(t, http.StatusText(tt.wantCode), body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
			assert.Equal(t, "/api/v1/users/9", body.Path)
			assert.Equal(t, "2024-05-06T07:08:09Z", body.Timestamp)
		})
	}
}

func TestHTTPErrorHandler_CommittedResponseUntouched(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = c.NoContent(http.StatusNoContent)

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("late"), c)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHTTPErrorHandler_Head(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodHead, "/api/v1/users/1", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(domain.ErrAuthMissing, c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
}
