package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/sflow/user-access/internal/api/metrics"
	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

// Context keys set by Authenticate.
const (
	ActorKey       = "actor"
	AuthContextKey = "auth_context"
)

// Authenticate verifies the bearer credential, resolves the local actor and
// injects both into the echo context. Failures are returned to the central
// error handler, which renders every authentication failure identically.
func Authenticate(auth ports.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)

			ac, err := auth.Authenticate(c.Request().Context(), header)
			if err != nil {
				metrics.AuthFailuresTotal.WithLabelValues(authFailureReason(err)).Inc()
				return err
			}

			c.Set(AuthContextKey, ac)
			c.Set(ActorKey, ac.Actor)

			return next(c)
		}
	}
}

// Actor returns the actor injected by Authenticate, or nil.
func Actor(c echo.Context) *domain.User {
	actor, _ := c.Get(ActorKey).(*domain.User)
	return actor
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthMissing):
		return "missing"
	case errors.Is(err, domain.ErrUnknownSubject):
		return "unknown_subject"
	case errors.Is(err, domain.ErrIdentityProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, domain.ErrAuthInvalid):
		return "invalid"
	default:
		return "error"
	}
}
