package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/sflow/user-access/internal/api/metrics"
	"github.com/sflow/user-access/internal/core/domain"
)

// RequireRole enforces the role-class rule for action before the handler runs,
// so a rejected actor never reaches target parsing or lookup.
func RequireRole(action domain.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := Actor(c)
			if actor == nil {
				return domain.FailedAt(domain.StageAuthenticating, domain.ErrAuthMissing)
			}

			if err := domain.AuthorizeRole(actor.Role, action).Err(); err != nil {
				reason := "insufficient_role"
				if !errors.Is(err, domain.ErrInsufficientRole) {
					reason = "other"
				}
				metrics.AccessDecisionsTotal.WithLabelValues(string(action), "deny", reason).Inc()
				return domain.FailedAt(domain.StageAuthorizing, err)
			}
			return next(c)
		}
	}
}
