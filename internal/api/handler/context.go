package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/sflow/user-access/internal/api/middleware"
	"github.com/sflow/user-access/internal/core/domain"
)

// ctxActor returns the actor injected by the Authenticate middleware. A
// missing actor means the route was registered without it; treat the request
// as unauthenticated rather than panicking.
func ctxActor(c echo.Context) (*domain.User, error) {
	actor := middleware.Actor(c)
	if actor == nil {
		return nil, domain.FailedAt(domain.StageAuthenticating, domain.ErrAuthMissing)
	}
	return actor, nil
}
