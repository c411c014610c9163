package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sflow/user-access/internal/api/metrics"
	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

// UserHandler handles HTTP requests for user operations. Errors are returned
// to the central error handler, which renders the envelope.
type UserHandler struct {
	service ports.UserService
	binder  echo.DefaultBinder
}

func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Get godoc
//
// @Summary      Get a user by id
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User id"
// @Success      200  {object}  userResponse
// @Failure      400  {object}  errorEnvelope
// @Failure      401  {object}  errorEnvelope
// @Failure      404  {object}  errorEnvelope
// @Failure      500  {object}  errorEnvelope
// @Router       /v1/users/{id} [get]
func (h *UserHandler) Get(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	id, err := h.userID(c)
	if err != nil {
		return err
	}

	user, err := h.service.GetUser(c.Request().Context(), actor, id)
	recordDecision(domain.ActionViewUser, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// ListByRole godoc
//
// @Summary      List users holding a role
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        role  path      string  true  "Role"  Enums(ADMIN, MODERATOR, USER)
// @Success      200   {array}   userResponse
// @Failure      400   {object}  errorEnvelope
// @Failure      401   {object}  errorEnvelope
// @Failure      500   {object}  errorEnvelope
// @Router       /v1/users/role/{role} [get]
func (h *UserHandler) ListByRole(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	var params roleParams
	if err := h.binder.BindPathParams(c, &params); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRole, err)
	}
	if err := c.Validate(&params); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRole, err)
	}
	role, err := domain.ParseRole(params.Role)
	if err != nil {
		return err
	}

	users, err := h.service.ListByRole(c.Request().Context(), actor, role)
	recordDecision(domain.ActionViewByRole, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponses(users))
}

// Delete godoc
//
// @Summary      Delete a user
// @Description  Removes the local record, then the account at the identity provider. ADMIN users cannot be deleted.
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  int  true  "User id"
// @Success      204
// @Failure      400  {object}  errorEnvelope
// @Failure      401  {object}  errorEnvelope
// @Failure      403  {object}  errorEnvelope
// @Failure      404  {object}  errorEnvelope
// @Failure      500  {object}  errorEnvelope
// @Router       /v1/users/{id} [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	id, err := h.userID(c)
	if err != nil {
		return err
	}

	err = h.service.DeleteUser(c.Request().Context(), actor, id)
	recordDecision(domain.ActionDeleteUser, err)
	if err != nil {
		return err
	}

	metrics.UserDeletionsTotal.Inc()
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) userID(c echo.Context) (int64, error) {
	var params userIDParams
	if err := h.binder.BindPathParams(c, &params); err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidUserID, c.Param("id"))
	}
	if err := c.Validate(&params); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidUserID, err)
	}
	return params.ID, nil
}

// recordDecision counts the policy outcome of a completed service call.
// Failures unrelated to policy (not found, store errors) are not decisions.
func recordDecision(action domain.Action, err error) {
	switch {
	case err == nil:
		metrics.AccessDecisionsTotal.WithLabelValues(string(action), "allow", "").Inc()
	case errors.Is(err, domain.ErrInsufficientRole):
		metrics.AccessDecisionsTotal.WithLabelValues(string(action), "deny", "insufficient_role").Inc()
	case errors.Is(err, domain.ErrProtectedTarget):
		metrics.AccessDecisionsTotal.WithLabelValues(string(action), "deny", "protected_target").Inc()
	}
}
