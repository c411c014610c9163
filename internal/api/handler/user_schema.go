package handler

import (
	"time"

	"github.com/sflow/user-access/internal/core/domain"
)

// --- Request / Response types ---

type userIDParams struct {
	ID int64 `param:"id" validate:"gt=0"`
}

type roleParams struct {
	Role string `param:"role" validate:"required,role"`
}

type userResponse struct {
	ID        int64     `json:"id" example:"42"`
	Email     string    `json:"email" example:"user@example.com"`
	Username  string    `json:"username" example:"jdoe"`
	Role      string    `json:"role" example:"USER" enums:"ADMIN,MODERATOR,USER"`
	CreatedAt time.Time `json:"createdAt" example:"2024-01-02T15:04:05Z"`
}

// errorEnvelope documents the body the central error handler renders.
type errorEnvelope struct {
	Status    int    `json:"status" example:"404"`
	Error     string `json:"error" example:"Not Found"`
	Message   string `json:"message" example:"User not found"`
	Path      string `json:"path" example:"/api/v1/users/42"`
	Timestamp string `json:"timestamp" example:"2024-01-02T15:04:05Z"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role.String(),
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func toUserResponses(users []*domain.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}
