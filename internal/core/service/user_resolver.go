package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

// UserResolver maps a verified subject id to the local account acting on the
// request.
type UserResolver struct {
	repo ports.UserRepository
}

func NewUserResolver(repo ports.UserRepository) *UserResolver {
	return &UserResolver{repo: repo}
}

// Resolve returns the local user for subjectID. A subject without a local
// account is an authentication failure, not a missing resource.
func (r *UserResolver) Resolve(ctx context.Context, subjectID string) (*domain.User, error) {
	user, err := r.repo.FindByExternalSubjectID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnknownSubject
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}
	return user, nil
}
