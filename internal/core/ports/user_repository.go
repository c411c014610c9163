package ports

import (
	"context"

	"github.com/sflow/user-access/internal/core/domain"
)

// UserRepository defines the persistence contract for local user records.
// Lookups of an absent record return domain.ErrUserNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	// FindByRole returns matching users in creation order. No match yields an
	// empty, non-nil slice.
	FindByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	DeleteByID(ctx context.Context, id int64) error
	FindByExternalSubjectID(ctx context.Context, subjectID string) (*domain.User, error)
}
