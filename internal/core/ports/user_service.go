package ports

import (
	"context"

	"github.com/sflow/user-access/internal/core/domain"
)

// Authenticator turns a raw Authorization header into a resolved actor.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*domain.AuthContext, error)
}

// UserService defines the user use-cases. Each operation takes the already
// authenticated actor and enforces access policy itself.
type UserService interface {
	GetUser(ctx context.Context, actor *domain.User, id int64) (*domain.User, error)
	ListByRole(ctx context.Context, actor *domain.User, role domain.Role) ([]*domain.User, error)
	DeleteUser(ctx context.Context, actor *domain.User, id int64) error
}
