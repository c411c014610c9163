package ports

import "context"

// IdentityProvider is the external system that issues bearer credentials and
// owns the upstream account for every local user.
type IdentityProvider interface {
	// VerifyToken validates a raw bearer token and returns its stable subject id.
	// A rejected token yields domain.ErrAuthInvalid; an unreachable provider
	// yields domain.ErrIdentityProviderUnavailable.
	VerifyToken(ctx context.Context, token string) (string, error)
	// DeleteUser removes the upstream account. Deleting an account that no
	// longer exists succeeds.
	DeleteUser(ctx context.Context, subjectID string) error
}

// DeletionTask is an upstream account removal that has to be retried.
type DeletionTask struct {
	UserID    int64
	SubjectID string
}

// DeletionQueue accepts upstream removals that failed on the request path.
type DeletionQueue interface {
	Enqueue(task DeletionTask) error
}
