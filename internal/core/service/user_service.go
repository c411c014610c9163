package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sflow/user-access/internal/api/metrics"
	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

const defaultExternalTimeout = 10 * time.Second

// UserService orchestrates the user use-cases: role-class check, target
// resolution, business rule and execution, in that order.
type UserService struct {
	repo            ports.UserRepository
	provider        ports.IdentityProvider
	queue           ports.DeletionQueue
	externalTimeout time.Duration
	log             zerolog.Logger
}

// NewUserService builds a UserService. queue may be nil, in which case failed
// upstream removals are only logged.
func NewUserService(
	repo ports.UserRepository,
	provider ports.IdentityProvider,
	queue ports.DeletionQueue,
	externalTimeout time.Duration,
	log zerolog.Logger,
) *UserService {
	if externalTimeout <= 0 {
		externalTimeout = defaultExternalTimeout
	}
	return &UserService{
		repo:            repo,
		provider:        provider,
		queue:           queue,
		externalTimeout: externalTimeout,
		log:             log,
	}
}

// GetUser returns the user with the given id.
func (s *UserService) GetUser(ctx context.Context, actor *domain.User, id int64) (*domain.User, error) {
	if err := domain.Authorize(actor, domain.ActionViewUser, nil).Err(); err != nil {
		return nil, domain.FailedAt(domain.StageAuthorizing, err)
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, domain.FailedAt(domain.StageResolvingTarget, err)
	}
	return user, nil
}

// ListByRole returns every user holding role, in creation order.
func (s *UserService) ListByRole(ctx context.Context, actor *domain.User, role domain.Role) ([]*domain.User, error) {
	if err := domain.Authorize(actor, domain.ActionViewByRole, nil).Err(); err != nil {
		return nil, domain.FailedAt(domain.StageAuthorizing, err)
	}
	if !role.Valid() {
		return nil, domain.FailedAt(domain.StageResolvingTarget, domain.ErrInvalidRole)
	}

	users, err := s.repo.FindByRole(ctx, role)
	if err != nil {
		return nil, domain.FailedAt(domain.StageResolvingTarget, err)
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

// DeleteUser removes the local record and then the upstream account.
//
// The local store is the authority: once the local delete succeeds the call
// succeeds. A failed upstream removal is logged and handed to the deletion
// queue for retry.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, id int64) error {
	// Role class first, so non-admins never learn whether id exists.
	if err := domain.Authorize(actor, domain.ActionDeleteUser, nil).Err(); err != nil {
		return domain.FailedAt(domain.StageAuthorizing, err)
	}

	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.FailedAt(domain.StageResolvingTarget, &domain.UserNotFoundError{ID: id})
		}
		return domain.FailedAt(domain.StageResolvingTarget, fmt.Errorf("find target: %w", err))
	}

	if err := domain.Authorize(actor, domain.ActionDeleteUser, target).Err(); err != nil {
		return domain.FailedAt(domain.StageBusinessRule, err)
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.FailedAt(domain.StageExecuting, &domain.UserNotFoundError{ID: id})
		}
		return domain.FailedAt(domain.StageExecuting, fmt.Errorf("delete local user: %w", err))
	}

	s.log.Info().
		Int64("user_id", id).
		Int64("actor_id", actor.ID).
		Str("role", target.Role.String()).
		Msg("user deleted")

	s.deleteUpstream(ctx, target)
	return nil
}

// deleteUpstream runs detached from request cancellation so a disconnecting
// caller cannot abort it half way.
func (s *UserService) deleteUpstream(ctx context.Context, target *domain.User) {
	if target.ExternalSubjectID == "" {
		s.log.Warn().Int64("user_id", target.ID).Msg("user has no external subject, skipping upstream delete")
		return
	}

	extCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.externalTimeout)
	defer cancel()

	err := s.provider.DeleteUser(extCtx, target.ExternalSubjectID)
	if err == nil {
		return
	}
	metrics.ExternalDeletionFailuresTotal.Inc()

	s.log.Warn().
		Err(err).
		Int64("user_id", target.ID).
		Str("subject", target.ExternalSubjectID).
		Msg("upstream delete failed, local record already removed")

	if s.queue == nil {
		return
	}
	task := ports.DeletionTask{UserID: target.ID, SubjectID: target.ExternalSubjectID}
	if qerr := s.queue.Enqueue(task); qerr != nil {
		s.log.Error().
			Err(qerr).
			Str("subject", target.ExternalSubjectID).
			Msg("could not schedule upstream delete retry")
	}
}
