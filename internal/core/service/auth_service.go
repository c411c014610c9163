package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

// AuthService authenticates requests by verifying the bearer credential and
// resolving the local actor behind it.
type AuthService struct {
	verifier *IdentityVerifier
	resolver *UserResolver
	log      zerolog.Logger
}

func NewAuthService(provider ports.IdentityProvider, repo ports.UserRepository, log zerolog.Logger) *AuthService {
	return &AuthService{
		verifier: NewIdentityVerifier(provider),
		resolver: NewUserResolver(repo),
		log:      log,
	}
}

// Authenticate runs verification then resolution. On failure the returned
// AuthContext still carries the accumulated failure reasons.
func (s *AuthService) Authenticate(ctx context.Context, authorization string) (*domain.AuthContext, error) {
	ac := &domain.AuthContext{Credential: authorization}

	subject, err := s.verifier.Verify(ctx, authorization)
	if err != nil {
		s.log.Debug().Err(err).Msg("credential rejected")
		return ac, domain.FailedAt(domain.StageAuthenticating, ac.Fail(err))
	}
	ac.SubjectID = subject

	actor, err := s.resolver.Resolve(ctx, subject)
	if err != nil {
		s.log.Debug().Err(err).Str("subject", subject).Msg("subject not resolved")
		return ac, domain.FailedAt(domain.StageAuthenticating, ac.Fail(err))
	}
	ac.Actor = actor

	return ac, nil
}
