package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

const bearerScheme = "Bearer"

// IdentityVerifier extracts the bearer token from an Authorization header and
// asks the identity provider for its subject. It makes exactly one attempt.
type IdentityVerifier struct {
	provider ports.IdentityProvider
}

func NewIdentityVerifier(provider ports.IdentityProvider) *IdentityVerifier {
	return &IdentityVerifier{provider: provider}
}

// Verify returns the external subject id behind authorization.
func (v *IdentityVerifier) Verify(ctx context.Context, authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", domain.ErrAuthMissing
	}

	scheme, token, ok := strings.Cut(authorization, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, bearerScheme) || token == "" {
		return "", domain.ErrAuthInvalid
	}

	subject, err := v.provider.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityProviderUnavailable) || errors.Is(err, domain.ErrAuthInvalid) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	if subject == "" {
		return "", domain.ErrAuthInvalid
	}
	return subject, nil
}
