// Package jwtauth verifies HS256 bearer tokens minted by an upstream issuer
// that shares a signing secret with this service.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Revocations tracks subjects whose upstream account was deleted.
type Revocations interface {
	Revoke(ctx context.Context, subjectID string) error
	IsRevoked(ctx context.Context, subjectID string) (bool, error)
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Provider verifies tokens locally. With no upstream account API to call,
// deleting a user revokes its subject so outstanding tokens stop working.
type Provider struct {
	secret      []byte
	parser      *jwt.Parser
	revocations Revocations
}

// New builds a Provider. revocations may be nil, in which case DeleteUser is
// a no-op.
func New(cfg Config, revocations Revocations) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwtauth: secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &Provider{
		secret:      []byte(cfg.Secret),
		parser:      jwt.NewParser(opts...),
		revocations: revocations,
	}, nil
}

// VerifyToken validates signature and registered claims and returns the sub
// claim.
func (p *Provider) VerifyToken(ctx context.Context, token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	tkn, err := p.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil || !tkn.Valid {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrAuthInvalid)
	}

	if p.revocations != nil {
		revoked, err := p.revocations.IsRevoked(ctx, claims.Subject)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrIdentityProviderUnavailable, err)
		}
		if revoked {
			return "", fmt.Errorf("%w: subject revoked", domain.ErrAuthInvalid)
		}
	}
	return claims.Subject, nil
}

// DeleteUser revokes subjectID.
func (p *Provider) DeleteUser(ctx context.Context, subjectID string) error {
	if p.revocations == nil {
		return nil
	}
	if err := p.revocations.Revoke(ctx, subjectID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIdentityProviderUnavailable, err)
	}
	return nil
}
