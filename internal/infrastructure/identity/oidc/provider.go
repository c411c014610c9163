// Package oidc verifies bearer tokens issued by an OpenID Connect provider and
// removes accounts through a Keycloak-compatible admin API.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

type Config struct {
	// IssuerURL is the realm issuer, e.g. http://localhost:8081/realms/app.
	IssuerURL string
	// ClientID is the expected token audience.
	ClientID string
	// AdminURL is the server base URL hosting /admin/realms/{realm}.
	AdminURL          string
	Realm             string
	AdminClientID     string
	AdminClientSecret string
}

// Provider checks tokens against the issuer's published keys. It makes no
// user or session decisions.
type Provider struct {
	verifier *oidc.IDTokenVerifier
	admin    *http.Client
	adminURL string
	realm    string
}

// New initialises the provider using discovery. The admin client
// authenticates with the client credentials grant against the issuer's token
// endpoint.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc config missing issuer or client id")
	}
	if cfg.AdminURL == "" || cfg.Realm == "" {
		return nil, errors.New("oidc config missing admin url or realm")
	}

	// The provider keeps ctx for later key fetches.
	providerCtx := context.WithoutCancel(ctx)

	provider, err := oidc.NewProvider(providerCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	cc := clientcredentials.Config{
		ClientID:     cfg.AdminClientID,
		ClientSecret: cfg.AdminClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
	}

	return NewWithVerifier(verifier, cc.Client(providerCtx), cfg.AdminURL, cfg.Realm), nil
}

// NewWithVerifier assembles a Provider from an existing verifier and an
// already authenticated admin client.
func NewWithVerifier(verifier *oidc.IDTokenVerifier, admin *http.Client, adminURL, realm string) *Provider {
	if admin == nil {
		admin = http.DefaultClient
	}
	return &Provider{
		verifier: verifier,
		admin:    admin,
		adminURL: strings.TrimRight(adminURL, "/"),
		realm:    realm,
	}
}

// VerifyToken validates signature, issuer, audience and expiry and returns the
// sub claim.
func (p *Provider) VerifyToken(ctx context.Context, token string) (string, error) {
	idToken, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthInvalid, err)
	}
	if idToken.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrAuthInvalid)
	}
	return idToken.Subject, nil
}

// DeleteUser removes the upstream account. An account that is already gone
// counts as deleted.
func (p *Provider) DeleteUser(ctx context.Context, subjectID string) error {
	endpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s",
		p.adminURL, url.PathEscape(p.realm), url.PathEscape(subjectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build admin request: %w", err)
	}

	resp, err := p.admin.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIdentityProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: admin api returned %d", domain.ErrIdentityProviderUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("admin delete user: unexpected status %d", resp.StatusCode)
	}
}
