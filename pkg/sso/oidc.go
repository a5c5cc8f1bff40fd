package sso

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/session"
)

// discovered is everything derived from the provider metadata. It is built
// once and never modified.
type discovered struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// OIDCClient implements IdentityProvider against one OpenID Connect issuer
type OIDCClient struct {
	config     OIDCConfig
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics

	group      singleflight.Group
	discovered atomic.Pointer[discovered]
}

// NewOIDCClient validates config and returns a client. Discovery is deferred
// to the first login. metrics may be nil.
func NewOIDCClient(config OIDCConfig, logger *observability.Logger, metrics *observability.Metrics) (*OIDCClient, error) {
	var missing []string
	if config.IssuerURL == "" {
		missing = append(missing, "issuer url")
	}
	if config.ClientID == "" {
		missing = append(missing, "client id")
	}
	if config.RedirectURL == "" {
		missing = append(missing, "redirect url")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("OIDC %s required: %w", strings.Join(missing, ", "), auth.ErrConfiguration)
	}
	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultHTTPTimeout
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return &OIDCClient{
		config:     config,
		httpClient: observability.InstrumentClient(config.HTTPTimeout),
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// discover returns the cached provider metadata, fetching it on first use.
// Concurrent callers share a single fetch; failures are not cached.
func (c *OIDCClient) discover(ctx context.Context) (*discovered, error) {
	if d := c.discovered.Load(); d != nil {
		return d, nil
	}

	v, err, _ := c.group.Do("discovery", func() (interface{}, error) {
		if d := c.discovered.Load(); d != nil {
			return d, nil
		}

		// the fetch is shared, so one caller going away must not cancel it
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.HTTPTimeout)
		defer cancel()

		provider, err := oidc.NewProvider(oidc.ClientContext(dctx, c.httpClient), c.config.IssuerURL)
		if err != nil {
			c.countDiscovery(observability.OutcomeFailure)
			c.logger.WithError(err).WithField("issuer", c.config.IssuerURL).Error("OIDC discovery failed")
			return nil, fmt.Errorf("failed to discover OIDC provider: %v: %w", err, auth.ErrConfiguration)
		}

		d := &discovered{
			provider: provider,
			verifier: provider.Verifier(&oidc.Config{ClientID: c.config.ClientID}),
			oauth2Config: &oauth2.Config{
				ClientID:     c.config.ClientID,
				ClientSecret: c.config.ClientSecret,
				Endpoint:     provider.Endpoint(),
				RedirectURL:  c.config.RedirectURL,
				Scopes:       c.config.Scopes,
			},
		}
		c.discovered.Store(d)
		c.countDiscovery(observability.OutcomeSuccess)
		c.logger.WithField("issuer", c.config.IssuerURL).Info("OIDC provider discovered")
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*discovered), nil
}

// BeginLogin builds a fresh PKCE verifier and state, and the authorization URL
// carrying the S256 challenge
func (c *OIDCClient) BeginLogin(ctx context.Context) (string, session.PendingLogin, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return "", session.PendingLogin{}, err
	}

	state, err := newState()
	if err != nil {
		return "", session.PendingLogin{}, err
	}
	verifier := oauth2.GenerateVerifier()

	authURL := d.oauth2Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return authURL, session.PendingLogin{CodeVerifier: verifier, State: state}, nil
}

// CompleteLogin finishes the flow started by BeginLogin. Every failure after
// discovery is auth.ErrAuthenticationFailed.
func (c *OIDCClient) CompleteLogin(ctx context.Context, code, state string, pending session.PendingLogin) (auth.Profile, error) {
	if pending.State == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pending.State)) != 1 {
		return auth.Profile{}, fmt.Errorf("state mismatch: %w", auth.ErrAuthenticationFailed)
	}
	if code == "" {
		return auth.Profile{}, fmt.Errorf("missing authorization code: %w", auth.ErrAuthenticationFailed)
	}

	d, err := c.discover(ctx)
	if err != nil {
		return auth.Profile{}, err
	}

	token, err := d.oauth2Config.Exchange(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		code,
		oauth2.VerifierOption(pending.CodeVerifier),
	)
	if err != nil {
		return auth.Profile{}, fmt.Errorf("failed to exchange token: %v: %w", err, auth.ErrAuthenticationFailed)
	}

	octx := oidc.ClientContext(ctx, c.httpClient)

	var idSubject string
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := d.verifier.Verify(octx, rawIDToken)
		if err != nil {
			return auth.Profile{}, fmt.Errorf("failed to verify ID token: %v: %w", err, auth.ErrAuthenticationFailed)
		}
		idSubject = idToken.Subject
	}

	info, err := d.provider.UserInfo(octx, oauth2.StaticTokenSource(token))
	if err != nil {
		return auth.Profile{}, fmt.Errorf("failed to fetch user info: %v: %w", err, auth.ErrAuthenticationFailed)
	}

	var claims userClaims
	if err := info.Claims(&claims); err != nil {
		return auth.Profile{}, fmt.Errorf("failed to parse claims: %v: %w", err, auth.ErrAuthenticationFailed)
	}
	if info.Subject == "" {
		return auth.Profile{}, fmt.Errorf("missing subject in user info: %w", auth.ErrAuthenticationFailed)
	}
	if idSubject != "" && idSubject != info.Subject {
		return auth.Profile{}, fmt.Errorf("user info subject does not match ID token: %w", auth.ErrAuthenticationFailed)
	}

	email := info.Email
	if email == "" {
		email = claims.Email
	}
	return auth.Profile{
		Subject:         info.Subject,
		Email:           email,
		FirstName:       claims.GivenName,
		LastName:        claims.FamilyName,
		ProfileImageURL: claims.Picture,
	}, nil
}

func (c *OIDCClient) countDiscovery(outcome string) {
	if c.metrics != nil {
		c.metrics.OIDCDiscoveryTotal.WithLabelValues(outcome).Inc()
	}
}

// newState returns 32 random bytes, base64url encoded
func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
