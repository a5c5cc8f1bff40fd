package sso

import (
	"context"
	"time"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/session"
)

// DefaultScopes are requested on every login
var DefaultScopes = []string{"openid", "profile", "email"}

// DefaultHTTPTimeout bounds each call to the identity provider
const DefaultHTTPTimeout = 10 * time.Second

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	// RedirectURL is the fixed callback registered with the provider
	RedirectURL string
	Scopes      []string
	HTTPTimeout time.Duration
}

// IdentityProvider is the login half of an OIDC client
type IdentityProvider interface {
	// BeginLogin returns the authorization URL and the pending login to store
	BeginLogin(ctx context.Context) (string, session.PendingLogin, error)
	// CompleteLogin checks state, redeems code and returns the user's claims
	CompleteLogin(ctx context.Context, code, state string, pending session.PendingLogin) (auth.Profile, error)
}

// userClaims are the standard claims read from the userinfo response
type userClaims struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}
