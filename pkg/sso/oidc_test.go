package sso

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

const (
	testClientID = "stockroom-test"
	testCode     = "code-abc"
	testToken    = "at-123"
)

// fakeProvider is a minimal OpenID Connect provider: discovery, token and userinfo
type fakeProvider struct {
	server *httptest.Server

	discoveryHits atomic.Int32
	tokenHits     atomic.Int32
	failDiscovery atomic.Bool

	discoveryDelay time.Duration

	mu         sync.Mutex
	challenge  string
	idToken    string
	userStatus int
	userClaims map[string]interface{}
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{
		userStatus: http.StatusOK,
		userClaims: map[string]interface{}{
			"sub":         "sub-ada",
			"email":       "ada@example.com",
			"given_name":  "Ada",
			"family_name": "Lovelace",
			"picture":     "https://img.example/ada.png",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"keys": []interface{}{}})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeProvider) discovery(w http.ResponseWriter, r *http.Request) {
	f.discoveryHits.Add(1)
	f.mu.Lock()
	delay := f.discoveryDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if f.failDiscovery.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	issuer := "http://" + r.Host
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"userinfo_endpoint":                     issuer + "/userinfo",
		"jwks_uri":                              issuer + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	f.tokenHits.Add(1)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	challenge, idToken := f.challenge, f.idToken
	f.mu.Unlock()

	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if r.PostForm.Get("grant_type") != "authorization_code" ||
		r.PostForm.Get("code") != testCode ||
		base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	body := map[string]interface{}{
		"access_token": testToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if idToken != "" {
		body["id_token"] = idToken
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *fakeProvider) userinfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	status, claims := f.userStatus, f.userClaims
	f.mu.Unlock()
	if status != http.StatusOK {
		http.Error(w, "userinfo unavailable", status)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// expectChallenge records the challenge the provider will check verifiers against
func (f *fakeProvider) expectChallenge(t *testing.T, authURL string) {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	f.mu.Lock()
	f.challenge = u.Query().Get("code_challenge")
	f.mu.Unlock()
}

func newTestClient(t *testing.T, issuer string, metrics *observability.Metrics) *OIDCClient {
	t.Helper()
	c, err := NewOIDCClient(OIDCConfig{
		IssuerURL:    issuer,
		ClientID:     testClientID,
		ClientSecret: "s3cret",
		RedirectURL:  "https://stockroom.example/api/auth/callback",
		HTTPTimeout:  2 * time.Second,
	}, nil, metrics)
	require.NoError(t, err)
	return c
}

func TestNewOIDCClient_RequiresConfig(t *testing.T) {
	_, err := NewOIDCClient(OIDCConfig{ClientID: testClientID}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrConfiguration)
	assert.Contains(t, err.Error(), "issuer url")
	assert.Contains(t, err.Error(), "redirect url")
}

func TestOIDCClient_BeginLogin(t *testing.T) {
	f := newFakeProvider(t)
	c := newTestClient(t, f.server.URL, nil)

	authURL, pending, err := c.BeginLogin(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, f.server.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://stockroom.example/api/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, pending.State, q.Get("state"))

	sum := sha256.Sum256([]byte(pending.CodeVerifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))
	assert.GreaterOrEqual(t, len(pending.CodeVerifier), 43)
	assert.NotContains(t, authURL, pending.CodeVerifier)
}

func TestOIDCClient_BeginLoginIsFreshEachTime(t *testing.T) {
	f := newFakeProvider(t)
	c := newTestClient(t, f.server.URL, nil)

	seenVerifiers := map[string]bool{}
	seenStates := map[string]bool{}
	for i := 0; i < 20; i++ {
		_, pending, err := c.BeginLogin(context.Background())
		require.NoError(t, err)
		assert.False(t, seenVerifiers[pending.CodeVerifier])
		assert.False(t, seenStates[pending.State])
		seenVerifiers[pending.CodeVerifier] = true
		seenStates[pending.State] = true
	}
}

func TestOIDCClient_DiscoveryIsSingleFlight(t *testing.T) {
	f := newFakeProvider(t)
	f.mu.Lock()
	f.discoveryDelay = 50 * time.Millisecond
	f.mu.Unlock()
	metrics := observability.NewTestMetrics()
	c := newTestClient(t, f.server.URL, metrics)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.BeginLogin(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.discoveryHits.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OIDCDiscoveryTotal.WithLabelValues(observability.OutcomeSuccess)))
}

func TestOIDCClient_DiscoveryFailureIsNotCached(t *testing.T) {
	f := newFakeProvider(t)
	f.failDiscovery.Store(true)
	metrics := observability.NewTestMetrics()
	c := newTestClient(t, f.server.URL, metrics)

	_, _, err := c.BeginLogin(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	f.failDiscovery.Store(false)
	_, _, err = c.BeginLogin(context.Background())
	require.NoError(t, err)

	_, _, err = c.BeginLogin(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.discoveryHits.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OIDCDiscoveryTotal.WithLabelValues(observability.OutcomeFailure)))
}

func TestOIDCClient_UnreachableIssuer(t *testing.T) {
	f := newFakeProvider(t)
	issuer := f.server.URL
	f.server.Close()

	c := newTestClient(t, issuer, nil)
	_, _, err := c.BeginLogin(context.Background())
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestOIDCClient_DiscoverySurvivesCallerCancellation(t *testing.T) {
	f := newFakeProvider(t)
	c := newTestClient(t, f.server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.BeginLogin(ctx)
	assert.NoError(t, err)
}

func TestOIDCClient_CompleteLogin(t *testing.T) {
	f := newFakeProvider(t)
	c := newTestClient(t, f.server.URL, nil)

	authURL, pending, err := c.BeginLogin(context.Background())
	require.NoError(t, err)
	f.expectChallenge(t, authURL)

	profile, err := c.CompleteLogin(context.Background(), testCode, pending.State, pending)
	require.NoError(t, err)
	assert.Equal(t, auth.Profile{
		Subject:         "sub-ada",
		Email:           "ada@example.com",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		ProfileImageURL: "https://img.example/ada.png",
	}, profile)
}

func TestOIDCClient_CompleteLoginFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fakeProvider)
		code      string
		state     func(real string) string
		verifier  func(real string) string
		noToken   bool
		wantError error
	}{
		{
			name:      "state mismatch",
			state:     func(string) string { return "forged" },
			noToken:   true,
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name:      "empty state",
			state:     func(string) string { return "" },
			noToken:   true,
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name:      "missing code",
			code:      "-",
			noToken:   true,
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name:      "verifier does not match challenge",
			verifier:  func(string) string { return strings.Repeat("x", 43) },
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name:      "wrong code",
			code:      "code-other",
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name: "userinfo unavailable",
			setup: func(f *fakeProvider) {
				f.userStatus = http.StatusBadGateway
			},
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name: "userinfo without subject",
			setup: func(f *fakeProvider) {
				f.userClaims = map[string]interface{}{"email": "ada@example.com"}
			},
			wantError: auth.ErrAuthenticationFailed,
		},
		{
			name: "malformed id token",
			setup: func(f *fakeProvider) {
				f.idToken = "not-a-jwt"
			},
			wantError: auth.ErrAuthenticationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeProvider(t)
			if tt.setup != nil {
				f.mu.Lock()
				tt.setup(f)
				f.mu.Unlock()
			}
			c := newTestClient(t, f.server.URL, nil)

			authURL, pending, err := c.BeginLogin(context.Background())
			require.NoError(t, err)
			f.expectChallenge(t, authURL)

			code := testCode
			switch tt.code {
			case "":
			case "-":
				code = ""
			default:
				code = tt.code
			}
			state := pending.State
			if tt.state != nil {
				state = tt.state(state)
			}
			if tt.verifier != nil {
				pending.CodeVerifier = tt.verifier(pending.CodeVerifier)
			}

			_, err = c.CompleteLogin(context.Background(), code, state, pending)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantError)
			assert.Equal(t, http.StatusInternalServerError, auth.HTTPStatus(err))
			if tt.noToken {
				assert.Equal(t, int32(0), f.tokenHits.Load())
			}
		})
	}
}
