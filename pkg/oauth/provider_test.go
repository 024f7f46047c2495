package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/schedstore"
	"github.com/rhuss/termin/pkg/tokens/memory"
)

func testConfig(upstream string) Config {
	return Config{
		ProviderName:  "TestIDP",
		AuthorizeURL:  upstream + "/authorize",
		TokenURL:      upstream + "/token",
		UserInfoURL:   upstream + "/userinfo",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		Scopes:        "openid profile email w_member_social",
		BaseURL:       "http://gateway.test",
		SessionSecret: "test-session-secret",
	}
}

// fakeUpstream serves the token and userinfo endpoints of an upstream
// identity provider.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			http.Error(w, "bad grant type", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "upstream-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer upstream-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sub":   "abc123",
			"email": "alice@example.com",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthorizeRedirect(t *testing.T) {
	provider, err := NewProvider(testConfig("http://upstream.test"), memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	mux := http.NewServeMux()
	provider.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing location: %v", err)
	}
	if !strings.HasPrefix(loc.String(), "http://upstream.test/authorize?") {
		t.Errorf("unexpected redirect target %q", loc)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "http://gateway.test/oauth/callback" {
		t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
	if err := provider.verifyState(q.Get("state")); err != nil {
		t.Errorf("state does not verify: %v", err)
	}
}

func TestCallbackExchangesCodeAndIssuesSession(t *testing.T) {
	upstream := fakeUpstream(t)
	store := memory.New()
	provider, err := NewProvider(testConfig(upstream.URL), store, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	mux := http.NewServeMux()
	provider.Mount(mux)

	state, err := provider.issueState()
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/oauth/callback?code=good-code&state="+url.QueryEscape(state), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("unexpected token type %q", resp.TokenType)
	}

	subject, err := provider.verifySession(resp.AccessToken)
	if err != nil {
		t.Fatalf("session does not verify: %v", err)
	}
	if subject != "alice@example.com" {
		t.Errorf("expected subject alice@example.com, got %q", subject)
	}

	cred, err := store.Get(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("credential not stored: %v", err)
	}
	if cred.AccessToken != "upstream-token" {
		t.Errorf("unexpected stored token %q", cred.AccessToken)
	}
}

func TestCallbackRejectsBadState(t *testing.T) {
	upstream := fakeUpstream(t)
	provider, err := NewProvider(testConfig(upstream.URL), memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	mux := http.NewServeMux()
	provider.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/oauth/callback?code=good-code&state=forged", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCallbackRejectsBadCode(t *testing.T) {
	upstream := fakeUpstream(t)
	provider, err := NewProvider(testConfig(upstream.URL), memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	state, err := provider.issueState()
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}
	mux := http.NewServeMux()
	provider.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/oauth/callback?code=wrong&state="+url.QueryEscape(state), nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	cfg := testConfig("http://upstream.test")
	cfg.SessionTTL = -1 * time.Minute
	provider, err := NewProvider(cfg, memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	token, err := provider.issueSession("alice@example.com")
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := provider.verifySession(token); err == nil {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestMiddlewareBindsCredentialAndCache(t *testing.T) {
	provider, err := NewProvider(testConfig("http://upstream.test"), memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := provider.tokens.Save(context.Background(), credential.Credential{
		AccessToken: "tok-alice", Subject: "alice@example.com",
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	session, err := provider.issueSession("alice@example.com")
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	cache := schedstore.NewDBCache()
	defer cache.Close()

	var seen credential.Credential
	var hadCache bool
	handler := provider.Middleware(cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = credential.Get(r.Context())
		_, _, hadCache = schedstore.CacheFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if seen.AccessToken != "tok-alice" {
		t.Errorf("expected credential bound to request, got %+v", seen)
	}
	if !hadCache {
		t.Error("expected storage cache bound to request context")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	provider, err := NewProvider(testConfig("http://upstream.test"), memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	cache := schedstore.NewDBCache()
	defer cache.Close()

	handler := provider.Middleware(cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsUnknownSubject(t *testing.T) {
	provider, err := NewProvider(testConfig("http://upstream.test"), memory.New(), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	session, err := provider.issueSession("nobody@example.com")
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	cache := schedstore.NewDBCache()
	defer cache.Close()

	handler := provider.Middleware(cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
