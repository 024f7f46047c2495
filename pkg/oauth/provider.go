package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/observability"
	"github.com/rhuss/termin/pkg/tokens"
)

// Provider proxies the OAuth authorization-code flow against an
// upstream identity provider and manages gateway sessions.
type Provider struct {
	config     Config
	tokens     tokens.Store
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProvider creates an OAuth proxy provider. The configuration must
// pass Validate.
func NewProvider(cfg Config, store tokens.Store, logger *slog.Logger) (*Provider, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		config:     cfg,
		tokens:     store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}, nil
}

// Mount registers the OAuth routes on the given mux.
func (p *Provider) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /oauth/authorize", p.handleAuthorize)
	mux.HandleFunc("GET /oauth/callback", p.handleCallback)
}

// handleAuthorize redirects the user agent to the upstream authorize
// endpoint with a signed state parameter.
func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	state, err := p.issueState()
	if err != nil {
		p.logger.Error("failed to issue state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURI()},
		"scope":         {p.config.Scopes},
		"state":         {state},
	}
	http.Redirect(w, r, p.config.AuthorizeURL+"?"+q.Encode(), http.StatusFound)
}

// handleCallback exchanges the authorization code for an upstream
// access token, resolves the subject via the userinfo endpoint, stores
// the upstream credential, and returns a gateway session token.
func (p *Provider) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		p.logger.Warn("upstream authorization denied",
			"provider", p.config.ProviderName, "error", errParam)
		http.Error(w, "authorization denied", http.StatusForbidden)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	if err := p.verifyState(r.URL.Query().Get("state")); err != nil {
		p.logger.Warn("state verification failed", "error", err)
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	accessToken, err := p.exchangeCode(r.Context(), code)
	if err != nil {
		observability.OAuthExchangesTotal.WithLabelValues("error").Inc()
		p.logger.Error("code exchange failed",
			"provider", p.config.ProviderName, "error", err)
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	observability.OAuthExchangesTotal.WithLabelValues("ok").Inc()

	subject, err := p.fetchSubject(r.Context(), accessToken)
	if err != nil {
		p.logger.Error("resolving subject failed",
			"provider", p.config.ProviderName, "error", err)
		http.Error(w, "resolving identity failed", http.StatusBadGateway)
		return
	}

	cred := credential.Credential{AccessToken: accessToken, Subject: subject}
	if err := p.tokens.Save(r.Context(), cred); err != nil {
		p.logger.Error("storing credential failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	session, err := p.issueSession(subject)
	if err != nil {
		p.logger.Error("issuing session failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	observability.SessionsIssuedTotal.Inc()
	p.logger.Info("session issued",
		"provider", p.config.ProviderName, "subject", subject)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": session,
		"token_type":   "Bearer",
		"expires_in":   int(p.config.SessionTTL.Seconds()),
	})
}

// exchangeCode performs the OAuth 2.0 authorization_code grant request.
func (p *Provider) exchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURI()},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return tokenResp.AccessToken, nil
}

// fetchSubject resolves the identity subject from the upstream
// userinfo endpoint. The email claim is preferred, falling back to
// sub.
func (p *Provider) fetchSubject(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
		Sub   string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("parsing userinfo response: %w", err)
	}
	if info.Email != "" {
		return info.Email, nil
	}
	if info.Sub != "" {
		return info.Sub, nil
	}
	return "", fmt.Errorf("userinfo response missing identity")
}
