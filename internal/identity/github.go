// Package identity talks to GitHub as the OAuth identity provider.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
)

const defaultAPIURL = "https://api.github.com"

// usernameTTL bounds how long a resolved login is trusted for a token.
const usernameTTL = 10 * time.Minute

var ErrAuthFailed = errors.New("github rejected the credentials")

// GitHub implements annotatrix.IdentityProvider against github.com or any
// server exposing the same OAuth and REST endpoints.
type GitHub struct {
	cfg    *oauth2.Config
	apiURL string
	cache  *ristretto.Cache[string, string]
}

var _ annotatrix.IdentityProvider = (*GitHub)(nil)

// NewGitHub creates the provider. redirectURL may be empty, in which case
// GitHub uses the callback registered for the OAuth app.
func NewGitHub(gh config.GitHubConfig, redirectURL string) (*GitHub, error) {
	endpoint := endpoints.GitHub
	if gh.AuthURL != "" {
		endpoint.AuthURL = gh.AuthURL
	}
	if gh.TokenURL != "" {
		endpoint.TokenURL = gh.TokenURL
	}

	apiURL := strings.TrimRight(gh.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	maxKeys := gh.CacheSize
	if maxKeys <= 0 {
		maxKeys = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxKeys * 10,
		MaxCost:     maxKeys,
		BufferItems: 64,
		// Every entry costs 1, so MaxCost is the number of cached logins.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create username cache: %w", err)
	}

	return &GitHub{
		cfg: &oauth2.Config{
			ClientID:     gh.ClientID,
			ClientSecret: gh.ClientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoint,
		},
		apiURL: apiURL,
		cache:  c,
	}, nil
}

// AuthorizeURL returns the GitHub authorization URL carrying state.
func (g *GitHub) AuthorizeURL(state string) string {
	return g.cfg.AuthCodeURL(state)
}

// Exchange trades the callback code for an access token.
func (g *GitHub) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return "", fmt.Errorf("%w: %s", ErrAuthFailed, retrieveReason(rerr))
		}
		return "", fmt.Errorf("exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}
	return tok.AccessToken, nil
}

func retrieveReason(rerr *oauth2.RetrieveError) string {
	if rerr.ErrorCode != "" {
		return rerr.ErrorCode
	}
	if rerr.Response != nil {
		return rerr.Response.Status
	}
	return "token request failed"
}

type githubUser struct {
	Login string `json:"login"`
}

// Username returns the GitHub login of the token's owner. Results are
// cached per token.
func (g *GitHub) Username(ctx context.Context, token string) (string, error) {
	key := cacheKey(token)
	if login, found := g.cache.Get(key); found {
		return login, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"/user", nil)
	if err != nil {
		return "", fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := g.cfg.Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: user lookup returned %s", ErrAuthFailed, resp.Status)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("get user: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var usr githubUser
	if err := json.NewDecoder(resp.Body).Decode(&usr); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if usr.Login == "" {
		return "", fmt.Errorf("get user: response has no login")
	}

	g.cache.SetWithTTL(key, usr.Login, 1, usernameTTL)
	g.cache.Wait()
	return usr.Login, nil
}

// Close releases the username cache.
func (g *GitHub) Close() {
	g.cache.Close()
}

// cacheKey keeps raw tokens out of the cache's key space.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
