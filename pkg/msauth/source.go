// Package msauth provides Microsoft identity platform bearer tokens from a
// delegated refresh token.
package msauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const defaultTokenURL = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// DefaultScopes are requested on every refresh.
var DefaultScopes = []string{"offline_access", "https://graph.microsoft.com/.default"}

// Config holds the app registration used for refresh.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	// TokenURL overrides the tenant endpoint.
	TokenURL string
	Scopes   []string
	// TokenFile, when set, seeds the refresh token and receives rotated ones.
	TokenFile string
}

// Option configures the Source.
type Option func(*Source)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) {
		s.http = hc
	}
}

// Source refreshes access tokens as needed. It satisfies collab.Credential.
type Source struct {
	cfg  Config
	http *http.Client

	mu      sync.Mutex
	src     oauth2.TokenSource
	refresh string
}

// NewSource validates cfg and builds a Source. A refresh token stored in
// cfg.TokenFile wins over cfg.RefreshToken.
func NewSource(cfg Config, opts ...Option) (*Source, error) {
	if cfg.ClientID == "" {
		return nil, eris.New("msauth: client id is required")
	}
	if cfg.TokenURL == "" {
		if cfg.TenantID == "" {
			return nil, eris.New("msauth: tenant id is required")
		}
		cfg.TokenURL = fmt.Sprintf(defaultTokenURL, cfg.TenantID)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	s := &Source{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}

	refresh := cfg.RefreshToken
	if cfg.TokenFile != "" {
		stored, err := LoadToken(cfg.TokenFile)
		switch {
		case err == nil && stored.RefreshToken != "":
			refresh = stored.RefreshToken
		case err != nil && !errors.Is(err, os.ErrNotExist):
			zap.L().Warn("msauth: ignoring unreadable token file", zap.String("path", cfg.TokenFile), zap.Error(err))
		}
	}
	if refresh == "" {
		return nil, eris.New("msauth: refresh token is required")
	}
	s.refresh = refresh

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: cfg.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.http)
	s.src = oauth2.ReuseTokenSource(nil, oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}))
	return s, nil
}

// BearerToken returns a valid access token, refreshing when it has expired.
func (s *Source) BearerToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "msauth: bearer token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.src.Token()
	if err != nil {
		return "", eris.Wrap(err, "msauth: refresh token")
	}
	if tok.RefreshToken != "" && tok.RefreshToken != s.refresh {
		s.refresh = tok.RefreshToken
		zap.L().Info("msauth: refresh token rotated", zap.String("token", Mask(tok.RefreshToken)))
		if s.cfg.TokenFile != "" {
			if err := SaveToken(s.cfg.TokenFile, tok); err != nil {
				zap.L().Warn("msauth: persist rotated token failed", zap.Error(err))
			}
		}
	}
	return tok.AccessToken, nil
}

// RefreshToken returns the latest refresh token seen.
func (s *Source) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

type storedToken struct {
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// LoadToken reads a token file written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrapf(err, "msauth: parse %s", path)
	}
	return &oauth2.Token{RefreshToken: st.RefreshToken}, nil
}

// SaveToken writes the refresh token of tok to path with owner-only access.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return eris.Wrapf(err, "msauth: create dir for %s", path)
	}
	data, err := json.Marshal(storedToken{RefreshToken: tok.RefreshToken, SavedAt: time.Now().UTC()})
	if err != nil {
		return eris.Wrap(err, "msauth: marshal token")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return eris.Wrapf(err, "msauth: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "msauth: replace %s", path)
	}
	return nil
}

// Mask keeps the first and last four characters of a token.
func Mask(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
