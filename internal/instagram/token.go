// Package instagram talks to the Instagram Graph API: token lifecycle,
// post listing, carousel children, and media downloads.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bryan-buckman/instapress/internal/database"
	"github.com/bryan-buckman/instapress/internal/model"
	"go.uber.org/zap"
)

// DefaultBaseURL is the Instagram Graph API endpoint.
const DefaultBaseURL = "https://graph.instagram.com"

const (
	// refreshWindow is how long before expiry a proactive refresh is attempted.
	refreshWindow = 30 * 24 * time.Hour
	// defaultTokenLifetime is assumed when the API doesn't report expires_in,
	// and for operator-supplied tokens. Long-lived tokens last 60 days.
	defaultTokenLifetime = 60 * 24 * time.Hour
)

// ErrNoCredential means no access token is available from the store or the
// configuration. Nothing can be fetched without one, so the run must stop.
var ErrNoCredential = errors.New("instagram: no access token available")

// TokenManager keeps the Instagram access token valid, refreshing and
// persisting it as needed.
type TokenManager struct {
	db          database.Store
	staticToken string // operator-configured fallback, may be empty
	baseURL     string
	client      *http.Client
	log         *zap.SugaredLogger
	now         func() time.Time
}

// NewTokenManager creates a token manager backed by the given store.
func NewTokenManager(db database.Store, staticToken string, log *zap.SugaredLogger) *TokenManager {
	return &TokenManager{
		db:          db,
		staticToken: staticToken,
		baseURL:     DefaultBaseURL,
		client:      http.DefaultClient,
		log:         log,
		now:         time.Now,
	}
}

// ActiveToken returns a usable access token, preferring the stored one and
// refreshing it when it is within the refresh window of expiry. Falls back to
// the statically configured token, persisting it if it differs from what is
// stored. Returns ErrNoCredential when no token exists anywhere.
func (tm *TokenManager) ActiveToken(ctx context.Context) (string, error) {
	stored, _, err := tm.db.GetCredential(model.CredentialAccessToken)
	if err != nil {
		return "", fmt.Errorf("read stored token: %w", err)
	}
	expiryRaw, _, err := tm.db.GetCredential(model.CredentialTokenExpiry)
	if err != nil {
		return "", fmt.Errorf("read token expiry: %w", err)
	}

	if stored != "" && expiryRaw != "" {
		expiry, perr := time.Parse(time.RFC3339, expiryRaw)
		if perr == nil && expiry.Sub(tm.now()) <= refreshWindow {
			refreshed, rerr := tm.refresh(ctx, stored)
			if rerr == nil {
				return refreshed, nil
			}
			tm.log.Warnw("token refresh failed, keeping stored token", "error", rerr)
		}
	}

	if stored != "" {
		return stored, nil
	}

	if tm.staticToken != "" {
		// Manual operator rotation is authoritative: adopt the configured token.
		if err := tm.persist(tm.staticToken, tm.now().Add(defaultTokenLifetime)); err != nil {
			return "", fmt.Errorf("persist configured token: %w", err)
		}
		tm.log.Infow("adopted configured access token")
		return tm.staticToken, nil
	}

	return "", ErrNoCredential
}

// refresh exchanges the current long-lived token for a fresh one and persists
// it together with its new expiry.
func (tm *TokenManager) refresh(ctx context.Context, token string) (string, error) {
	u := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		tm.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := tm.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh http %d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("refresh response missing access_token")
	}

	lifetime := defaultTokenLifetime
	if parsed.ExpiresIn > 0 {
		lifetime = time.Duration(parsed.ExpiresIn) * time.Second
	}
	expiry := tm.now().Add(lifetime)
	if err := tm.persist(parsed.AccessToken, expiry); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	tm.log.Infow("refreshed access token", "expires", expiry.Format(time.RFC3339))
	return parsed.AccessToken, nil
}

func (tm *TokenManager) persist(token string, expiry time.Time) error {
	if err := tm.db.SetCredential(model.CredentialAccessToken, token); err != nil {
		return err
	}
	return tm.db.SetCredential(model.CredentialTokenExpiry, expiry.UTC().Format(time.RFC3339))
}
