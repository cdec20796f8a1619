package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryan-buckman/instapress/internal/database"
	"github.com/bryan-buckman/instapress/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTokenManager(t *testing.T, staticToken string) (*TokenManager, *database.DB) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTokenManager(db, staticToken, zap.NewNop().Sugar()), db
}

func storeToken(t *testing.T, db *database.DB, token string, expiry time.Time) {
	t.Helper()
	require.NoError(t, db.SetCredential(model.CredentialAccessToken, token))
	require.NoError(t, db.SetCredential(model.CredentialTokenExpiry, expiry.UTC().Format(time.RFC3339)))
}

func TestActiveTokenRefreshesWithinWindow(t *testing.T) {
	tm, db := newTokenManager(t, "")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	oldExpiry := now.Add(10 * 24 * time.Hour)
	storeToken(t, db, "old-token", oldExpiry)

	refreshCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refresh_access_token", r.URL.Path)
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "old-token", r.URL.Query().Get("access_token"))
		refreshCalls++
		fmt.Fprint(w, `{"access_token":"new-token","expires_in":5184000}`)
	}))
	defer srv.Close()
	tm.baseURL = srv.URL

	token, err := tm.ActiveToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
	assert.Equal(t, 1, refreshCalls)

	stored, _, err := db.GetCredential(model.CredentialAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new-token", stored)

	expiryRaw, _, err := db.GetCredential(model.CredentialTokenExpiry)
	require.NoError(t, err)
	newExpiry, err := time.Parse(time.RFC3339, expiryRaw)
	require.NoError(t, err)
	assert.True(t, newExpiry.After(oldExpiry), "refreshed expiry must be strictly later")
}

func TestActiveTokenSkipsRefreshWhenNotDue(t *testing.T) {
	tm, db := newTokenManager(t, "")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	storeToken(t, db, "fresh-token", now.Add(45*24*time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("refresh endpoint must not be called")
	}))
	defer srv.Close()
	tm.baseURL = srv.URL

	token, err := tm.ActiveToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestActiveTokenKeepsStoredOnRefreshFailure(t *testing.T) {
	tm, db := newTokenManager(t, "")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	storeToken(t, db, "stale-token", now.Add(5*24*time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	tm.baseURL = srv.URL

	token, err := tm.ActiveToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stale-token", token)

	stored, _, err := db.GetCredential(model.CredentialAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "stale-token", stored)
}

func TestActiveTokenAdoptsConfiguredToken(t *testing.T) {
	tm, db := newTokenManager(t, "configured-token")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return now }

	token, err := tm.ActiveToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "configured-token", token)

	// The operator-supplied token is persisted with the default lifetime.
	stored, _, err := db.GetCredential(model.CredentialAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "configured-token", stored)

	expiryRaw, _, err := db.GetCredential(model.CredentialTokenExpiry)
	require.NoError(t, err)
	expiry, err := time.Parse(time.RFC3339, expiryRaw)
	require.NoError(t, err)
	assert.True(t, expiry.Equal(now.Add(60*24*time.Hour)))
}

func TestActiveTokenNoCredential(t *testing.T) {
	tm, _ := newTokenManager(t, "")

	_, err := tm.ActiveToken(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
}
