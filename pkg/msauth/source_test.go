package msauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func tokenServer(t *testing.T, calls *atomic.Int32, rotated string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-` + r.PostForm.Get("refresh_token") +
			`","token_type":"Bearer","expires_in":3600,"refresh_token":"` + rotated + `"}`))
	}))
}

func TestBearerToken_RefreshesOnceAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, "refresh-2")
	defer srv.Close()

	s, err := NewSource(Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RefreshToken: "refresh-1",
		TokenURL:     srv.URL,
	})
	require.NoError(t, err)

	tok, err := s.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refresh-1", tok)

	tok, err = s.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refresh-1", tok)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "refresh-2", s.RefreshToken())
}

func TestBearerToken_PersistsRotatedToken(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, "refresh-new")
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "auth", "token_enel.json")
	require.NoError(t, SaveToken(path, &oauth2.Token{RefreshToken: "refresh-stored"}))

	s, err := NewSource(Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RefreshToken: "refresh-config",
		TokenURL:     srv.URL,
		TokenFile:    path,
	})
	require.NoError(t, err)

	tok, err := s.BearerToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refresh-stored", tok)

	stored, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh-new", stored.RefreshToken)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestBearerToken_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	s, err := NewSource(Config{ClientID: "c", RefreshToken: "r", TokenURL: srv.URL})
	require.NoError(t, err)

	_, err = s.BearerToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "msauth: refresh token")
}

func TestBearerToken_CancelledContext(t *testing.T) {
	s, err := NewSource(Config{ClientID: "c", RefreshToken: "r", TokenURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.BearerToken(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSource_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "no_client", cfg: Config{TenantID: "t", RefreshToken: "r"}, wantErr: "client id"},
		{name: "no_tenant", cfg: Config{ClientID: "c", RefreshToken: "r"}, wantErr: "tenant id"},
		{name: "no_refresh", cfg: Config{ClientID: "c", TenantID: "t"}, wantErr: "refresh token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSource(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSource_TenantEndpoint(t *testing.T) {
	t.Parallel()
	s, err := NewSource(Config{TenantID: "contoso", ClientID: "c", RefreshToken: "r"})
	require.NoError(t, err)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", s.cfg.TokenURL)
}

func TestMask(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "***", Mask("short"))
	assert.Equal(t, "0.AX...wxyz", Mask("0.AXabcdefghijklmnopqrstuvwxyz"))
}
