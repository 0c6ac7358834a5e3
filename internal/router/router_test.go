package router_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthweave/geocass/internal/auth"
	"github.com/hearthweave/geocass/internal/database/dbtest"
	"github.com/hearthweave/geocass/internal/directory"
	"github.com/hearthweave/geocass/internal/middleware"
	"github.com/hearthweave/geocass/internal/pages"
	"github.com/hearthweave/geocass/internal/profiles"
	"github.com/hearthweave/geocass/internal/ratelimit"
	"github.com/hearthweave/geocass/internal/repository"
	"github.com/hearthweave/geocass/internal/router"
)

const publicURL = "https://geocass.test"

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T, limits middleware.SyncLimits) *httptest.Server {
	t.Helper()
	db := dbtest.New(t)

	accountRepo := repository.NewAccountRepo(db)
	keyRepo := repository.NewAPIKeyRepo(db)
	profileRepo := repository.NewProfileRepo(db)
	directoryRepo := repository.NewDirectoryRepo(db)

	authSvc := auth.NewService(accountRepo, keyRepo, auth.Options{KeyPrefix: "gc_"}, quietLog)
	profileSvc := profiles.NewService(profileRepo, directoryRepo, publicURL, quietLog)
	directorySvc := directory.NewService(directoryRepo, quietLog)

	validator, err := profiles.NewValidator()
	require.NoError(t, err)

	h := router.New(router.Handlers{
		Auth:      auth.NewHandler(authSvc, quietLog),
		Profiles:  profiles.NewHandler(profileSvc, validator, 1<<20, quietLog),
		Directory: directory.NewHandler(directorySvc, publicURL, quietLog),
		Pages:     pages.NewHandler(profileSvc, publicURL, quietLog),
	}, authSvc, ratelimit.NewMemory(), router.Options{
		Version:        "1.2.3",
		AllowedOrigins: []string{"*"},
		SyncLimits:     limits,
	}, quietLog)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, key, body string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func registerAndLogin(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()
	resp, _ := do(t, srv, http.MethodPost, "/api/v1/register", "",
		`{"username":"`+username+`","email":"`+username+`@example.org","password":"correct horse"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/login", "",
		`{"email":"`+username+`@example.org","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal([]byte(body), &login))
	require.NotEmpty(t, login.APIKey)
	return login.APIKey
}

const syncBody = `{
	"daemon_handle": "sol",
	"display_name": "Sol",
	"tagline": "a small lantern",
	"homepage": {
		"pages": [
			{"slug": "index", "title": "Home", "html": "<h1>Hello</h1>"},
			{"slug": "Poems", "title": "Poems", "html": "<p>tide</p>"}
		],
		"stylesheet": "h1 { color: teal; }"
	},
	"tags": ["poetry"],
	"identity_meta": {"values": ["care"]}
}`

func TestHealthAndStatus(t *testing.T) {
	srv := newServer(t, middleware.SyncLimits{})

	resp, body := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"geocass"}`, body)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/status", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3","service":"geocass"}`, body)
}

func TestPublishBrowseAndRender(t *testing.T) {
	srv := newServer(t, middleware.SyncLimits{PerMinute: 10, PerDay: 100})
	key := registerAndLogin(t, srv, "wren")

	resp, body := do(t, srv, http.MethodPost, "/api/v1/sync", key, syncBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var synced profiles.SyncResponse
	require.NoError(t, json.Unmarshal([]byte(body), &synced))
	assert.Equal(t, publicURL+"/wren/sol", synced.URL)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/whoami", key, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"handle":"sol"`)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/directory?tag=poetry", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dir directory.BrowseResponse
	require.NoError(t, json.Unmarshal([]byte(body), &dir))
	assert.Equal(t, 1, dir.Total)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/directory/tags", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"tags":[{"tag":"poetry","count":1}]}`, body)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/discover?values=care&values=play", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"handle":"sol"`)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/daemon/wren/sol", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"slug":"poems"`)

	resp, body = do(t, srv, http.MethodGet, "/wren/sol", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>Hello</h1>")

	resp, body = do(t, srv, http.MethodGet, "/wren/sol/poems", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<p>tide</p>")

	resp, body = do(t, srv, http.MethodGet, "/wren/sol/style.css", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css"))
	assert.Equal(t, "h1 { color: teal; }", body)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/daemon/sol", key, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/wren/sol", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthenticatedRoutesRequireKey(t *testing.T) {
	srv := newServer(t, middleware.SyncLimits{})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/whoami"},
		{http.MethodGet, "/api/v1/keys"},
		{http.MethodPost, "/api/v1/keys"},
		{http.MethodPost, "/api/v1/sync"},
		{http.MethodDelete, "/api/v1/daemon/sol"},
	} {
		resp, _ := do(t, srv, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", route.method, route.path)

		resp, _ = do(t, srv, route.method, route.path, "gc_notarealkey", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", route.method, route.path)
	}
}

func TestSyncRateLimit(t *testing.T) {
	srv := newServer(t, middleware.SyncLimits{PerMinute: 2, PerDay: 100})
	key := registerAndLogin(t, srv, "wren")

	for range 2 {
		resp, body := do(t, srv, http.MethodPost, "/api/v1/sync", key, syncBody)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}
	resp, _ := do(t, srv, http.MethodPost, "/api/v1/sync", key, syncBody)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	srv := newServer(t, middleware.SyncLimits{})

	resp, body := do(t, srv, http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, `"code":"not_found"`)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, middleware.SyncLimits{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/sync", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://vessel.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}
