package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okello/hornwatch/internal/app"
	"github.com/okello/hornwatch/internal/config"
)

func newTestApp(t *testing.T) (*app.App, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		DBPath:     filepath.Join(t.TempDir(), "test.db"),
		AdminToken: "secret",
	}
	a, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, cfg
}

func TestUnsubscribeEscapesEmailInResponse(t *testing.T) {
	a, _ := newTestApp(t)
	email := `"><script>alert(1)</script>@example.org`
	token := a.Mailer().UnsubscribeToken(email)

	req := httptest.NewRequest(http.MethodGet,
		"/unsubscribe?email="+url.QueryEscape(email)+"&token="+token, nil)
	rec := httptest.NewRecorder()
	handleUnsubscribe(a)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")

	opted, err := a.Store.IsUnsubscribed(email)
	require.NoError(t, err)
	assert.True(t, opted)
}

func TestUnsubscribeRejectsForgedToken(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet,
		"/unsubscribe?email=analyst@example.org&token=forged", nil)
	rec := httptest.NewRecorder()
	handleUnsubscribe(a)(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	opted, err := a.Store.IsUnsubscribed("analyst@example.org")
	require.NoError(t, err)
	assert.False(t, opted)
}

func TestAdminGuard(t *testing.T) {
	a, cfg := newTestApp(t)
	guarded := admin(cfg, handleEvents(a))

	rec := httptest.NewRecorder()
	guarded(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	guarded(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No token configured disables the admin surface outright.
	open := &config.Config{}
	rec = httptest.NewRecorder()
	admin(open, handleEvents(a))(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
