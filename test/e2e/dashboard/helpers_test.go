package dashboard_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/ecobalance/dashboard/internal/dashboard/app"
)

/*
 * End-to-end helpers: the whole application (config, SQLite file store,
 * migrations, services, router) is built by app.New and served in-process
 * against a fake ThingSpeak channel.
 */

const (
	channelID = "3178808"
	readKey   = "test-read-key"
)

// channelFeed mimics the provider, including a null and a garbage value.
const channelFeed = `{
	"channel": {"id": 3178808, "name": "EcoBalance", "field1": "Organico", "field2": "Reciclavel"},
	"feeds": [
		{"created_at": "2024-03-01T15:00:00Z", "entry_id": 101, "field1": "35.5", "field2": "70"},
		{"created_at": "2024-03-01T15:00:20Z", "entry_id": 102, "field1": "36.25", "field2": null},
		{"created_at": "2024-03-01T15:00:40Z", "entry_id": 103, "field1": "nan?", "field2": "71.94"}
	]
}`

var secretPattern = regexp.MustCompile(`<code class="secret">([A-Z2-7]+)</code>`)

type env struct {
	t        *testing.T
	baseURL  string
	requests chan *url.URL
}

// setupDashboard boots the application with a fresh database and a fake
// telemetry provider, and returns its base URL.
func setupDashboard(t *testing.T) *env {
	t.Helper()
	e := &env{t: t, requests: make(chan *url.URL, 64)}

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case e.requests <- r.URL:
		default:
		}
		if r.URL.Path != "/channels/"+channelID+"/feeds.json" || r.URL.Query().Get("api_key") != readKey {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, channelFeed)
	}))
	t.Cleanup(provider.Close)

	dir := t.TempDir()
	cfg := app.DefaultConfig()
	cfg.DatabaseURL = filepath.Join(dir, "ecobalance.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.SessionSecret = "e2e-session-secret"
	cfg.LogLevel = "error"
	cfg.Env = "test"
	cfg.Telemetry.BaseURL = provider.URL
	cfg.Telemetry.ReadAPIKey = readKey
	require.NoError(t, cfg.Validate())

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	e.baseURL = srv.URL
	return e
}

// browser returns a client with a cookie jar that reports redirects instead
// of following them.
func (e *env) browser() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *env) get(c *http.Client, path string) (*http.Response, string) {
	e.t.Helper()
	resp, err := c.Get(e.baseURL + path)
	require.NoError(e.t, err)
	return resp, drain(e.t, resp)
}

func (e *env) post(c *http.Client, path string, form url.Values) (*http.Response, string) {
	e.t.Helper()
	resp, err := c.PostForm(e.baseURL+path, form)
	require.NoError(e.t, err)
	return resp, drain(e.t, resp)
}

// register creates an account through the form and returns the TOTP secret
// shown on the enrollment page.
func (e *env) register(c *http.Client, username, password string) string {
	e.t.Helper()
	resp, body := e.post(c, "/register", url.Values{"username": {username}, "password": {password}})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)

	m := secretPattern.FindStringSubmatch(body)
	require.Len(e.t, m, 2, "enrollment page should show the secret")
	return m[1]
}

// signIn completes both factors and leaves the browser on the dashboard.
func (e *env) signIn(c *http.Client, username, password, secret string) {
	e.t.Helper()
	resp, _ := e.post(c, "/login", url.Values{"username": {username}, "password": {password}})
	requireRedirect(e.t, resp, "/mfa_verify")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(e.t, err)

	resp, _ = e.post(c, "/mfa_verify", url.Values{"code": {code}})
	requireRedirect(e.t, resp, "/dashboard/")
}

func drain(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func requireRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	require.Contains(t, []int{http.StatusFound, http.StatusSeeOther}, resp.StatusCode)
	require.Equal(t, location, resp.Header.Get("Location"))
}
