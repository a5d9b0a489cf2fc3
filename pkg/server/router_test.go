package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"site-settings-backend/pkg/config"
	"site-settings-backend/pkg/database"
	customMiddleware "site-settings-backend/pkg/middleware"
	"site-settings-backend/pkg/models"
	"site-settings-backend/pkg/supabase"
	"site-settings-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testSecret = "test-jwt-secret"

type countingSender struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSender) SignInWithOTP(context.Context, supabase.OTPRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testApp struct {
	handler http.Handler
	store   *database.MemoryStore
	sender  *countingSender
	jwt     *utils.JWTService
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:            "test",
		Port:                   4000,
		AllowedOrigins:         []string{"http://localhost:3000"},
		AuthVerifier:           config.VerifierJWT,
		SupabaseJWTSecret:      testSecret,
		SettingsMergeMode:      config.MergeShallow,
		MagicLinkRateBurst:     5,
	}
}

func newTestApp(t testing.TB, cfg *config.Config) *testApp {
	t.Helper()
	app := &testApp{
		store:  database.NewMemoryStore(),
		sender: &countingSender{},
		jwt:    utils.NewJWTService(testSecret),
	}
	h, err := NewRouter(Deps{
		Config:   cfg,
		Store:    app.store,
		Resolver: app.jwt,
		Sender:   app.sender,
	})
	require.NoError(t, err)
	app.handler = h
	return app
}

func (a *testApp) token(t testing.TB, sub string) string {
	t.Helper()
	tok, err := a.jwt.IssueToken(models.Identity{Sub: sub, Email: sub + "@example.com"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Deps{Config: testConfig()})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.SettingsMergeMode = "sideways"
	_, err = NewRouter(Deps{
		Config:   cfg,
		Store:    database.NewMemoryStore(),
		Resolver: utils.NewJWTService(testSecret),
		Sender:   &countingSender{},
	})
	assert.Error(t, err)
}

func TestNewResolver(t *testing.T) {
	cfg := testConfig()
	client := supabase.New("http://127.0.0.1:1", "k")

	assert.IsType(t, &utils.JWTService{}, NewResolver(cfg, client))

	cfg.AuthVerifier = config.VerifierSupabase
	assert.IsType(t, &customMiddleware.SupabaseResolver{}, NewResolver(cfg, client))
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	rec = app.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeartbeatOnlyInDevelopment(t *testing.T) {
	app := newTestApp(t, testConfig())
	assert.Equal(t, http.StatusNotFound, app.do(http.MethodGet, "/ping", "", nil).Code)

	cfg := testConfig()
	cfg.Environment = "development"
	app = newTestApp(t, cfg)
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/ping", "", nil).Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, rec.Body.String())

	rec = app.do(http.MethodDelete, "/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())

	rec = app.do(http.MethodPut, "/api/sites/acme/settings", "", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMagicLink_ValidEmailsAreSent(t *testing.T) {
	app := newTestApp(t, testConfig())

	rapid.Check(t, func(t *rapid.T) {
		email := rapid.StringMatching(`[a-z0-9]{1,12}(\.[a-z0-9]{1,6})?@[a-z]{1,12}\.(com|org|io)`).Draw(t, "email")
		before := app.sender.count()

		rec := app.do(http.MethodPost, "/api/auth/magic-link", "", map[string]string{"email": email})
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: status %d body %s", email, rec.Code, rec.Body.String())
		}
		if app.sender.count() != before+1 {
			t.Fatalf("%q: sender not called", email)
		}
	})
}

func TestMagicLink_InvalidEmailsNeverReachTheSender(t *testing.T) {
	app := newTestApp(t, testConfig())

	rapid.Check(t, func(t *rapid.T) {
		email := rapid.StringMatching(`[a-z0-9 .]{0,20}`).Draw(t, "email")

		rec := app.do(http.MethodPost, "/api/auth/magic-link", "", map[string]string{"email": email})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: status %d", email, rec.Code)
		}
	})
	assert.Zero(t, app.sender.count())
}

func TestMagicLink_TransportChecks(t *testing.T) {
	app := newTestApp(t, testConfig())
	for _, ct := range []string{"text/plain", ""} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/magic-link", bytes.NewBufferString(`{"email":"a@b.co"}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, ct)
		assert.JSONEq(t, `{"error":"Invalid email"}`, rec.Body.String(), ct)
	}
	assert.Zero(t, app.sender.count())

	cfg := testConfig()
	cfg.MagicLinkRatePerMinute = 1
	cfg.MagicLinkRateBurst = 1
	app = newTestApp(t, cfg)

	huge := `{"email":"` + string(bytes.Repeat([]byte("a"), customMiddleware.DefaultMaxBodyBytes)) + `@b.co"}`
	rec := app.do(http.MethodPost, "/api/auth/magic-link", "", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"Request body too large"}`, rec.Body.String())

	rec = app.do(http.MethodPost, "/api/auth/magic-link", "", `{"email":"a@b.co"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(http.MethodPost, "/api/auth/magic-link", "", `{"email":"a@b.co"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, app.sender.count())
}

func TestPublicSettings(t *testing.T) {
	app := newTestApp(t, testConfig())
	site := app.store.AddSite("Acme", "acme")
	app.store.PutSettings(site.ID, map[string]any{"toggles": map[string]any{"showFAQ": true}})

	rec := app.do(http.MethodGet, "/api/sites/acme/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"site":{"id":"`+site.ID+`","name":"Acme","slug":"acme"},
		"settings":{"toggles":{"showFAQ":true}}
	}`, rec.Body.String())

	rec = app.do(http.MethodGet, "/api/sites/unknown-slug/settings", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Site not found"}`, rec.Body.String())
}

func TestMySites(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodGet, "/api/me/sites", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Missing Authorization header"}`, rec.Body.String())

	rec = app.do(http.MethodGet, "/api/me/sites", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid token"}`, rec.Body.String())

	rec = app.do(http.MethodGet, "/api/me/sites", app.token(t, "lonely"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sites":[]}`, rec.Body.String())

	site := app.store.AddSite("Acme", "acme")
	app.store.AddMembership(site.ID, "member", models.RoleOwner)
	rec = app.do(http.MethodGet, "/api/me/sites", app.token(t, "member"), nil)
	assert.JSONEq(t, `{"sites":[{"id":"`+site.ID+`","name":"Acme","slug":"acme"}]}`, rec.Body.String())
}

func TestPatchSettings_AuthBeforeBackend(t *testing.T) {
	app := newTestApp(t, testConfig())

	rec := app.do(http.MethodPatch, "/api/sites/some-id/settings", "", `{"colors":{"primary":"#000"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the Content-Type of an unauthenticated request is never looked at
	for _, ct := range []string{"text/plain", ""} {
		req := httptest.NewRequest(http.MethodPatch, "/api/sites/some-id/settings", bytes.NewBufferString(`{"colors":{"primary":"#000"}}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec = httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, ct)
		assert.JSONEq(t, `{"error":"Missing Authorization header"}`, rec.Body.String(), ct)
	}
	assert.Zero(t, app.store.Calls())
}

func TestPatchSettings_NonJSONBodyAfterAuth(t *testing.T) {
	app := newTestApp(t, testConfig())
	site := app.store.AddSite("Acme", "acme")
	app.store.PutSettings(site.ID, map[string]any{})
	app.store.AddMembership(site.ID, "member", models.RoleOwner)

	req := httptest.NewRequest(http.MethodPatch, "/api/sites/"+site.ID+"/settings", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+app.token(t, "member"))
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid settings payload"}`, rec.Body.String())
}

func TestMagicLink_UnlimitedByDefault(t *testing.T) {
	app := newTestApp(t, testConfig())

	for i := 0; i < 20; i++ {
		rec := app.do(http.MethodPost, "/api/auth/magic-link", "", `{"email":"a@b.co"}`)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}
	assert.Equal(t, 20, app.sender.count())
}

func TestPatchSettings_Flow(t *testing.T) {
	app := newTestApp(t, testConfig())
	site := app.store.AddSite("Acme", "acme")
	app.store.PutSettings(site.ID, map[string]any{
		"colors":  map[string]any{"primary": "#111111", "secondary": "#222222"},
		"content": map[string]any{"hero_title": "Hello"},
	})
	app.store.AddMembership(site.ID, "member", models.RoleEditor)
	path := "/api/sites/" + site.ID + "/settings"

	t.Run("non-member is forbidden", func(t *testing.T) {
		rec := app.do(http.MethodPatch, path, app.token(t, "stranger"), `{"colors":{"primary":"#000"}}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"No access to this site"}`, rec.Body.String())
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		rec := app.do(http.MethodPatch, path, app.token(t, "member"), `{"colors":{"tertiary":"#000"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid settings payload"}`, rec.Body.String())
	})

	t.Run("empty patch leaves settings unchanged", func(t *testing.T) {
		rec := app.do(http.MethodPatch, path, app.token(t, "member"), `{}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"settings":{
			"colors":{"primary":"#111111","secondary":"#222222"},
			"content":{"hero_title":"Hello"}
		}}`, rec.Body.String())
	})

	t.Run("shallow merge replaces the patched group", func(t *testing.T) {
		rec := app.do(http.MethodPatch, path, app.token(t, "member"), `{"colors":{"secondary":"#333333"}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"settings":{
			"colors":{"secondary":"#333333"},
			"content":{"hero_title":"Hello"}
		}}`, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/sites/acme/settings", "", nil)
		assert.Contains(t, rec.Body.String(), `"colors":{"secondary":"#333333"}`)
	})
}

func TestPatchSettings_DeepMode(t *testing.T) {
	cfg := testConfig()
	cfg.SettingsMergeMode = config.MergeDeep
	app := newTestApp(t, cfg)
	site := app.store.AddSite("Acme", "acme")
	app.store.PutSettings(site.ID, map[string]any{
		"colors": map[string]any{"primary": "#111111", "secondary": "#222222"},
	})
	app.store.AddMembership(site.ID, "member", models.RoleAdmin)

	rec := app.do(http.MethodPatch, "/api/sites/"+site.ID+"/settings", app.token(t, "member"), `{"colors":{"secondary":"#333333"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"settings":{"colors":{"primary":"#111111","secondary":"#333333"}}}`, rec.Body.String())
}

func TestCORSThroughRouter(t *testing.T) {
	app := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/me/sites", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Not allowed by CORS"}`, rec.Body.String())
}

func TestRequestIDIsEchoed(t *testing.T) {
	app := newTestApp(t, testConfig())
	site := app.store.AddSite("Acme", "acme")
	app.store.PutSettings(site.ID, map[string]any{})

	rec := app.do(http.MethodGet, "/api/sites/acme/settings", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
