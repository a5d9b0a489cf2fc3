package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func minimalEnv() map[string]string {
	return map[string]string{
		"SUPABASE_URL":              "https://project.supabase.co",
		"SUPABASE_SERVICE_ROLE_KEY": "service-role-key",
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(minimalEnv()))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, ":4000", cfg.Addr())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, VerifierSupabase, cfg.AuthVerifier)
	assert.Equal(t, MergeShallow, cfg.SettingsMergeMode)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)
	assert.Zero(t, cfg.MagicLinkRatePerMinute)
	assert.Equal(t, 5, cfg.MagicLinkRateBurst)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestFromLookup_Overrides(t *testing.T) {
	env := minimalEnv()
	env["NODE_ENV"] = "production"
	env["PORT"] = "8081"
	env["CORS_ORIGIN"] = "https://a.example.com, https://b.example.com/ ,"
	env["AUTH_VERIFIER"] = "JWT"
	env["SUPABASE_JWT_SECRET"] = "secret"
	env["SETTINGS_MERGE_MODE"] = "deep"
	env["DATABASE_URL"] = "postgres://localhost/site"
	env["SUPABASE_URL"] = "https://project.supabase.co/"

	cfg, err := FromLookup(lookupFrom(env))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, VerifierJWT, cfg.AuthVerifier)
	assert.Equal(t, MergeDeep, cfg.SettingsMergeMode)
	assert.Equal(t, "postgres://localhost/site", cfg.PostgresDSN)
	assert.Equal(t, "https://project.supabase.co", cfg.SupabaseURL)
}

func TestFromLookup_LegacyServiceKeyName(t *testing.T) {
	env := minimalEnv()
	delete(env, "SUPABASE_SERVICE_ROLE_KEY")
	env["SUPABASE_SERVICE_KEY"] = "legacy"

	cfg, err := FromLookup(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.SupabaseServiceKey)
}

func TestFromLookup_CollectsAllProblems(t *testing.T) {
	env := map[string]string{
		"SUPABASE_URL":        "not a url",
		"PORT":                "abc",
		"AUTH_VERIFIER":       "jwt",
		"SETTINGS_MERGE_MODE": "sideways",
	}

	_, err := FromLookup(lookupFrom(env))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 5)
	assert.Contains(t, err.Error(), "SUPABASE_URL must be a valid URL")
	assert.Contains(t, err.Error(), "SUPABASE_SERVICE_ROLE_KEY is required")
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "SUPABASE_JWT_SECRET is required")
	assert.Contains(t, err.Error(), "SETTINGS_MERGE_MODE")
}

func TestFromLookup_MissingURL(t *testing.T) {
	env := minimalEnv()
	delete(env, "SUPABASE_URL")

	_, err := FromLookup(lookupFrom(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL is required")
}

func TestFromLookup_RejectsNonPositiveRates(t *testing.T) {
	env := minimalEnv()
	env["MAGIC_LINK_RATE_PER_MINUTE"] = "-1"
	env["MAGIC_LINK_RATE_BURST"] = "-1"
	env["BACKEND_TIMEOUT"] = "soon"

	_, err := FromLookup(lookupFrom(env))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 3)
}

func TestFromLookup_RateLimitOptIn(t *testing.T) {
	env := minimalEnv()
	env["MAGIC_LINK_RATE_PER_MINUTE"] = "0"
	cfg, err := FromLookup(lookupFrom(env))
	require.NoError(t, err)
	assert.Zero(t, cfg.MagicLinkRatePerMinute)

	env["MAGIC_LINK_RATE_PER_MINUTE"] = "2.5"
	cfg, err = FromLookup(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.MagicLinkRatePerMinute)
}

func TestFromLookup_PortProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(-100000, 100000).Draw(t, "port")
		env := minimalEnv()
		env["PORT"] = strconv.Itoa(port)

		cfg, err := FromLookup(lookupFrom(env))
		valid := port >= 1 && port <= 65535
		if valid && err != nil {
			t.Fatalf("port %d rejected: %v", port, err)
		}
		if !valid && err == nil {
			t.Fatalf("port %d accepted as %d", port, cfg.Port)
		}
	})
}

func TestIsAbsoluteURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com":       true,
		"http://localhost:3000/x":   true,
		"mailto:hello@example.com":  true,
		"example.com":               false,
		"/relative/path":            false,
		"":                          false,
		"https://":                  false,
		"://missing-scheme.example": false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsAbsoluteURL(in), in)
	}
}

func TestLoadEnvFile_DoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env.test")
	content := "# comment\nexport SSB_TEST_A=\"from-file\"\nSSB_TEST_B='quoted'\nmalformed\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SSB_TEST_A", "from-process")
	t.Setenv("SSB_TEST_B", "")
	os.Unsetenv("SSB_TEST_B")

	loadEnvFile(path)
	t.Cleanup(func() { os.Unsetenv("SSB_TEST_B") })

	assert.Equal(t, "from-process", os.Getenv("SSB_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("SSB_TEST_B"))
}
