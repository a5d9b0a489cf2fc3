package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token verification strategies.
const (
	VerifierSupabase = "supabase"
	VerifierJWT      = "jwt"
)

// Settings merge modes accepted by SETTINGS_MERGE_MODE.
const (
	MergeShallow = "shallow"
	MergeDeep    = "deep"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        int

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	BackendTimeout     time.Duration

	// AuthVerifier selects how bearer tokens are resolved: VerifierSupabase
	// asks the auth service, VerifierJWT checks the signature locally.
	AuthVerifier string

	// PostgresDSN switches data operations to a direct Postgres connection.
	PostgresDSN string

	// CORS配置
	AllowedOrigins []string

	SettingsMergeMode string

	// Magic link
	MagicLinkRedirectURL   string
	MagicLinkRatePerMinute float64 // 0 disables the limiter
	MagicLinkRateBurst     int

	LogLevel string
}

// ValidationError lists every problem found while loading the configuration.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadConfig reads the process environment (plus an optional .env file) and
// validates it. Any error is fatal for startup.
func LoadConfig() (*Config, error) {
	env := getEnvWithDefault("NODE_ENV", getEnvWithDefault("ENVIRONMENT", "development"))

	// 按优先级加载环境文件
	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}
	loadEnvFile(".env")

	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from the given lookup function. It does not
// touch .env files, which keeps it usable from tests.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	getOr := func(key, def string) string {
		if v := get(key); v != "" {
			return v
		}
		return def
	}

	var problems []string

	cfg := &Config{
		Environment:          getOr("NODE_ENV", getOr("ENVIRONMENT", "development")),
		SupabaseURL:          strings.TrimRight(get("SUPABASE_URL"), "/"),
		SupabaseServiceKey:   getOr("SUPABASE_SERVICE_ROLE_KEY", get("SUPABASE_SERVICE_KEY")),
		SupabaseJWTSecret:    get("SUPABASE_JWT_SECRET"),
		AuthVerifier:         strings.ToLower(getOr("AUTH_VERIFIER", VerifierSupabase)),
		PostgresDSN:          get("DATABASE_URL"),
		SettingsMergeMode:    strings.ToLower(getOr("SETTINGS_MERGE_MODE", MergeShallow)),
		MagicLinkRedirectURL: get("MAGIC_LINK_REDIRECT_URL"),
		LogLevel:             getOr("LOG_LEVEL", "info"),
	}

	port, err := strconv.Atoi(getOr("PORT", "4000"))
	if err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be a number between 1 and 65535, got %q", get("PORT")))
	}
	cfg.Port = port

	if cfg.SupabaseURL == "" {
		problems = append(problems, "SUPABASE_URL is required")
	} else if !IsAbsoluteURL(cfg.SupabaseURL) {
		problems = append(problems, fmt.Sprintf("SUPABASE_URL must be a valid URL, got %q", cfg.SupabaseURL))
	}
	if cfg.SupabaseServiceKey == "" {
		problems = append(problems, "SUPABASE_SERVICE_ROLE_KEY is required")
	}

	switch cfg.AuthVerifier {
	case VerifierSupabase:
	case VerifierJWT:
		if cfg.SupabaseJWTSecret == "" {
			problems = append(problems, "SUPABASE_JWT_SECRET is required when AUTH_VERIFIER=jwt")
		}
	default:
		problems = append(problems, fmt.Sprintf("AUTH_VERIFIER must be %q or %q, got %q", VerifierSupabase, VerifierJWT, cfg.AuthVerifier))
	}

	if cfg.SettingsMergeMode != MergeShallow && cfg.SettingsMergeMode != MergeDeep {
		problems = append(problems, fmt.Sprintf("SETTINGS_MERGE_MODE must be %q or %q, got %q", MergeShallow, MergeDeep, cfg.SettingsMergeMode))
	}

	cfg.AllowedOrigins = splitList(getOr("CORS_ORIGIN", "http://localhost:3000"))
	if len(cfg.AllowedOrigins) == 0 {
		problems = append(problems, "CORS_ORIGIN must list at least one origin")
	}

	if cfg.MagicLinkRedirectURL != "" && !IsAbsoluteURL(cfg.MagicLinkRedirectURL) {
		problems = append(problems, fmt.Sprintf("MAGIC_LINK_REDIRECT_URL must be a valid URL, got %q", cfg.MagicLinkRedirectURL))
	}

	// 0 (the default) disables magic-link rate limiting
	cfg.MagicLinkRatePerMinute, err = strconv.ParseFloat(getOr("MAGIC_LINK_RATE_PER_MINUTE", "0"), 64)
	if err != nil || cfg.MagicLinkRatePerMinute < 0 {
		problems = append(problems, "MAGIC_LINK_RATE_PER_MINUTE must be zero or a positive number")
	}
	cfg.MagicLinkRateBurst, err = strconv.Atoi(getOr("MAGIC_LINK_RATE_BURST", "5"))
	if err != nil || cfg.MagicLinkRateBurst <= 0 {
		problems = append(problems, "MAGIC_LINK_RATE_BURST must be a positive integer")
	}

	cfg.BackendTimeout, err = time.ParseDuration(getOr("BACKEND_TIMEOUT", "10s"))
	if err != nil || cfg.BackendTimeout <= 0 {
		problems = append(problems, "BACKEND_TIMEOUT must be a positive duration such as 10s")
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	return cfg, nil
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Addr is the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// IsAbsoluteURL reports whether s parses as a URL with a scheme and either a
// host or an opaque part (mailto:, tel:).
func IsAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimRight(strings.TrimSpace(part), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile 加载 .env 文件到环境变量
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // 文件不存在，静默返回
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// 移除值两端的引号（如果有）
		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		// 只有当环境变量不存在时才设置
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
