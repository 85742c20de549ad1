// Package config loads the server and CLI configuration from the
// environment. A .env file in the working directory is read first when
// present; real environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Tracking  TrackingConfig
	Redis     RedisConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	// PublicURL is used to build the default OAuth callback.
	PublicURL string
}

type DatabaseConfig struct {
	// URL is a file path, ":memory:" or a libsql://, https:// or wss:// URL.
	URL string
}

type AuthConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	CookieSecure       bool
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// GitHubEnabled reports whether both OAuth credentials are configured.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type TrackingConfig struct {
	// IPHashSalt is mixed into the client key so raw IPs are never stored.
	IPHashSalt  string
	DedupWindow time.Duration
}

// RedisConfig is optional; without a URL rate limiting stays in process.
type RedisConfig struct {
	URL string
}

// StorageConfig selects the avatar store. Without a bucket avatars are
// stored inline as data URLs.
type StorageConfig struct {
	S3Bucket        string
	S3Region        string
	S3PublicBaseURL string
	MaxAvatarBytes  int64
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if any) and the environment. It does not validate;
// call Validate before starting the server.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	port, err := getEnvAsInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvAsDuration("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	dedup, err := getEnvAsDuration("VIEW_DEDUP_WINDOW", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvAsFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvAsInt("RATE_LIMIT_BURST", 30)
	if err != nil {
		return nil, err
	}
	maxAvatar, err := getEnvAsInt("MAX_AVATAR_BYTES", 2<<20)
	if err != nil {
		return nil, err
	}

	publicURL := strings.TrimRight(getEnv("PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port:           port,
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			PublicURL:      publicURL,
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "data/linkbio.db"),
		},
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("JWT_SECRET"),
			TokenTTL:           ttl,
			CookieSecure:       strings.HasPrefix(publicURL, "https://"),
			GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", publicURL+"/auth/github/callback"),
		},
		Tracking: TrackingConfig{
			IPHashSalt:  os.Getenv("IP_HASH_SALT"),
			DedupWindow: dedup,
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			S3Bucket:        os.Getenv("S3_BUCKET"),
			S3Region:        getEnv("S3_REGION", "us-east-1"),
			S3PublicBaseURL: strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
			MaxAvatarBytes:  int64(maxAvatar),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
	return cfg, nil
}

// Validate reports every problem at once so a misconfigured deploy can be
// fixed in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Tracking.IPHashSalt == "" {
		errs = append(errs, errors.New("IP_HASH_SALT is required"))
	}
	if c.Tracking.DedupWindow <= 0 {
		errs = append(errs, errors.New("VIEW_DEDUP_WINDOW must be positive"))
	}
	if (c.Auth.GitHubClientID == "") != (c.Auth.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}
	if c.Storage.S3Bucket != "" && c.Storage.S3PublicBaseURL == "" {
		errs = append(errs, errors.New("S3_PUBLIC_BASE_URL is required when S3_BUCKET is set"))
	}
	if c.Storage.MaxAvatarBytes <= 0 {
		errs = append(errs, errors.New("MAX_AVATAR_BYTES must be positive"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return f, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration", key, v)
	}
	return d, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
