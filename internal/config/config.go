package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is an immutable snapshot of the process configuration. Every TTL and
// threshold is injected into components at construction time so tests can run
// with short windows instead of ambient constants.
type Config struct {
	Addr string

	DatabaseDriver string
	DatabaseDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	RefreshPepper string

	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BlacklistRetention time.Duration

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitFailOpen    bool
	UsageLogRetention    time.Duration

	SuspiciousLoginWindow   time.Duration
	SuspiciousRefreshWindow time.Duration

	CleanupInterval time.Duration
	// AuditRetention of zero keeps token logs forever.
	AuditRetention time.Duration

	Profile string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELMetricsExportInterval time.Duration
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Addr: getEnv("ADDR", ":8080"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "file:postboard.db?_fk=1"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "postboard"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "postboard-api"),
		RefreshPepper: getEnv("REFRESH_PEPPER", ""),

		AccessTokenTTL:     getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL:    getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BlacklistRetention: getEnvDuration("BLACKLIST_RETENTION", 30*time.Minute),

		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", 10*time.Second),
		RateLimitFailOpen:    getEnvBool("RATE_LIMIT_FAIL_OPEN", false),
		UsageLogRetention:    getEnvDuration("USAGE_LOG_RETENTION", time.Minute),

		SuspiciousLoginWindow:   getEnvDuration("SUSPICIOUS_LOGIN_WINDOW", 2*time.Minute),
		SuspiciousRefreshWindow: getEnvDuration("SUSPICIOUS_REFRESH_WINDOW", 10*time.Second),

		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute),
		AuditRetention:  getEnvDuration("AUDIT_RETENTION", 0),

		Profile: getEnv("APP_PROFILE", "dev"),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "postboard"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELMetricsExportInterval: getEnvDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),
		OTELTracesEnabled:         getEnvBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getEnvBool("OTEL_LOGS_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(ctx, cfg.Profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Profile, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if len(c.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 bytes")
	}
	if len(c.RefreshPepper) < 16 {
		problems = append(problems, "REFRESH_PEPPER must be at least 16 bytes")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		problems = append(problems, fmt.Sprintf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.AccessTokenTTL <= 0 {
		problems = append(problems, "ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		problems = append(problems, "REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}
	// A blacklist entry must outlive the token it bans, otherwise a purged
	// entry would let a still-valid token back in.
	if c.BlacklistRetention < c.AccessTokenTTL {
		problems = append(problems, "BLACKLIST_RETENTION must be >= ACCESS_TOKEN_TTL")
	}
	if c.RateLimitMaxRequests <= 0 {
		problems = append(problems, "RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimitWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW must be positive")
	}
	if c.UsageLogRetention < c.RateLimitWindow {
		problems = append(problems, "USAGE_LOG_RETENTION must be >= RATE_LIMIT_WINDOW")
	}
	if c.CleanupInterval <= 0 {
		problems = append(problems, "CLEANUP_INTERVAL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}
