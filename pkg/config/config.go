package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
	"github.com/platinummonkey/nexus-mcp/pkg/storage"
)

// Tool modes accepted by NEXUS_MCP_TOOL_MODE
const (
	ToolModeGrouped = "grouped"
	ToolModeRaw     = "raw"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	Dispatch      DispatchConfig
	Catalog       CatalogConfig
	Transport     TransportConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // 0 keeps SSE streams open
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s liveness and readiness checks)
	HealthPort string
}

// AuthConfig controls bearer credential resolution
type AuthConfig struct {
	SharedSecret       string // MCP_API_TOKEN; grants the legacy full-access principal
	AllowAnonymous     bool
	TrustProxyHeaders  bool // take the client address from X-Forwarded-For / X-Real-IP
	PrincipalCacheTTL  time.Duration
	PrincipalCacheSize int
}

// DispatchConfig controls tool call execution
type DispatchConfig struct {
	ClusterParams    []string
	DefaultCluster   string
	EditModeCacheTTL time.Duration
	APITimeout       time.Duration
	RetryAttempts    int
}

// CatalogConfig locates the OpenAPI documents
type CatalogConfig struct {
	SpecDir        string
	NamespacesFile string
	Watch          bool
	WatchDebounce  time.Duration
}

// TransportConfig controls the MCP HTTP/SSE surface
type TransportConfig struct {
	ToolMode           string
	Keepalive          time.Duration
	SessionQueueSize   int
	RateLimitPerMinute int // 0 disables rate limiting
	RateLimitBurst     int
}

// AuditConfig controls the audit mirror file and scheduled archival
type AuditConfig struct {
	FilePath        string // empty disables the JSON-lines mirror
	ArchiveSchedule string // cron expression; empty disables archival
	ArchivePrefix   string
	RetentionDays   int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Dispatch:      loadDispatchConfig(),
		Catalog:       loadCatalogConfig(),
		Transport:     loadTransportConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("NEXUS_MCP_HOST", "0.0.0.0"),
		Port:            getEnv("NEXUS_MCP_PORT", "8080"),
		ReadTimeout:     getEnvDuration("NEXUS_MCP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("NEXUS_MCP_WRITE_TIMEOUT", 0),
		IdleTimeout:     getEnvDuration("NEXUS_MCP_IDLE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: getEnvDuration("NEXUS_MCP_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("NEXUS_MCP_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("NEXUS_MCP_POSTGRES_URL", "")
	cfg.PostgresReplicaURLs = getEnv("NEXUS_MCP_POSTGRES_REPLICA_URLS", "")
	if maxConns := getEnvInt("NEXUS_MCP_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("NEXUS_MCP_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("NEXUS_MCP_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	cfg.RedisURL = getEnv("NEXUS_MCP_REDIS_URL", "")
	cfg.RedisPassword = getEnv("NEXUS_MCP_REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("NEXUS_MCP_REDIS_DB", cfg.RedisDB)
	if poolSize := getEnvInt("NEXUS_MCP_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	cfg.S3Endpoint = getEnv("NEXUS_MCP_S3_ENDPOINT", "")
	cfg.S3Region = getEnv("NEXUS_MCP_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("NEXUS_MCP_AUDIT_ARCHIVE_BUCKET", "")
	cfg.S3AccessKey = getEnv("NEXUS_MCP_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("NEXUS_MCP_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("NEXUS_MCP_S3_USE_PATH_STYLE", false)

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SharedSecret:       getEnv("MCP_API_TOKEN", ""),
		AllowAnonymous:     getEnvBool("NEXUS_MCP_ALLOW_ANONYMOUS", false),
		TrustProxyHeaders:  getEnvBool("NEXUS_MCP_TRUST_PROXY_HEADERS", false),
		PrincipalCacheTTL:  getEnvDuration("NEXUS_MCP_PRINCIPAL_CACHE_TTL", 30*time.Second),
		PrincipalCacheSize: getEnvInt("NEXUS_MCP_PRINCIPAL_CACHE_SIZE", 1024),
	}
}

func loadDispatchConfig() DispatchConfig {
	return DispatchConfig{
		ClusterParams:    getEnvList("NEXUS_MCP_CLUSTER_PARAMS", nil),
		DefaultCluster:   getEnv("NEXUS_MCP_DEFAULT_CLUSTER", "default"),
		EditModeCacheTTL: getEnvDuration("NEXUS_MCP_EDIT_MODE_CACHE_TTL", 30*time.Second),
		APITimeout:       getEnvDuration("NEXUS_MCP_API_TIMEOUT", 30*time.Second),
		RetryAttempts:    getEnvInt("NEXUS_MCP_API_RETRY_ATTEMPTS", 3),
	}
}

func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		SpecDir:        getEnv("NEXUS_MCP_SPEC_DIR", "specs"),
		NamespacesFile: getEnv("NEXUS_MCP_NAMESPACES_FILE", ""),
		Watch:          getEnvBool("NEXUS_MCP_CATALOG_WATCH", false),
		WatchDebounce:  getEnvDuration("NEXUS_MCP_CATALOG_WATCH_DEBOUNCE", 500*time.Millisecond),
	}
}

func loadTransportConfig() TransportConfig {
	return TransportConfig{
		ToolMode:           strings.ToLower(getEnv("NEXUS_MCP_TOOL_MODE", ToolModeGrouped)),
		Keepalive:          getEnvDuration("NEXUS_MCP_KEEPALIVE_INTERVAL", 30*time.Second),
		SessionQueueSize:   getEnvInt("NEXUS_MCP_SESSION_QUEUE_SIZE", 64),
		RateLimitPerMinute: getEnvInt("NEXUS_MCP_RATE_LIMIT_PER_MINUTE", 0),
		RateLimitBurst:     getEnvInt("NEXUS_MCP_RATE_LIMIT_BURST", 10),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		FilePath:        getEnv("NEXUS_MCP_AUDIT_FILE_PATH", ""),
		ArchiveSchedule: getEnv("NEXUS_MCP_AUDIT_ARCHIVE_SCHEDULE", ""),
		ArchivePrefix:   getEnv("NEXUS_MCP_AUDIT_ARCHIVE_PREFIX", "audit"),
		RetentionDays:   getEnvInt("NEXUS_MCP_AUDIT_RETENTION_DAYS", 90),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("NEXUS_MCP_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("NEXUS_MCP_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("NEXUS_MCP_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("NEXUS_MCP_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("NEXUS_MCP_OTEL_SERVICE_NAME", "nexus-mcp"),
		OTelServiceVersion: getEnv("NEXUS_MCP_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("NEXUS_MCP_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required (NEXUS_MCP_POSTGRES_URL)")
	}

	if c.Dispatch.RetryAttempts < 1 {
		return fmt.Errorf("api retry attempts must be at least 1")
	}
	if c.Dispatch.APITimeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}

	switch c.Transport.ToolMode {
	case ToolModeGrouped, ToolModeRaw:
	default:
		return fmt.Errorf("invalid tool mode: %s (must be grouped or raw)", c.Transport.ToolMode)
	}
	if c.Transport.SessionQueueSize <= 0 {
		return fmt.Errorf("session queue size must be positive")
	}
	if c.Transport.RateLimitPerMinute < 0 || c.Transport.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	if c.Audit.ArchiveSchedule != "" {
		if !c.Storage.ArchiveEnabled() {
			return fmt.Errorf("audit archive bucket is required when an archive schedule is set")
		}
		if c.Audit.RetentionDays <= 0 {
			return fmt.Errorf("audit retention days must be positive when archival is enabled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// OTel returns the tracing settings in the form observability.InitOTel takes
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable with blanks
// dropped, or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
