package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the fleet service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"fleethub"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"FLEETHUB_PORT" envDefault:"8090"`
	LogLevel        string        `env:"FLEETHUB_LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database (required, no default)
	DatabaseDSN string `env:"DB_POSTGRESQL_DSN,notEmpty"`

	// Database Connection Pool
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Object Storage Backend Selection
	StorageBackend   string `env:"FLEET_STORAGE_BACKEND" envDefault:"s3"` // Options: "s3" or "local"
	LocalStoragePath string `env:"FLEET_LOCAL_STORAGE_PATH"`

	// S3 Storage Configuration
	S3Endpoint     string `env:"FLEET_S3_ENDPOINT"`
	S3Region       string `env:"FLEET_S3_REGION" envDefault:"us-east-1"`
	S3Bucket       string `env:"FLEET_S3_BUCKET"`
	S3AccessKeyID  string `env:"FLEET_S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"FLEET_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `env:"FLEET_S3_USE_PATH_STYLE" envDefault:"true"`

	// Retention
	FirmwareKeepVersions int `env:"FIRMWARE_KEEP_VERSIONS" envDefault:"5"`
	DumpsPerDevice       int `env:"COREDUMPS_PER_DEVICE" envDefault:"20"`

	// Crash dump limits
	MaxDumpBytes int64 `env:"COREDUMP_MAX_BYTES" envDefault:"8388608"`

	// Analyzer sidecar
	AnalyzerURL      string        `env:"ANALYZER_URL" envDefault:"http://localhost:8190"`
	AnalyzerTimeout  time.Duration `env:"ANALYZER_TIMEOUT" envDefault:"30s"`
	AnalyzerAttempts int           `env:"ANALYZER_ATTEMPTS" envDefault:"3"`

	// Analysis worker
	AnalysisStartupDelay time.Duration `env:"ANALYSIS_STARTUP_DELAY" envDefault:"2s"`
	StagingDir           string        `env:"ANALYSIS_STAGING_DIR"`

	// Notifier (optional; notifications are skipped when unset)
	RedisURL      string `env:"FLEET_REDIS_URL"`
	NotifyChannel string `env:"FLEET_NOTIFY_CHANNEL" envDefault:"fleet"`

	// Authentication
	AuthEnabled bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer  string `env:"AUTH_ISSUER"`
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)

	if cfg.MaxDumpBytes <= 0 {
		cfg.MaxDumpBytes = 8 * 1024 * 1024
	}
	if cfg.FirmwareKeepVersions < 1 {
		return nil, fmt.Errorf("FIRMWARE_KEEP_VERSIONS must be at least 1")
	}
	if cfg.DumpsPerDevice < 1 {
		return nil, fmt.Errorf("COREDUMPS_PER_DEVICE must be at least 1")
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "fleethub-staging")
	}
	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if the local filesystem backend is configured.
func (c *Config) IsLocalStorage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "local"
}
