// Package config handles loading and validation of runledger.yaml and the
// environment overrides applied on top of it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/runledger/internal/artifact"
	ddbprov "github.com/dwsmith1983/runledger/internal/provider/dynamodb"
	"github.com/dwsmith1983/runledger/internal/provider/sqlite"
	"github.com/dwsmith1983/runledger/internal/runs"
)

// FileName is the configuration file Load looks for in a directory.
const FileName = "runledger.yaml"

// Store backends.
const (
	ProviderDynamoDB = "dynamodb"
	ProviderSQLite   = "sqlite"
)

// Artifact backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// Config is the complete service configuration.
type Config struct {
	Stage    string `yaml:"stage,omitempty"`
	Region   string `yaml:"region,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	Provider string          `yaml:"provider"`
	DynamoDB *ddbprov.Config `yaml:"dynamodb,omitempty"`
	SQLite   *sqlite.Config  `yaml:"sqlite,omitempty"`

	Artifacts ArtifactsConfig `yaml:"artifacts"`
	GitHub    GitHubConfig    `yaml:"github"`
	Runs      RunsConfig      `yaml:"runs,omitempty"`
	Sweep     SweepConfig     `yaml:"sweep,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`
	Events    EventsConfig    `yaml:"events,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ArtifactsConfig selects and configures the object store.
type ArtifactsConfig struct {
	Backend   string                `yaml:"backend"`
	URLExpiry string                `yaml:"urlExpiry,omitempty"`
	S3        *artifact.S3Config    `yaml:"s3,omitempty"`
	Minio     *artifact.MinioConfig `yaml:"minio,omitempty"`
}

// GitHubConfig configures workflow dispatch and webhook verification.
// The *SecretARN fields take precedence over the plain values at start-up.
type GitHubConfig struct {
	runs.Workflow       `yaml:",inline"`
	BaseURL             string `yaml:"baseUrl,omitempty"`
	Token               string `yaml:"token,omitempty"`
	TokenSecretARN      string `yaml:"tokenSecretArn,omitempty"`
	WebhookSecret       string `yaml:"webhookSecret,omitempty"`
	WebhookSecretARN    string `yaml:"webhookSecretArn,omitempty"`
	BreakerMaxFailures  uint32 `yaml:"breakerMaxFailures,omitempty"`
	BreakerOpenDuration string `yaml:"breakerOpenDuration,omitempty"`
}

// RunsConfig holds run lifecycle options.
type RunsConfig struct {
	RunIDFormat        string `yaml:"runIdFormat,omitempty"`
	ExposeErrorDetails bool   `yaml:"exposeErrorDetails,omitempty"`
}

// SweepConfig configures stale-run reconciliation.
type SweepConfig struct {
	Schedule     string `yaml:"schedule,omitempty"` // cron expression used by serve
	StaleAfter   string `yaml:"staleAfter,omitempty"`
	AbandonAfter string `yaml:"abandonAfter,omitempty"`
	Concurrency  int    `yaml:"concurrency,omitempty"`
}

// ServerConfig configures the local HTTP server.
type ServerConfig struct {
	Addr         string `yaml:"addr,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes,omitempty"`
	CORSOrigin   string `yaml:"corsOrigin,omitempty"`
}

// EventsConfig configures run event publishing. An empty bus disables it.
type EventsConfig struct {
	BusName string `yaml:"busName,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// DefaultSweepSchedule runs the sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Load reads runledger.yaml from dir, applies environment overrides and
// validates the result.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds the configuration from environment variables alone. It
// always selects DynamoDB and S3.
func FromEnv() (*Config, error) {
	cfg := Config{Provider: ProviderDynamoDB, Artifacts: ArtifactsConfig{Backend: BackendS3}}
	applyEnv(&cfg, os.LookupEnv)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating environment: %w", err)
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func first(lookup lookupFunc, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := lookup(k); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func set(dst *string, lookup lookupFunc, keys ...string) {
	if v, ok := first(lookup, keys...); ok {
		*dst = v
	}
}

func applyEnv(cfg *Config, lookup lookupFunc) {
	set(&cfg.Stage, lookup, "STAGE")
	set(&cfg.Region, lookup, "AWS_REGION", "REGION")
	set(&cfg.LogLevel, lookup, "LOG_LEVEL")

	if v, ok := first(lookup, "DYNAMODB_TABLE", "TABLE_NAME"); ok {
		if cfg.DynamoDB == nil {
			cfg.DynamoDB = &ddbprov.Config{}
		}
		cfg.DynamoDB.TableName = v
	}
	if v, ok := first(lookup, "DYNAMODB_ENDPOINT"); ok && cfg.DynamoDB != nil {
		cfg.DynamoDB.Endpoint = v
	}

	set(&cfg.Artifacts.Backend, lookup, "ARTIFACT_BACKEND")
	if v, ok := first(lookup, "S3_BUCKET"); ok {
		if cfg.Artifacts.S3 == nil {
			cfg.Artifacts.S3 = &artifact.S3Config{}
		}
		cfg.Artifacts.S3.Bucket = v
	}
	if v, ok := first(lookup, "S3_ENDPOINT"); ok && cfg.Artifacts.S3 != nil {
		cfg.Artifacts.S3.Endpoint = v
	}

	gh := &cfg.GitHub
	set(&gh.Token, lookup, "GITHUB_TOKEN")
	set(&gh.TokenSecretARN, lookup, "GITHUB_TOKEN_SECRET_ARN")
	set(&gh.WebhookSecret, lookup, "GITHUB_WEBHOOK_SECRET")
	set(&gh.WebhookSecretARN, lookup, "GITHUB_WEBHOOK_SECRET_ARN")
	set(&gh.Owner, lookup, "GITHUB_OWNER")
	set(&gh.Repo, lookup, "GITHUB_REPO")
	set(&gh.Workflow.Workflow, lookup, "GITHUB_WORKFLOW")
	set(&gh.Ref, lookup, "GITHUB_REF")

	set(&cfg.Events.BusName, lookup, "EVENT_BUS_NAME")
	set(&cfg.Server.APIKey, lookup, "API_KEY")
	set(&cfg.Telemetry.Endpoint, lookup, "OTEL_EXPORTER_OTLP_ENDPOINT")
	set(&cfg.Runs.RunIDFormat, lookup, "RUN_ID_FORMAT")
	if v, ok := first(lookup, "EXPOSE_ERROR_DETAILS"); ok {
		cfg.Runs.ExposeErrorDetails, _ = strconv.ParseBool(v)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Stage == "" {
		cfg.Stage = "dev"
	}
	if cfg.Artifacts.Backend == "" {
		cfg.Artifacts.Backend = BackendS3
	}
	if cfg.GitHub.Owner == "" {
		cfg.GitHub.Owner = "mwebcode"
	}
	if cfg.GitHub.Repo == "" {
		cfg.GitHub.Repo = "hgc-frontend-tests"
	}
	if cfg.GitHub.Workflow.Workflow == "" {
		cfg.GitHub.Workflow.Workflow = "run-tests.yml"
	}
	if cfg.GitHub.Ref == "" {
		cfg.GitHub.Ref = "main"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Sweep.Schedule == "" {
		cfg.Sweep.Schedule = DefaultSweepSchedule
	}
	if cfg.DynamoDB != nil && cfg.DynamoDB.Region == "" {
		cfg.DynamoDB.Region = cfg.Region
	}
	if cfg.Artifacts.S3 != nil && cfg.Artifacts.S3.Region == "" {
		cfg.Artifacts.S3.Region = cfg.Region
	}
}

func validate(cfg *Config) error {
	switch cfg.Provider {
	case "":
		return fmt.Errorf("provider is required")
	case ProviderDynamoDB:
		if cfg.DynamoDB == nil || cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case ProviderSQLite:
		if cfg.SQLite == nil || cfg.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	switch cfg.Artifacts.Backend {
	case BackendS3:
		if cfg.Artifacts.S3 == nil || cfg.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required")
		}
	case BackendMinio:
		if cfg.Artifacts.Minio == nil || cfg.Artifacts.Minio.Endpoint == "" || cfg.Artifacts.Minio.Bucket == "" {
			return fmt.Errorf("artifacts.minio.endpoint and artifacts.minio.bucket are required")
		}
	default:
		return fmt.Errorf("unknown artifact backend %q", cfg.Artifacts.Backend)
	}

	if cfg.GitHub.Token == "" && cfg.GitHub.TokenSecretARN == "" {
		return fmt.Errorf("github.token or github.tokenSecretArn is required")
	}
	if _, err := runs.RunIDGenerator(cfg.Runs.RunIDFormat); err != nil {
		return err
	}

	for name, v := range map[string]string{
		"artifacts.urlExpiry":        cfg.Artifacts.URLExpiry,
		"github.breakerOpenDuration": cfg.GitHub.BreakerOpenDuration,
		"sweep.staleAfter":           cfg.Sweep.StaleAfter,
		"sweep.abandonAfter":         cfg.Sweep.AbandonAfter,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", name, v)
		}
	}
	return nil
}

// Duration parses s, returning fallback for an empty value. Values are
// checked by validate, so a parse failure also yields fallback.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServiceConfig returns the run service settings with secrets as configured.
func (c *Config) ServiceConfig() runs.Config {
	return runs.Config{
		Workflow:           c.GitHub.Workflow,
		WebhookSecret:      c.GitHub.WebhookSecret,
		RunIDFormat:        c.Runs.RunIDFormat,
		ExposeErrorDetails: c.Runs.ExposeErrorDetails,
		StaleAfter:         Duration(c.Sweep.StaleAfter, runs.DefaultStaleAfter),
		AbandonAfter:       Duration(c.Sweep.AbandonAfter, runs.DefaultAbandonAfter),
		SweepConcurrency:   c.Sweep.Concurrency,
	}
}
