// Package config loads finsight-engine configuration from config.yaml with
// environment variable overrides. Environment variables always win for
// fields that support both; secrets (warehouse password, LLM API key) are
// env-only and never read from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for finsight-engine.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Warehouse is the financial warehouse the engine resolves against.
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Resolver tunes the question resolution pipeline.
	Resolver ResolverConfig `yaml:"resolver"`

	// LLM configures the optional extraction-refinement model.
	LLM LLMConfig `yaml:"llm"`

	// MCP configures the Model Context Protocol surface.
	MCP MCPConfig `yaml:"mcp"`
}

// WarehouseConfig selects and parameterizes the warehouse executor.
// The PostgreSQL driver serves development, tests, and CI; the SQL Server
// driver serves the production warehouse.
type WarehouseConfig struct {
	Driver         string `yaml:"driver" env:"WAREHOUSE_DRIVER" env-default:"postgres"`
	Host           string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"WAREHOUSE_USER" env-default:"finsight"`
	Password       string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:"finsight_warehouse"`
	SSLMode        string `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"WAREHOUSE_MAX_CONNECTIONS" env-default:"10"`

	// AutoMigrate provisions the warehouse schema at startup. Only honored
	// for the PostgreSQL driver; the production SQL Server warehouse is
	// never migrated by the engine.
	AutoMigrate    bool   `yaml:"auto_migrate" env:"WAREHOUSE_AUTO_MIGRATE" env-default:"false"`
	MigrationsPath string `yaml:"migrations_path" env:"WAREHOUSE_MIGRATIONS_PATH" env-default:"migrations"`
}

// Warehouse driver names accepted by WarehouseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverMSSQL    = "mssql"
)

// ResolverConfig tunes the resolution pipeline.
type ResolverConfig struct {
	// SimilarityThreshold is the minimum fuzzy-match score for company
	// name candidates.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"RESOLVER_SIMILARITY_THRESHOLD" env-default:"0.55"`
	// TimeoutSeconds bounds one resolution end to end.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"RESOLVER_TIMEOUT_SECONDS" env-default:"15"`
	// MaxRows caps executed retrievals.
	MaxRows int `yaml:"max_rows" env:"RESOLVER_MAX_ROWS" env-default:"100"`
	// ExecuteQueries controls whether resolved retrievals run against the
	// warehouse or are only returned as SQL + params.
	ExecuteQueries bool `yaml:"execute_queries" env:"RESOLVER_EXECUTE_QUERIES" env-default:"true"`
	// MetadataRefreshMinutes is the interval for periodic snapshot
	// refreshes. Zero disables the background refresh; the MCP
	// refresh_metadata tool still works.
	MetadataRefreshMinutes int `yaml:"metadata_refresh_minutes" env:"RESOLVER_METADATA_REFRESH_MINUTES" env-default:"0"`
}

// Timeout returns the per-request resolution timeout as a duration.
func (c *ResolverConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RefreshInterval returns the metadata refresh interval; zero means
// background refresh is disabled.
func (c *ResolverConfig) RefreshInterval() time.Duration {
	return time.Duration(c.MetadataRefreshMinutes) * time.Minute
}

// LLMConfig configures the optional LLM extraction refinement. Refinement
// is disabled unless both Endpoint and Model are set.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	// MinConfidence is the lexical-extraction confidence below which the
	// model is consulted.
	MinConfidence float64 `yaml:"min_confidence" env:"LLM_MIN_CONFIDENCE" env-default:"0.8"`
}

// IsAvailable returns true if LLM refinement is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.Model != ""
}

// MCPConfig configures the MCP serving surface.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"MCP_PATH" env-default:"/mcp"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml does not exist, the environment alone is
// read. The version parameter is injected at build time and set on the
// returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set.
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Warehouse.Driver) {
	case DriverPostgres, DriverMSSQL:
	default:
		return fmt.Errorf("unknown warehouse driver %q (want %q or %q)", c.Warehouse.Driver, DriverPostgres, DriverMSSQL)
	}
	if c.Resolver.TimeoutSeconds <= 0 {
		return fmt.Errorf("resolver timeout must be positive, got %d", c.Resolver.TimeoutSeconds)
	}
	if c.Resolver.MaxRows <= 0 {
		return fmt.Errorf("resolver max_rows must be positive, got %d", c.Resolver.MaxRows)
	}
	return nil
}

// ConnectionString returns the driver-appropriate connection string.
// The host is adjusted for Docker so a containerized engine can reach a
// warehouse on the host machine.
func (c *WarehouseConfig) ConnectionString() string {
	host := ResolveHostForDocker(c.Host)
	if strings.ToLower(c.Driver) == DriverMSSQL {
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", host, c.Port),
		}
		q := url.Values{}
		q.Set("database", c.Database)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
