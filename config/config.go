package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the writing pipeline.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Swarms    SwarmsConfig    `mapstructure:"swarms"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configurations.
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration.
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai-compatible
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration.
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model key serves each pipeline role.
type LLMRoutingConfig struct {
	Planning string `mapstructure:"planning"`
	Drafting string `mapstructure:"drafting"`
	Swarm    string `mapstructure:"swarm"`
	Fallback string `mapstructure:"fallback"`
}

// SearchConfig contains settings for the search provider family.
type SearchConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxResults       int           `mapstructure:"max_results"`
	BraveAPIKey      string        `mapstructure:"brave_api_key"`
	SerperAPIKey     string        `mapstructure:"serper_api_key"`
	GithubToken      string        `mapstructure:"github_token"`
	CrossrefMailto   string        `mapstructure:"crossref_mailto"`
	LibraryIndexPath string        `mapstructure:"library_index_path"`
}

// VerifyConfig contains source verification policy knobs.
type VerifyConfig struct {
	LivenessTimeout time.Duration `mapstructure:"liveness_timeout"`
	EnrichTimeout   time.Duration `mapstructure:"enrich_timeout"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	RenderFallback  bool          `mapstructure:"render_fallback"` // chromedp fetch for JS-only pages
}

// WorkflowConfig bounds the orchestrator graph.
type WorkflowConfig struct {
	MaxIterations       int           `mapstructure:"max_iterations"`
	MaxFallbackAttempts int           `mapstructure:"max_fallback_attempts"`
	MaxConcurrentRuns   int           `mapstructure:"max_concurrent_runs"`
	StepTimeout         time.Duration `mapstructure:"step_timeout"`
}

// SwarmsConfig bounds swarm fan-out.
type SwarmsConfig struct {
	MemberTimeout time.Duration `mapstructure:"member_timeout"`
}

// MemoryConfig controls writing-fingerprint personalization.
type MemoryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	MergeAlpha float64 `mapstructure:"merge_alpha"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string from the configured fields.
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, host, port, c.DBName, ssl)
}

// RedisConfig contains Redis settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the Redis client.
func (c RedisConfig) Addr() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "6379"
	}
	return host + ":" + port
}

// TelemetryConfig contains telemetry and monitoring settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	LogFile      string `mapstructure:"log_file"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow.max_iterations must be > 0")
	}
	if c.Workflow.MaxFallbackAttempts <= 0 {
		return fmt.Errorf("workflow.max_fallback_attempts must be > 0")
	}
	if c.Memory.MergeAlpha <= 0 || c.Memory.MergeAlpha >= 1 {
		return fmt.Errorf("memory.merge_alpha must be in (0, 1)")
	}
	return nil
}

// LoadConfig reads configuration from file/environment and applies defaults.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", 60*time.Second)
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("search.timeout", 10*time.Second)
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("verify.liveness_timeout", 5*time.Second)
	viper.SetDefault("verify.enrich_timeout", 8*time.Second)
	viper.SetDefault("verify.max_concurrent", 8)
	viper.SetDefault("workflow.max_iterations", 5)
	viper.SetDefault("workflow.max_fallback_attempts", 2)
	viper.SetDefault("workflow.max_concurrent_runs", 4)
	viper.SetDefault("workflow.step_timeout", 5*time.Minute)
	viper.SetDefault("swarms.member_timeout", 90*time.Second)
	viper.SetDefault("memory.enabled", true)
	viper.SetDefault("memory.merge_alpha", 0.3)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			viper.AddConfigPath(exeDir)
			viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HANDYWRITERZ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env + defaults must be enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
