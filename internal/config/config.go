package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration validation constants
const (
	MinAPITimeout = 1   // Minimum API timeout in seconds
	MaxAPITimeout = 300 // Maximum API timeout in seconds
	MaxSeriesCap  = 1000

	// Default values
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultAPITimeout   = 60 // API timeout in seconds
	DefaultOutputDir    = "."
	DefaultInputMetric  = "ProcessedPromptTokens"
	DefaultOutputMetric = "GeneratedTokens"
	DefaultInterval     = "P1D"
	DefaultMaxSeries    = 100
	DefaultCurrency     = "USD"
)

// DefaultKinds are the Cognitive Services account kinds that host OpenAI models
var DefaultKinds = []string{"OpenAI", "AIServices"}

// Subscription narrows discovery to a known subscription
type Subscription struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Metrics names the Azure Monitor metrics and query shape used for token counts
type Metrics struct {
	Input     string `yaml:"input"`
	Output    string `yaml:"output"`
	Interval  string `yaml:"interval"`   // ISO 8601 time grain
	MaxSeries int    `yaml:"max_series"` // Azure returns 10 dimension series unless told otherwise
}

// Config represents the application configuration
type Config struct {
	LogLevel        string         `yaml:"log_level"`
	LogFormat       string         `yaml:"log_format"`
	APITimeout      int            `yaml:"api_timeout"` // Azure API timeout in seconds
	OutputDir       string         `yaml:"output_dir"`
	Kinds           []string       `yaml:"kinds"`
	Subscriptions   []Subscription `yaml:"subscriptions"` // Empty means every visible subscription
	Metrics         Metrics        `yaml:"metrics"`
	InferModelNames bool           `yaml:"infer_model_names"`
	IncludeCost     bool           `yaml:"include_cost"`
	Currency        string         `yaml:"currency"`
	MetricsFile     string         `yaml:"metrics_file"`
}

// Load reads an optional YAML file, then applies defaults, environment
// overrides and validation. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 -- Config file path is provided by the operator via CLI flag
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment variable error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for configuration
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.APITimeout == 0 {
		cfg.APITimeout = DefaultAPITimeout
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = append([]string(nil), DefaultKinds...)
	}
	if cfg.Metrics.Input == "" {
		cfg.Metrics.Input = DefaultInputMetric
	}
	if cfg.Metrics.Output == "" {
		cfg.Metrics.Output = DefaultOutputMetric
	}
	if cfg.Metrics.Interval == "" {
		cfg.Metrics.Interval = DefaultInterval
	}
	if cfg.Metrics.MaxSeries == 0 {
		cfg.Metrics.MaxSeries = DefaultMaxSeries
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("TOKEN_REPORT_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if val := os.Getenv("TOKEN_REPORT_OUTPUT_DIR"); val != "" {
		cfg.OutputDir = val
	}

	if val := os.Getenv("TOKEN_REPORT_API_TIMEOUT"); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_REPORT_API_TIMEOUT: must be an integer, got %q", val)
		}
		cfg.APITimeout = i
	}

	if val := os.Getenv("TOKEN_REPORT_INCLUDE_COST"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_REPORT_INCLUDE_COST: must be a boolean, got %q", val)
		}
		cfg.IncludeCost = b
	}

	// Comma-separated id or id:name pairs
	// Example: TOKEN_REPORT_SUBSCRIPTIONS="sub1:prod,sub2"
	if val := os.Getenv("TOKEN_REPORT_SUBSCRIPTIONS"); val != "" {
		if subs := ParseSubscriptions(val); len(subs) > 0 {
			cfg.Subscriptions = subs
		}
	}

	return nil
}

// ParseSubscriptions parses "id[:name],..." into subscriptions. A missing name
// falls back to the ID.
func ParseSubscriptions(val string) []Subscription {
	var subs []Subscription
	for _, pair := range strings.Split(val, ",") {
		parts := strings.SplitN(pair, ":", 2)
		id := strings.TrimSpace(parts[0])
		if id == "" {
			continue
		}
		name := id
		if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
			name = strings.TrimSpace(parts[1])
		}
		subs = append(subs, Subscription{ID: id, Name: name})
	}
	return subs
}

// SubscriptionIDs returns the configured subscription scope
func (c *Config) SubscriptionIDs() []string {
	ids := make([]string, 0, len(c.Subscriptions))
	for _, s := range c.Subscriptions {
		ids = append(ids, s.ID)
	}
	return ids
}

// Validate checks the configuration after defaults and overrides
func (c *Config) Validate() error {
	for i, sub := range c.Subscriptions {
		if sub.ID == "" {
			return fmt.Errorf("subscription at index %d has empty ID", i)
		}
	}

	for i, kind := range c.Kinds {
		if strings.TrimSpace(kind) == "" {
			return fmt.Errorf("kind at index %d is empty", i)
		}
		// Kinds are interpolated into the Resource Graph query
		if strings.ContainsAny(kind, `'"|\`) {
			return fmt.Errorf("kind %q contains characters not allowed in a query", kind)
		}
	}

	if c.APITimeout < MinAPITimeout {
		return fmt.Errorf("api_timeout must be positive, got %d", c.APITimeout)
	}
	if c.APITimeout > MaxAPITimeout {
		return fmt.Errorf("api_timeout should not exceed %d seconds, got %d", MaxAPITimeout, c.APITimeout)
	}

	if c.Metrics.Input == c.Metrics.Output {
		return fmt.Errorf("metrics.input and metrics.output must differ, both are %q", c.Metrics.Input)
	}
	if !strings.HasPrefix(c.Metrics.Interval, "P") {
		return fmt.Errorf("metrics.interval must be an ISO 8601 duration, got %q", c.Metrics.Interval)
	}
	if c.Metrics.MaxSeries < 1 || c.Metrics.MaxSeries > MaxSeriesCap {
		return fmt.Errorf("metrics.max_series must be between 1 and %d, got %d", MaxSeriesCap, c.Metrics.MaxSeries)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}

	return nil
}
