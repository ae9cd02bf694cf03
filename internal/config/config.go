// ABOUTME: Configuration loading and parsing for keepy-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete keepy-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// AuthConfig holds API authentication configuration.
// APISecret has no fallback value: the gateway refuses to start without one.
type AuthConfig struct {
	APISecret string `yaml:"api_secret"`
}

// WebhookConfig holds outbound webhook delivery configuration.
// URL is the process-wide default receiver; sessions may override it.
// An empty URL disables dispatch entirely.
type WebhookConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"-"`
	MaxInFlight int           `yaml:"max_in_flight"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// WhatsAppConfig holds underlying client configuration.
type WhatsAppConfig struct {
	// Driver selects the underlying client: "whatsmeow" (default) or "sim".
	Driver string `yaml:"driver"`
	// StoreDir is the directory holding whatsmeow device stores, one
	// database per session.
	StoreDir string `yaml:"store_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = ":3000"
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Webhook.MaxInFlight == 0 {
		c.Webhook.MaxInFlight = 32
	}
	if c.WhatsApp.Driver == "" {
		c.WhatsApp.Driver = "whatsmeow"
	}
	if c.WhatsApp.StoreDir == "" {
		c.WhatsApp.StoreDir = "keepy-sessions"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The API secret is deliberately required: a shared fallback value would
	// leave every deployment open to anyone who read the source.
	if c.Auth.APISecret == "" {
		return fmt.Errorf("auth.api_secret is required (set WA_API_SECRET and reference it as ${WA_API_SECRET})")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.WhatsApp.Driver {
	case "whatsmeow", "sim":
	default:
		return fmt.Errorf("whatsapp.driver must be \"whatsmeow\" or \"sim\", got %q", c.WhatsApp.Driver)
	}

	if c.Webhook.MaxInFlight < 0 {
		return fmt.Errorf("webhook.max_in_flight must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Webhook.TimeoutRaw != "" {
		cfg.Webhook.Timeout, err = time.ParseDuration(cfg.Webhook.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing webhook timeout %q: %w", cfg.Webhook.TimeoutRaw, err)
		}
	}

	return nil
}
