// ABOUTME: Configuration loading and parsing for skybridge
// ABOUTME: Supports YAML or TOML files, ${VAR} expansion, .env files, and SKYBRIDGE_* overrides

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SKYBRIDGE_"

// Defaults
const (
	DefaultHTTPAddr          = ":8000"
	DefaultBaseURL           = "http://localhost:8000"
	DefaultSessionTTL        = 24 * time.Hour
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultToolTimeout       = 30 * time.Second
	DefaultServerName        = "skybridge"
)

// DefaultGoogleScopes covers sign-in plus the calendar tools.
var DefaultGoogleScopes = []string{
	"openid",
	"profile",
	"email",
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// Config represents the complete skybridge configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	Google  GoogleConfig  `yaml:"google" toml:"google" envPrefix:"GOOGLE_"`
	Weather WeatherConfig `yaml:"weather" toml:"weather" envPrefix:"WEATHER_"`
	MCP     MCPConfig     `yaml:"mcp" toml:"mcp" envPrefix:"MCP_"`
	Audit   AuditConfig   `yaml:"audit" toml:"audit" envPrefix:"AUDIT_"`
	Logging LoggingConfig `yaml:"logging" toml:"logging" envPrefix:"LOGGING_"`
}

// ServerConfig holds listener and public URL configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR" validate:"required"`
	// BaseURL is the externally reachable origin, used for the OAuth redirect and client config snippets
	BaseURL string `yaml:"base_url" toml:"base_url" env:"BASE_URL" validate:"required,url"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	// SigningKey signs session tokens. Empty means a random key per process.
	SigningKey string        `yaml:"signing_key" toml:"signing_key" env:"SIGNING_KEY" validate:"omitempty,min=32"`
	SessionTTL time.Duration `yaml:"-" toml:"-"`

	SessionTTLRaw string `yaml:"session_ttl" toml:"session_ttl" env:"SESSION_TTL"`
}

// GoogleConfig holds the OAuth client registered with Google
type GoogleConfig struct {
	ClientID     string   `yaml:"client_id" toml:"client_id" env:"CLIENT_ID" validate:"required"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret" env:"CLIENT_SECRET" validate:"required"`
	RedirectURL  string   `yaml:"redirect_url" toml:"redirect_url" env:"REDIRECT_URL" validate:"omitempty,url"`
	Scopes       []string `yaml:"scopes" toml:"scopes" env:"SCOPES" envSeparator:","`
}

// WeatherConfig holds OpenWeatherMap settings
type WeatherConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" toml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
}

// MCPConfig holds protocol gateway settings
type MCPConfig struct {
	ServerName         string        `yaml:"server_name" toml:"server_name" env:"SERVER_NAME"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" toml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" validate:"min=0"`
	KeepaliveInterval  time.Duration `yaml:"-" toml:"-"`
	ToolTimeout        time.Duration `yaml:"-" toml:"-"`

	// Raw string values for YAML unmarshaling
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval" env:"KEEPALIVE_INTERVAL"`
	ToolTimeoutRaw       string `yaml:"tool_timeout" toml:"tool_timeout" env:"TOOL_TIMEOUT"`
}

// AuditConfig holds the tool-call audit log location. Empty disables auditing.
type AuditConfig struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" env:"FORMAT" validate:"omitempty,oneof=text json"`
}

// DefaultPath returns $SKYBRIDGE_CONFIG, or config.yaml under the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv("SKYBRIDGE_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "skybridge", "config.yaml")
}

// LoadDotEnv loads each file into the process environment without overriding
// variables that are already set. Missing files are skipped; a leading ~ is
// expanded to the home directory.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if strings.HasPrefix(file, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			file = strings.Replace(file, "~", home, 1)
		}
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// SKYBRIDGE_* variables override individual fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(&cfg)
}

// LoadFromEnv builds a Config from defaults and SKYBRIDGE_* variables alone.
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = DefaultBaseURL
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = DefaultSessionTTL
	}

	if cfg.Google.RedirectURL == "" {
		cfg.Google.RedirectURL = cfg.Server.BaseURL + "/auth/callback"
	}
	if len(cfg.Google.Scopes) == 0 {
		cfg.Google.Scopes = append([]string(nil), DefaultGoogleScopes...)
	}

	if cfg.MCP.ServerName == "" {
		cfg.MCP.ServerName = DefaultServerName
	}
	if cfg.MCP.KeepaliveInterval == 0 {
		cfg.MCP.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.MCP.ToolTimeout == 0 {
		cfg.MCP.ToolTimeout = DefaultToolTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return err
	}

	if _, _, err := net.SplitHostPort(c.Server.HTTPAddr); err != nil {
		return fmt.Errorf("server.http_addr %q must be host:port: %w", c.Server.HTTPAddr, err)
	}
	if c.Auth.SessionTTL < 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.MCP.KeepaliveInterval < 0 {
		return fmt.Errorf("mcp.keepalive_interval must be positive")
	}
	if c.MCP.ToolTimeout < 0 {
		return fmt.Errorf("mcp.tool_timeout must be positive")
	}
	return nil
}

// describe turns a validator failure into a dotted-path message.
func describe(fe validator.FieldError) error {
	// Namespace is "Config.server.base_url"; drop the root type
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "min":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "url":
		return fmt.Errorf("%s must be an absolute URL", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Errorf("%s failed %s validation", field, fe.Tag())
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"mcp.keepalive_interval", cfg.MCP.KeepaliveIntervalRaw, &cfg.MCP.KeepaliveInterval},
		{"mcp.tool_timeout", cfg.MCP.ToolTimeoutRaw, &cfg.MCP.ToolTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
