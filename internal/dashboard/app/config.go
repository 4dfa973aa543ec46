package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // display zones must resolve in minimal containers

	"gopkg.in/yaml.v3"

	"github.com/ecobalance/dashboard/pkg/cryptox"
)

const (
	defaultDisplayTimezone = "America/Sao_Paulo"
	defaultChannelID       = "3178808"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// TelemetryConfig points at the ThingSpeak channel holding the bin levels.
type TelemetryConfig struct {
	BaseURL    string        `yaml:"base_url"`
	ChannelID  string        `yaml:"channel_id"`
	ReadAPIKey string        `yaml:"read_api_key"`
	Timezone   string        `yaml:"timezone"` // forwarded on range queries; defaults to the display timezone
	Results    int           `yaml:"results"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Config struct {
	DatabaseURL string `yaml:"database_url"` // postgres:// URL, or a SQLite file path (default: ./ecobalance.db)
	PepperFile  string `yaml:"pepper_file"`  // path to the password pepper (default: ./pepper)

	SessionSecret       string        `yaml:"session_secret"`        // HS256 key for session cookies; required in prod
	SessionTTL          time.Duration `yaml:"session_ttl"`           // default: 12h
	SessionCookieSecure bool          `yaml:"session_cookie_secure"` // set the Secure cookie attribute (default: true in prod)

	MFAIssuer      string `yaml:"mfa_issuer"`       // label shown in authenticator apps (default: EcoBalance)
	MFAMaxAttempts int    `yaml:"mfa_max_attempts"` // wrong codes allowed per login (default: 5)

	Telemetry TelemetryConfig `yaml:"telemetry"`

	DisplayTimezone string        `yaml:"display_timezone"` // default: America/Sao_Paulo
	RefreshInterval time.Duration `yaml:"refresh_interval"` // dashboard polling period (default: 5s)

	Env                  string        `yaml:"env"`         // dev, staging, prod (default: dev)
	LogLevel             string        `yaml:"log_level"`   // debug, info, warn, error (default: info)
	LogFormat            string        `yaml:"log_format"`  // json, text (default: json)
	Port                 int           `yaml:"port"`        // default: 5000
	TrustProxy           bool          `yaml:"trust_proxy"` // read client IPs from X-Forwarded-For / X-Real-IP
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`

	// set by Validate when no session secret was configured
	generatedSecret bool
	// whether the file or the environment chose SessionCookieSecure
	cookieSecureSet bool
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		DatabaseURL:    "ecobalance.db",
		PepperFile:     "pepper",
		SessionTTL:     12 * time.Hour,
		MFAIssuer:      "EcoBalance",
		MFAMaxAttempts: 5,
		Telemetry: TelemetryConfig{
			BaseURL:   "https://api.thingspeak.com",
			ChannelID: defaultChannelID,
			Results:   100,
			Timeout:   10 * time.Second,
		},
		DisplayTimezone:      defaultDisplayTimezone,
		RefreshInterval:      5 * time.Second,
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 5000,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
	}
}

// LoadConfig layers defaults, the optional YAML file at path, and then the
// environment. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}

		var keys map[string]any
		if err := yaml.Unmarshal(data, &keys); err == nil {
			_, cfg.cookieSecureSet = keys["session_cookie_secure"]
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.PepperFile = getEnvOrDefault("PEPPER_FILE", c.PepperFile)

	c.SessionSecret = getEnvOrDefault("SESSION_SECRET", c.SessionSecret)
	c.SessionTTL = getEnvDurationOrDefault("SESSION_TTL", c.SessionTTL)
	if _, err := strconv.ParseBool(os.Getenv("SESSION_COOKIE_SECURE")); err == nil {
		c.cookieSecureSet = true
	}
	c.SessionCookieSecure = getEnvBoolOrDefault("SESSION_COOKIE_SECURE", c.SessionCookieSecure)

	c.MFAIssuer = getEnvOrDefault("MFA_ISSUER", c.MFAIssuer)
	c.MFAMaxAttempts = getEnvIntOrDefault("MFA_MAX_ATTEMPTS", c.MFAMaxAttempts)

	c.Telemetry.BaseURL = getEnvOrDefault("TELEMETRY_BASE_URL", c.Telemetry.BaseURL)
	c.Telemetry.ChannelID = getEnvOrDefault("TELEMETRY_CHANNEL_ID", c.Telemetry.ChannelID)
	c.Telemetry.ReadAPIKey = getEnvOrDefault("TELEMETRY_READ_API_KEY", c.Telemetry.ReadAPIKey)
	c.Telemetry.Timezone = getEnvOrDefault("TELEMETRY_TIMEZONE", c.Telemetry.Timezone)
	c.Telemetry.Results = getEnvIntOrDefault("TELEMETRY_RESULTS", c.Telemetry.Results)
	c.Telemetry.Timeout = getEnvDurationOrDefault("TELEMETRY_TIMEOUT", c.Telemetry.Timeout)

	c.DisplayTimezone = getEnvOrDefault("DISPLAY_TIMEZONE", c.DisplayTimezone)
	c.RefreshInterval = getEnvDurationOrDefault("DASHBOARD_REFRESH_INTERVAL", c.RefreshInterval)

	c.Env = getEnvOrDefault("ENV", c.Env)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
	c.Port = getEnvIntOrDefault("PORT", c.Port)
	c.TrustProxy = getEnvBoolOrDefault("TRUST_PROXY", c.TrustProxy)
	c.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", c.ShutdownGracePeriod)
	c.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", c.HousekeepingInterval)
}

// Validate checks the configuration and fills what can be derived. Outside
// prod a missing session secret is replaced with a random one, which logs
// everyone out on restart. In prod cookies are Secure unless explicitly
// turned off.
func (c *Config) Validate() error {
	if c.Env == "prod" && !c.cookieSecureSet {
		c.SessionCookieSecure = true
	}

	if c.SessionSecret == "" {
		if c.Env == "prod" {
			return fmt.Errorf("%w: SESSION_SECRET is required in prod", ErrInvalidConfig)
		}
		secret, err := cryptox.GenerateToken(32)
		if err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		c.SessionSecret = secret
		c.generatedSecret = true
	}

	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("%w: unknown display timezone %q", ErrInvalidConfig, c.DisplayTimezone)
	}
	if c.Telemetry.Timezone == "" {
		c.Telemetry.Timezone = c.DisplayTimezone
	} else if _, err := time.LoadLocation(c.Telemetry.Timezone); err != nil {
		return fmt.Errorf("%w: unknown telemetry timezone %q", ErrInvalidConfig, c.Telemetry.Timezone)
	}

	if strings.TrimSpace(c.Telemetry.ChannelID) == "" {
		return fmt.Errorf("%w: telemetry channel id is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", ErrInvalidConfig)
	}
	if c.MFAMaxAttempts <= 0 {
		return fmt.Errorf("%w: mfa max attempts must be positive", ErrInvalidConfig)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%w: refresh interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// InsecureCookiesInProd reports a prod config that explicitly disabled
// Secure session cookies.
func (c Config) InsecureCookiesInProd() bool {
	return c.Env == "prod" && !c.SessionCookieSecure
}

// DisplayLocation resolves DisplayTimezone. Validate has already checked it.
func (c Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are read as seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
