package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "15s" or "10m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// ApplianceKind identifies which vendor field paths apply to an appliance.
type ApplianceKind string

const (
	// KindWasher selects the washerOperatingState capability paths.
	KindWasher ApplianceKind = "washer"
	// KindDryer selects the dryerOperatingState capability paths.
	KindDryer ApplianceKind = "dryer"
)

// ApplianceConfig binds an appliance kind to a SmartThings device identifier.
// An empty identifier disables the appliance entirely.
type ApplianceConfig struct {
	DeviceID string `yaml:"device_id"`
}

// Enabled reports whether the appliance should be polled at all.
func (a ApplianceConfig) Enabled() bool {
	return a.DeviceID != ""
}

// AppliancesConfig holds the two supported appliance slots.
type AppliancesConfig struct {
	Washer ApplianceConfig `yaml:"washer"`
	Dryer  ApplianceConfig `yaml:"dryer"`
}

// SmartThingsConfig describes the remote status API and OAuth endpoints.
type SmartThingsConfig struct {
	BaseURL      string   `yaml:"base_url"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Timeout      Duration `yaml:"timeout,omitempty"`
}

// PollingConfig controls the adaptive polling cadence.
type PollingConfig struct {
	OnInterval  Duration `yaml:"on_interval"`
	OffInterval Duration `yaml:"off_interval"`
}

// TokensConfig locates the persisted OAuth token state.
type TokensConfig struct {
	Path string `yaml:"path"`
}

// RegistryConfig selects the device registry backend.
type RegistryConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig enables the optional metrics collector.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Config is the root configuration structure for the service.
type Config struct {
	Heartbeat   Duration          `yaml:"heartbeat,omitempty"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	SmartThings SmartThingsConfig `yaml:"smartthings"`
	Appliances  AppliancesConfig  `yaml:"appliances"`
	Polling     PollingConfig     `yaml:"polling"`
	Tokens      TokensConfig      `yaml:"tokens"`
	Registry    RegistryConfig    `yaml:"registry"`
}

const (
	// DefaultBaseURL is the SmartThings REST API root.
	DefaultBaseURL = "https://api.smartthings.com"
	// DefaultTokenURL is the SmartThings OAuth token exchange endpoint.
	DefaultTokenURL = "https://auth-global.api.smartthings.com/oauth/token"
	// DefaultTokensPath is the token store file used when none is configured.
	DefaultTokensPath = "st_tokens.json"

	defaultHeartbeat   = 60 * time.Second
	defaultOnInterval  = 60 * time.Second
	defaultOffInterval = 600 * time.Second
	defaultTimeout     = 15 * time.Second

	// MinPollInterval is the floor applied to both polling intervals to
	// prevent runaway API traffic.
	MinPollInterval = 10 * time.Second
)

// Load reads and decodes the configuration file from disk.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and cleans user-provided values in place.
func (c *Config) Normalize() {
	c.SmartThings.BaseURL = strings.TrimRight(strings.TrimSpace(c.SmartThings.BaseURL), "/")
	if c.SmartThings.BaseURL == "" {
		c.SmartThings.BaseURL = DefaultBaseURL
	}
	c.SmartThings.TokenURL = strings.TrimSpace(c.SmartThings.TokenURL)
	if c.SmartThings.TokenURL == "" {
		c.SmartThings.TokenURL = DefaultTokenURL
	}
	c.SmartThings.ClientID = strings.TrimSpace(c.SmartThings.ClientID)
	c.SmartThings.ClientSecret = strings.TrimSpace(c.SmartThings.ClientSecret)
	c.Appliances.Washer.DeviceID = normalizeDeviceID(c.Appliances.Washer.DeviceID)
	c.Appliances.Dryer.DeviceID = normalizeDeviceID(c.Appliances.Dryer.DeviceID)
	if c.Tokens.Path == "" {
		c.Tokens.Path = DefaultTokensPath
	}
	if c.Registry.Driver == "" {
		c.Registry.Driver = "memory"
	}
	c.Registry.Driver = strings.ToLower(strings.TrimSpace(c.Registry.Driver))
}

// normalizeDeviceID trims whitespace and treats the literal "None" (any case)
// as unset, mirroring an empty host platform form field.
func normalizeDeviceID(id string) string {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, "none") {
		return ""
	}
	return id
}

// Validate checks structural requirements that cannot be defaulted away.
func (c *Config) Validate() error {
	switch c.Registry.Driver {
	case "memory":
	case "sqlite":
		if c.Registry.Path == "" {
			return fmt.Errorf("registry driver sqlite requires a path")
		}
	default:
		return fmt.Errorf("unsupported registry driver %q", c.Registry.Driver)
	}
	if c.Telemetry.Enabled && c.Telemetry.Listen == "" {
		return fmt.Errorf("telemetry enabled but no listen address configured")
	}
	return nil
}

// HeartbeatInterval returns the external tick period driving the scheduler.
func (c *Config) HeartbeatInterval() time.Duration {
	if c == nil || c.Heartbeat.Duration <= 0 {
		return defaultHeartbeat
	}
	return c.Heartbeat.Duration
}

// OnInterval returns the polling interval used while an appliance is running.
func (c *Config) OnInterval() time.Duration {
	return clampInterval(c.Polling.OnInterval.Duration, defaultOnInterval)
}

// OffInterval returns the polling interval used while all appliances are idle.
func (c *Config) OffInterval() time.Duration {
	return clampInterval(c.Polling.OffInterval.Duration, defaultOffInterval)
}

// RequestTimeout returns the HTTP timeout for status and token requests.
func (c *Config) RequestTimeout() time.Duration {
	if c == nil || c.SmartThings.Timeout.Duration <= 0 {
		return defaultTimeout
	}
	return c.SmartThings.Timeout.Duration
}

func clampInterval(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}
