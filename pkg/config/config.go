// Package config loads and validates the RESIGN server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (RESIGN_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/resignhq/resign/pkg/identity"
)

// Config represents the full server configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server holds listener-level settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store configures account persistence.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Policy points at the role×resource rule table.
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`

	// Metrics configures the optional Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Bootstrap lists accounts seeded into an empty store at startup.
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" yaml:"bootstrap"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// ServerConfig holds listener-level settings.
type ServerConfig struct {
	// BindAddress is the interface to listen on. Empty means all.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the TCP port of the session listener.
	Port int `mapstructure:"port" yaml:"port"`

	// ReadTimeout bounds each blocking client read. Zero disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// MaxConnections caps concurrent sessions. Zero means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TLS configures the optional TLS listener.
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig configures the TLS listener. The session core is transport
// agnostic; this only affects the wrapping of accepted connections.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

// StoreConfig configures account persistence.
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Path is the Badger database directory. Ignored for memory.
	Path string `mapstructure:"path" yaml:"path"`
}

// PolicyConfig points at the policy rule table.
type PolicyConfig struct {
	// Path is the YAML policy file, loaded exactly once at startup.
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// BootstrapConfig lists accounts seeded into an empty store.
type BootstrapConfig struct {
	Accounts []BootstrapAccount `mapstructure:"accounts" yaml:"accounts"`
}

// BootstrapAccount describes one seed account. Exactly one of Password and
// PasswordHash must be set; plaintext passwords are hashed at seed time and
// exist only to make development setups convenient.
type BootstrapAccount struct {
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	PhoneNumber  string `mapstructure:"phone_number" yaml:"phone_number"`
	Role         string `mapstructure:"role" yaml:"role"`
}

// Load reads configuration from the given file (optional) and the
// environment, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("RESIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency. Startup aborts on the
// first violation.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level: invalid level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: invalid format %q", c.Logging.Format)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout: must not be negative")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections: must not be negative")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls: cert_file and key_file are required when TLS is enabled")
		}
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path: required for the badger backend")
		}
	default:
		return fmt.Errorf("store.backend: invalid backend %q", c.Store.Backend)
	}

	if c.Policy.Path == "" {
		return fmt.Errorf("policy.path: required")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen: required when metrics are enabled")
	}

	for i, account := range c.Bootstrap.Accounts {
		if err := validateBootstrapAccount(account); err != nil {
			return fmt.Errorf("bootstrap.accounts[%d]: %w", i, err)
		}
	}

	return nil
}

// validateBootstrapAccount applies the same field policies the AddUser
// action enforces at runtime.
func validateBootstrapAccount(account BootstrapAccount) error {
	if !identity.ValidUsername(account.Username) {
		return fmt.Errorf("invalid username %q", account.Username)
	}
	if account.Username != identity.NormalizeUsername(account.Username) {
		return fmt.Errorf("username %q must be lowercase", account.Username)
	}
	if (account.Password == "") == (account.PasswordHash == "") {
		return fmt.Errorf("exactly one of password and password_hash is required")
	}
	if account.Password != "" && !identity.ValidPassword(account.Password) {
		return fmt.Errorf("password does not meet the password policy")
	}
	if !identity.ValidPhone(account.PhoneNumber) {
		return fmt.Errorf("invalid phone number %q", account.PhoneNumber)
	}
	if _, err := identity.ParseRole(account.Role); err != nil {
		return err
	}
	return nil
}
