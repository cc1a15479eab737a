package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lattice/internal/cache"
	"github.com/starford/lattice/internal/graph"
	"github.com/starford/lattice/internal/index"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Graph  GraphConfig       `yaml:"graph"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Graph.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// GraphConfig tunes the link engine.
type GraphConfig struct {
	CacheTTL CacheTTLConfig `yaml:"cache_ttl"`
	// DefaultDepth is the local graph depth used when a request omits it.
	DefaultDepth  int           `yaml:"default_depth"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	// SSEThrottle bounds how often graph.invalidated events are sent.
	SSEThrottle time.Duration `yaml:"sse_throttle"`
	// Workers caps parallel note parsing during a rebuild; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	if err := c.CacheTTL.Validate(); err != nil {
		return fmt.Errorf("graph: cache_ttl: %w", err)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultDepth, validation.Required, validation.Min(1), validation.Max(graph.MaxDepth)),
		validation.Field(&c.WatchDebounce, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.SSEThrottle, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// CacheTTLConfig holds the result cache lifetimes per query class.
type CacheTTLConfig struct {
	Graph time.Duration `yaml:"graph"`
	Local time.Duration `yaml:"local"`
	Links time.Duration `yaml:"links"`
}

// Validate validates the cache TTLs.
func (c *CacheTTLConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Graph, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Local, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Links, validation.Required, validation.Min(time.Second)),
	)
}

// TTLs converts the configuration to cache lifetimes.
func (c *CacheTTLConfig) TTLs() cache.TTLs {
	return cache.TTLs{Graph: c.Graph, Local: c.Local, Links: c.Links}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	ttls := cache.DefaultTTLs()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./lattice.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Graph: GraphConfig{
			CacheTTL: CacheTTLConfig{
				Graph: ttls.Graph,
				Local: ttls.Local,
				Links: ttls.Links,
			},
			DefaultDepth:  1,
			WatchDebounce: index.DefaultDebounce,
			SSEThrottle:   2 * time.Second,
		},
	}
}
