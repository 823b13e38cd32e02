package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/minto/internal/generation"
	"github.com/starford/minto/internal/layout"
	"github.com/starford/minto/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Generation providers.
const (
	ProviderDisabled = "disabled"
	ProviderOpenAI   = "openai"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Layout     LayoutConfig      `yaml:"layout"`
	Generation GenerationConfig  `yaml:"generation"`
	Imports    ImportsConfig     `yaml:"imports"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	return c.Imports.Validate()
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
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.CORSOrigins, validation.Each(validation.Required)),
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

// LayoutConfig holds the layout engine settings. Zero sizes and separations
// fall back to the engine defaults.
type LayoutConfig struct {
	Direction string      `yaml:"direction"`
	RankSep   float64     `yaml:"rank_sep"`
	NodeSep   float64     `yaml:"node_sep"`
	RootSize  layout.Size `yaml:"root_size"`
	ChildSize layout.Size `yaml:"child_size"`
}

// Validate validates the layout configuration.
func (c *LayoutConfig) Validate() error {
	if c.Direction == "" {
		c.Direction = string(models.DirectionTB)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Direction, validation.In(string(models.DirectionTB), string(models.DirectionLR))),
		validation.Field(&c.RankSep, validation.Min(0.0)),
		validation.Field(&c.NodeSep, validation.Min(0.0)),
	)
}

// Options converts the configuration to engine options.
func (c *LayoutConfig) Options() layout.Options {
	return layout.Options{
		RankSep:   c.RankSep,
		NodeSep:   c.NodeSep,
		RootSize:  c.RootSize,
		ChildSize: c.ChildSize,
	}
}

// DefaultDirection returns the configured direction.
func (c *LayoutConfig) DefaultDirection() models.Direction {
	if c.Direction == "" {
		return models.DirectionTB
	}
	return models.Direction(c.Direction)
}

// GenerationConfig selects and tunes the diagram generator.
//
// Provider "disabled" keeps the service running without a model: the
// reserved example, imports and layout still work, generation calls fail
// with 503.
type GenerationConfig struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxDocumentChars  int           `yaml:"max_document_chars"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around model calls.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

// Validate validates the generation configuration.
func (c *GenerationConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderDisabled
	}
	openAI := c.Provider == ProviderOpenAI
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderDisabled, ProviderOpenAI)),
		validation.Field(&c.APIKey, validation.When(openAI && c.BaseURL == "", validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
		validation.Field(&c.MaxDocumentChars, validation.Min(0)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Breaker,
		validation.Field(&c.Breaker.FailureThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
}

// OpenAI converts the configuration to generator settings.
func (c *GenerationConfig) OpenAI() generation.OpenAIConfig {
	bc := generation.DefaultBreakerConfig()
	if c.Breaker.MinRequests > 0 {
		bc = generation.BreakerConfig(c.Breaker)
	}
	return generation.OpenAIConfig{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
		MaxDocumentChars:  c.MaxDocumentChars,
		Breaker:           bc,
	}
}

// ImportsConfig holds the watched import directory.
type ImportsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Validate validates the imports configuration.
func (c *ImportsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./minto.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Layout: LayoutConfig{
			Direction: string(models.DirectionTB),
		},
		Generation: GenerationConfig{
			Provider: ProviderDisabled,
			Timeout:  2 * time.Minute,
		},
		Imports: ImportsConfig{
			Dir: "./diagrams",
		},
	}
}
