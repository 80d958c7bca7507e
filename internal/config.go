package internal

import (
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Corpus CorpusConfig      `yaml:"corpus"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Linker LinkerConfig      `yaml:"linker"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Corpus.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Linker.Validate()
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
	// CORSOrigins lists origins allowed to call the API. Empty disables CORS.
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

// CorpusConfig describes the documentation corpus on disk.
type CorpusConfig struct {
	Path string `yaml:"path"`
	// RootPage is the entry page; it is never reported as an orphan.
	RootPage string `yaml:"root_page"`
	// URLPrefix is the site path prefix that rooted links may carry.
	URLPrefix string `yaml:"url_prefix"`
	// Exclude holds doublestar patterns of corpus paths to ignore.
	Exclude []string `yaml:"exclude"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.RootPage, validation.Required),
		validation.Field(&c.Exclude, validation.Each(validation.By(globPattern))),
	)
}

func globPattern(v any) error {
	s, _ := v.(string)
	if !doublestar.ValidatePattern(s) {
		return fmt.Errorf("invalid glob pattern %q", s)
	}
	return nil
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

// LinkerConfig tunes the link pass.
type LinkerConfig struct {
	// Workers bounds page-level parallelism; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
	// PersistRelated writes mentioned pages back into the related header.
	PersistRelated bool `yaml:"persist_related"`
}

// Validate validates the linker configuration.
func (c *LinkerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
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
		Corpus: CorpusConfig{
			Path:     "./docs",
			RootPage: "index.md",
		},
		SQLite: SQLiteConfig{
			Path: "./codewiki.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
