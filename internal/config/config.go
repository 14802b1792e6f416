// Package config loads settings from defaults, an optional YAML file and the
// environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docoutline/internal/parser"
)

type Config struct {
	Port string `envconfig:"OUTLINE_PORT" yaml:"port"`

	// Auth
	APIKey string `envconfig:"OUTLINE_API_KEY" yaml:"api_key"`

	Log LogConfig `yaml:"log"`

	// Outline refresh
	RetryBudget  time.Duration `envconfig:"OUTLINE_RETRY_BUDGET" yaml:"retry_budget"`
	RetryBackoff time.Duration `envconfig:"OUTLINE_RETRY_BACKOFF" yaml:"retry_backoff"`

	// Document sessions
	SessionTTL     time.Duration `envconfig:"OUTLINE_SESSION_TTL" yaml:"session_ttl"`
	MaxUploadBytes int64         `envconfig:"OUTLINE_MAX_UPLOAD_BYTES" yaml:"max_upload_bytes"`

	// PDF
	PDFFallbackPdftotext bool `envconfig:"OUTLINE_PDF_FALLBACK_PDFTOTEXT" yaml:"pdf_fallback_pdftotext"`

	LSPServers LSPServers `envconfig:"OUTLINE_LSP_SERVERS" yaml:"lsp_servers"`
}

type LogConfig struct {
	Level  string `envconfig:"OUTLINE_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"OUTLINE_LOG_FORMAT" yaml:"format"`
}

// LSPServers is the list of configured language servers. In the environment
// it is written as a YAML or JSON flow sequence.
type LSPServers []parser.LSPConfig

// Decode implements envconfig.Decoder.
func (l *LSPServers) Decode(value string) error {
	var servers []parser.LSPConfig
	if err := yaml.Unmarshal([]byte(value), &servers); err != nil {
		return fmt.Errorf("lsp servers: %w", err)
	}
	*l = servers
	return nil
}

// Load reads configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("loading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("processing env config: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Port: "8090",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RetryBudget:          2 * time.Second,
		RetryBackoff:         500 * time.Millisecond,
		SessionTTL:           time.Hour,
		MaxUploadBytes:       52428800, // 50MB
		PDFFallbackPdftotext: true,
	}
}

// Validate checks the settings the HTTP server depends on.
func (c Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "port is required")
	}
	if c.APIKey == "" {
		errs = append(errs, "OUTLINE_API_KEY is required")
	}
	errs = append(errs, c.check()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateLocal checks the settings used by the command-line tools, which do
// not serve HTTP.
func (c Config) ValidateLocal() error {
	if errs := c.check(); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c Config) check() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.RetryBudget <= 0 {
		errs = append(errs, "retry_budget must be positive")
	}
	if c.RetryBackoff <= 0 {
		errs = append(errs, "retry_backoff must be positive")
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, "session_ttl must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, "max_upload_bytes must be positive")
	}

	for _, s := range c.LSPServers {
		if err := s.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
