// Package config loads the bridge configuration from YAML, a .env file and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"

	"github.com/elodin/bridge/pkg/autosave"
	"github.com/elodin/bridge/pkg/transport"
)

// Environment variables that override the file.
const (
	EnvSite     = "BRIDGE_SITE"
	EnvUser     = "BRIDGE_USER"
	EnvPassword = "BRIDGE_PASSWORD"
)

type (
	// FormConfig locates the settings form.
	FormConfig struct {
		Page     string `yaml:"page"`
		Selector string `yaml:"selector,omitempty"`
		Endpoint string `yaml:"endpoint,omitempty"`
	}

	// AutosaveConfig mirrors the controller options.
	AutosaveConfig struct {
		Timings          autosave.Timings  `yaml:",inline"`
		RequestTimeout   time.Duration     `yaml:"request_timeout"`
		SnippetLimit     int               `yaml:"snippet_limit"`
		Classifier       string            `yaml:"classifier"`
		RejectionPhrases []string          `yaml:"rejection_phrases,omitempty"`
		Messages         autosave.Messages `yaml:"messages"`
	}

	// HTTPConfig tunes the transport.
	HTTPConfig struct {
		UserAgent string `yaml:"user_agent,omitempty"`
		MaxBody   int64  `yaml:"max_body"`
	}

	// StatusConfig selects the status views.
	StatusConfig struct {
		HTMLPath string `yaml:"html,omitempty"`
		Addr     string `yaml:"addr,omitempty"`
		Refresh  int    `yaml:"refresh"`
		Color    string `yaml:"color"`
	}

	// Config is the whole file.
	Config struct {
		Version  int            `yaml:"version"`
		Site     string         `yaml:"site"`
		User     string         `yaml:"user,omitempty"`
		Password SecretString   `yaml:"password,omitempty"`
		Form     FormConfig     `yaml:"form"`
		Autosave AutosaveConfig `yaml:"autosave"`
		HTTP     HTTPConfig     `yaml:"http"`
		Status   StatusConfig   `yaml:"status"`
		Logging  LoggingConfig  `yaml:"logging"`
	}
)

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Version: 1,
		Form: FormConfig{
			Page: "options-general.php",
		},
		Autosave: AutosaveConfig{
			Timings:        autosave.DefaultTimings(),
			RequestTimeout: autosave.DefaultRequestTimeout,
			SnippetLimit:   autosave.DefaultSnippetLimit,
			Classifier:     "phrase",
			Messages:       autosave.DefaultMessages(),
		},
		HTTP: HTTPConfig{
			MaxBody: transport.DefaultMaxBody,
		},
		Status: StatusConfig{
			Refresh: 2,
			Color:   "auto",
		},
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: "normal"},
			FileLogger:    LoggerConfig{Level: "none", Mode: "append"},
		},
	}
}

// Load reads path over the defaults. An empty path uses defaults and the
// environment only. A .env file next to the configuration (or in the working
// directory) is loaded first; variables already set win.
func Load(path string) (*Config, error) {
	cfg := Default()

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode strictly unmarshals YAML into cfg. Unknown keys are errors.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// Dump renders cfg as YAML with secrets masked.
func Dump(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSite); ok && strings.TrimSpace(v) != "" {
		c.Site = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvUser); ok && strings.TrimSpace(v) != "" {
		c.User = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Password = SecretString(v)
	}
}

// fill restores defaults for values an explicit file left empty.
func (c *Config) fill() {
	def := Default()
	if c.Form.Page == "" {
		c.Form.Page = def.Form.Page
	}
	if c.Autosave.RequestTimeout == 0 {
		c.Autosave.RequestTimeout = def.Autosave.RequestTimeout
	}
	if c.Autosave.SnippetLimit == 0 {
		c.Autosave.SnippetLimit = def.Autosave.SnippetLimit
	}
	if c.Autosave.Classifier == "" {
		c.Autosave.Classifier = def.Autosave.Classifier
	}
	if c.HTTP.MaxBody == 0 {
		c.HTTP.MaxBody = def.HTTP.MaxBody
	}
	if c.Status.Color == "" {
		c.Status.Color = def.Status.Color
	}
	if c.Logging.ConsoleLogger.Level == "" {
		c.Logging.ConsoleLogger.Level = def.Logging.ConsoleLogger.Level
	}
	if c.Logging.FileLogger.Level == "" {
		c.Logging.FileLogger.Level = def.Logging.FileLogger.Level
	}
	if c.Logging.FileLogger.Mode == "" {
		c.Logging.FileLogger.Mode = def.Logging.FileLogger.Mode
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.Version != 1 {
		err = multierr.Append(err, fmt.Errorf("config: unsupported version %d", c.Version))
	}
	if u, perr := url.Parse(c.Site); c.Site == "" || perr != nil || !u.IsAbs() || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("config: site must be an absolute url, got %q", c.Site))
	}
	if c.User != "" && c.Password == "" {
		err = multierr.Append(err, fmt.Errorf("config: password is required when user is set (%s)", EnvPassword))
	}
	t := c.Autosave.Timings
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"change_delay", t.ChangeDelay},
		{"input_delay", t.InputDelay},
		{"follow_up_delay", t.FollowUpDelay},
		{"idle_delay", t.IdleDelay},
		{"request_timeout", c.Autosave.RequestTimeout},
	} {
		if d.value < 0 {
			err = multierr.Append(err, fmt.Errorf("config: autosave.%s must not be negative", d.name))
		}
	}
	if c.Autosave.SnippetLimit < 0 {
		err = multierr.Append(err, errors.New("config: autosave.snippet_limit must not be negative"))
	}
	switch c.Autosave.Classifier {
	case "phrase", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("config: autosave.classifier must be phrase or json, got %q", c.Autosave.Classifier))
	}
	switch c.Status.Color {
	case "auto", "always", "never":
	default:
		err = multierr.Append(err, fmt.Errorf("config: status.color must be auto, always or never, got %q", c.Status.Color))
	}
	err = multierr.Append(err, c.Logging.validate())
	return err
}

// Options converts the autosave section into controller options.
func (a AutosaveConfig) Options() []autosave.Option {
	return []autosave.Option{
		autosave.WithTimings(a.Timings),
		autosave.WithRequestTimeout(a.RequestTimeout),
		autosave.WithSnippetLimit(a.SnippetLimit),
		autosave.WithMessages(a.Messages),
		autosave.WithClassifier(a.NewClassifier()),
	}
}

// NewClassifier builds the configured success classifier.
func (a AutosaveConfig) NewClassifier() autosave.Classifier {
	if a.Classifier == "json" {
		return autosave.JSONClassifier{}
	}
	return autosave.NewPhraseClassifier(a.RejectionPhrases...)
}
