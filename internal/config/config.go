// Package config builds the immutable run configuration from the
// environment, .env files, config.yaml, persona and task files, and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jywlabs/coursewright/internal/template"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvDashScopeKey = "DASHSCOPE_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvSerperKey    = "SERPER_API_KEY"
	EnvModel        = "MODEL_NAME"
	EnvLogLevel     = "LOG_LEVEL"
)

// Invalidation selects which later chapter drafts a chapter revision discards.
type Invalidation string

const (
	// InvalidateAll discards every draft after the revised chapter.
	InvalidateAll Invalidation = "all"
	// InvalidateObjective keeps later drafts unless the feedback changes
	// scope or objectives.
	InvalidateObjective Invalidation = "objective"
)

// Settings are the tunables from config.yaml and flags.
type Settings struct {
	Provider     string
	Model        string
	BaseURL      string
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	MaxRevisions int
	GateResearch bool
	GateReview   bool
	Invalidation Invalidation
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Provider:     "dashscope",
		Model:        "qwen-plus",
		Temperature:  0.7,
		Timeout:      2 * time.Minute,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		MaxRevisions: 5,
		Invalidation: InvalidateAll,
	}
}

// rawSettings distinguishes keys missing from config.yaml from explicit zero values.
type rawSettings struct {
	Provider     *string  `yaml:"provider"`
	Model        *string  `yaml:"model"`
	BaseURL      *string  `yaml:"baseURL"`
	Temperature  *float64 `yaml:"temperature"`
	Timeout      *string  `yaml:"timeout"`
	MaxRetries   *int     `yaml:"maxRetries"`
	RetryDelay   *string  `yaml:"retryDelay"`
	MaxRevisions *int     `yaml:"maxRevisions"`
	GateResearch *bool    `yaml:"gateResearch"`
	GateReview   *bool    `yaml:"gateReview"`
	Invalidation *string  `yaml:"invalidation"`
}

// Overrides carries flag values; nil fields were not set on the command line.
type Overrides struct {
	Provider     *string
	Model        *string
	MaxRevisions *int
	GateResearch *bool
	GateReview   *bool
	Invalidation *string
	LogLevel     *string
}

// Config is the complete run configuration. Build it once with Load.
type Config struct {
	Dir          string
	APIKey       string
	SerperAPIKey string
	LogLevel     string
	Settings
	Prompts Prompts
}

// Options controls Load.
type Options struct {
	Dir       string
	Lookup    func(string) (string, bool) // os.LookupEnv when nil
	Overrides Overrides
}

// providerKeys maps each provider to the env var holding its credential.
var providerKeys = map[string]string{
	"dashscope": EnvDashScopeKey,
	"openai":    EnvOpenAIKey,
}

// LoadEnvFiles loads .env.local then .env from dir. Variables already in the
// environment are never overridden, so .env.local wins over .env.
func LoadEnvFiles(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return &Error{Field: name, Msg: "failed to load", Err: err}
		}
	}
	return nil
}

// Load builds the configuration. Precedence: flags, environment,
// config.yaml, built-in defaults.
func Load(opts Options) (*Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	settings, err := LoadSettings(opts.Dir)
	if err != nil {
		return nil, err
	}
	if v, ok := lookup(EnvModel); ok && strings.TrimSpace(v) != "" {
		settings.Model = strings.TrimSpace(v)
	}
	settings.apply(opts.Overrides)
	settings.Provider = strings.ToLower(strings.TrimSpace(settings.Provider))
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cfg := &Config{Dir: opts.Dir, Settings: settings, LogLevel: "warn"}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if opts.Overrides.LogLevel != nil && *opts.Overrides.LogLevel != "" {
		cfg.LogLevel = *opts.Overrides.LogLevel
	}

	keyVar := providerKeys[settings.Provider]
	key, _ := lookup(keyVar)
	if strings.TrimSpace(key) == "" {
		return nil, errorf(keyVar, "environment variable %s is not set; export it or add it to .env", keyVar)
	}
	cfg.APIKey = strings.TrimSpace(key)
	if v, ok := lookup(EnvSerperKey); ok {
		cfg.SerperAPIKey = strings.TrimSpace(v)
	}

	prompts, err := LoadPrompts(opts.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Prompts = *prompts

	return cfg, nil
}

// LoadSettings reads config.yaml from dir and merges it over the defaults.
// A missing file yields the defaults.
func LoadSettings(dir string) (Settings, error) {
	settings := DefaultSettings()
	if dir == "" {
		return settings, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, template.ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, &Error{Field: template.ConfigFile, Msg: "failed to read", Err: err}
	}

	var raw rawSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return settings, &Error{Field: template.ConfigFile, Msg: "invalid YAML", Err: err}
	}

	if raw.Provider != nil {
		settings.Provider = *raw.Provider
	}
	if raw.Model != nil {
		settings.Model = *raw.Model
	}
	if raw.BaseURL != nil {
		settings.BaseURL = *raw.BaseURL
	}
	if raw.Temperature != nil {
		settings.Temperature = *raw.Temperature
	}
	if raw.MaxRetries != nil {
		settings.MaxRetries = *raw.MaxRetries
	}
	if raw.MaxRevisions != nil {
		settings.MaxRevisions = *raw.MaxRevisions
	}
	if raw.GateResearch != nil {
		settings.GateResearch = *raw.GateResearch
	}
	if raw.GateReview != nil {
		settings.GateReview = *raw.GateReview
	}
	if raw.Invalidation != nil {
		settings.Invalidation = Invalidation(*raw.Invalidation)
	}
	if raw.Timeout != nil {
		d, err := time.ParseDuration(*raw.Timeout)
		if err != nil {
			return settings, &Error{Field: "timeout", Msg: "invalid duration", Err: err}
		}
		settings.Timeout = d
	}
	if raw.RetryDelay != nil {
		d, err := time.ParseDuration(*raw.RetryDelay)
		if err != nil {
			return settings, &Error{Field: "retryDelay", Msg: "invalid duration", Err: err}
		}
		settings.RetryDelay = d
	}
	return settings, nil
}

func (s *Settings) apply(o Overrides) {
	if o.Provider != nil && *o.Provider != "" {
		s.Provider = *o.Provider
	}
	if o.Model != nil && *o.Model != "" {
		s.Model = *o.Model
	}
	if o.MaxRevisions != nil {
		s.MaxRevisions = *o.MaxRevisions
	}
	if o.GateResearch != nil {
		s.GateResearch = *o.GateResearch
	}
	if o.GateReview != nil {
		s.GateReview = *o.GateReview
	}
	if o.Invalidation != nil && *o.Invalidation != "" {
		s.Invalidation = Invalidation(*o.Invalidation)
	}
}

// Validate checks that every setting is in range.
func (s Settings) Validate() error {
	if _, ok := providerKeys[s.Provider]; !ok {
		return errorf("provider", "unknown provider %q (supported: dashscope, openai)", s.Provider)
	}
	if strings.TrimSpace(s.Model) == "" {
		return errorf("model", "must not be empty")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return errorf("temperature", "must be between 0 and 2, got %v", s.Temperature)
	}
	if s.Timeout <= 0 {
		return errorf("timeout", "must be positive")
	}
	if s.MaxRetries < 0 {
		return errorf("maxRetries", "must not be negative")
	}
	if s.MaxRevisions < 1 {
		return errorf("maxRevisions", "must be at least 1, got %d", s.MaxRevisions)
	}
	switch s.Invalidation {
	case InvalidateAll, InvalidateObjective:
	default:
		return errorf("invalidation", "must be %q or %q, got %q", InvalidateAll, InvalidateObjective, s.Invalidation)
	}
	return nil
}

// String summarizes the effective settings for debug logging.
func (s Settings) String() string {
	return fmt.Sprintf("provider=%s model=%s maxRevisions=%d gateResearch=%t gateReview=%t invalidation=%s",
		s.Provider, s.Model, s.MaxRevisions, s.GateResearch, s.GateReview, s.Invalidation)
}
