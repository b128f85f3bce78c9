// Package config loads surveyd settings: built-in defaults, then an optional
// YAML file, then SURVEYD_* environment variables (including those from a
// .env file in the working directory).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SURVEYD_"

// DefaultSurveyDir is used when no survey source is configured.
const DefaultSurveyDir = "surveys"

// Config is the server configuration.
type Config struct {
	Addr     string        `yaml:"addr" validate:"required"`
	Surveys  SurveyConfig  `yaml:"surveys"`
	Sessions SessionConfig `yaml:"sessions"`
	Eval     EvalConfig    `yaml:"eval"`
	Log      LogConfig     `yaml:"log"`
	CORS     CORSConfig    `yaml:"cors"`
}

// SurveyConfig selects the survey source. Exactly one field is set.
type SurveyConfig struct {
	Dir    string `yaml:"dir" validate:"required_without=SQLite,excluded_with=SQLite"`
	SQLite string `yaml:"sqlite"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Backend  string        `yaml:"backend" validate:"oneof=memory redis"`
	RedisURL string        `yaml:"redis_url" validate:"required_if=Backend redis"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// EvalConfig locates evaluation rule files.
type EvalConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// CORSConfig lists allowed origins; empty allows any origin.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:     ":8080",
		Surveys:  SurveyConfig{Dir: DefaultSurveyDir},
		Sessions: SessionConfig{Backend: "memory", TTL: 24 * time.Hour},
		Eval:     EvalConfig{Dir: "evaluations"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

var validate = validator.New()

// Load reads .env, then path (if non-empty), then the process environment.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return LoadWith(path, os.LookupEnv)
}

// LoadDotEnv loads a .env file without overriding variables already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	cfg.Surveys = SurveyConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if cfg.Surveys.Dir == "" && cfg.Surveys.SQLite == "" {
		cfg.Surveys.Dir = DefaultSurveyDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("SESSION_BACKEND", &c.Sessions.Backend)
	str("REDIS_URL", &c.Sessions.RedisURL)
	str("EVAL_DIR", &c.Eval.Dir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	// A source named in the environment replaces the other one.
	if v, ok := lookup(EnvPrefix + "SURVEY_DIR"); ok {
		c.Surveys = SurveyConfig{Dir: v}
	}
	if v, ok := lookup(EnvPrefix + "SQLITE"); ok && v != "" {
		c.Surveys = SurveyConfig{SQLite: v}
	}
	if v, ok := lookup(EnvPrefix + "SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSESSION_TTL: %w", EnvPrefix, err)
		}
		c.Sessions.TTL = d
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.CORS.Origins = splitList(v)
	}
	return nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
