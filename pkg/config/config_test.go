package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith("", env(nil))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadWith_File(t *testing.T) {
	path := writeFile(t, "surveyd.yaml", `
addr: "127.0.0.1:9000"
surveys:
  sqlite: /var/lib/surveyd/surveys.db
sessions:
  backend: redis
  redis_url: redis://localhost:6379/0
  ttl: 30m
log:
  level: debug
  format: console
cors:
  origins: [https://example.com]
`)
	cfg, err := LoadWith(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Surveys.Dir != "" || cfg.Surveys.SQLite != "/var/lib/surveyd/surveys.db" {
		t.Errorf("Surveys = %+v", cfg.Surveys)
	}
	if cfg.Sessions.TTL != 30*time.Minute {
		t.Errorf("TTL = %v, want 30m", cfg.Sessions.TTL)
	}
	if cfg.Log.Format != "console" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if want := []string{"https://example.com"}; !reflect.DeepEqual(cfg.CORS.Origins, want) {
		t.Errorf("Origins = %v, want %v", cfg.CORS.Origins, want)
	}
}

func TestLoadWith_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "surveyd.yaml", "addr: \":7000\"\nsurveys:\n  sqlite: a.db\n")
	cfg, err := LoadWith(path, env(map[string]string{
		"SURVEYD_ADDR":         ":7001",
		"SURVEYD_SURVEY_DIR":   "defs",
		"SURVEYD_SESSION_TTL":  "1h",
		"SURVEYD_CORS_ORIGINS": "https://a.test, https://b.test,",
		"SURVEYD_LOG_LEVEL":    "warn",
	}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Addr != ":7001" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":7001")
	}
	if cfg.Surveys != (SurveyConfig{Dir: "defs"}) {
		t.Errorf("Surveys = %+v, want dir defs only", cfg.Surveys)
	}
	if cfg.Sessions.TTL != time.Hour {
		t.Errorf("TTL = %v", cfg.Sessions.TTL)
	}
	if want := []string{"https://a.test", "https://b.test"}; !reflect.DeepEqual(cfg.CORS.Origins, want) {
		t.Errorf("Origins = %v, want %v", cfg.CORS.Origins, want)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
}

func TestLoadWith_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		want string
	}{
		{"redis without url", "", map[string]string{"SURVEYD_SESSION_BACKEND": "redis"}, "RedisURL"},
		{"unknown backend", "", map[string]string{"SURVEYD_SESSION_BACKEND": "etcd"}, "Backend"},
		{"both sources", "surveys:\n  dir: a\n  sqlite: b.db\n", nil, "Dir"},
		{"bad level", "", map[string]string{"SURVEYD_LOG_LEVEL": "loud"}, "Level"},
		{"bad ttl", "", map[string]string{"SURVEYD_SESSION_TTL": "soon"}, "SESSION_TTL"},
		{"empty addr", "", map[string]string{"SURVEYD_ADDR": ""}, "Addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeFile(t, "c.yaml", tt.file)
			}
			_, err := LoadWith(path, env(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadWith_MissingFile(t *testing.T) {
	if _, err := LoadWith(filepath.Join(t.TempDir(), "nope.yaml"), env(nil)); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}

	path := writeFile(t, ".env", "SURVEYD_TEST_DOTENV=from-file\nSURVEYD_TEST_DOTENV_KEEP=from-file\n")
	t.Setenv("SURVEYD_TEST_DOTENV_KEEP", "process")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SURVEYD_TEST_DOTENV") })
	if got := os.Getenv("SURVEYD_TEST_DOTENV"); got != "from-file" {
		t.Errorf("SURVEYD_TEST_DOTENV = %q, want %q", got, "from-file")
	}
	if got := os.Getenv("SURVEYD_TEST_DOTENV_KEEP"); got != "process" {
		t.Errorf("SURVEYD_TEST_DOTENV_KEEP = %q, want %q", got, "process")
	}
}
