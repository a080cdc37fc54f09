package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/elodin/bridge/pkg/autosave"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvSite, EnvUser, EnvPassword} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "bridge.yaml", `
version: 1
site: https://example.test
user: admin
password: hunter2
form:
  page: options-general.php?page=elodin-bridge
autosave:
  input_delay: 900ms
  classifier: json
  messages:
    saved: All good
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Site != "https://example.test" || cfg.User != "admin" || cfg.Password.Reveal() != "hunter2" {
		t.Fatalf("unexpected credentials %+v", cfg)
	}
	if cfg.Autosave.Timings.InputDelay != 900*time.Millisecond {
		t.Fatalf("input delay = %s", cfg.Autosave.Timings.InputDelay)
	}
	if cfg.Autosave.Timings.ChangeDelay != 250*time.Millisecond {
		t.Fatalf("change delay default lost: %s", cfg.Autosave.Timings.ChangeDelay)
	}
	if cfg.Autosave.Messages.Saved != "All good" || cfg.Autosave.Messages.Saving != "Saving…" {
		t.Fatalf("unexpected messages %+v", cfg.Autosave.Messages)
	}
	if _, ok := cfg.Autosave.NewClassifier().(autosave.JSONClassifier); !ok {
		t.Fatalf("expected json classifier")
	}
	if cfg.Autosave.RequestTimeout != autosave.DefaultRequestTimeout {
		t.Fatalf("request timeout = %s", cfg.Autosave.RequestTimeout)
	}
	if got := len(cfg.Autosave.Options()); got != 5 {
		t.Fatalf("expected 5 controller options, got %d", got)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSite, "https://override.test")
	t.Setenv(EnvUser, "editor")
	t.Setenv(EnvPassword, "from-env")
	path := writeFile(t, t.TempDir(), "bridge.yaml", "site: https://example.test\nuser: admin\npassword: x\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Site != "https://override.test" || cfg.User != "editor" || cfg.Password.Reveal() != "from-env" {
		t.Fatalf("environment did not win: %s %s", cfg.Site, cfg.User)
	}
}

func TestDotEnvBesideConfig(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that exist, even empty ones.
	os.Unsetenv(EnvPassword)

	dir := t.TempDir()
	writeFile(t, dir, ".env", EnvPassword+"=dotenv-secret\n")
	path := writeFile(t, dir, "bridge.yaml", "site: https://example.test\nuser: admin\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Password.Reveal() != "dotenv-secret" {
		t.Fatalf("expected password from .env, got %q", cfg.Password.Reveal())
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Version = 2
	cfg.Site = "example.test"
	cfg.User = "admin"
	cfg.Autosave.Timings.IdleDelay = -time.Second
	cfg.Autosave.Classifier = "regex"
	cfg.Status.Color = "sometimes"
	cfg.Logging.FileLogger.Level = "debug"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	errs := multierr.Errors(err)
	if len(errs) != 7 {
		t.Fatalf("expected 7 problems, got %d: %v", len(errs), err)
	}
	for _, want := range []string{"version 2", "absolute url", "password is required", "idle_delay", "phrase or json", "status.color", "destination is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	if err := Decode([]byte("autosave:\n  debounce: 1s\n"), cfg); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
	if err := Decode(nil, cfg); err != nil {
		t.Fatalf("empty document: %v", err)
	}
}

func TestDumpMasksPassword(t *testing.T) {
	cfg := Default()
	cfg.Site = "https://example.test"
	cfg.Password = "hunter2"

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Contains(string(data), "hunter2") || !strings.Contains(string(data), SecretStringValue) {
		t.Fatalf("password leaked:\n%s", data)
	}
	if cfg.Password.String() != SecretStringValue {
		t.Fatalf("String must mask the value")
	}
}

func TestPhraseClassifierKeepsExtraPhrases(t *testing.T) {
	a := Default().Autosave
	a.RejectionPhrases = []string{"Nonce verification failed"}
	classifier, ok := a.NewClassifier().(*autosave.PhraseClassifier)
	if !ok {
		t.Fatalf("expected phrase classifier")
	}
	phrases := classifier.Phrases()
	if phrases[len(phrases)-1] != "Nonce verification failed" {
		t.Fatalf("extra phrase missing from %v", phrases)
	}
}

func TestPrepareFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "debug", Destination: path, Mode: "overwrite"},
	}
	logger, closer, err := conf.prepare(os.Stdout, os.Stderr)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	logger.Debug("autosave: edit")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"autosave: edit"`) {
		t.Fatalf("expected debug entry in file log:\n%s", data)
	}

	none := LoggingConfig{ConsoleLogger: LoggerConfig{Level: "none"}, FileLogger: LoggerConfig{Level: "none"}}
	if _, _, err := none.prepare(os.Stdout, os.Stderr); err != nil {
		t.Fatalf("prepare none: %v", err)
	}
}
