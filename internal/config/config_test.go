package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := config.FromEnv()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.HTTPAddr)
	}
	if cfg.BaudRate != 9600 {
		t.Errorf("expected baud 9600, got %d", cfg.BaudRate)
	}
	if cfg.SettleDelay() != 2*time.Second {
		t.Errorf("expected 2s settle delay, got %v", cfg.SettleDelay())
	}
	if cfg.StreamCapacity != 100 {
		t.Errorf("expected stream capacity 100, got %d", cfg.StreamCapacity)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORTUNUS_ENV", "PROD")
	t.Setenv("PORTUNUS_SERIAL_PORT", " /dev/ttyUSB0 ")
	t.Setenv("PORTUNUS_VERIFY_TIMEOUT_MS", "1500")
	t.Setenv("PORTUNUS_ENROLL_RETRIES", "-4") // invalid falls back

	cfg := config.FromEnv()
	if cfg.Env != "prod" {
		t.Errorf("expected env=prod, got %q", cfg.Env)
	}
	if cfg.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("expected trimmed serial port, got %q", cfg.SerialPort)
	}
	if cfg.VerifyTimeout() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s verify timeout, got %v", cfg.VerifyTimeout())
	}
	if cfg.EnrollRetries != 3 {
		t.Errorf("expected default retries for negative value, got %d", cfg.EnrollRetries)
	}
}

func TestFromEnv_UnknownEnvIsDev(t *testing.T) {
	t.Setenv("PORTUNUS_ENV", "staging")
	if got := config.FromEnv().Env; got != "dev" {
		t.Errorf("expected dev, got %q", got)
	}
}

func TestLoad_FileOverlaysEnv(t *testing.T) {
	t.Setenv("PORTUNUS_HTTP_ADDR", ":9000")
	dir := t.TempDir()

	files := map[string]string{
		"c.yaml": "serial_port: /dev/ttyACM0\nstore: memory\nenroll_retries: 5\n",
		"c.json": `{"serial_port": "/dev/ttyACM0", "store": "memory", "enroll_retries": 5}`,
		"c.toml": "serial_port = \"/dev/ttyACM0\"\nstore = \"memory\"\nenroll_retries = 5\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}

		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if cfg.SerialPort != "/dev/ttyACM0" || cfg.Store != "memory" || cfg.EnrollRetries != 5 {
			t.Errorf("%s: file values not applied: %+v", name, cfg)
		}
		if cfg.HTTPAddr != ":9000" {
			t.Errorf("%s: expected env value kept for unset key, got %q", name, cfg.HTTPAddr)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "c.ini")
	if err := os.WriteFile(bad, []byte("x=1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(bad); err == nil {
		t.Error("expected error for unsupported extension")
	}

	invalid := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(invalid, []byte("store: redis\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(invalid); err == nil {
		t.Error("expected validation error for unknown store")
	}

	if _, err := config.Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
