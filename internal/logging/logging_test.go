package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log, closer := logging.NewWithWriter(&buf, logging.Options{Level: "info", Env: "prod"})
	defer closer.Close()

	log.Debug().Msg("hidden")
	log.Info().Int("entity_id", 4).Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON line: %v", err)
	}
	if entry["message"] != "visible" || entry["service"] != "portunus-bio" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNew_DevIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	log, closer := logging.NewWithWriter(&buf, logging.Options{Env: "dev"})
	defer closer.Close()

	log.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("message missing from %q", buf.String())
	}
}

func TestNew_FileCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portunus.log")
	var buf bytes.Buffer
	log, closer := logging.NewWithWriter(&buf, logging.Options{Env: "prod", File: path})

	log.Warn().Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to file"`) {
		t.Errorf("file missing entry: %q", data)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Errorf("console missing entry: %q", buf.String())
	}
}
