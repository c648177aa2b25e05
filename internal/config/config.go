package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters. Durations are integer milliseconds so
// the same keys work in env vars and every file format.
type Config struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr" toml:"grpc_addr"` // empty disables the health server

	Env      string `json:"env" yaml:"env" toml:"env"`       // "dev" | "prod"
	Store    string `json:"store" yaml:"store" toml:"store"` // "sqlite" | "memory"
	DBPath   string `json:"db_path" yaml:"db_path" toml:"db_path"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file" toml:"log_file"` // empty = stderr only

	// Reader link
	SerialPort      string `json:"serial_port" yaml:"serial_port" toml:"serial_port"` // connect at startup when set
	BaudRate        int    `json:"baud_rate" yaml:"baud_rate" toml:"baud_rate"`
	ReadTimeoutMS   int    `json:"read_timeout_ms" yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	SettleDelayMS   int    `json:"settle_delay_ms" yaml:"settle_delay_ms" toml:"settle_delay_ms"`
	PortsCacheTTLMS int    `json:"ports_cache_ttl_ms" yaml:"ports_cache_ttl_ms" toml:"ports_cache_ttl_ms"`

	// Reader protocol
	AckTimeoutMS      int `json:"ack_timeout_ms" yaml:"ack_timeout_ms" toml:"ack_timeout_ms"`
	PollReadTimeoutMS int `json:"poll_read_timeout_ms" yaml:"poll_read_timeout_ms" toml:"poll_read_timeout_ms"`
	EnrollTimeoutMS   int `json:"enroll_timeout_ms" yaml:"enroll_timeout_ms" toml:"enroll_timeout_ms"`
	EnrollRetries     int `json:"enroll_retries" yaml:"enroll_retries" toml:"enroll_retries"`
	VerifyTimeoutMS   int `json:"verify_timeout_ms" yaml:"verify_timeout_ms" toml:"verify_timeout_ms"`

	StreamCapacity int `json:"stream_capacity" yaml:"stream_capacity" toml:"stream_capacity"`

	// Access log retention
	LogRetentionDays   int `json:"log_retention_days" yaml:"log_retention_days" toml:"log_retention_days"` // 0 = keep forever
	PruneIntervalHours int `json:"prune_interval_hours" yaml:"prune_interval_hours" toml:"prune_interval_hours"`

	ShutdownTimeoutMS int `json:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms"`
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("PORTUNUS_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		HTTPAddr: getenvDefault("PORTUNUS_HTTP_ADDR", ":8080"),
		GRPCAddr: os.Getenv("PORTUNUS_GRPC_ADDR"),
		Env:      env,
		Store:    strings.ToLower(getenvDefault("PORTUNUS_STORE", "sqlite")),
		DBPath:   getenvDefault("PORTUNUS_DB_PATH", "./data/portunus-bio.db"),
		LogLevel: strings.ToLower(getenvDefault("PORTUNUS_LOG_LEVEL", "info")),
		LogFile:  os.Getenv("PORTUNUS_LOG_FILE"),

		SerialPort:      strings.TrimSpace(os.Getenv("PORTUNUS_SERIAL_PORT")),
		BaudRate:        getenvInt("PORTUNUS_BAUD_RATE", 9600),
		ReadTimeoutMS:   getenvInt("PORTUNUS_READ_TIMEOUT_MS", 2000),
		SettleDelayMS:   getenvInt("PORTUNUS_SETTLE_DELAY_MS", 2000),
		PortsCacheTTLMS: getenvInt("PORTUNUS_PORTS_CACHE_TTL_MS", 10000),

		AckTimeoutMS:      getenvInt("PORTUNUS_ACK_TIMEOUT_MS", 1000),
		PollReadTimeoutMS: getenvInt("PORTUNUS_POLL_READ_TIMEOUT_MS", 2000),
		EnrollTimeoutMS:   getenvInt("PORTUNUS_ENROLL_TIMEOUT_MS", 20000),
		EnrollRetries:     getenvInt("PORTUNUS_ENROLL_RETRIES", 3),
		VerifyTimeoutMS:   getenvInt("PORTUNUS_VERIFY_TIMEOUT_MS", 3000),

		StreamCapacity: getenvInt("PORTUNUS_STREAM_CAPACITY", 100),

		LogRetentionDays:   getenvInt("PORTUNUS_LOG_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("PORTUNUS_PRUNE_INTERVAL_HOURS", 6),

		ShutdownTimeoutMS: getenvInt("PORTUNUS_SHUTDOWN_TIMEOUT_MS", 5000),
	}
}

// Load starts from FromEnv and overlays the keys present in the file at
// path. Supports .yaml/.yml, .json and .toml. An empty path returns the
// environment config unchanged.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("env must be dev or prod, got %q", c.Env)
	}
	if c.Store != "sqlite" && c.Store != "memory" {
		return fmt.Errorf("store must be sqlite or memory, got %q", c.Store)
	}
	if c.Store == "sqlite" && strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required for the sqlite store")
	}
	if c.BaudRate < 0 || c.EnrollRetries < 0 || c.StreamCapacity < 0 {
		return fmt.Errorf("baud_rate, enroll_retries and stream_capacity must be non-negative")
	}
	return nil
}

func (c Config) ReadTimeout() time.Duration     { return ms(c.ReadTimeoutMS) }
func (c Config) SettleDelay() time.Duration     { return ms(c.SettleDelayMS) }
func (c Config) PortsCacheTTL() time.Duration   { return ms(c.PortsCacheTTLMS) }
func (c Config) AckTimeout() time.Duration      { return ms(c.AckTimeoutMS) }
func (c Config) PollReadTimeout() time.Duration { return ms(c.PollReadTimeoutMS) }
func (c Config) EnrollTimeout() time.Duration   { return ms(c.EnrollTimeoutMS) }
func (c Config) VerifyTimeout() time.Duration   { return ms(c.VerifyTimeoutMS) }
func (c Config) ShutdownTimeout() time.Duration { return ms(c.ShutdownTimeoutMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
