// Package config loads the server's Config the way the teacher's
// internal/config loads node settings: defaults, an optional TOML
// overlay, then environment variable overrides, ending in a read-only
// struct handed to every constructor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the fully-resolved, read-only server configuration (spec §6).
type Config struct {
	Host                     string `toml:"host"`
	Port                     int    `toml:"port"`
	DataDir                  string `toml:"data_dir"`
	CopilotPath              string `toml:"copilot_path"`
	MaxSessions              int    `toml:"max_sessions"`
	InitialCols              int    `toml:"initial_cols"`
	InitialRows              int    `toml:"initial_rows"`
	MinCols                  int    `toml:"min_cols"`
	MaxCols                  int    `toml:"max_cols"`
	MinRows                  int    `toml:"min_rows"`
	MaxRows                  int    `toml:"max_rows"`
	MaxInputCharsPerMessage  int    `toml:"max_input_chars_per_message"`
	WSMaxMessageBytes        int64  `toml:"ws_max_message_bytes"`
	AllowNonLocalhost        bool   `toml:"allow_non_localhost"`
	LogFile                  string `toml:"log_file"`
	LogLevel                 string `toml:"log_level"`
	MockPTY                  bool   `toml:"mock_pty"`
}

// defaults mirrors the table in spec §6.
func defaults() Config {
	return Config{
		Host:                    "127.0.0.1",
		Port:                    5000,
		DataDir:                 "./data",
		CopilotPath:             "copilot.exe",
		MaxSessions:             10,
		InitialCols:             120,
		InitialRows:             30,
		MinCols:                 20,
		MaxCols:                 300,
		MinRows:                 5,
		MaxRows:                 120,
		MaxInputCharsPerMessage: 16384,
		WSMaxMessageBytes:       1048576,
		AllowNonLocalhost:       false,
		LogFile:                 "./data/logs/app.jsonl",
		LogLevel:                "INFO",
		MockPTY:                 false,
	}
}

// Load resolves Config in precedence order: compiled-in defaults, an
// optional .env file, an optional DATA_DIR/config.toml overlay, then
// process environment variables (highest precedence).
func Load() (Config, error) {
	cfg := defaults()

	// .env is best-effort: most deployments have no .env and that is fine.
	_ = godotenv.Load()

	dataDir := envOr("DATA_DIR", cfg.DataDir)
	tomlPath := filepath.Join(dataDir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		if _, err := toml.DecodeFile(tomlPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", tomlPath, err)
		}
	}

	cfg.Host = envOr("HOST", cfg.Host)
	cfg.DataDir = envOr("DATA_DIR", cfg.DataDir)
	cfg.CopilotPath = envOr("COPILOT_PATH", cfg.CopilotPath)
	cfg.LogFile = envOr("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.Port, err = envIntOr("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessions, err = envIntOr("MAX_SESSIONS", cfg.MaxSessions); err != nil {
		return Config{}, err
	}
	if cfg.InitialCols, err = envIntOr("INITIAL_COLS", cfg.InitialCols); err != nil {
		return Config{}, err
	}
	if cfg.InitialRows, err = envIntOr("INITIAL_ROWS", cfg.InitialRows); err != nil {
		return Config{}, err
	}
	if cfg.MinCols, err = envIntOr("MIN_COLS", cfg.MinCols); err != nil {
		return Config{}, err
	}
	if cfg.MaxCols, err = envIntOr("MAX_COLS", cfg.MaxCols); err != nil {
		return Config{}, err
	}
	if cfg.MinRows, err = envIntOr("MIN_ROWS", cfg.MinRows); err != nil {
		return Config{}, err
	}
	if cfg.MaxRows, err = envIntOr("MAX_ROWS", cfg.MaxRows); err != nil {
		return Config{}, err
	}
	if cfg.MaxInputCharsPerMessage, err = envIntOr("MAX_INPUT_CHARS_PER_MESSAGE", cfg.MaxInputCharsPerMessage); err != nil {
		return Config{}, err
	}
	if v, err := envIntOr("WS_MAX_MESSAGE_BYTES", int(cfg.WSMaxMessageBytes)); err != nil {
		return Config{}, err
	} else {
		cfg.WSMaxMessageBytes = int64(v)
	}
	if cfg.AllowNonLocalhost, err = envBoolOr("ALLOW_NON_LOCALHOST", cfg.AllowNonLocalhost); err != nil {
		return Config{}, err
	}
	if cfg.MockPTY, err = envBoolOr("MOCK_PTY", cfg.MockPTY); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func envBoolOr(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a boolean", key, v)
	}
	return b, nil
}
