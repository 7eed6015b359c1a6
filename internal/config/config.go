package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veldrane/driftwood/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Data       DataConfig       `yaml:"data"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Logging    logging.Config   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DataConfig holds the writable data directory (backups, encryption key).
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// EncryptionConfig holds the key protecting stored credentials. Key takes
// precedence; otherwise KeyFile is read, or created on first run.
type EncryptionConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"`
}

// MonitorConfig holds filesystem-monitoring tunables that live in the config
// file rather than in runtime settings.
type MonitorConfig struct {
	// NetworkPrefixes lists extra path prefixes treated as network mounts,
	// in addition to the built-in ones.
	NetworkPrefixes []string `yaml:"network_prefixes"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8520,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/driftwood.db",
		},
		Data: DataConfig{
			Dir: "/data",
		},
		Encryption: EncryptionConfig{
			KeyFile: "/data/driftwood.key",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("DW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DW_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("DW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DW_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("DW_ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("DW_NETWORK_PREFIXES"); v != "" {
		c.Monitor.NetworkPrefixes = splitList(v)
	}
	if v := os.Getenv("DW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("DW_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data dir is required")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
