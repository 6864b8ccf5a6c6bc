package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "HV_CONFIG"

type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Database  DatabaseConfig  `toml:"database"`
	Scripting ScriptingConfig `toml:"scripting"`
	Save      SaveConfig      `toml:"save"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn_max_idle_time"`

	HealthCheckPeriod time.Duration `toml:"health_check_period"`
	ConnectTimeout    time.Duration `toml:"connect_timeout"`
}

type ScriptingConfig struct {
	Dir       string   `toml:"dir"`
	Resources []string `toml:"resources"` // global functions persisted by name
}

type SaveConfig struct {
	Dir           string `toml:"dir"`
	Name          string `toml:"name"` // save name used when none is given
	VerifyDigest  bool   `toml:"verify_digest"`
	UseDatabase   bool   `toml:"use_database"`
	RunMigrations bool   `toml:"run_migrations"`
	KeepPerName   int    `toml:"keep_per_name"` // 0 keeps every save
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads path, or the file named by HV_CONFIG when path is empty.
// With neither set it returns the defaults.
func LoadDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return defaults(), nil
	}
	return Load(path)
}

func (c *Config) validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns must be between 0 and max_open_conns")
	}
	if c.Save.KeepPerName < 0 {
		return fmt.Errorf("save.keep_per_name must not be negative")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			DSN:             "postgres://hv:hv@localhost:5432/hv?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Save: SaveConfig{
			Dir:           "saves",
			Name:          "main",
			VerifyDigest:  true,
			RunMigrations: true,
		},
	}
}
