package pgbenchmark

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"pgbenchmark/types"
)

// DefaultListenAddr is where the live dashboard server listens unless
// configured otherwise.
const DefaultListenAddr = "127.0.0.1:4761"

// Config is the on-disk configuration. The default file is
// pgbenchmark.json; files ending in .yml or .yaml are parsed as YAML.
type Config struct {
	Database  DatabaseConfig   `json:"database" yaml:"database"`
	SQL       string           `json:"sql" yaml:"sql"`
	Runs      int              `json:"runs" yaml:"runs"`
	Workers   int              `json:"workers" yaml:"workers"`
	Stress    StressConfig     `json:"stress" yaml:"stress"`
	Live      LiveConfig       `json:"live" yaml:"live"`
	Notifiers []NotifierConfig `json:"notifiers" yaml:"notifiers"`
}

// StressConfig switches the run into stress mode: load is sustained
// for a duration instead of a fixed run count. A zero DurationSeconds
// leaves stress mode off.
type StressConfig struct {
	DurationSeconds int `json:"duration_seconds" yaml:"duration_seconds"`
	RampSeconds     int `json:"ramp_seconds" yaml:"ramp_seconds"`
	TargetQPS       int `json:"target_qps" yaml:"target_qps"`
}

// DatabaseConfig locates the database under test. Either DSN is given
// directly, or it is assembled from the individual fields.
type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// LiveConfig controls the live telemetry server. RefreshMS is an
// informational hint handed to dashboard clients; it never affects the
// benchmark loop.
type LiveConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Listen    string `json:"listen" yaml:"listen"`
	RefreshMS int    `json:"refresh_ms" yaml:"refresh_ms"`
	Buffer    int    `json:"buffer" yaml:"buffer"`
}

// NotifierConfig configures one completion notifier.
type NotifierConfig struct {
	Type     string `json:"type" yaml:"type"`
	Name     string `json:"name" yaml:"name"`
	Username string `json:"username" yaml:"username"`
	Channel  string `json:"channel" yaml:"channel"`
	Webhook  string `json:"webhook" yaml:"webhook"`
}

// DefaultConfig returns the built-in defaults, matching a local
// Postgres with trust auth.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:  "pgx",
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "postgres",
			SSLMode: "disable",
		},
		Runs:    100,
		Workers: 1,
		Live: LiveConfig{
			Listen: DefaultListenAddr,
		},
	}
}

// LoadConfig reads path and merges it over the defaults, then applies
// PGBENCH_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		cfg.applyEnv()
		return cfg, err
	}

	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, types.ConfigError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies the PGBENCH_* environment variables over c.
func (c *Config) applyEnv() {
	if v := os.Getenv("PGBENCH_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("PGBENCH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
	if v := os.Getenv("PGBENCH_DB"); v != "" {
		c.Database.DBName = v
	}
	if v := os.Getenv("PGBENCH_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("PGBENCH_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("PGBENCH_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Runs = n
		}
	}
}

// DriverDSN resolves the driver name and connection string to open.
func (d DatabaseConfig) DriverDSN() (string, string, error) {
	driver := d.Driver
	if driver == "" {
		driver = "pgx"
	}
	if d.DSN != "" {
		return driver, d.DSN, nil
	}

	switch driver {
	case "pgx", "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:   d.DBName,
		}
		sslmode := d.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		u.RawQuery = "sslmode=" + sslmode
		return driver, u.String(), nil
	case "mysql":
		return driver, fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			d.User, d.Password, d.Host, d.Port, d.DBName), nil
	case "sqlite3":
		return "", "", types.ConfigError{Reason: "sqlite3 requires an explicit dsn"}
	default:
		return "", "", types.ConfigError{Reason: fmt.Sprintf("unknown driver %q", driver)}
	}
}
