// Package container provides dependency injection and lifecycle management
// for the approval engine.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Config holds all configuration for the Container.
type Config struct {
	Database  DatabaseConfig
	Directory DirectoryConfig
	Messaging MessagingConfig
	Metrics   MetricsConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string

	// Path to the SQLite database file
	Path string

	// DSN is the Postgres connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// DirectoryConfig holds role directory settings.
type DirectoryConfig struct {
	// Source is "database" (members table) or "static" (Members only)
	Source string

	// Members seeds the members table, or is the whole directory when static
	Members []entity.Membership

	LookupAttempts int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// MessagingConfig holds event publishing settings.
type MessagingConfig struct {
	// Enabled publishes to NATS; otherwise events are only logged
	Enabled       bool
	URL           string
	SubjectPrefix string
	ClientName    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/approvals.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Directory: DirectoryConfig{
			Source:         "database",
			LookupAttempts: 3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Messaging: MessagingConfig{
			SubjectPrefix: "approvals",
			ClientName:    "approval-engine",
			MaxReconnects: 60,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Directory.Source != "database" && c.Directory.Source != "static" {
		return fmt.Errorf("unsupported directory source %q", c.Directory.Source)
	}
	for _, m := range c.Directory.Members {
		if !m.Role.IsValid() {
			return fmt.Errorf("member %s of %s has unknown role %q", m.UserID, m.CompanyID, m.Role)
		}
	}

	if c.Messaging.Enabled && c.Messaging.URL == "" {
		return fmt.Errorf("messaging.url is required when messaging is enabled")
	}

	return nil
}
