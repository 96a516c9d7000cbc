package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "database", cfg.Directory.Source)
	assert.Equal(t, 3, cfg.Directory.LookupAttempts)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "approvals", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  shutdown_timeout: 3s
database:
  driver: sqlite
  path: /tmp/approvals-test.db
directory:
  source: static
  members:
    - company_id: c1
      user_id: M1
      role: manager
nats:
  enabled: true
`)
	t.Setenv("APPROVALS_SERVER_PORT", "9191")
	t.Setenv("NATS_URL", "nats://broker:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "static", cfg.Directory.Source)
	require.Len(t, cfg.Directory.Members, 1)
	assert.Equal(t, "M1", cfg.Directory.Members[0].UserID)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Database:  DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Directory: DirectoryConfig{Source: "database"},
			Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"unknown directory", func(c *Config) { c.Directory.Source = "ldap" }, "directory.source"},
		{"incomplete member", func(c *Config) {
			c.Directory.Members = []MembershipConfig{{CompanyID: "c1", UserID: "U1"}}
		}, "directory.members[0]"},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true }, "nats.url"},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
