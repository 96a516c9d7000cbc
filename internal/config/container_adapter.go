package config

import (
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ToContainerConfig converts the file-based Config loaded by viper into the
// container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	members := make([]entity.Membership, 0, len(c.Directory.Members))
	for _, m := range c.Directory.Members {
		members = append(members, entity.Membership{
			CompanyID: m.CompanyID,
			UserID:    m.UserID,
			Role:      entity.Role(m.Role),
		})
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Directory: container.DirectoryConfig{
			Source:         c.Directory.Source,
			Members:        members,
			LookupAttempts: c.Directory.LookupAttempts,
			InitialBackoff: c.Directory.InitialBackoff,
			MaxBackoff:     c.Directory.MaxBackoff,
		},
		Messaging: container.MessagingConfig{
			Enabled:       c.NATS.Enabled,
			URL:           c.NATS.URL,
			SubjectPrefix: c.NATS.SubjectPrefix,
			ClientName:    c.NATS.ClientName,
			MaxReconnects: c.NATS.MaxReconnects,
			ReconnectWait: c.NATS.ReconnectWait,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
	}
}
