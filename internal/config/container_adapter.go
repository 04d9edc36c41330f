package config

import (
	"github.com/garyjia/pmajay-coordination/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// version is reported by the health endpoint.
func (c *Config) ToContainerConfig(version string) *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Server: container.ServerConfig{
			Host:              c.Server.Host,
			Port:              c.Server.Port,
			ReadTimeout:       c.Server.ReadTimeout,
			HeartbeatInterval: c.Server.HeartbeatInterval,
			Version:           version,
		},
		Workflow: container.WorkflowConfig{
			NotifyTimeout:        c.Workflow.NotifyTimeout,
			DirectoryTimeout:     c.Workflow.DirectoryTimeout,
			ExecutingAgencyLimit: c.Workflow.ExecutingAgencyLimit,
		},
		Events: container.EventsConfig{
			Topic:  c.Events.Topic,
			Buffer: c.Events.Buffer,
		},
		Lark: container.LarkConfig{
			Enabled:    c.Lark.Enabled,
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			BaseURL:    c.Lark.BaseURL,
			APITimeout: c.Lark.APITimeout,
		},
		Relay: container.RelayConfig{
			PollInterval: c.Relay.PollInterval,
			BatchSize:    c.Relay.BatchSize,
			MaxAttempts:  c.Relay.MaxAttempts,
		},
	}
}
