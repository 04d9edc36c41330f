package container

import (
	"fmt"
	"time"

	"github.com/garyjia/pmajay-coordination/pkg/utils"
)

// Config holds all configuration needed by the container
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Workflow WorkflowConfig
	Events   EventsConfig
	Lark     LarkConfig
	Relay    RelayConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	// Path to the SQLite database file
	Path string `validate:"required"`
	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `validate:"gte=0"`
	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `validate:"gte=0"`
	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host              string
	Port              int `validate:"gte=1,lte=65535"`
	ReadTimeout       time.Duration
	HeartbeatInterval time.Duration
	Version           string
}

// WorkflowConfig holds workflow engine settings
type WorkflowConfig struct {
	// NotifyTimeout bounds each post-commit notification send
	NotifyTimeout time.Duration `validate:"gt=0"`
	// DirectoryTimeout bounds each agency directory lookup
	DirectoryTimeout time.Duration `validate:"gt=0"`
	// ExecutingAgencyLimit caps how many executing agencies are assigned on approval
	ExecutingAgencyLimit int `validate:"gte=1"`
}

// EventsConfig holds domain event feed settings
type EventsConfig struct {
	Topic  string `validate:"required"`
	Buffer int64  `validate:"gte=0"`
}

// LarkConfig holds Lark chat relay credentials
type LarkConfig struct {
	Enabled    bool
	AppID      string `validate:"required_if=Enabled true"`
	AppSecret  string `validate:"required_if=Enabled true"`
	BaseURL    string
	APITimeout time.Duration
}

// RelayConfig holds relay worker settings
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int `validate:"gte=0"`
	MaxAttempts  int `validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/pmajay.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			Version:           "dev",
		},
		Workflow: WorkflowConfig{
			NotifyTimeout:        5 * time.Second,
			DirectoryTimeout:     3 * time.Second,
			ExecutingAgencyLimit: 2,
		},
		Events: EventsConfig{
			Topic:  "workflow.events",
			Buffer: 256,
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Relay: RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    20,
			MaxAttempts:  3,
		},
	}
}

// Validate checks that required fields are set
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	return utils.ValidateStruct(c)
}
