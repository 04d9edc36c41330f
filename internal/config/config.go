package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/pmajay-coordination/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Events   EventsConfig   `mapstructure:"events"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded schema
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
}

// WorkflowConfig holds workflow engine configuration
type WorkflowConfig struct {
	NotifyTimeout        time.Duration `mapstructure:"notify_timeout" validate:"gt=0"`
	DirectoryTimeout     time.Duration `mapstructure:"directory_timeout" validate:"gt=0"`
	ExecutingAgencyLimit int           `mapstructure:"executing_agency_limit" validate:"gte=1"`
}

// EventsConfig holds domain event feed configuration
type EventsConfig struct {
	Topic  string `mapstructure:"topic" validate:"required"`
	Buffer int64  `mapstructure:"buffer" validate:"gte=0"`
}

// LarkConfig holds Lark API configuration for the chat relay
type LarkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AppID      string        `mapstructure:"app_id" validate:"required_if=Enabled true"`
	AppSecret  string        `mapstructure:"app_secret" validate:"required_if=Enabled true"`
	BaseURL    string        `mapstructure:"base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// RelayConfig holds relay worker configuration
type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gte=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=0"`
}

// Load loads configuration from file and environment variables.
// A .env file in the working directory is read first when present.
// configPath may be empty, in which case only defaults and the
// environment apply.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PMAJAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.heartbeat_interval", 15*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/pmajay.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Workflow defaults
	v.SetDefault("workflow.notify_timeout", 5*time.Second)
	v.SetDefault("workflow.directory_timeout", 3*time.Second)
	v.SetDefault("workflow.executing_agency_limit", 2)

	// Event feed defaults
	v.SetDefault("events.topic", "workflow.events")
	v.SetDefault("events.buffer", 256)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.api_timeout", 30*time.Second)

	// Relay defaults
	v.SetDefault("relay.poll_interval", 5*time.Second)
	v.SetDefault("relay.batch_size", 20)
	v.SetDefault("relay.max_attempts", 3)
}

// bindEnvVars binds the unprefixed credential variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "PMAJAY_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "PMAJAY_LARK_APP_SECRET", "LARK_APP_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	return utils.ValidateStruct(c)
}
