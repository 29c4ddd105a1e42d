package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// Cleanup policies
	CleanupImmediate = "immediate"
	CleanupTTL       = "ttl"

	defaultOutputName    = "localmodelpaperStyledPhi3.pdf"
	defaultMaxTotalBytes = 10 << 20
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Generator GeneratorConfig `yaml:"generator"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// StorageConfig holds the staging arena configuration
type StorageConfig struct {
	Root          string        `yaml:"root"`
	CleanupPolicy string        `yaml:"cleanup_policy"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// GeneratorConfig describes how the external generation worker is launched
type GeneratorConfig struct {
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args"`
	OutputName      string        `yaml:"output_name"`
	OutputFlag      string        `yaml:"output_flag"`
	Env             []string      `yaml:"env"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	StderrTailBytes int           `yaml:"stderr_tail_bytes"`
	KillWaitDelay   time.Duration `yaml:"kill_wait_delay"`
}

// GatewayConfig holds request limits
type GatewayConfig struct {
	MaxItems      int      `yaml:"max_items"`
	MaxItemBytes  int64    `yaml:"max_item_bytes"`
	MaxTotalBytes int64    `yaml:"max_total_bytes"`
	AllowedTypes  []string `yaml:"allowed_types"`
}

// RabbitMQConfig holds RabbitMQ connection and request queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// QueueConfig holds the generation request queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds reply publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills in unset values
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "papergen"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// must outlast a full generation run
		c.Server.WriteTimeout = 6 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Storage.Root == "" {
		c.Storage.Root = "uploads"
	}
	if c.Storage.CleanupPolicy == "" {
		c.Storage.CleanupPolicy = CleanupImmediate
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = 15 * time.Minute
	}
	if c.Storage.SweepInterval == 0 {
		c.Storage.SweepInterval = time.Minute
	}

	if c.Generator.OutputName == "" {
		c.Generator.OutputName = defaultOutputName
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = 5 * time.Minute
	}
	if c.Generator.StderrTailBytes == 0 {
		c.Generator.StderrTailBytes = 2048
	}
	if c.Generator.KillWaitDelay == 0 {
		c.Generator.KillWaitDelay = 5 * time.Second
	}

	if c.Gateway.MaxTotalBytes == 0 {
		c.Gateway.MaxTotalBytes = defaultMaxTotalBytes
	}

	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 2
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// validateCore checks the settings both services share
func (c *Config) validateCore() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	switch c.Storage.CleanupPolicy {
	case CleanupImmediate, CleanupTTL:
	default:
		return fmt.Errorf("invalid storage cleanup_policy: %q (must be %q or %q)", c.Storage.CleanupPolicy, CleanupImmediate, CleanupTTL)
	}

	// The janitor also prunes the job registry, so it must run under both policies.
	if c.Storage.Retention <= 0 {
		return fmt.Errorf("storage retention must be greater than 0")
	}

	if c.Storage.SweepInterval <= 0 {
		return fmt.Errorf("storage sweep_interval must be greater than 0")
	}

	if c.Generator.Command == "" {
		return fmt.Errorf("generator command is required")
	}

	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator timeout must be greater than 0")
	}

	if c.Generator.MaxConcurrent < 0 {
		return fmt.Errorf("generator max_concurrent must not be negative")
	}

	if c.Gateway.MaxItems < 0 || c.Gateway.MaxItemBytes < 0 || c.Gateway.MaxTotalBytes < 0 {
		return fmt.Errorf("gateway limits must not be negative")
	}

	if c.Gateway.MaxItemBytes > c.Gateway.MaxTotalBytes {
		return fmt.Errorf("gateway max_item_bytes (%d) exceeds max_total_bytes (%d)", c.Gateway.MaxItemBytes, c.Gateway.MaxTotalBytes)
	}

	return nil
}

// ValidateAPIConfig checks the configuration of the HTTP service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateCore()
}

// ValidateWorkerConfig checks the configuration of the queue service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateCore(); err != nil {
		return err
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}
