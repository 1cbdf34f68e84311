package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/sensei-scan/shared/kvstore"
	"github.com/cuongbtq/sensei-scan/shared/objectstore"
	"github.com/cuongbtq/sensei-scan/shared/rabbitmq"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Scheduler defaults
const (
	DefaultTickInterval = 800 * time.Millisecond
	DefaultScanDuration = 1200 * time.Millisecond
	DefaultSQLitePath   = "data/sensei.db"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Archive   ArchiveConfig   `yaml:"archive"`
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

// StoreConfig selects and configures the persistent store.
// Path applies to sqlite; the connection fields apply to postgres.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// SchedulerConfig holds admission loop timing
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	ScanDuration time.Duration `yaml:"scan_duration"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds the consumer queue; the api-service never declares it
type QueueConfig struct {
	Name        string   `yaml:"name"`
	Durable     bool     `yaml:"durable"`
	AutoDelete  bool     `yaml:"auto_delete"`
	Exclusive   bool     `yaml:"exclusive"`
	BindingKeys []string `yaml:"binding_keys"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// ArchiveConfig holds object storage settings for report archival
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values that have a sensible default
func (c *Config) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = DefaultSQLitePath
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = DefaultTickInterval
	}
	if c.Scheduler.ScanDuration <= 0 {
		c.Scheduler.ScanDuration = DefaultScanDuration
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

// ValidateAPIConfig checks the settings the api-service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick_interval must be greater than 0")
	}

	if c.Scheduler.ScanDuration <= 0 {
		return fmt.Errorf("scheduler scan_duration must be greater than 0")
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker-service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if c.Store.Driver == DriverMemory {
		return fmt.Errorf("store driver %q cannot be shared with the api-service", DriverMemory)
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Archive.Endpoint == "" {
		return fmt.Errorf("archive endpoint is required")
	}

	if c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required")
	}

	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for sqlite")
		}
		return nil
	case DriverPostgres:
		if c.Store.Host == "" {
			return fmt.Errorf("store host is required for postgres")
		}
		if c.Store.Port < MinPort || c.Store.Port > MaxPort {
			return fmt.Errorf("invalid store port: %d (must be between %d and %d)", c.Store.Port, MinPort, MaxPort)
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store database name is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

// KVStore maps the store section onto the shared store config
func (c *Config) KVStore() *kvstore.Config {
	return &kvstore.Config{
		Driver:          c.Store.Driver,
		Path:            c.Store.Path,
		Host:            c.Store.Host,
		Port:            c.Store.Port,
		User:            c.Store.User,
		Password:        c.Store.Password,
		Database:        c.Store.Database,
		SSLMode:         c.Store.SSLMode,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
		ConnMaxIdleTime: c.Store.ConnMaxIdleTime,
	}
}

// AMQP maps the rabbitmq section onto the shared client config.
// Publishers pass withQueue=false so no queue is declared.
func (c *Config) AMQP(withQueue bool) *rabbitmq.Config {
	cfg := &rabbitmq.Config{
		Host:               c.RabbitMQ.Host,
		Port:               c.RabbitMQ.Port,
		User:               c.RabbitMQ.User,
		Password:           c.RabbitMQ.Password,
		VHost:              c.RabbitMQ.VHost,
		ExchangeName:       c.RabbitMQ.Exchange.Name,
		ExchangeType:       c.RabbitMQ.Exchange.Type,
		ExchangeDurable:    c.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: c.RabbitMQ.Exchange.AutoDelete,
		RetryAttempts:      c.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      c.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          c.RabbitMQ.Connection.Heartbeat,
		PublishRetries:     c.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay:  c.RabbitMQ.Publish.RetryInterval,
		PublishBackoffMult: c.RabbitMQ.Publish.BackoffMultiplier,
	}
	if withQueue {
		cfg.QueueName = c.RabbitMQ.Queue.Name
		cfg.QueueDurable = c.RabbitMQ.Queue.Durable
		cfg.QueueAutoDelete = c.RabbitMQ.Queue.AutoDelete
		cfg.QueueExclusive = c.RabbitMQ.Queue.Exclusive
		cfg.BindingKeys = c.RabbitMQ.Queue.BindingKeys
		cfg.PrefetchCount = c.RabbitMQ.Consumer.PrefetchCount
	}
	return cfg
}

// ObjectStore maps the archive section onto the shared object storage config
func (c *Config) ObjectStore() *objectstore.Config {
	return &objectstore.Config{
		Endpoint:  c.Archive.Endpoint,
		AccessKey: c.Archive.AccessKey,
		SecretKey: c.Archive.SecretKey,
		UseSSL:    c.Archive.UseSSL,
		Region:    c.Archive.Region,
		Bucket:    c.Archive.Bucket,
	}
}
