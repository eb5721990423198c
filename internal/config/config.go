// Package config loads the exchange service configuration from YAML files
// and CLOB_ environment variables, validates it, and hot-reloads it.
package config

import (
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
)

const ConfigVersion = "1.0.0"

// Config is the complete service configuration.
type Config struct {
	Version     string `mapstructure:"version" yaml:"version" validate:"required"`
	Environment string `mapstructure:"environment" yaml:"environment" validate:"required,oneof=development staging production"`

	Server     ServerConfig      `mapstructure:"server" yaml:"server" validate:"required"`
	Logging    LoggingConfig     `mapstructure:"logging" yaml:"logging" validate:"required"`
	Engine     EngineConfig      `mapstructure:"engine" yaml:"engine" validate:"required"`
	Incentives incentives.Params `mapstructure:"incentives" yaml:"incentives"`
	Storage    StorageConfig     `mapstructure:"storage" yaml:"storage" validate:"required"`
	Messaging  MessagingConfig   `mapstructure:"messaging" yaml:"messaging"`
	Auth       AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Tracing    TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                    string        `mapstructure:"host" yaml:"host" validate:"required"`
	Port                    int           `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"required"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"required"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout" yaml:"graceful_shutdown_timeout" validate:"required"`
	AllowedOrigins          []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=json console"`
}

// EngineConfig tunes the matching engine and its snapshots.
type EngineConfig struct {
	CriticalHeight    uint8         `mapstructure:"critical_height" yaml:"critical_height" validate:"max=18"`
	InactiveTreeNodes int           `mapstructure:"inactive_tree_nodes" yaml:"inactive_tree_nodes" validate:"min=0,max=16383"`
	InactiveListNodes int           `mapstructure:"inactive_list_nodes" yaml:"inactive_list_nodes" validate:"min=0,max=16383"`
	EventHistory      int           `mapstructure:"event_history" yaml:"event_history" validate:"min=0"`
	DispatchBuffer    int           `mapstructure:"dispatch_buffer" yaml:"dispatch_buffer" validate:"min=1"`
	SnapshotInterval  time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval" validate:"required,gt=0"`
	SeedFile          string        `mapstructure:"seed_file" yaml:"seed_file"`
}

// Exchange converts the engine section to exchange settings.
func (c EngineConfig) Exchange() market.Config {
	return market.Config{
		CriticalHeight:    c.CriticalHeight,
		InactiveTreeNodes: c.InactiveTreeNodes,
		InactiveListNodes: c.InactiveListNodes,
		EventHistory:      c.EventHistory,
		DispatchBuffer:    c.DispatchBuffer,
	}
}

// StorageConfig locates the snapshot store and the event store.
type StorageConfig struct {
	SnapshotDir      string `mapstructure:"snapshot_dir" yaml:"snapshot_dir" validate:"required"`
	SnapshotsKept    int    `mapstructure:"snapshots_kept" yaml:"snapshots_kept" validate:"min=1"`
	EventStoreDriver string `mapstructure:"event_store_driver" yaml:"event_store_driver" validate:"oneof=postgres sqlite none"`
	EventStoreDSN    string `mapstructure:"event_store_dsn" yaml:"event_store_dsn"`
}

type MessagingConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Compression  string        `mapstructure:"compression" yaml:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
}

// RedisConfig holds Redis stream configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"min=0"`
	Stream   string `mapstructure:"stream" yaml:"stream"`
	MaxLen   int64  `mapstructure:"max_len" yaml:"max_len" validate:"min=0"`
}

// AuthConfig holds JWT configuration
type AuthConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	Leeway   time.Duration `mapstructure:"leeway" yaml:"leeway"`
}

// TracingConfig switches the OpenTelemetry stdout exporters. Metrics here
// are the OpenTelemetry instruments; prometheus collectors are always served.
type TracingConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	ServiceName    string        `mapstructure:"service_name" yaml:"service_name"`
	Metrics        bool          `mapstructure:"metrics" yaml:"metrics"`
	MetricInterval time.Duration `mapstructure:"metric_interval" yaml:"metric_interval"`
}
