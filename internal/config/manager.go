package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	EnvPrefix      = "CLOB"
	reloadDebounce = 500 * time.Millisecond
)

// ReloadCallback is called with the previous and the new configuration before
// the new one is installed. An error rejects the reload.
type ReloadCallback func(oldConfig, newConfig *Config) error

// Manager loads, validates and hot-reloads the configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	viper     *viper.Viper
	validator *validator.Validate
	logger    *zap.Logger

	watcher         *fsnotify.Watcher
	watchPaths      []string
	reloadCallbacks []ReloadCallback
	ctx             context.Context
	cancel          context.CancelFunc

	lastReload time.Time
}

// NewManager creates a configuration manager
func NewManager(logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		viper:     viper.New(),
		validator: validator.New(),
		logger:    logger.Named("config"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnReload adds a callback run on every successful reload.
func (m *Manager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, cb)
}

// Config returns the current configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *Manager) LastReload() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReload
}

// Load reads the given YAML files, overlays environment variables, applies
// defaults and validates the result. With watch set, changes to the files
// trigger a reload.
func (m *Manager) Load(watch bool, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Loading configuration", zap.Strings("paths", paths))
	cfg, files, err := m.read(m.viper, paths)
	if err != nil {
		return err
	}
	m.watchPaths = files
	if watch {
		if err := m.startWatcher(); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	m.config = cfg
	m.lastReload = time.Now()
	m.logger.Info("Configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.Strings("files", files))
	return nil
}

func (m *Manager) read(v *viper.Viper, paths []string) (*Config, []string, error) {
	setupViper(v)
	files, err := m.loadConfigFiles(v, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config files: %w", err)
	}
	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	setDefaults(&cfg)
	if err := m.validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, files, nil
}

func setupViper(v *viper.Viper) {
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
}

func (m *Manager) loadConfigFiles(v *viper.Viper, paths []string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			m.logger.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	if len(loaded) == 0 {
		m.logger.Warn("No configuration files found, using defaults and environment variables")
	}
	return loaded, nil
}

// envMappings binds scalar keys to CLOB_ variables so they apply even when
// the key is absent from every file.
var envMappings = map[string]string{
	"CLOB_ENVIRONMENT":                  "environment",
	"CLOB_SERVER_HOST":                  "server.host",
	"CLOB_SERVER_PORT":                  "server.port",
	"CLOB_LOGGING_LEVEL":                "logging.level",
	"CLOB_LOGGING_FORMAT":               "logging.format",
	"CLOB_ENGINE_CRITICAL_HEIGHT":       "engine.critical_height",
	"CLOB_ENGINE_SNAPSHOT_INTERVAL":     "engine.snapshot_interval",
	"CLOB_ENGINE_SEED_FILE":             "engine.seed_file",
	"CLOB_STORAGE_SNAPSHOT_DIR":         "storage.snapshot_dir",
	"CLOB_STORAGE_EVENT_STORE_DRIVER":   "storage.event_store_driver",
	"CLOB_STORAGE_EVENT_STORE_DSN":      "storage.event_store_dsn",
	"CLOB_MESSAGING_KAFKA_ENABLED":      "messaging.kafka.enabled",
	"CLOB_MESSAGING_KAFKA_TOPIC":        "messaging.kafka.topic",
	"CLOB_MESSAGING_REDIS_ENABLED":      "messaging.redis.enabled",
	"CLOB_MESSAGING_REDIS_ADDRESS":      "messaging.redis.address",
	"CLOB_MESSAGING_REDIS_PASSWORD":     "messaging.redis.password",
	"CLOB_MESSAGING_REDIS_STREAM":       "messaging.redis.stream",
	"CLOB_AUTH_ENABLED":                 "auth.enabled",
	"CLOB_AUTH_SECRET":                  "auth.secret",
	"CLOB_AUTH_ISSUER":                  "auth.issuer",
	"CLOB_AUTH_AUDIENCE":                "auth.audience",
	"CLOB_TRACING_ENABLED":              "tracing.enabled",
	"CLOB_TRACING_METRICS":              "tracing.metrics",
	"CLOB_INCENTIVES_TAKER_FEE_DIVISOR": "incentives.taker_fee_divisor",
}

func loadEnvironmentVariables(v *viper.Viper) {
	for env, key := range envMappings {
		if value := os.Getenv(env); value != "" {
			v.Set(key, value)
		}
	}
	// Lists are comma separated.
	if brokers := os.Getenv("CLOB_MESSAGING_KAFKA_BROKERS"); brokers != "" {
		v.Set("messaging.kafka.brokers", strings.Split(brokers, ","))
	}
}

func setDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = ConfigVersion
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.GracefulShutdownTimeout == 0 {
		cfg.Server.GracefulShutdownTimeout = 10 * time.Second
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	def := incentives.DefaultParams()
	if cfg.Engine.CriticalHeight == 0 {
		cfg.Engine.CriticalHeight = 18
	}
	if cfg.Engine.InactiveTreeNodes == 0 {
		cfg.Engine.InactiveTreeNodes = 16
	}
	if cfg.Engine.InactiveListNodes == 0 {
		cfg.Engine.InactiveListNodes = 64
	}
	if cfg.Engine.EventHistory == 0 {
		cfg.Engine.EventHistory = 10000
	}
	if cfg.Engine.DispatchBuffer == 0 {
		cfg.Engine.DispatchBuffer = 1024
	}
	if cfg.Engine.SnapshotInterval == 0 {
		cfg.Engine.SnapshotInterval = time.Minute
	}

	if cfg.Incentives.UtilityCoinType == "" {
		cfg.Incentives.UtilityCoinType = def.UtilityCoinType
	}
	if cfg.Incentives.MarketRegistrationFee == 0 {
		cfg.Incentives.MarketRegistrationFee = def.MarketRegistrationFee
	}
	if cfg.Incentives.UnderwriterRegistrationFee == 0 {
		cfg.Incentives.UnderwriterRegistrationFee = def.UnderwriterRegistrationFee
	}
	if cfg.Incentives.CustodianRegistrationFee == 0 {
		cfg.Incentives.CustodianRegistrationFee = def.CustodianRegistrationFee
	}
	if cfg.Incentives.TakerFeeDivisor == 0 {
		cfg.Incentives.TakerFeeDivisor = def.TakerFeeDivisor
	}
	if len(cfg.Incentives.Tiers) == 0 {
		cfg.Incentives.Tiers = def.Tiers
	}

	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = "./data/snapshots"
	}
	if cfg.Storage.SnapshotsKept == 0 {
		cfg.Storage.SnapshotsKept = 10
	}
	if cfg.Storage.EventStoreDriver == "" {
		cfg.Storage.EventStoreDriver = "none"
	}

	if cfg.Messaging.Kafka.Topic == "" {
		cfg.Messaging.Kafka.Topic = "clob.events"
	}
	if cfg.Messaging.Kafka.BatchTimeout == 0 {
		cfg.Messaging.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.Messaging.Kafka.WriteTimeout == 0 {
		cfg.Messaging.Kafka.WriteTimeout = 5 * time.Second
	}
	if cfg.Messaging.Redis.Stream == "" {
		cfg.Messaging.Redis.Stream = "clob:events"
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "pincex-clob"
	}
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "clob-api"
	}
	if cfg.Auth.Leeway == 0 {
		cfg.Auth.Leeway = 30 * time.Second
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "clobd"
	}
	if cfg.Tracing.MetricInterval == 0 {
		cfg.Tracing.MetricInterval = time.Minute
	}
}

func (m *Manager) validate(cfg *Config) error {
	if err := m.validator.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := validateCustomRules(cfg); err != nil {
		return fmt.Errorf("custom validation failed: %w", err)
	}
	return nil
}

func validateCustomRules(cfg *Config) error {
	if err := cfg.Incentives.Validate(0); err != nil {
		return fmt.Errorf("incentives: %w", err)
	}
	if cfg.Auth.Enabled && len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("auth is enabled but the secret is shorter than 32 bytes")
	}
	if cfg.Environment == "production" && !cfg.Auth.Enabled {
		return fmt.Errorf("production environment requires auth to be enabled")
	}
	if cfg.Storage.EventStoreDriver != "none" && cfg.Storage.EventStoreDSN == "" {
		return fmt.Errorf("event store driver %s requires a DSN", cfg.Storage.EventStoreDriver)
	}
	if cfg.Messaging.Kafka.Enabled && len(cfg.Messaging.Kafka.Brokers) == 0 {
		return fmt.Errorf("Kafka is enabled but no brokers are configured")
	}
	if cfg.Messaging.Redis.Enabled && cfg.Messaging.Redis.Address == "" {
		return fmt.Errorf("Redis is enabled but no address is configured")
	}
	return nil
}

func (m *Manager) startWatcher() error {
	if len(m.watchPaths) == 0 {
		m.logger.Info("No config files to watch, hot-reload disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	for _, path := range m.watchPaths {
		if err := watcher.Add(path); err != nil {
			m.logger.Warn("Failed to watch config file", zap.String("path", path), zap.Error(err))
		}
	}
	m.watcher = watcher
	go m.watchForChanges(watcher)
	m.logger.Info("File watcher started for hot-reload", zap.Strings("paths", m.watchPaths))
	return nil
}

func (m *Manager) watchForChanges(watcher *fsnotify.Watcher) {
	debounce := time.NewTimer(0)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				m.logger.Debug("Config file changed",
					zap.String("file", event.Name),
					zap.String("operation", event.Op.String()))
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("File watcher error", zap.Error(err))
		case <-debounce.C:
			if err := m.Reload(); err != nil {
				m.logger.Error("Failed to reload configuration", zap.Error(err))
			}
		}
	}
}

// Reload re-reads the watched files. Callbacks run before the new
// configuration is installed; the first error keeps the old one.
func (m *Manager) Reload() error {
	m.mu.RLock()
	oldConfig := m.config
	paths := append([]string(nil), m.watchPaths...)
	callbacks := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.RUnlock()

	v := viper.New()
	newConfig, _, err := m.read(v, paths)
	if err != nil {
		return err
	}
	for _, cb := range callbacks {
		if err := cb(oldConfig, newConfig); err != nil {
			return fmt.Errorf("reload callback failed: %w", err)
		}
	}

	m.mu.Lock()
	m.viper = v
	m.config = newConfig
	m.lastReload = time.Now()
	m.mu.Unlock()
	m.logger.Info("Configuration reloaded", zap.Time("reloaded_at", m.lastReload))
	return nil
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close file watcher: %w", err)
		}
	}
	return nil
}
