// Package config loads the Name Server and Storage Server configuration
// from FILEGRID_* environment variables, a YAML file, and built-in
// defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/filegrid/filegrid/internal/bytesize"
)

// NMConfig is the configuration for a Name Server process.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (FILEGRID_*)
//  2. Configuration file (YAML)
//  3. Default values
type NMConfig struct {
	// ListenAddr is the host:port the NM accepts client and SS
	// connections on.
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// ShutdownTimeout bounds how long the NM waits for in-flight
	// connections to drain on a graceful stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MaxConnections caps concurrently accepted connections. Zero means
	// unbounded.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// Membership controls the failure detector's sweep/timeout cadence.
	Membership MembershipConfig `mapstructure:"membership" yaml:"membership"`

	// Store selects the durable backing for membership and routing state.
	Store ClusterStoreConfig `mapstructure:"store" yaml:"store"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Admin     AdminAPIConfig  `mapstructure:"admin" yaml:"admin"`
}

// SSConfig is the configuration for a Storage Server process.
type SSConfig struct {
	// ID uniquely identifies this storage server to the name server.
	ID string `mapstructure:"id" validate:"required" yaml:"id"`

	// ListenAddr is the host:port this SS accepts client connections
	// and NM-proxied control operations on.
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// NMAddr is the name server's host:port this SS registers with and
	// sends heartbeats to.
	NMAddr string `mapstructure:"nm_addr" validate:"required" yaml:"nm_addr"`

	// DataDir is the root of this SS's on-disk layout:
	// data/files, data/meta, data/undo, data/checkpoints.
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// HeartbeatInterval is how often this SS pings the name server.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required,gt=0" yaml:"heartbeat_interval"`

	// ShutdownTimeout bounds how long the SS waits for in-flight
	// connections to drain on a graceful stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MaxConnections caps concurrently accepted connections. Zero means
	// unbounded.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// Metastore selects the backing for the per-file metadata cache.
	Metastore MetastoreConfig `mapstructure:"metastore" yaml:"metastore"`

	// CheckpointStore selects the backing for named checkpoints.
	CheckpointStore CheckpointStoreConfig `mapstructure:"checkpoint_store" yaml:"checkpoint_store"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Admin     AdminAPIConfig  `mapstructure:"admin" yaml:"admin"`
}

// MembershipConfig controls the NM's heartbeat-based failure detector.
type MembershipConfig struct {
	// SweepInterval is how often the failure detector scans for nodes
	// that have missed their heartbeat deadline.
	// Default: 5s
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// DeadAfter is how long a node may go without a heartbeat before
	// the NM marks it dead. Advisory only: no promotion, no consensus.
	// Default: 15s
	DeadAfter time.Duration `mapstructure:"dead_after" yaml:"dead_after"`
}

// ClusterStoreConfig selects and configures the NM's membership/routing
// backing store.
type ClusterStoreConfig struct {
	// Driver selects the backend: "memory" (default), "sqlite", or
	// "postgres". Only "memory" survives no restart; sqlite/postgres
	// persist membership and routing across NM restarts.
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=memory sqlite postgres" yaml:"driver"`

	// DSN is the data source name for sqlite (a file path) or postgres
	// (a libpq connection string). Unused for "memory".
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// MetastoreConfig selects and configures the SS's per-file metadata
// cache.
type MetastoreConfig struct {
	// Driver selects the backend: "json" (default, on-disk under
	// data/meta) or "badger" (embedded KV, accelerates startup scans).
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=json badger" yaml:"driver"`

	// Path is the badger data directory. Unused for "json".
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Cache bounds badger's block cache ("512Mi", "1Gi"). Zero uses the
	// driver default. Unused for "json".
	Cache CacheConfig `mapstructure:"cache" yaml:"cache,omitempty"`
}

// CheckpointStoreConfig selects and configures the SS's checkpoint
// backing.
type CheckpointStoreConfig struct {
	// Driver selects the backend: "disk" (default, under
	// data/checkpoints) or "s3".
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=disk s3" yaml:"driver"`

	// Bucket is the S3 bucket name. Unused for "disk".
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`

	// Prefix is an optional key prefix within the bucket.
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`

	// Region is the AWS region for the bucket.
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint URL, for S3-compatible services
	// such as MinIO. Empty uses the AWS default.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKey/SecretKey select static credentials. Leave both empty to
	// use the SDK's default credential chain.
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing and
// Pyroscope continuous profiling.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AdminAPIConfig configures the read-only chi admin HTTP API.
type AdminAPIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" validate:"omitempty" yaml:"addr"`
}

// CacheConfig specifies a human-readable byte size limit, reused by
// backends that accept a capacity (badger cache size, for example).
type CacheConfig struct {
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size,omitempty"`
}

// LoadNM loads NM configuration from file, environment, and defaults.
func LoadNM(configPath string) (*NMConfig, error) {
	v := newViper("nm", configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultNMConfig()
		return cfg, nil
	}

	var cfg NMConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nm config: %w", err)
	}
	ApplyNMDefaults(&cfg)
	if err := ValidateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("nm configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadSS loads SS configuration from file, environment, and defaults.
func LoadSS(configPath string) (*SSConfig, error) {
	v := newViper("ss", configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no configuration file found; run 'ssd init' first")
	}

	var cfg SSConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ss config: %w", err)
	}
	ApplySSDefaults(&cfg)
	if err := ValidateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("ss configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ValidateStruct runs go-playground/validator over any config struct tagged
// with `validate`.
func ValidateStruct(cfg any) error {
	return validator.New().Struct(cfg)
}

// SaveConfig marshals cfg as YAML and writes it to path.
func SaveConfig(cfg any, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// newViper builds a viper instance scoped to one role ("nm" or "ss"),
// configured for FILEGRID_* environment overrides and YAML config files.
func newViper(role, configPath string) *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("FILEGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName(role)
		v.SetConfigType("yaml")
	}

	return v
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the mapstructure decode hooks for custom
// scalar types used across NMConfig/SSConfig.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path: XDG_CONFIG_HOME,
// falling back to ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "filegrid")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "filegrid")
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}

// DefaultConfigPath returns the default path for a role's config file
// ("nm" or "ss").
func DefaultConfigPath(role string) string {
	return filepath.Join(getConfigDir(), role+".yaml")
}
