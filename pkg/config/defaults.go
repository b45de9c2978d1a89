package config

import "time"

// ApplyNMDefaults fills zero-valued NMConfig fields with defaults.
func ApplyNMDefaults(cfg *NMConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5050"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	applyMembershipDefaults(&cfg.Membership)
	applyClusterStoreDefaults(&cfg.Store)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminAPIDefaults(&cfg.Admin, ":9100")
}

// ApplySSDefaults fills zero-valued SSConfig fields with defaults.
func ApplySSDefaults(cfg *SSConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":6001"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	applyMetastoreDefaults(&cfg.Metastore)
	applyCheckpointStoreDefaults(&cfg.CheckpointStore)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyAdminAPIDefaults(&cfg.Admin, ":9101")
}

func applyMembershipDefaults(cfg *MembershipConfig) {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.DeadAfter == 0 {
		cfg.DeadAfter = 15 * time.Second
	}
}

func applyClusterStoreDefaults(cfg *ClusterStoreConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "memory"
	}
}

func applyMetastoreDefaults(cfg *MetastoreConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "json"
	}
}

func applyCheckpointStoreDefaults(cfg *CheckpointStoreConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "disk"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; operators opt in explicitly.
}

func applyAdminAPIDefaults(cfg *AdminAPIConfig, defaultAddr string) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
}

// DefaultNMConfig returns an NMConfig with every field at its default.
func DefaultNMConfig() *NMConfig {
	cfg := &NMConfig{}
	ApplyNMDefaults(cfg)
	return cfg
}

// DefaultSSConfig returns an SSConfig with every field at its default,
// given the id this storage server will register under.
func DefaultSSConfig(id string) *SSConfig {
	cfg := &SSConfig{ID: id, NMAddr: "localhost:5050"}
	ApplySSDefaults(cfg)
	return cfg
}
