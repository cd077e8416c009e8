package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/xstream/util"
	"github.com/spf13/pflag"
)

// StaticGroupConfig declares a consumer group the broker creates at startup.
type StaticGroupConfig struct {
	Stream string `yaml:"stream" json:"stream"`
	Group  string `yaml:"group" json:"group"`
	Start  string `yaml:"start" json:"start"`
}

// Config represents the broker configuration.
type Config struct {
	// Server settings
	BrokerPort      int           `yaml:"broker_port" json:"broker.port"`
	WorkerPoolSize  int           `yaml:"worker_pool_size" json:"worker.pool.size"`
	MaxConnections  int           `yaml:"max_connections" json:"max.connections"`
	ReadTimeoutMS   int           `yaml:"read_timeout_ms" json:"read.timeout.ms"`
	EnableExporter  bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort    int           `yaml:"exporter_port" json:"exporter.port"`
	LogLevel        util.LogLevel `yaml:"log_level" json:"log_level"`
	CompressionType string        `yaml:"compression_type" json:"compression.type"`

	// Storage
	Storage           string `yaml:"storage" json:"storage"`
	LogDir            string `yaml:"log_dir" json:"log.dir"`
	SyncWrites        bool   `yaml:"sync_writes" json:"sync.writes"`
	RecordCompression string `yaml:"record_compression" json:"record.compression"`

	// Retention: 0 keeps every entry.
	MaxLen int `yaml:"max_len" json:"max.len"`

	// Pending-entry monitor
	IdleCheckIntervalMS int `yaml:"idle_check_interval_ms" json:"idle.check.interval.ms"`
	StaleThresholdMS    int `yaml:"stale_threshold_ms" json:"stale.threshold.ms"`

	StaticGroups []StaticGroupConfig `yaml:"static_groups" json:"static_groups"`
}

func defaultConfig() *Config {
	return &Config{
		BrokerPort:          9000,
		WorkerPoolSize:      64,
		MaxConnections:      64,
		ReadTimeoutMS:       0,
		EnableExporter:      true,
		ExporterPort:        9100,
		LogLevel:            util.LogLevelInfo,
		CompressionType:     util.CompressionNone,
		Storage:             StoragePebble,
		LogDir:              "broker-logs",
		SyncWrites:          true,
		RecordCompression:   util.CompressionNone,
		IdleCheckIntervalMS: 5000,
		StaleThresholdMS:    30000,
	}
}

// LoadConfig builds the broker config: defaults, then the config file (--config or
// CONFIG_PATH), then env vars, then flags given explicitly on the command line.
func LoadConfig(args []string) (*Config, error) {
	cfg := defaultConfig()

	fs := pflag.NewFlagSet("broker", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	fs.IntVar(&cfg.BrokerPort, "port", cfg.BrokerPort, "Broker port")
	fs.IntVar(&cfg.WorkerPoolSize, "workers", cfg.WorkerPoolSize, "Connection worker pool size")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum concurrent client connections (at most worker-pool-size)")
	fs.IntVar(&cfg.ReadTimeoutMS, "read-timeout-ms", cfg.ReadTimeoutMS, "Idle connection read timeout in milliseconds (0=disabled)")
	fs.BoolVar(&cfg.EnableExporter, "exporter", cfg.EnableExporter, "Enable Prometheus exporter")
	fs.IntVar(&cfg.ExporterPort, "exporter-port", cfg.ExporterPort, "Exporter port")
	fs.Var(&cfg.LogLevel, "log-level", "Log Level (debug, info, warn, error)")
	fs.StringVar(&cfg.CompressionType, "compression", cfg.CompressionType, "Wire compression (none, gzip, snappy, lz4, zstd)")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Storage backend (pebble, memory)")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Data directory")
	fs.BoolVar(&cfg.SyncWrites, "sync", cfg.SyncWrites, "Fsync every storage commit")
	fs.StringVar(&cfg.RecordCompression, "record-compression", cfg.RecordCompression, "Stored entry compression")
	fs.IntVar(&cfg.MaxLen, "max-len", cfg.MaxLen, "Per-stream retention in entries (0=unbounded)")
	fs.IntVar(&cfg.IdleCheckIntervalMS, "idle-check-interval-ms", cfg.IdleCheckIntervalMS, "Pending-entry monitor interval in milliseconds")
	fs.IntVar(&cfg.StaleThresholdMS, "stale-threshold-ms", cfg.StaleThresholdMS, "Idle time after which a pending entry is reported stale")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	explicit := explicitFlags(fs)

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath != "" {
		if err := loadFile(*configPath, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideEnv()
	if err := applyExplicit(fs, explicit); err != nil {
		return nil, err
	}

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func (cfg *Config) overrideEnv() {
	overrideEnvInt(&cfg.BrokerPort, "BROKER_PORT")
	overrideEnvString(&cfg.Storage, "STORAGE")
	overrideEnvString(&cfg.LogDir, "LOG_DIR")
	overrideEnvInt(&cfg.MaxLen, "MAX_LEN")
	overrideEnvBool(&cfg.EnableExporter, "ENABLE_EXPORTER")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = util.ParseLogLevel(v)
	}
}

func (cfg *Config) Normalize() {
	if cfg.BrokerPort <= 0 {
		cfg.BrokerPort = 9000
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 64
	}
	// A worker serves one connection until it closes, so admitting more
	// connections than workers would leave the extra ones unanswered.
	if cfg.MaxConnections > cfg.WorkerPoolSize {
		util.Warn("max_connections %d exceeds worker_pool_size %d, capping", cfg.MaxConnections, cfg.WorkerPoolSize)
		cfg.MaxConnections = cfg.WorkerPoolSize
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = cfg.WorkerPoolSize
	}
	if cfg.ReadTimeoutMS < 0 {
		cfg.ReadTimeoutMS = 0
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}
	cfg.CompressionType = normalizeCompression("compression_type", cfg.CompressionType)
	cfg.RecordCompression = normalizeCompression("record_compression", cfg.RecordCompression)

	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	switch cfg.Storage {
	case StoragePebble, StorageMemory:
	default:
		util.Warn("Invalid storage '%s', defaulting to '%s'", cfg.Storage, StoragePebble)
		cfg.Storage = StoragePebble
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = "broker-logs"
	}
	if cfg.MaxLen < 0 {
		cfg.MaxLen = 0
	}

	if cfg.StaleThresholdMS <= 0 {
		cfg.StaleThresholdMS = 30000
	}
	if cfg.IdleCheckIntervalMS <= 0 {
		cfg.IdleCheckIntervalMS = 5000
	}
	if cfg.IdleCheckIntervalMS >= cfg.StaleThresholdMS {
		cfg.IdleCheckIntervalMS = cfg.StaleThresholdMS / 2
	}

	groups := cfg.StaticGroups[:0]
	for _, g := range cfg.StaticGroups {
		g.Stream = strings.TrimSpace(g.Stream)
		g.Group = strings.TrimSpace(g.Group)
		if g.Stream == "" || g.Group == "" {
			util.Warn("Skipping static group with empty stream or group name: %+v", g)
			continue
		}
		if g.Start == "" {
			g.Start = "tail"
		}
		groups = append(groups, g)
	}
	cfg.StaticGroups = groups
}

func (cfg *Config) String() string {
	return fmt.Sprintf("port=%d storage=%s dir=%s max_len=%d compression=%s log_level=%s",
		cfg.BrokerPort, cfg.Storage, cfg.LogDir, cfg.MaxLen, cfg.CompressionType, cfg.LogLevel)
}
