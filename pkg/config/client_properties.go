package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/xstream/util"
	"github.com/spf13/pflag"
)

// ClientConfig configures the telemetry producer/consumer process.
type ClientConfig struct {
	Role     string        `yaml:"role" json:"role"`
	LogLevel util.LogLevel `yaml:"log_level" json:"log_level"`

	// Backend: a broker address, or a redis URL when set.
	BrokerAddr  string   `yaml:"broker_addr" json:"broker.addr"`
	RedisURL    string   `yaml:"redis_url" json:"redis.url"`
	DialTimeout Duration `yaml:"dial_timeout" json:"dial.timeout"`
	Compression string   `yaml:"compression" json:"compression"`

	StreamKey    string `yaml:"stream_key" json:"stream.key"`
	GroupName    string `yaml:"group_name" json:"group.name"`
	ConsumerName string `yaml:"consumer_name" json:"consumer.name"`

	// Producer
	Source string   `yaml:"source" json:"source"`
	Period Duration `yaml:"period" json:"period"`

	// Consumer
	StartFrom      string   `yaml:"start_from" json:"start.from"`
	Count          int      `yaml:"count" json:"count"`
	Block          Duration `yaml:"block" json:"block"`
	RecoverPending bool     `yaml:"recover_pending" json:"recover.pending"`
	ClaimInterval  Duration `yaml:"claim_interval" json:"claim.interval"`
	MinIdle        Duration `yaml:"min_idle" json:"min.idle"`
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Role:           "producer",
		LogLevel:       util.LogLevelInfo,
		BrokerAddr:     "localhost:9000",
		DialTimeout:    Duration{5 * time.Second},
		Compression:    util.CompressionNone,
		StreamKey:      "telemetry",
		GroupName:      "telemetry_group",
		ConsumerName:   "worker-1",
		Source:         "sensor-A",
		Period:         Duration{time.Second},
		StartFrom:      "tail",
		Count:          10,
		Block:          Duration{2 * time.Second},
		RecoverPending: true,
		ClaimInterval:  Duration{5 * time.Second},
		MinIdle:        Duration{30 * time.Second},
	}
}

// LoadClientConfig layers defaults, config file, env vars and explicit flags,
// in that order.
func LoadClientConfig(args []string) (*ClientConfig, error) {
	cfg := defaultClientConfig()

	fs := pflag.NewFlagSet("telemetry", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	fs.StringVar(&cfg.Role, "role", cfg.Role, "Process role (producer, consumer)")
	fs.Var(&cfg.LogLevel, "log-level", "Log Level (debug, info, warn, error)")
	fs.StringVar(&cfg.BrokerAddr, "broker", cfg.BrokerAddr, "Broker address")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL; overrides --broker when set")
	fs.DurationVar(&cfg.DialTimeout.Duration, "dial-timeout", cfg.DialTimeout.Duration, "Connection timeout")
	fs.StringVar(&cfg.Compression, "compression", cfg.Compression, "Wire compression (none, gzip, snappy, lz4, zstd)")
	fs.StringVar(&cfg.StreamKey, "stream", cfg.StreamKey, "Stream key")
	fs.StringVar(&cfg.GroupName, "group", cfg.GroupName, "Consumer group name")
	fs.StringVar(&cfg.ConsumerName, "consumer", cfg.ConsumerName, "Consumer name within the group")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Telemetry source label")
	fs.DurationVar(&cfg.Period.Duration, "period", cfg.Period.Duration, "Producer emission period")
	fs.StringVar(&cfg.StartFrom, "start", cfg.StartFrom, "Where a new group starts (tail, beginning)")
	fs.IntVar(&cfg.Count, "count", cfg.Count, "Entries per read")
	fs.DurationVar(&cfg.Block.Duration, "block", cfg.Block.Duration, "Read block timeout")
	fs.BoolVar(&cfg.RecoverPending, "recover-pending", cfg.RecoverPending, "Re-read own pending entries at startup")
	fs.DurationVar(&cfg.ClaimInterval.Duration, "claim-interval", cfg.ClaimInterval.Duration, "Idle entry claim sweep interval (0=disabled)")
	fs.DurationVar(&cfg.MinIdle.Duration, "min-idle", cfg.MinIdle.Duration, "Idle time before an entry is claimable")

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

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func (cfg *ClientConfig) overrideEnv() {
	overrideEnvString(&cfg.Role, "ROLE")
	overrideEnvString(&cfg.StreamKey, "STREAM_KEY")
	overrideEnvString(&cfg.GroupName, "GROUP_NAME")
	overrideEnvString(&cfg.ConsumerName, "CONSUMER_NAME")
	overrideEnvString(&cfg.BrokerAddr, "BROKER_ADDR")
	overrideEnvString(&cfg.RedisURL, "REDIS_URL")
	overrideEnvDuration(&cfg.Period, "PRODUCE_PERIOD")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = util.ParseLogLevel(v)
	}
}

// Normalize fills defaults and rejects settings no loop could run with.
func (cfg *ClientConfig) Normalize() error {
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	cfg.StreamKey = strings.TrimSpace(cfg.StreamKey)
	if cfg.StreamKey == "" {
		return fmt.Errorf("stream key must not be empty")
	}
	if strings.TrimSpace(cfg.GroupName) == "" {
		cfg.GroupName = "telemetry_group"
	}
	if strings.TrimSpace(cfg.ConsumerName) == "" {
		cfg.ConsumerName = util.GenerateName("worker")
	}
	if cfg.RedisURL == "" && strings.TrimSpace(cfg.BrokerAddr) == "" {
		cfg.BrokerAddr = "localhost:9000"
	}
	if cfg.DialTimeout.Duration <= 0 {
		cfg.DialTimeout.Duration = 5 * time.Second
	}
	cfg.Compression = normalizeCompression("compression", cfg.Compression)

	if cfg.Period.Duration <= 0 {
		cfg.Period.Duration = time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "sensor-A"
	}

	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block.Duration < 0 {
		cfg.Block.Duration = 0
	}
	if cfg.ClaimInterval.Duration < 0 {
		cfg.ClaimInterval.Duration = 0
	}
	if cfg.MinIdle.Duration <= 0 {
		cfg.MinIdle.Duration = 30 * time.Second
	}
	return nil
}
