package role

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/downfa11-org/xstream/pkg/client"
	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/consumer"
	"github.com/downfa11-org/xstream/pkg/producer"
	"github.com/downfa11-org/xstream/pkg/redisstream"
	"github.com/downfa11-org/xstream/pkg/telemetry"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

// Role is what a telemetry process does with the stream.
type Role int

const (
	Producer Role = iota
	Consumer
)

func (r Role) String() string {
	switch r {
	case Producer:
		return "producer"
	case Consumer:
		return "consumer"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole accepts producer (or publisher) and consumer, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "producer", "publisher":
		return Producer, nil
	case "consumer":
		return Consumer, nil
	}
	return 0, fmt.Errorf("unknown role %q (want producer or consumer)", s)
}

// Runner is one process loop. Run returns nil when ctx is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// NewRunner builds the loop for r against api.
func NewRunner(r Role, cfg *config.ClientConfig, api types.StreamAPI) (Runner, error) {
	switch r {
	case Producer:
		gen := telemetry.NewGenerator(cfg.Source)
		return producer.NewProducer(api, cfg.StreamKey, cfg.Period.Duration, gen.Encode,
			producer.WithFieldKey(telemetry.PayloadKey)), nil
	case Consumer:
		opts, err := consumer.OptionsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return consumer.NewConsumer(api, opts, LogRecord), nil
	}
	return nil, fmt.Errorf("no runner for %s", r)
}

// LogRecord decodes the telemetry record of d and logs it.
func LogRecord(_ context.Context, d types.Delivery) error {
	rec, err := telemetry.FromEntry(d.Entry)
	if err != nil {
		return err
	}
	if d.DeliveryCount > 1 {
		util.Info("[consumer] %s (entry %s, delivery %d)", rec, d.ID, d.DeliveryCount)
		return nil
	}
	util.Info("[consumer] %s (entry %s)", rec, d.ID)
	return nil
}

// Backend is a stream API holding a connection.
type Backend interface {
	types.StreamAPI
	io.Closer
}

// OpenBackend connects to Redis when a URL is configured and to the broker otherwise.
func OpenBackend(ctx context.Context, cfg *config.ClientConfig) (Backend, error) {
	if cfg.RedisURL != "" {
		s, err := redisstream.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	c, err := client.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	util.Info("connected to broker %s", c.Addr())
	return c, nil
}
