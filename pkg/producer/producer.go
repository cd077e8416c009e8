package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// EncodeFunc returns the next payload to append.
type EncodeFunc func() ([]byte, error)

// Producer appends one encoded record per period to a stream.
type Producer struct {
	api     types.StreamAPI
	stream  string
	key     string
	encode  EncodeFunc
	period  time.Duration
	limiter *rate.Limiter

	appended   atomic.Uint64
	lastAppend atomic.Time
}

type Option func(*Producer)

// WithFieldKey changes the field the payload is stored under. The default is "pb".
func WithFieldKey(key string) Option {
	return func(p *Producer) { p.key = key }
}

func NewProducer(api types.StreamAPI, stream string, period time.Duration, encode EncodeFunc, opts ...Option) *Producer {
	p := &Producer{
		api:     api,
		stream:  stream,
		key:     "pb",
		encode:  encode,
		period:  period,
		limiter: rate.NewLimiter(rate.Every(period), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run appends until ctx is canceled. Cancellation while waiting for the next
// slot returns nil; an append already started is allowed to finish. Encode
// and append failures end the loop with an error.
func (p *Producer) Run(ctx context.Context) error {
	util.Info("[producer] writing to stream '%s' every %s", p.stream, p.period)
	defer func() {
		util.Info("[producer] shutting down after %d appends", p.appended.Load())
	}()

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// The limiter refuses waits that would outlive the deadline.
				<-ctx.Done()
			}
			return nil
		}

		payload, err := p.encode()
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		id, err := p.api.Append(context.WithoutCancel(ctx), p.stream, types.Fields{{Key: p.key, Value: payload}})
		if err != nil {
			return fmt.Errorf("append to '%s': %w", p.stream, err)
		}
		p.appended.Inc()
		p.lastAppend.Store(time.Now())
		util.Debug("[producer] appended %s (%d bytes)", id, len(payload))
	}
}

// Appended reports how many entries Run has appended.
func (p *Producer) Appended() uint64 { return p.appended.Load() }

func (p *Producer) LastAppend() time.Time { return p.lastAppend.Load() }
