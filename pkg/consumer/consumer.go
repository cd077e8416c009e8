package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
	"go.uber.org/atomic"
)

// Handler processes one delivery. Returning an error wrapping
// types.ErrDecodeFailure still acks the entry; any other error leaves it
// pending for a later claim.
type Handler func(ctx context.Context, d types.Delivery) error

type Options struct {
	Stream   string
	Group    string
	Consumer string
	Start    types.StartPosition

	Count int
	Block time.Duration

	// RecoverPending replays this consumer's own pending entries before
	// reading new ones.
	RecoverPending bool
	// ClaimInterval enables a periodic claim of entries idle for MinIdle. Zero disables it.
	ClaimInterval time.Duration
	MinIdle       time.Duration
}

func OptionsFromConfig(cfg *config.ClientConfig) (Options, error) {
	start, err := types.ParseStartPosition(cfg.StartFrom)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Stream:         cfg.StreamKey,
		Group:          cfg.GroupName,
		Consumer:       cfg.ConsumerName,
		Start:          start,
		Count:          cfg.Count,
		Block:          cfg.Block.Duration,
		RecoverPending: cfg.RecoverPending,
		ClaimInterval:  cfg.ClaimInterval.Duration,
		MinIdle:        cfg.MinIdle.Duration,
	}, nil
}

type Consumer struct {
	api     types.StreamAPI
	opts    Options
	handler Handler
	now     func() time.Time

	processed      atomic.Uint64
	acked          atomic.Uint64
	failed         atomic.Uint64
	decodeFailures atomic.Uint64
	claimed        atomic.Uint64
	lost           atomic.Uint64
}

func NewConsumer(api types.StreamAPI, opts Options, handler Handler) *Consumer {
	return &Consumer{api: api, opts: opts, handler: handler, now: time.Now}
}

// Run joins the group and consumes until ctx is canceled. It stops before
// the next entry once canceled and never acks an entry it did not process.
func (c *Consumer) Run(ctx context.Context) error {
	res, err := c.api.CreateGroup(ctx, c.opts.Stream, c.opts.Group, c.opts.Start)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("create group '%s': %w", c.opts.Group, err)
	}
	if res == types.Created {
		util.Info("[consumer] created consumer group '%s' on stream '%s' (start=%s)", c.opts.Group, c.opts.Stream, c.opts.Start)
	}
	util.Info("[consumer] reading with group='%s', consumer='%s' on '%s'", c.opts.Group, c.opts.Consumer, c.opts.Stream)
	defer func() {
		util.Info("[consumer] shutting down (processed=%d acked=%d failed=%d)", c.processed.Load(), c.acked.Load(), c.failed.Load())
	}()

	if c.opts.RecoverPending {
		if err := c.recoverPending(ctx); err != nil {
			return err
		}
	}

	lastClaim := c.now()
	for ctx.Err() == nil {
		if c.opts.ClaimInterval > 0 && c.now().Sub(lastClaim) >= c.opts.ClaimInterval {
			lastClaim = c.now()
			if err := c.claimIdle(ctx); err != nil {
				return err
			}
		}

		ds, err := c.api.ReadGroup(ctx, c.opts.Stream, c.opts.Group, c.opts.Consumer, c.opts.Count, c.opts.Block)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read group '%s': %w", c.opts.Group, err)
		}
		if err := c.process(ctx, ds); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) recoverPending(ctx context.Context) error {
	ds, err := c.api.ReadPending(ctx, c.opts.Stream, c.opts.Group, c.opts.Consumer, 0)
	if err != nil && !c.countLost(err) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("read pending: %w", err)
	}
	if len(ds) > 0 {
		util.Info("[consumer] recovering %d pending entries", len(ds))
	}
	if perr := c.process(ctx, ds); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("read pending: %w", err)
	}
	return nil
}

func (c *Consumer) claimIdle(ctx context.Context) error {
	ds, err := c.api.Claim(ctx, c.opts.Stream, c.opts.Group, c.opts.Consumer, c.opts.MinIdle, c.opts.Count)
	if err != nil && !c.countLost(err) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("claim: %w", err)
	}
	if len(ds) > 0 {
		c.claimed.Add(uint64(len(ds)))
		util.Info("[consumer] claimed %d idle entries", len(ds))
	}
	if perr := c.process(ctx, ds); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	return nil
}

// countLost records the ids of a lost-entry error. Deliveries returned next
// to it are still live and get processed before the loop stops.
func (c *Consumer) countLost(err error) bool {
	var lost *types.LostError
	if errors.As(err, &lost) {
		c.lost.Add(uint64(len(lost.IDs)))
		return true
	}
	return errors.Is(err, types.ErrEntryLost)
}

func (c *Consumer) process(ctx context.Context, ds []types.Delivery) error {
	for _, d := range ds {
		if ctx.Err() != nil {
			return nil
		}

		err := c.handler(ctx, d)
		c.processed.Inc()
		switch {
		case err == nil:
		case errors.Is(err, types.ErrDecodeFailure):
			c.decodeFailures.Inc()
			util.Warn("[consumer] %s: %v", d.ID, err)
		default:
			c.failed.Inc()
			util.Warn("[consumer] %s: left pending: %v", d.ID, err)
			continue
		}

		n, err := c.api.Ack(context.WithoutCancel(ctx), c.opts.Stream, c.opts.Group, d.ID)
		if err != nil {
			c.countLost(err)
			return fmt.Errorf("ack %s: %w", d.ID, err)
		}
		c.acked.Add(uint64(n))
	}
	return nil
}

type Stats struct {
	Processed      uint64
	Acked          uint64
	Failed         uint64
	DecodeFailures uint64
	Claimed        uint64
	Lost           uint64
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Processed:      c.processed.Load(),
		Acked:          c.acked.Load(),
		Failed:         c.failed.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		Claimed:        c.claimed.Load(),
		Lost:           c.lost.Load(),
	}
}
