package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/coordinator"
	"github.com/downfa11-org/xstream/pkg/disk"
	"github.com/downfa11-org/xstream/pkg/stream"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

var _ types.StreamAPI = (*Broker)(nil)

// Broker owns every stream of the process: its log, its groups and the
// coordinator between them. Streams are opened on first use.
type Broker struct {
	cfg  *config.Config
	dm   *disk.DiskManager
	opts []stream.Option

	mu      sync.RWMutex
	streams map[string]*coordinator.Coordinator
	closed  bool
}

type Option func(*Broker)

// WithLogOptions passes extra options to every opened stream log.
func WithLogOptions(opts ...stream.Option) Option {
	return func(b *Broker) { b.opts = append(b.opts, opts...) }
}

func NewBroker(cfg *config.Config, opts ...Option) *Broker {
	b := &Broker{
		cfg:     cfg,
		dm:      disk.NewDiskManager(cfg),
		streams: make(map[string]*coordinator.Coordinator),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open restores the streams found in storage and creates the configured static groups.
func (b *Broker) Open() error {
	names, err := b.dm.Streams()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := b.stream(name, true); err != nil {
			return fmt.Errorf("restore stream %s: %w", name, err)
		}
	}
	util.Info("broker opened with %d streams (storage=%s)", len(names), b.cfg.Storage)

	for _, sg := range b.cfg.StaticGroups {
		start, err := types.ParseStartPosition(sg.Start)
		if err != nil {
			return fmt.Errorf("static group %s/%s: %w", sg.Stream, sg.Group, err)
		}
		if _, err := b.CreateGroup(context.Background(), sg.Stream, sg.Group, start); err != nil {
			return fmt.Errorf("static group %s/%s: %w", sg.Stream, sg.Group, err)
		}
	}
	return nil
}

// stream returns the coordinator of name, opening it when create is set.
// A missing stream without create yields nil and no error.
func (b *Broker) stream(name string, create bool) (*coordinator.Coordinator, error) {
	b.mu.RLock()
	c, ok := b.streams[name]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, types.ErrClosed
	}
	if ok || !create {
		return c, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, types.ErrClosed
	}
	if c, ok := b.streams[name]; ok {
		return c, nil
	}

	h, err := b.dm.GetHandler(name)
	if err != nil {
		return nil, err
	}
	opts := append([]stream.Option{stream.WithMaxLen(b.cfg.MaxLen)}, b.opts...)
	log := stream.OpenLog(name, h, opts...)
	c, err = coordinator.NewCoordinator(log, h)
	if err != nil {
		return nil, err
	}
	b.streams[name] = c
	util.Debug("stream '%s' opened (last id %s, %d entries)", name, log.LastID(), log.Len())
	return c, nil
}

func (b *Broker) existing(name string) (*coordinator.Coordinator, error) {
	c, err := b.stream(name, false)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: stream '%s' does not exist", types.ErrGroupNotFound, name)
	}
	return c, nil
}

func (b *Broker) Append(ctx context.Context, name string, fields types.Fields) (types.EntryID, error) {
	if err := ctx.Err(); err != nil {
		return types.ZeroID, err
	}
	c, err := b.stream(name, true)
	if err != nil {
		return types.ZeroID, err
	}
	return c.Log().Append(fields)
}

func (b *Broker) ReadRange(ctx context.Context, name string, after types.EntryID, limit int) ([]types.Entry, error) {
	c, err := b.stream(name, false)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Log().ReadRange(after, limit)
}

func (b *Broker) Trim(ctx context.Context, name string, maxLen int) (int, error) {
	c, err := b.stream(name, false)
	if err != nil || c == nil {
		return 0, err
	}
	return c.Log().Trim(maxLen)
}

// CreateGroup creates the stream too when it does not exist yet.
func (b *Broker) CreateGroup(ctx context.Context, name, group string, start types.StartPosition) (types.CreateResult, error) {
	c, err := b.stream(name, true)
	if err != nil {
		return types.Created, err
	}
	return c.CreateGroup(group, start)
}

func (b *Broker) DeleteGroup(ctx context.Context, name, group string) (bool, error) {
	c, err := b.stream(name, false)
	if err != nil || c == nil {
		return false, err
	}
	return c.DeleteGroup(group)
}

func (b *Broker) ReadGroup(ctx context.Context, name, group, consumer string, count int, block time.Duration) ([]types.Delivery, error) {
	c, err := b.existing(name)
	if err != nil {
		return nil, err
	}
	return c.ReadGroup(ctx, group, consumer, count, block)
}

func (b *Broker) ReadPending(ctx context.Context, name, group, consumer string, count int) ([]types.Delivery, error) {
	c, err := b.existing(name)
	if err != nil {
		return nil, err
	}
	return c.ReadPending(ctx, group, consumer, count)
}

func (b *Broker) Ack(ctx context.Context, name, group string, ids ...types.EntryID) (int, error) {
	c, err := b.existing(name)
	if err != nil {
		return 0, err
	}
	return c.Ack(group, ids...)
}

func (b *Broker) Claim(ctx context.Context, name, group, consumer string, minIdle time.Duration, count int) ([]types.Delivery, error) {
	c, err := b.existing(name)
	if err != nil {
		return nil, err
	}
	return c.Claim(group, consumer, minIdle, count)
}

func (b *Broker) Pending(ctx context.Context, name, group string) ([]types.PendingEntry, error) {
	c, err := b.existing(name)
	if err != nil {
		return nil, err
	}
	return c.Pending(group)
}

func (b *Broker) Groups(ctx context.Context, name string) ([]types.GroupInfo, error) {
	c, err := b.stream(name, false)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Groups(), nil
}

// Coordinators lists the open streams' coordinators, sorted by stream name.
func (b *Broker) Coordinators() []*coordinator.Coordinator {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*coordinator.Coordinator, 0, len(b.streams))
	for _, c := range b.streams {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream() < out[j].Stream() })
	return out
}

// StartMonitor runs the pending-entry monitor until ctx ends.
func (b *Broker) StartMonitor(ctx context.Context) {
	m := coordinator.NewMonitor(b.Coordinators,
		time.Duration(b.cfg.IdleCheckIntervalMS)*time.Millisecond,
		time.Duration(b.cfg.StaleThresholdMS)*time.Millisecond)
	go m.Run(ctx)
}

// Close releases blocked readers, then closes storage.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, c := range b.streams {
		c.Log().Close()
	}
	b.mu.Unlock()

	return b.dm.CloseAllHandlers()
}
