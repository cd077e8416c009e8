package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/downfa11-org/xstream/pkg/metrics"
	"github.com/downfa11-org/xstream/pkg/stream"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

// DefaultClaimCount caps a claim call that does not name a count.
const DefaultClaimCount = 100

// Coordinator runs the read/ack/claim protocol of one stream against its log
// and group registry. Operations on one group are serialized by the group lock;
// different groups proceed independently.
type Coordinator struct {
	log      *stream.Log
	registry *Registry
	store    types.StorageHandler
	now      func() time.Time
}

type Option func(*Coordinator)

// WithClock replaces the time source for delivery and idle bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator opens the group registry of the log's stream.
func NewCoordinator(log *stream.Log, store types.StorageHandler, opts ...Option) (*Coordinator, error) {
	registry, err := NewRegistry(log.Name(), store)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		log:      log,
		registry: registry,
		store:    store,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Stream() string { return c.log.Name() }

func (c *Coordinator) Log() *stream.Log { return c.log }

// CreateGroup starts a group at the beginning of the log or at its current tail.
func (c *Coordinator) CreateGroup(group string, start types.StartPosition) (types.CreateResult, error) {
	cursor := types.ZeroID
	if start == types.StartTail {
		cursor = c.log.LastID()
	}
	return c.registry.Create(group, cursor)
}

func (c *Coordinator) DeleteGroup(group string) (bool, error) {
	return c.registry.Delete(group)
}

func (c *Coordinator) Groups() []types.GroupInfo {
	list := c.registry.List()
	out := make([]types.GroupInfo, len(list))
	for i, g := range list {
		out[i] = g.Info()
	}
	return out
}

// ReadGroup hands up to count never-delivered entries to consumer. With nothing
// new it waits for an append, for block to elapse (empty result) or for ctx to
// end. block <= 0 returns immediately.
func (c *Coordinator) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]types.Delivery, error) {
	start := time.Now()
	defer func() {
		metrics.ReadGroupLatency.WithLabelValues(c.Stream()).Observe(time.Since(start).Seconds())
	}()

	g, err := c.registry.Get(group)
	if err != nil {
		return nil, err
	}

	var timer *time.Timer
	for {
		wake := c.log.Wait()

		deliveries, err := c.deliverNew(g, consumer, count)
		if err != nil || len(deliveries) > 0 {
			return deliveries, err
		}
		if block <= 0 {
			return nil, nil
		}
		if c.log.Closed() {
			return nil, types.ErrClosed
		}
		if timer == nil {
			timer = time.NewTimer(block)
			defer timer.Stop()
		}

		select {
		case <-wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) deliverNew(g *ConsumerGroup, consumer string, count int) ([]types.Delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleted {
		return nil, fmt.Errorf("%w: '%s'", types.ErrGroupNotFound, g.Name)
	}

	entries, err := c.log.ReadRange(g.cursor, count)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	now := c.now()
	pending := make([]types.PendingEntry, len(entries))
	deliveries := make([]types.Delivery, len(entries))
	for i, e := range entries {
		pending[i] = types.PendingEntry{ID: e.ID, Consumer: consumer, DeliveryCount: 1, LastDelivery: now}
		deliveries[i] = types.Delivery{Entry: e, Consumer: consumer, DeliveryCount: 1}
	}

	cursor := entries[len(entries)-1].ID
	if err := c.store.CommitDelivery(g.Name, cursor, pending); err != nil {
		return nil, err
	}
	g.cursor = cursor
	for _, p := range pending {
		g.putPending(p)
	}
	g.seen(consumer, now)

	metrics.EntriesDelivered.WithLabelValues(c.Stream(), g.Name).Add(float64(len(deliveries)))
	metrics.PendingEntries.WithLabelValues(c.Stream(), g.Name).Set(float64(len(g.pending)))
	return deliveries, nil
}

// ReadPending re-delivers consumer's own pending entries in id order, bumping
// their delivery counts. Trimmed ones are dropped and reported in a LostError
// next to the deliveries that could be made.
func (c *Coordinator) ReadPending(ctx context.Context, group, consumer string, count int) ([]types.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := c.registry.Get(group)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var candidates []types.PendingEntry
	for _, p := range g.snapshotPending(consumer) {
		if count > 0 && len(candidates) >= count {
			break
		}
		candidates = append(candidates, p)
	}
	deliveries, lost, err := c.redeliver(g, consumer, candidates)
	if err != nil {
		return nil, err
	}
	return deliveries, c.lostError(g.Name, lost)
}

// Claim reassigns up to count pending entries idle for at least minIdle to
// consumer, scanning the PEL in id order.
func (c *Coordinator) Claim(group, consumer string, minIdle time.Duration, count int) ([]types.Delivery, error) {
	if count <= 0 {
		count = DefaultClaimCount
	}
	g, err := c.registry.Get(group)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := c.now()
	var candidates []types.PendingEntry
	for elem := g.order.Front(); elem != nil && len(candidates) < count; elem = elem.Next() {
		p := g.pending[elem.Key().(types.EntryID)]
		if p.Idle(now) < minIdle {
			continue
		}
		candidates = append(candidates, *p)
	}

	deliveries, lost, err := c.redeliver(g, consumer, candidates)
	if err != nil {
		return nil, err
	}
	if len(deliveries) > 0 {
		metrics.EntriesClaimed.WithLabelValues(c.Stream(), g.Name).Add(float64(len(deliveries)))
		util.Debug("claimed %d entries of group '%s' on '%s' for %s", len(deliveries), g.Name, c.Stream(), consumer)
	}
	return deliveries, c.lostError(g.Name, lost)
}

// redeliver assigns candidates to consumer with an incremented delivery count.
// Entries gone from the log are removed from the PEL and returned as lost.
// Caller holds g.mu.
func (c *Coordinator) redeliver(g *ConsumerGroup, consumer string, candidates []types.PendingEntry) ([]types.Delivery, []types.EntryID, error) {
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	now := c.now()

	var (
		deliveries []types.Delivery
		updated    []types.PendingEntry
		lost       []types.EntryID
	)
	for _, p := range candidates {
		entry, err := c.log.Get(p.ID)
		if errors.Is(err, types.ErrEntryNotFound) {
			lost = append(lost, p.ID)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		np := types.PendingEntry{ID: p.ID, Consumer: consumer, DeliveryCount: p.DeliveryCount + 1, LastDelivery: now}
		updated = append(updated, np)
		deliveries = append(deliveries, types.Delivery{Entry: entry, Consumer: consumer, DeliveryCount: np.DeliveryCount})
	}

	if len(updated) > 0 {
		if err := c.store.CommitDelivery(g.Name, g.cursor, updated); err != nil {
			return nil, nil, err
		}
		for _, p := range updated {
			g.putPending(p)
		}
		g.seen(consumer, now)
	}
	if err := c.dropLost(g, lost); err != nil {
		return nil, nil, err
	}
	return deliveries, lost, nil
}

// Ack removes ids from the PEL and counts those that were pending. Ids not
// pending are skipped. Pending ids whose entries were trimmed are removed too,
// but reported in a LostError instead of being counted.
func (c *Coordinator) Ack(group string, ids ...types.EntryID) (int, error) {
	g, err := c.registry.Get(group)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var acked, lost []types.EntryID
	seen := make(map[types.EntryID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := g.pending[id]; !ok {
			continue
		}
		_, err := c.log.Get(id)
		switch {
		case errors.Is(err, types.ErrEntryNotFound):
			lost = append(lost, id)
		case err != nil:
			return 0, err
		default:
			acked = append(acked, id)
		}
	}

	if len(acked) > 0 {
		if err := c.store.DeletePending(g.Name, acked); err != nil {
			return 0, err
		}
		for _, id := range acked {
			g.removePending(id)
		}
		metrics.EntriesAcked.WithLabelValues(c.Stream(), g.Name).Add(float64(len(acked)))
	}
	if err := c.dropLost(g, lost); err != nil {
		return 0, err
	}
	metrics.PendingEntries.WithLabelValues(c.Stream(), g.Name).Set(float64(len(g.pending)))
	return len(acked), c.lostError(g.Name, lost)
}

// Pending lists the group's PEL in id order.
func (c *Coordinator) Pending(group string) ([]types.PendingEntry, error) {
	g, err := c.registry.Get(group)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotPending(""), nil
}

// dropLost deletes trimmed ids from the PEL. Caller holds g.mu.
func (c *Coordinator) dropLost(g *ConsumerGroup, lost []types.EntryID) error {
	if len(lost) == 0 {
		return nil
	}
	if err := c.store.DeletePending(g.Name, lost); err != nil {
		return err
	}
	for _, id := range lost {
		g.removePending(id)
	}
	metrics.EntriesLost.WithLabelValues(c.Stream(), g.Name).Add(float64(len(lost)))
	metrics.PendingEntries.WithLabelValues(c.Stream(), g.Name).Set(float64(len(g.pending)))
	util.Warn("group '%s' on '%s': %d pending entries lost to trimming", g.Name, c.Stream(), len(lost))
	return nil
}

func (c *Coordinator) lostError(group string, lost []types.EntryID) error {
	if len(lost) == 0 {
		return nil
	}
	return &types.LostError{Stream: c.Stream(), Group: group, IDs: lost}
}
