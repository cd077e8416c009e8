package coordinator

import (
	"sync"
	"time"

	"github.com/downfa11-org/xstream/pkg/disk"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/huandu/skiplist"
)

// ConsumerGroup is one group's delivery state: the cursor and the pending
// entries list (PEL). All fields are guarded by mu.
type ConsumerGroup struct {
	Name string

	mu        sync.Mutex
	cursor    types.EntryID
	pending   map[types.EntryID]*types.PendingEntry
	order     *skiplist.SkipList // PEL ids, ascending
	consumers map[string]time.Time
	deleted   bool
}

func newConsumerGroup(st types.GroupState) *ConsumerGroup {
	g := &ConsumerGroup{
		Name:      st.Name,
		cursor:    st.Cursor,
		pending:   make(map[types.EntryID]*types.PendingEntry, len(st.Pending)),
		order:     skiplist.New(disk.IDOrder{}),
		consumers: make(map[string]time.Time),
	}
	for _, p := range st.Pending {
		g.putPending(p)
		if _, ok := g.consumers[p.Consumer]; !ok {
			g.consumers[p.Consumer] = p.LastDelivery
		}
	}
	return g
}

func (g *ConsumerGroup) putPending(p types.PendingEntry) {
	cp := p
	g.pending[p.ID] = &cp
	g.order.Set(p.ID, nil)
}

func (g *ConsumerGroup) removePending(id types.EntryID) {
	if _, ok := g.pending[id]; !ok {
		return
	}
	delete(g.pending, id)
	g.order.Remove(id)
}

func (g *ConsumerGroup) seen(consumer string, now time.Time) {
	g.consumers[consumer] = now
}

// Cursor returns the last id delivered to any consumer of the group.
func (g *ConsumerGroup) Cursor() types.EntryID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

func (g *ConsumerGroup) Info() types.GroupInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return types.GroupInfo{
		Name:      g.Name,
		Cursor:    g.cursor,
		Pending:   len(g.pending),
		Consumers: len(g.consumers),
	}
}

// snapshotPending lists the PEL in id order; with consumer set, only that consumer's entries.
// Caller holds mu.
func (g *ConsumerGroup) snapshotPending(consumer string) []types.PendingEntry {
	out := make([]types.PendingEntry, 0, len(g.pending))
	for elem := g.order.Front(); elem != nil; elem = elem.Next() {
		p := g.pending[elem.Key().(types.EntryID)]
		if consumer != "" && p.Consumer != consumer {
			continue
		}
		out = append(out, *p)
	}
	return out
}
