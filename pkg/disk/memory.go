package disk

import (
	"fmt"
	"sort"
	"sync"

	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/huandu/skiplist"
)

// IDOrder orders skiplist keys holding types.EntryID. The score is the
// millisecond part, which never decreases as ids grow.
type IDOrder struct{}

func (IDOrder) Compare(lhs, rhs interface{}) int {
	return lhs.(types.EntryID).Compare(rhs.(types.EntryID))
}

func (IDOrder) CalcScore(key interface{}) float64 {
	return float64(key.(types.EntryID).Ms)
}

type memGroup struct {
	cursor  types.EntryID
	pending map[types.EntryID]types.PendingEntry
}

// MemoryHandler keeps a stream in process memory. Nothing survives a restart.
type MemoryHandler struct {
	mu      sync.Mutex
	entries *skiplist.SkipList
	lastID  types.EntryID
	groups  map[string]*memGroup
}

func NewMemoryHandler() *MemoryHandler {
	return &MemoryHandler{
		entries: skiplist.New(IDOrder{}),
		groups:  make(map[string]*memGroup),
	}
}

func (h *MemoryHandler) Append(entry types.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries.Set(entry.ID, types.Entry{ID: entry.ID, Fields: entry.Fields.Clone()})
	if h.lastID.Less(entry.ID) {
		h.lastID = entry.ID
	}
	return nil
}

func (h *MemoryHandler) Read(after types.EntryID, limit int) ([]types.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []types.Entry
	for elem := h.entries.Find(after.Next()); elem != nil && (limit <= 0 || len(out) < limit); elem = elem.Next() {
		out = append(out, elem.Value.(types.Entry))
	}
	return out, nil
}

func (h *MemoryHandler) Get(id types.EntryID) (types.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	elem := h.entries.Get(id)
	if elem == nil {
		return types.Entry{}, fmt.Errorf("%w: %s", types.ErrEntryNotFound, id)
	}
	return elem.Value.(types.Entry), nil
}

func (h *MemoryHandler) DeleteOldest(n int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	deleted := 0
	for deleted < n && h.entries.RemoveFront() != nil {
		deleted++
	}
	return deleted, nil
}

func (h *MemoryHandler) LastID() types.EntryID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastID
}

func (h *MemoryHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Len()
}

func (h *MemoryHandler) SaveGroup(name string, cursor types.EntryID) error {
	return h.CommitDelivery(name, cursor, nil)
}

func (h *MemoryHandler) CommitDelivery(group string, cursor types.EntryID, pending []types.PendingEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[group]
	if !ok {
		g = &memGroup{pending: make(map[types.EntryID]types.PendingEntry)}
		h.groups[group] = g
	}
	g.cursor = cursor
	for _, p := range pending {
		g.pending[p.ID] = p
	}
	return nil
}

func (h *MemoryHandler) DeletePending(group string, ids []types.EntryID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if g, ok := h.groups[group]; ok {
		for _, id := range ids {
			delete(g.pending, id)
		}
	}
	return nil
}

func (h *MemoryHandler) DeleteGroup(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, name)
	return nil
}

func (h *MemoryHandler) LoadGroups() ([]types.GroupState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]types.GroupState, 0, len(h.groups))
	for name, g := range h.groups {
		st := types.GroupState{Name: name, Cursor: g.cursor}
		for _, p := range g.pending {
			st.Pending = append(st.Pending, p)
		}
		sort.Slice(st.Pending, func(i, j int) bool { return st.Pending[i].ID.Less(st.Pending[j].ID) })
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h *MemoryHandler) Close() error { return nil }
