package coordinator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/downfa11-org/xstream/pkg/disk"
	"github.com/downfa11-org/xstream/pkg/metrics"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

// Registry holds the consumer groups of one stream.
type Registry struct {
	stream string
	store  types.StorageHandler

	mu     sync.RWMutex
	groups map[string]*ConsumerGroup
}

// NewRegistry loads the stream's persisted groups and their PELs.
func NewRegistry(stream string, store types.StorageHandler) (*Registry, error) {
	states, err := store.LoadGroups()
	if err != nil {
		return nil, fmt.Errorf("load groups of %s: %w", stream, err)
	}

	r := &Registry{
		stream: stream,
		store:  store,
		groups: make(map[string]*ConsumerGroup, len(states)),
	}
	for _, st := range states {
		r.groups[st.Name] = newConsumerGroup(st)
		metrics.PendingEntries.WithLabelValues(stream, st.Name).Set(float64(len(st.Pending)))
		util.Debug("restored group '%s' on '%s' (cursor=%s, pending=%d)", st.Name, stream, st.Cursor, len(st.Pending))
	}
	return r, nil
}

// Create registers a group at cursor. An existing group is left untouched.
func (r *Registry) Create(name string, cursor types.EntryID) (types.CreateResult, error) {
	if err := disk.ValidateName(name); err != nil {
		return types.Created, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; exists {
		return types.AlreadyExisted, nil
	}
	if err := r.store.SaveGroup(name, cursor); err != nil {
		return types.Created, err
	}
	r.groups[name] = newConsumerGroup(types.GroupState{Name: name, Cursor: cursor})
	metrics.PendingEntries.WithLabelValues(r.stream, name).Set(0)
	util.Info("created group '%s' on '%s' at %s", name, r.stream, cursor)
	return types.Created, nil
}

// Delete removes a group and its PEL, reporting whether it existed.
func (r *Registry) Delete(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[name]
	if !ok {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := r.store.DeleteGroup(name); err != nil {
		return false, err
	}
	g.deleted = true
	delete(r.groups, name)
	metrics.ForgetGroup(r.stream, name)
	util.Info("deleted group '%s' on '%s' (%d pending dropped)", name, r.stream, len(g.pending))
	return true, nil
}

func (r *Registry) Get(name string) (*ConsumerGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' on stream '%s'", types.ErrGroupNotFound, name, r.stream)
	}
	return g, nil
}

func (r *Registry) List() []*ConsumerGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ConsumerGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
