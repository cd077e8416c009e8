package disk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/downfa11-org/xstream/pkg/types"
)

// PebbleHandler stores one stream inside the manager's shared pebble database.
type PebbleHandler struct {
	db          *pebble.DB
	stream      string
	writeOpts   *pebble.WriteOptions
	compression string

	mu     sync.Mutex
	lastID types.EntryID
	length int
}

func newPebbleHandler(db *pebble.DB, stream string, sync bool, compression string) (*PebbleHandler, error) {
	h := &PebbleHandler{
		db:          db,
		stream:      stream,
		writeOpts:   pebble.NoSync,
		compression: compression,
	}
	if sync {
		h.writeOpts = pebble.Sync
	}
	if err := h.recover(); err != nil {
		return nil, err
	}
	return h, nil
}

// recover restores the last assigned id and the entry count.
func (h *PebbleHandler) recover() error {
	val, closer, err := h.db.Get(metaKey(h.stream))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		if err := h.db.Set(metaKey(h.stream), types.ZeroID.Bytes(), h.writeOpts); err != nil {
			return storageErr("init stream "+h.stream, err)
		}
	case err != nil:
		return storageErr("read last id", err)
	default:
		id, perr := types.EntryIDFromBytes(val)
		closer.Close()
		if perr != nil {
			return storageErr("decode last id", perr)
		}
		h.lastID = id
	}

	prefix := entryPrefix(h.stream)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return storageErr("count entries", err)
	}
	defer iter.Close()

	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	var last types.EntryID
	if n > 0 && iter.Last() {
		if last, err = types.EntryIDFromBytes(iter.Key()[len(prefix):]); err != nil {
			return storageErr("recover last entry", err)
		}
	}
	h.length = n
	if h.lastID.Less(last) {
		h.lastID = last
	}
	return iter.Error()
}

func (h *PebbleHandler) Append(entry types.Entry) error {
	rec, err := encodeEntry(entry.Fields, h.compression)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.db.NewBatch()
	defer b.Close()
	if err := b.Set(entryKey(h.stream, entry.ID), rec, nil); err != nil {
		return storageErr("append", err)
	}
	if err := b.Set(metaKey(h.stream), entry.ID.Bytes(), nil); err != nil {
		return storageErr("append", err)
	}
	if err := b.Commit(h.writeOpts); err != nil {
		return storageErr("append", err)
	}

	h.length++
	if h.lastID.Less(entry.ID) {
		h.lastID = entry.ID
	}
	return nil
}

func (h *PebbleHandler) Read(after types.EntryID, limit int) ([]types.Entry, error) {
	prefix := entryPrefix(h.stream)
	iter, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(h.stream, after.Next()),
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, storageErr("read", err)
	}
	defer iter.Close()

	var out []types.Entry
	for ok := iter.First(); ok && (limit <= 0 || len(out) < limit); ok = iter.Next() {
		id, err := types.EntryIDFromBytes(iter.Key()[len(prefix):])
		if err != nil {
			return nil, storageErr("read", err)
		}
		fields, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, storageErr("read "+id.String(), err)
		}
		out = append(out, types.Entry{ID: id, Fields: fields})
	}
	if err := iter.Error(); err != nil {
		return nil, storageErr("read", err)
	}
	return out, nil
}

func (h *PebbleHandler) Get(id types.EntryID) (types.Entry, error) {
	val, closer, err := h.db.Get(entryKey(h.stream, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Entry{}, fmt.Errorf("%w: %s", types.ErrEntryNotFound, id)
	}
	if err != nil {
		return types.Entry{}, storageErr("get", err)
	}
	defer closer.Close()

	fields, err := decodeEntry(val)
	if err != nil {
		return types.Entry{}, storageErr("get "+id.String(), err)
	}
	return types.Entry{ID: id, Fields: fields}, nil
}

// DeleteOldest removes up to n of the oldest entries and reports how many went.
func (h *PebbleHandler) DeleteOldest(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	prefix := entryPrefix(h.stream)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return 0, storageErr("trim", err)
	}
	defer iter.Close()

	b := h.db.NewBatch()
	defer b.Close()
	deleted := 0
	for ok := iter.First(); ok && deleted < n; ok = iter.Next() {
		if err := b.Delete(iter.Key(), nil); err != nil {
			return 0, storageErr("trim", err)
		}
		deleted++
	}
	if deleted == 0 {
		return 0, nil
	}
	if err := b.Commit(h.writeOpts); err != nil {
		return 0, storageErr("trim", err)
	}
	h.length -= deleted
	return deleted, nil
}

func (h *PebbleHandler) LastID() types.EntryID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastID
}

func (h *PebbleHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.length
}

func (h *PebbleHandler) SaveGroup(name string, cursor types.EntryID) error {
	if err := h.db.Set(groupKey(h.stream, name), cursor.Bytes(), h.writeOpts); err != nil {
		return storageErr("save group "+name, err)
	}
	return nil
}

// CommitDelivery writes the group cursor and the given PEL records in one batch.
func (h *PebbleHandler) CommitDelivery(group string, cursor types.EntryID, pending []types.PendingEntry) error {
	b := h.db.NewBatch()
	defer b.Close()

	if err := b.Set(groupKey(h.stream, group), cursor.Bytes(), nil); err != nil {
		return storageErr("commit delivery", err)
	}
	for _, p := range pending {
		rec, err := encodePending(p)
		if err != nil {
			return fmt.Errorf("encode pending %s: %w", p.ID, err)
		}
		if err := b.Set(pendingKey(h.stream, group, p.ID), rec, nil); err != nil {
			return storageErr("commit delivery", err)
		}
	}
	if err := b.Commit(h.writeOpts); err != nil {
		return storageErr("commit delivery", err)
	}
	return nil
}

func (h *PebbleHandler) DeletePending(group string, ids []types.EntryID) error {
	if len(ids) == 0 {
		return nil
	}
	b := h.db.NewBatch()
	defer b.Close()
	for _, id := range ids {
		if err := b.Delete(pendingKey(h.stream, group, id), nil); err != nil {
			return storageErr("delete pending", err)
		}
	}
	if err := b.Commit(h.writeOpts); err != nil {
		return storageErr("delete pending", err)
	}
	return nil
}

func (h *PebbleHandler) DeleteGroup(name string) error {
	b := h.db.NewBatch()
	defer b.Close()

	prefix := pendingPrefix(h.stream, name)
	if err := b.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return storageErr("delete group "+name, err)
	}
	if err := b.Delete(groupKey(h.stream, name), nil); err != nil {
		return storageErr("delete group "+name, err)
	}
	if err := b.Commit(h.writeOpts); err != nil {
		return storageErr("delete group "+name, err)
	}
	return nil
}

func (h *PebbleHandler) LoadGroups() ([]types.GroupState, error) {
	prefix := groupPrefix(h.stream)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, storageErr("load groups", err)
	}
	defer iter.Close()

	var groups []types.GroupState
	for ok := iter.First(); ok; ok = iter.Next() {
		cursor, err := types.EntryIDFromBytes(iter.Value())
		if err != nil {
			return nil, storageErr("load groups", err)
		}
		groups = append(groups, types.GroupState{
			Name:   string(iter.Key()[len(prefix):]),
			Cursor: cursor,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, storageErr("load groups", err)
	}

	for i := range groups {
		pending, err := h.loadPending(groups[i].Name)
		if err != nil {
			return nil, err
		}
		groups[i].Pending = pending
	}
	return groups, nil
}

func (h *PebbleHandler) loadPending(group string) ([]types.PendingEntry, error) {
	prefix := pendingPrefix(h.stream, group)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, storageErr("load pending", err)
	}
	defer iter.Close()

	var out []types.PendingEntry
	for ok := iter.First(); ok; ok = iter.Next() {
		id, err := types.EntryIDFromBytes(iter.Key()[len(prefix):])
		if err != nil {
			return nil, storageErr("load pending", err)
		}
		p, err := decodePending(id, iter.Value())
		if err != nil {
			return nil, storageErr("load pending", err)
		}
		out = append(out, p)
	}
	return out, iter.Error()
}

// Close is a no-op; the shared database is closed by the manager.
func (h *PebbleHandler) Close() error { return nil }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrStorageUnavailable, op, err)
}
