package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/downfa11-org/xstream/pkg/metrics"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

// Log is the append-only entry sequence of one stream. It assigns ids and
// wakes readers blocked on new entries; it knows nothing of consumer groups.
type Log struct {
	name   string
	store  types.StorageHandler
	maxLen int
	now    func() time.Time

	mu       sync.Mutex
	lastID   types.EntryID
	notifyCh chan struct{}
	closed   bool
}

type Option func(*Log)

// WithMaxLen bounds the log to n entries, dropping the oldest on append. 0 disables.
func WithMaxLen(n int) Option {
	return func(l *Log) { l.maxLen = n }
}

// WithClock replaces the time source used for id assignment.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// OpenLog wraps a storage handler, resuming id assignment after its last id.
func OpenLog(name string, store types.StorageHandler, opts ...Option) *Log {
	l := &Log{
		name:     name,
		store:    store,
		now:      time.Now,
		lastID:   store.LastID(),
		notifyCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	metrics.StreamLength.WithLabelValues(name).Set(float64(store.Len()))
	return l
}

func (l *Log) Name() string { return l.name }

// nextID must be called with l.mu held.
func (l *Log) nextID() types.EntryID {
	ms := uint64(l.now().UnixMilli())
	if ms > l.lastID.Ms {
		return types.EntryID{Ms: ms}
	}
	// clock stalled or went backwards: stay on the last millisecond
	return l.lastID.Next()
}

// Append stores fields under a fresh id strictly greater than every previous one.
func (l *Log) Append(fields types.Fields) (types.EntryID, error) {
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.ZeroID, types.ErrClosed
	}

	id := l.nextID()
	if err := l.store.Append(types.Entry{ID: id, Fields: fields}); err != nil {
		return types.ZeroID, fmt.Errorf("append to %s: %w", l.name, err)
	}
	l.lastID = id

	if l.maxLen > 0 {
		if excess := l.store.Len() - l.maxLen; excess > 0 {
			removed, err := l.store.DeleteOldest(excess)
			if err != nil {
				util.Warn("retention trim on %s failed: %v", l.name, err)
			}
			metrics.EntriesTrimmed.WithLabelValues(l.name).Add(float64(removed))
		}
	}

	metrics.ObserveAppend(l.name, time.Since(start))
	metrics.StreamLength.WithLabelValues(l.name).Set(float64(l.store.Len()))

	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return id, nil
}

// ReadRange returns up to limit entries with id > after, ascending.
func (l *Log) ReadRange(after types.EntryID, limit int) ([]types.Entry, error) {
	entries, err := l.store.Read(after, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.name, err)
	}
	return entries, nil
}

// Get returns one entry, or types.ErrEntryNotFound when it was trimmed or never existed.
func (l *Log) Get(id types.EntryID) (types.Entry, error) {
	return l.store.Get(id)
}

// Trim drops the oldest entries until at most maxLen remain.
func (l *Log) Trim(maxLen int) (int, error) {
	if maxLen < 0 {
		maxLen = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	excess := l.store.Len() - maxLen
	if excess <= 0 {
		return 0, nil
	}
	removed, err := l.store.DeleteOldest(excess)
	if err != nil {
		return removed, fmt.Errorf("trim %s: %w", l.name, err)
	}
	metrics.EntriesTrimmed.WithLabelValues(l.name).Add(float64(removed))
	metrics.StreamLength.WithLabelValues(l.name).Set(float64(l.store.Len()))
	return removed, nil
}

// FirstID returns the oldest retained id, or types.ZeroID when the log is empty.
func (l *Log) FirstID() (types.EntryID, error) {
	entries, err := l.store.Read(types.ZeroID, 1)
	if err != nil {
		return types.ZeroID, fmt.Errorf("read %s: %w", l.name, err)
	}
	if len(entries) == 0 {
		return types.ZeroID, nil
	}
	return entries[0].ID, nil
}

func (l *Log) LastID() types.EntryID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

func (l *Log) Len() int {
	return l.store.Len()
}

// Wait returns a channel closed by the next append (or Close). Grab it before
// checking for entries so an append in between is not missed.
func (l *Log) Wait() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyCh
}

// Close rejects further appends and releases every waiter.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
}

func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
