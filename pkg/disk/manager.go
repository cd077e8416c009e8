package disk

import (
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
)

type DiskManager struct {
	mu       sync.Mutex
	handlers map[string]types.StorageHandler
	cfg      *config.Config
	db       *pebble.DB
}

func NewDiskManager(cfg *config.Config) *DiskManager {
	return &DiskManager{
		handlers: make(map[string]types.StorageHandler),
		cfg:      cfg,
	}
}

func (dm *DiskManager) openDB() error {
	if dm.db != nil {
		return nil
	}
	if err := os.MkdirAll(dm.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dm.cfg.LogDir, err)
	}
	db, err := pebble.Open(dm.cfg.LogDir, &pebble.Options{})
	if err != nil {
		return storageErr("open "+dm.cfg.LogDir, err)
	}
	util.Info("storage opened at %s (sync=%v, compression=%s)", dm.cfg.LogDir, dm.cfg.SyncWrites, dm.cfg.RecordCompression)
	dm.db = db
	return nil
}

// GetHandler returns the storage handler for a stream, creating it if missing.
func (dm *DiskManager) GetHandler(stream string) (types.StorageHandler, error) {
	if err := ValidateName(stream); err != nil {
		return nil, err
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if h, ok := dm.handlers[stream]; ok {
		return h, nil
	}

	var h types.StorageHandler
	if dm.cfg.Storage == config.StorageMemory {
		h = NewMemoryHandler()
	} else {
		if err := dm.openDB(); err != nil {
			return nil, err
		}
		ph, err := newPebbleHandler(dm.db, stream, dm.cfg.SyncWrites, dm.cfg.RecordCompression)
		if err != nil {
			return nil, err
		}
		h = ph
	}

	dm.handlers[stream] = h
	return h, nil
}

// Streams lists the streams known to storage, including ones not opened since start.
func (dm *DiskManager) Streams() ([]string, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.cfg.Storage == config.StorageMemory {
		names := make([]string, 0, len(dm.handlers))
		for name := range dm.handlers {
			names = append(names, name)
		}
		return names, nil
	}

	if err := dm.openDB(); err != nil {
		return nil, err
	}
	prefix := []byte{tagMeta}
	iter, err := dm.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, storageErr("list streams", err)
	}
	defer iter.Close()

	var names []string
	for ok := iter.First(); ok; ok = iter.Next() {
		names = append(names, string(iter.Key()[1:]))
	}
	return names, iter.Error()
}

// CloseAllHandlers closes every handler and the shared database.
func (dm *DiskManager) CloseAllHandlers() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for name, h := range dm.handlers {
		util.Debug("Closing storage handler for %s", name)
		if err := h.Close(); err != nil {
			util.Warn("close handler %s: %v", name, err)
		}
		delete(dm.handlers, name)
	}
	if dm.db != nil {
		err := dm.db.Close()
		dm.db = nil
		if err != nil {
			return storageErr("close", err)
		}
	}
	return nil
}
