package types

// GroupState is the persisted form of a consumer group.
type GroupState struct {
	Name    string
	Cursor  EntryID
	Pending []PendingEntry
}

// StorageHandler persists one stream: its entries and its groups' cursors and PELs.
// Implementations are safe for concurrent use.
type StorageHandler interface {
	Append(entry Entry) error
	Read(after EntryID, limit int) ([]Entry, error)
	Get(id EntryID) (Entry, error)
	DeleteOldest(n int) (int, error)
	LastID() EntryID
	Len() int

	SaveGroup(name string, cursor EntryID) error
	CommitDelivery(group string, cursor EntryID, pending []PendingEntry) error
	DeletePending(group string, ids []EntryID) error
	DeleteGroup(name string) error
	LoadGroups() ([]GroupState, error)

	Close() error
}
