package types

import (
	"errors"
	"strings"
)

var (
	// ErrEntryLost marks a pending entry whose data was trimmed from the log.
	ErrEntryLost = errors.New("entry lost")
	// ErrStorageUnavailable marks failures to reach the backing store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDecodeFailure marks a malformed payload; consumers ack such entries anyway.
	ErrDecodeFailure = errors.New("decode failure")
	ErrGroupNotFound = errors.New("consumer group not found")
	ErrEntryNotFound = errors.New("entry not found")
	ErrInvalidID     = errors.New("invalid entry id")
	ErrInvalidName   = errors.New("invalid stream or group name")
	ErrClosed        = errors.New("stream closed")
)

// LostError lists the pending ids found trimmed during an ack or claim.
type LostError struct {
	Stream string
	Group  string
	IDs    []EntryID
}

func (e *LostError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return "entry lost: stream=" + e.Stream + " group=" + e.Group + " ids=[" + strings.Join(ids, ",") + "]"
}

func (e *LostError) Unwrap() error { return ErrEntryLost }
