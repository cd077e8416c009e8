package types

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EntryID identifies an entry within a stream: creation time in milliseconds
// plus a sequence that breaks ties inside the same millisecond.
type EntryID struct {
	Ms  uint64
	Seq uint64
}

// ZeroID sorts before every assigned id.
var ZeroID = EntryID{}

func (id EntryID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

func (id EntryID) IsZero() bool { return id == ZeroID }

func (id EntryID) Compare(other EntryID) int {
	if c := cmp.Compare(id.Ms, other.Ms); c != 0 {
		return c
	}
	return cmp.Compare(id.Seq, other.Seq)
}

func (id EntryID) Less(other EntryID) bool { return id.Compare(other) < 0 }

// Next returns the smallest id strictly greater than id.
func (id EntryID) Next() EntryID {
	if id.Seq == math.MaxUint64 {
		return EntryID{Ms: id.Ms + 1}
	}
	return EntryID{Ms: id.Ms, Seq: id.Seq + 1}
}

// Time returns the creation time encoded in the id.
func (id EntryID) Time() time.Time {
	return time.UnixMilli(int64(id.Ms))
}

// Bytes encodes the id as 16 big-endian bytes so byte order matches id order.
func (id EntryID) Bytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], id.Ms)
	binary.BigEndian.PutUint64(b[8:], id.Seq)
	return b
}

func EntryIDFromBytes(b []byte) (EntryID, error) {
	if len(b) != 16 {
		return ZeroID, fmt.Errorf("%w: expected 16 bytes, got %d", ErrInvalidID, len(b))
	}
	return EntryID{
		Ms:  binary.BigEndian.Uint64(b[:8]),
		Seq: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// ParseEntryID accepts "<ms>-<seq>" or a bare "<ms>" (sequence 0).
func ParseEntryID(s string) (EntryID, error) {
	s = strings.TrimSpace(s)
	msPart, seqPart, hasSeq := strings.Cut(s, "-")

	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return ZeroID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	var seq uint64
	if hasSeq {
		seq, err = strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return ZeroID, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
	}
	return EntryID{Ms: ms, Seq: seq}, nil
}

// Field is one key/value pair of an entry. Values are opaque bytes.
type Field struct {
	Key   string
	Value []byte
}

// Fields keeps insertion order.
type Fields []Field

func (f Fields) Get(key string) ([]byte, bool) {
	for _, kv := range f {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for i, kv := range f {
		out[i] = Field{Key: kv.Key, Value: append([]byte(nil), kv.Value...)}
	}
	return out
}

// Entry is one immutable record of a stream.
type Entry struct {
	ID     EntryID
	Fields Fields
}

// Delivery is an entry handed to a consumer of a group, with the group's
// delivery bookkeeping at the time of hand-off.
type Delivery struct {
	Entry
	Consumer      string
	DeliveryCount int
}
