package disk

import (
	"bytes"
	"fmt"

	"github.com/downfa11-org/xstream/pkg/types"
)

// Key layout, one pebble keyspace shared by every stream:
//
//	m<stream>                    last assigned id
//	e<stream>\x00<id>            entry record
//	g<stream>\x00<group>         group cursor
//	p<stream>\x00<group>\x00<id> pending entry
const (
	tagMeta    = 'm'
	tagEntry   = 'e'
	tagGroup   = 'g'
	tagPending = 'p'
)

const maxNameLen = 255

// ValidateName rejects names that would break the key layout.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen || bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("%w: %q", types.ErrInvalidName, name)
	}
	return nil
}

func metaKey(stream string) []byte {
	k := make([]byte, 0, 1+len(stream))
	k = append(k, tagMeta)
	return append(k, stream...)
}

func entryPrefix(stream string) []byte {
	k := make([]byte, 0, 2+len(stream)+16)
	k = append(k, tagEntry)
	k = append(k, stream...)
	return append(k, 0)
}

func entryKey(stream string, id types.EntryID) []byte {
	return append(entryPrefix(stream), id.Bytes()...)
}

func groupPrefix(stream string) []byte {
	k := make([]byte, 0, 2+len(stream))
	k = append(k, tagGroup)
	k = append(k, stream...)
	return append(k, 0)
}

func groupKey(stream, group string) []byte {
	return append(groupPrefix(stream), group...)
}

func pendingPrefix(stream, group string) []byte {
	k := make([]byte, 0, 3+len(stream)+len(group)+16)
	k = append(k, tagPending)
	k = append(k, stream...)
	k = append(k, 0)
	k = append(k, group...)
	return append(k, 0)
}

func pendingKey(stream, group string, id types.EntryID) []byte {
	return append(pendingPrefix(stream, group), id.Bytes()...)
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
