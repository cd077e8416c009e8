package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
	"github.com/fxamacker/cbor/v2"
)

const (
	recordVersion    = 1
	recordHeaderSize = 10 // version(1) codec(1) checksum(8)
)

var errCorruptRecord = errors.New("corrupt record")

type fieldRecord struct {
	_     struct{} `cbor:",toarray"`
	Key   string
	Value []byte
}

type pendingRecord struct {
	_        struct{} `cbor:",toarray"`
	Consumer string
	Count    int
	LastMs   int64
}

func encodeEntry(fields types.Fields, compression string) ([]byte, error) {
	recs := make([]fieldRecord, len(fields))
	for i, f := range fields {
		recs[i] = fieldRecord{Key: f.Key, Value: f.Value}
	}
	body, err := cbor.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	id := util.CompressionID(compression)
	if id != 0 {
		if body, err = util.CompressMessage(body, compression); err != nil {
			return nil, fmt.Errorf("compress record: %w", err)
		}
	}

	buf := make([]byte, recordHeaderSize+len(body))
	buf[0] = recordVersion
	buf[1] = id
	binary.BigEndian.PutUint64(buf[2:10], util.Checksum(body))
	copy(buf[recordHeaderSize:], body)
	return buf, nil
}

func decodeEntry(data []byte) (types.Fields, error) {
	if len(data) < recordHeaderSize || data[0] != recordVersion {
		return nil, errCorruptRecord
	}
	codec, ok := util.CompressionByID(data[1])
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %d", errCorruptRecord, data[1])
	}
	body := data[recordHeaderSize:]
	if util.Checksum(body) != binary.BigEndian.Uint64(data[2:10]) {
		return nil, fmt.Errorf("%w: checksum mismatch", errCorruptRecord)
	}

	var err error
	if data[1] != 0 {
		if body, err = util.DecompressMessage(body, codec); err != nil {
			return nil, fmt.Errorf("%w: %w", errCorruptRecord, err)
		}
	}

	var recs []fieldRecord
	if err := cbor.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	fields := make(types.Fields, len(recs))
	for i, r := range recs {
		fields[i] = types.Field{Key: r.Key, Value: r.Value}
	}
	return fields, nil
}

func encodePending(p types.PendingEntry) ([]byte, error) {
	return cbor.Marshal(pendingRecord{
		Consumer: p.Consumer,
		Count:    p.DeliveryCount,
		LastMs:   p.LastDelivery.UnixMilli(),
	})
}

func decodePending(id types.EntryID, data []byte) (types.PendingEntry, error) {
	var r pendingRecord
	if err := cbor.Unmarshal(data, &r); err != nil {
		return types.PendingEntry{}, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	return types.PendingEntry{
		ID:            id,
		Consumer:      r.Consumer,
		DeliveryCount: r.Count,
		LastDelivery:  time.UnixMilli(r.LastMs),
	}, nil
}
