package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/downfa11-org/xstream/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// PayloadKey is the entry field that carries an encoded Record.
const PayloadKey = "pb"

// Record field numbers, matching the Telemetry protobuf message.
const (
	fieldID          protowire.Number = 1
	fieldSource      protowire.Number = 2
	fieldValue       protowire.Number = 3
	fieldTimestampMS protowire.Number = 4
)

type Record struct {
	ID          uint64
	Source      string
	Value       float64
	TimestampMS int64
}

func (r Record) Time() time.Time { return time.UnixMilli(r.TimestampMS) }

func (r Record) String() string {
	return fmt.Sprintf("id=%d source=%s value=%.3f ts=%s", r.ID, r.Source, r.Value, r.Time().Format(time.RFC3339Nano))
}

// Marshal encodes r in protobuf wire format. Zero-valued fields are omitted.
func (r Record) Marshal() []byte {
	var b []byte
	if r.ID != 0 {
		b = protowire.AppendTag(b, fieldID, protowire.VarintType)
		b = protowire.AppendVarint(b, r.ID)
	}
	if r.Source != "" {
		b = protowire.AppendTag(b, fieldSource, protowire.BytesType)
		b = protowire.AppendString(b, r.Source)
	}
	if r.Value != 0 {
		b = protowire.AppendTag(b, fieldValue, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(r.Value))
	}
	if r.TimestampMS != 0 {
		b = protowire.AppendTag(b, fieldTimestampMS, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.TimestampMS))
	}
	return b
}

// Unmarshal decodes a Record. Unknown fields are skipped; malformed input
// yields an error wrapping types.ErrDecodeFailure.
func Unmarshal(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, decodeErr(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, decodeErr(protowire.ParseError(n))
			}
			r.ID, b = v, b[n:]
		case num == fieldSource && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Record{}, decodeErr(protowire.ParseError(n))
			}
			r.Source, b = v, b[n:]
		case num == fieldValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Record{}, decodeErr(protowire.ParseError(n))
			}
			r.Value, b = math.Float64frombits(v), b[n:]
		case num == fieldTimestampMS && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, decodeErr(protowire.ParseError(n))
			}
			r.TimestampMS, b = int64(v), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, decodeErr(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func decodeErr(err error) error {
	return fmt.Errorf("%w: telemetry: %w", types.ErrDecodeFailure, err)
}

// Fields wraps r as entry fields.
func (r Record) Fields() types.Fields {
	return types.Fields{{Key: PayloadKey, Value: r.Marshal()}}
}

// FromEntry decodes the record carried by an entry.
func FromEntry(e types.Entry) (Record, error) {
	pb, ok := e.Fields.Get(PayloadKey)
	if !ok {
		keys := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			keys[i] = f.Key
		}
		return Record{}, fmt.Errorf("%w: entry %s has no %q field (keys %v)", types.ErrDecodeFailure, e.ID, PayloadKey, keys)
	}
	return Unmarshal(pb)
}
