package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/fxamacker/cbor/v2"
)

// Op names a request on the wire.
type Op string

const (
	OpPing        Op = "PING"
	OpAppend      Op = "APPEND"
	OpReadRange   Op = "READ_RANGE"
	OpTrim        Op = "TRIM"
	OpCreateGroup Op = "CREATE_GROUP"
	OpDeleteGroup Op = "DELETE_GROUP"
	OpReadGroup   Op = "READ_GROUP"
	OpReadPending Op = "READ_PENDING"
	OpAck         Op = "ACK"
	OpClaim       Op = "CLAIM"
	OpPending     Op = "PENDING"
	OpGroups      Op = "GROUPS"
)

// Code is the status carried by every response.
type Code uint8

const (
	CodeOK Code = iota
	CodeInternal
	CodeBadRequest
	CodeGroupNotFound
	CodeEntryLost
	CodeStorageUnavailable
	CodeInvalidID
	CodeInvalidName
	CodeClosed
	CodeCanceled
)

var codeErrors = map[Code]error{
	CodeGroupNotFound:      types.ErrGroupNotFound,
	CodeEntryLost:          types.ErrEntryLost,
	CodeStorageUnavailable: types.ErrStorageUnavailable,
	CodeInvalidID:          types.ErrInvalidID,
	CodeInvalidName:        types.ErrInvalidName,
	CodeClosed:             types.ErrClosed,
	CodeCanceled:           errors.New("request canceled"),
	CodeBadRequest:         errors.New("bad request"),
	CodeInternal:           errors.New("internal error"),
}

// CodeOf classifies err for the wire.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, types.ErrEntryLost):
		return CodeEntryLost
	case errors.Is(err, types.ErrGroupNotFound):
		return CodeGroupNotFound
	case errors.Is(err, types.ErrInvalidID):
		return CodeInvalidID
	case errors.Is(err, types.ErrInvalidName):
		return CodeInvalidName
	case errors.Is(err, types.ErrClosed):
		return CodeClosed
	case errors.Is(err, types.ErrStorageUnavailable):
		return CodeStorageUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, errBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

var errBadRequest = codeErrors[CodeBadRequest]

// Field is a wire field pair.
type Field struct {
	_     struct{} `cbor:",toarray"`
	Key   string
	Value []byte
}

// Entry is a wire entry. Consumer and DeliveryCount are set for deliveries only.
type Entry struct {
	_             struct{} `cbor:",toarray"`
	ID            string
	Fields        []Field
	Consumer      string
	DeliveryCount int
}

type Pending struct {
	_              struct{} `cbor:",toarray"`
	ID             string
	Consumer       string
	DeliveryCount  int
	LastDeliveryMS int64
}

type Group struct {
	_         struct{} `cbor:",toarray"`
	Name      string
	Cursor    string
	Pending   int
	Consumers int
}

type Request struct {
	Op        Op       `cbor:"1,keyasint"`
	Stream    string   `cbor:"2,keyasint,omitempty"`
	Group     string   `cbor:"3,keyasint,omitempty"`
	Consumer  string   `cbor:"4,keyasint,omitempty"`
	Fields    []Field  `cbor:"5,keyasint,omitempty"`
	IDs       []string `cbor:"6,keyasint,omitempty"`
	After     string   `cbor:"7,keyasint,omitempty"`
	Count     int      `cbor:"8,keyasint,omitempty"`
	BlockMS   int64    `cbor:"9,keyasint,omitempty"`
	MinIdleMS int64    `cbor:"10,keyasint,omitempty"`
	MaxLen    int      `cbor:"11,keyasint,omitempty"`
	Start     string   `cbor:"12,keyasint,omitempty"`
}

type Response struct {
	Code    Code      `cbor:"1,keyasint"`
	Error   string    `cbor:"2,keyasint,omitempty"`
	ID      string    `cbor:"3,keyasint,omitempty"`
	Count   int       `cbor:"4,keyasint,omitempty"`
	Flag    bool      `cbor:"5,keyasint,omitempty"`
	Entries []Entry   `cbor:"6,keyasint,omitempty"`
	Pending []Pending `cbor:"7,keyasint,omitempty"`
	Groups  []Group   `cbor:"8,keyasint,omitempty"`
	LostIDs []string  `cbor:"9,keyasint,omitempty"`
}

// Err rebuilds the error a response carries. Lost ids come back as *types.LostError.
func (r *Response) Err(stream, group string) error {
	if r.Code == CodeOK {
		return nil
	}
	if r.Code == CodeEntryLost {
		ids, err := ParseIDs(r.LostIDs)
		if err == nil {
			return &types.LostError{Stream: stream, Group: group, IDs: ids}
		}
	}
	sentinel, ok := codeErrors[r.Code]
	if !ok {
		sentinel = codeErrors[CodeInternal]
	}
	msg := strings.TrimPrefix(r.Error, sentinel.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func FromFields(fields types.Fields) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = Field{Key: f.Key, Value: f.Value}
	}
	return out
}

func ToFields(fields []Field) types.Fields {
	out := make(types.Fields, len(fields))
	for i, f := range fields {
		out[i] = types.Field{Key: f.Key, Value: f.Value}
	}
	return out
}

func FromEntries(entries []types.Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{ID: e.ID.String(), Fields: FromFields(e.Fields)}
	}
	return out
}

func FromDeliveries(ds []types.Delivery) []Entry {
	out := make([]Entry, len(ds))
	for i, d := range ds {
		out[i] = Entry{
			ID:            d.ID.String(),
			Fields:        FromFields(d.Fields),
			Consumer:      d.Consumer,
			DeliveryCount: d.DeliveryCount,
		}
	}
	return out
}

func ToEntries(entries []Entry) ([]types.Entry, error) {
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		id, err := types.ParseEntryID(e.ID)
		if err != nil {
			return nil, err
		}
		out[i] = types.Entry{ID: id, Fields: ToFields(e.Fields)}
	}
	return out, nil
}

func ToDeliveries(entries []Entry) ([]types.Delivery, error) {
	out := make([]types.Delivery, len(entries))
	for i, e := range entries {
		id, err := types.ParseEntryID(e.ID)
		if err != nil {
			return nil, err
		}
		out[i] = types.Delivery{
			Entry:         types.Entry{ID: id, Fields: ToFields(e.Fields)},
			Consumer:      e.Consumer,
			DeliveryCount: e.DeliveryCount,
		}
	}
	return out, nil
}

func FromPending(ps []types.PendingEntry) []Pending {
	out := make([]Pending, len(ps))
	for i, p := range ps {
		out[i] = Pending{
			ID:             p.ID.String(),
			Consumer:       p.Consumer,
			DeliveryCount:  p.DeliveryCount,
			LastDeliveryMS: p.LastDelivery.UnixMilli(),
		}
	}
	return out
}

func ToPending(ps []Pending) ([]types.PendingEntry, error) {
	out := make([]types.PendingEntry, len(ps))
	for i, p := range ps {
		id, err := types.ParseEntryID(p.ID)
		if err != nil {
			return nil, err
		}
		out[i] = types.PendingEntry{
			ID:            id,
			Consumer:      p.Consumer,
			DeliveryCount: p.DeliveryCount,
			LastDelivery:  time.UnixMilli(p.LastDeliveryMS),
		}
	}
	return out, nil
}

func FromGroups(gs []types.GroupInfo) []Group {
	out := make([]Group, len(gs))
	for i, g := range gs {
		out[i] = Group{Name: g.Name, Cursor: g.Cursor.String(), Pending: g.Pending, Consumers: g.Consumers}
	}
	return out
}

func ToGroups(gs []Group) ([]types.GroupInfo, error) {
	out := make([]types.GroupInfo, len(gs))
	for i, g := range gs {
		cursor, err := types.ParseEntryID(g.Cursor)
		if err != nil {
			return nil, err
		}
		out[i] = types.GroupInfo{Name: g.Name, Cursor: cursor, Pending: g.Pending, Consumers: g.Consumers}
	}
	return out, nil
}

func FormatIDs(ids []types.EntryID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func ParseIDs(ids []string) ([]types.EntryID, error) {
	out := make([]types.EntryID, len(ids))
	for i, s := range ids {
		id, err := types.ParseEntryID(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
