package redisstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/downfa11-org/xstream/util"
	"github.com/redis/go-redis/v9"
)

var _ types.StreamAPI = (*Stream)(nil)

// Stream runs the stream operations against Redis streams
// (XADD, XREADGROUP, XACK, XAUTOCLAIM and friends).
type Stream struct {
	rdb    redis.UniversalClient
	maxLen int64
}

type Option func(*Stream)

// WithMaxLen caps every stream on append (XADD MAXLEN =).
func WithMaxLen(n int) Option {
	return func(s *Stream) { s.maxLen = int64(n) }
}

func New(rdb redis.UniversalClient, opts ...Option) *Stream {
	s := &Stream{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open parses a redis:// URL, connects and pings the server.
func Open(ctx context.Context, url string, opts ...Option) (*Stream, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, wrap("ping", err)
	}
	util.Info("connected to redis %s", o.Addr)
	return New(rdb, opts...), nil
}

func (s *Stream) Close() error {
	return s.rdb.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "NOGROUP"):
		return fmt.Errorf("%w: %s", types.ErrGroupNotFound, msg)
	case strings.Contains(msg, "Invalid stream ID"):
		return fmt.Errorf("%w: %s", types.ErrInvalidID, msg)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrStorageUnavailable, op, err)
}

func toValues(fields types.Fields) []any {
	values := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		values = append(values, f.Key, f.Value)
	}
	return values
}

// toEntry converts a stream message. Redis returns fields as a map, so keys
// come back sorted rather than in append order. A nil map marks a deleted entry.
func toEntry(m redis.XMessage) (types.Entry, bool, error) {
	id, err := types.ParseEntryID(m.ID)
	if err != nil {
		return types.Entry{}, false, err
	}
	if m.Values == nil {
		return types.Entry{ID: id}, false, nil
	}
	keys := make([]string, 0, len(m.Values))
	for k := range m.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make(types.Fields, 0, len(keys))
	for _, k := range keys {
		var v []byte
		switch val := m.Values[k].(type) {
		case string:
			v = []byte(val)
		case []byte:
			v = val
		default:
			v = []byte(fmt.Sprint(val))
		}
		fields = append(fields, types.Field{Key: k, Value: v})
	}
	return types.Entry{ID: id, Fields: fields}, true, nil
}

func (s *Stream) Append(ctx context.Context, stream string, fields types.Fields) (types.EntryID, error) {
	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.maxLen,
		ID:     "*",
		Values: toValues(fields),
	}).Result()
	if err != nil {
		return types.ZeroID, wrap("xadd", err)
	}
	return types.ParseEntryID(id)
}

func (s *Stream) ReadRange(ctx context.Context, stream string, after types.EntryID, limit int) ([]types.Entry, error) {
	start := "-"
	if !after.IsZero() {
		start = "(" + after.String()
	}
	var cmd *redis.XMessageSliceCmd
	if limit > 0 {
		cmd = s.rdb.XRangeN(ctx, stream, start, "+", int64(limit))
	} else {
		cmd = s.rdb.XRange(ctx, stream, start, "+")
	}
	msgs, err := cmd.Result()
	if err != nil {
		return nil, wrap("xrange", err)
	}
	out := make([]types.Entry, 0, len(msgs))
	for _, m := range msgs {
		e, _, err := toEntry(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Stream) Trim(ctx context.Context, stream string, maxLen int) (int, error) {
	if maxLen < 0 {
		maxLen = 0
	}
	n, err := s.rdb.XTrimMaxLen(ctx, stream, int64(maxLen)).Result()
	return int(n), wrap("xtrim", err)
}

func (s *Stream) CreateGroup(ctx context.Context, stream, group string, start types.StartPosition) (types.CreateResult, error) {
	id := "$"
	if start == types.StartBeginning {
		id = "0"
	}
	err := s.rdb.XGroupCreateMkStream(ctx, stream, group, id).Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return types.AlreadyExisted, nil
		}
		return types.Created, wrap("xgroup create", err)
	}
	return types.Created, nil
}

func (s *Stream) DeleteGroup(ctx context.Context, stream, group string) (bool, error) {
	n, err := s.rdb.XGroupDestroy(ctx, stream, group).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return false, nil
		}
		return false, wrap("xgroup destroy", err)
	}
	return n > 0, nil
}

func (s *Stream) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]types.Delivery, error) {
	if block <= 0 {
		block = -1
	}
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(max(count, 0)),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("xreadgroup", err)
	}

	var out []types.Delivery
	for _, st := range res {
		for _, m := range st.Messages {
			e, _, err := toEntry(m)
			if err != nil {
				return out, err
			}
			out = append(out, types.Delivery{Entry: e, Consumer: consumer, DeliveryCount: 1})
		}
	}
	return out, nil
}

// ReadPending re-reads the consumer's own pending entries (XREADGROUP ... 0).
// Entries deleted from the stream are acked away and reported as lost.
func (s *Stream) ReadPending(ctx context.Context, stream, group, consumer string, count int) ([]types.Delivery, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, "0"},
		Count:    int64(max(count, 0)),
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("xreadgroup", err)
	}

	var msgs []redis.XMessage
	for _, st := range res {
		msgs = append(msgs, st.Messages...)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	counts, err := s.retryCounts(ctx, stream, group, consumer, msgs[0].ID, msgs[len(msgs)-1].ID, len(msgs))
	if err != nil {
		return nil, err
	}
	return s.deliveries(ctx, stream, group, consumer, msgs, counts)
}

// Ack acknowledges ids. XACK alone counts a pending id whose entry was
// trimmed, so ids are first checked against the stream; pending ones that no
// longer exist are removed and reported as lost instead of counted.
func (s *Stream) Ack(ctx context.Context, stream, group string, ids ...types.EntryID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.rdb.Pipeline()
	ranges := make([]*redis.XMessageSliceCmd, len(ids))
	for i, id := range ids {
		ranges[i] = pipe.XRange(ctx, stream, id.String(), id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap("xrange", err)
	}

	var live []string
	var gone []types.EntryID
	for i, cmd := range ranges {
		if len(cmd.Val()) > 0 {
			live = append(live, ids[i].String())
		} else {
			gone = append(gone, ids[i])
		}
	}

	n, err := s.xack(ctx, stream, group, live...)
	if err != nil || len(gone) == 0 {
		return n, err
	}

	pipe = s.rdb.Pipeline()
	acks := make([]*redis.IntCmd, len(gone))
	for i, id := range gone {
		acks[i] = pipe.XAck(ctx, stream, group, id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return n, wrap("xack", err)
	}
	var lost []types.EntryID
	for i, cmd := range acks {
		if cmd.Val() > 0 {
			lost = append(lost, gone[i])
		}
	}
	if len(lost) == 0 {
		return n, nil
	}
	return n, &types.LostError{Stream: stream, Group: group, IDs: lost}
}

func (s *Stream) xack(ctx context.Context, stream, group string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.rdb.XAck(ctx, stream, group, ids...).Result()
	return int(n), wrap("xack", err)
}

func (s *Stream) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int) ([]types.Delivery, error) {
	if count <= 0 {
		count = 100
	}
	msgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    int64(count),
		Consumer: consumer,
	}).Result()
	if err != nil {
		return nil, wrap("xautoclaim", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	counts, err := s.retryCounts(ctx, stream, group, consumer, msgs[0].ID, msgs[len(msgs)-1].ID, len(msgs))
	if err != nil {
		return nil, err
	}
	return s.deliveries(ctx, stream, group, consumer, msgs, counts)
}

func (s *Stream) retryCounts(ctx context.Context, stream, group, consumer, start, end string, count int) (map[string]int, error) {
	if count <= 0 {
		count = 1 << 20
	}
	pending, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   stream,
		Group:    group,
		Start:    start,
		End:      end,
		Count:    int64(count),
		Consumer: consumer,
	}).Result()
	if err != nil {
		return nil, wrap("xpending", err)
	}
	counts := make(map[string]int, len(pending))
	for _, p := range pending {
		counts[p.ID] = int(p.RetryCount)
	}
	return counts, nil
}

// deliveries converts redelivered messages. Deleted entries are removed from
// the PEL and returned as a *types.LostError next to the live ones.
func (s *Stream) deliveries(ctx context.Context, stream, group, consumer string, msgs []redis.XMessage, counts map[string]int) ([]types.Delivery, error) {
	var out []types.Delivery
	var lost []types.EntryID
	for _, m := range msgs {
		e, live, err := toEntry(m)
		if err != nil {
			return out, err
		}
		if !live {
			lost = append(lost, e.ID)
			continue
		}
		dc := counts[m.ID]
		if dc == 0 {
			dc = 1
		}
		out = append(out, types.Delivery{Entry: e, Consumer: consumer, DeliveryCount: dc})
	}
	if len(lost) == 0 {
		return out, nil
	}
	strs := make([]string, len(lost))
	for i, id := range lost {
		strs[i] = id.String()
	}
	if _, err := s.xack(ctx, stream, group, strs...); err != nil {
		return out, err
	}
	return out, &types.LostError{Stream: stream, Group: group, IDs: lost}
}

func (s *Stream) Pending(ctx context.Context, stream, group string) ([]types.PendingEntry, error) {
	pending, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1 << 20,
	}).Result()
	if err != nil {
		return nil, wrap("xpending", err)
	}
	now := time.Now()
	out := make([]types.PendingEntry, 0, len(pending))
	for _, p := range pending {
		id, err := types.ParseEntryID(p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.PendingEntry{
			ID:            id,
			Consumer:      p.Consumer,
			DeliveryCount: int(p.RetryCount),
			LastDelivery:  now.Add(-p.Idle),
		})
	}
	return out, nil
}

func (s *Stream) Groups(ctx context.Context, stream string) ([]types.GroupInfo, error) {
	infos, err := s.rdb.XInfoGroups(ctx, stream).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return nil, nil
		}
		return nil, wrap("xinfo groups", err)
	}
	out := make([]types.GroupInfo, 0, len(infos))
	for _, g := range infos {
		cursor, err := types.ParseEntryID(g.LastDeliveredID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.GroupInfo{
			Name:      g.Name,
			Cursor:    cursor,
			Pending:   int(g.Pending),
			Consumers: int(g.Consumers),
		})
	}
	return out, nil
}
