//go:generate mockgen -destination mock_types/mock_types.go github.com/downfa11-org/xstream/pkg/types StreamAPI
package types

import (
	"context"
	"time"
)

// StreamAPI is the operation surface of a stream backend. The embedded broker,
// the TCP client and the Redis adapter all implement it.
type StreamAPI interface {
	Append(ctx context.Context, stream string, fields Fields) (EntryID, error)
	ReadRange(ctx context.Context, stream string, after EntryID, limit int) ([]Entry, error)
	Trim(ctx context.Context, stream string, maxLen int) (int, error)

	CreateGroup(ctx context.Context, stream, group string, start StartPosition) (CreateResult, error)
	DeleteGroup(ctx context.Context, stream, group string) (bool, error)

	ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Delivery, error)
	ReadPending(ctx context.Context, stream, group, consumer string, count int) ([]Delivery, error)
	Ack(ctx context.Context, stream, group string, ids ...EntryID) (int, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int) ([]Delivery, error)
	Pending(ctx context.Context, stream, group string) ([]PendingEntry, error)
	Groups(ctx context.Context, stream string) ([]GroupInfo, error)
}
