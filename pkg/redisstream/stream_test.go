package redisstream_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/downfa11-org/xstream/pkg/redisstream"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openRedis connects to REDIS_ADDR and skips the test when it is unset.
func openRedis(t *testing.T) (*redisstream.Stream, string) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	stream := "xstream-test-" + uuid.NewString()
	t.Cleanup(func() {
		rdb.Del(context.Background(), stream)
		_ = rdb.Close()
	})
	return redisstream.New(rdb), stream
}

func pb(s string) types.Fields {
	return types.Fields{{Key: "pb", Value: []byte(s)}}
}

func TestRedisGroupFlow(t *testing.T) {
	s, stream := openRedis(t)
	ctx := context.Background()

	res, err := s.CreateGroup(ctx, stream, "G", types.StartTail)
	require.NoError(t, err)
	assert.Equal(t, types.Created, res)
	res, err = s.CreateGroup(ctx, stream, "G", types.StartTail)
	require.NoError(t, err)
	assert.Equal(t, types.AlreadyExisted, res)

	var ids []types.EntryID
	for i := 0; i < 3; i++ {
		id, err := s.Append(ctx, stream, pb(fmt.Sprint(i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := s.ReadGroup(ctx, stream, "G", "c1", 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[0], got[0].ID)

	got, err = s.ReadGroup(ctx, stream, "G", "c2", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	replay, err := s.ReadPending(ctx, stream, "G", "c1", 0)
	require.NoError(t, err)
	require.Len(t, replay, 1)
	assert.GreaterOrEqual(t, replay[0].DeliveryCount, 1)

	claimed, err := s.Claim(ctx, stream, "G", "c3", 0, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.GreaterOrEqual(t, claimed[0].DeliveryCount, 2)

	n, err := s.Ack(ctx, stream, "G", ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Ack(ctx, stream, "G", ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err := s.Pending(ctx, stream, "G")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	groups, err := s.Groups(ctx, stream)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, ids[2], groups[0].Cursor)

	entries, err := s.ReadRange(ctx, stream, ids[0], 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	removed, err := s.Trim(ctx, stream, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	existed, err := s.DeleteGroup(ctx, stream, "G")
	require.NoError(t, err)
	assert.True(t, existed)
	_, err = s.ReadGroup(ctx, stream, "G", "c1", 1, 0)
	assert.ErrorIs(t, err, types.ErrGroupNotFound)
}

func TestRedisAckOfTrimmedEntryIsLost(t *testing.T) {
	s, stream := openRedis(t)
	ctx := context.Background()
	_, err := s.CreateGroup(ctx, stream, "G", types.StartTail)
	require.NoError(t, err)

	trimmed, err := s.Append(ctx, stream, pb("old"))
	require.NoError(t, err)
	_, err = s.ReadGroup(ctx, stream, "G", "c1", 1, 0)
	require.NoError(t, err)
	_, err = s.Trim(ctx, stream, 0)
	require.NoError(t, err)

	kept, err := s.Append(ctx, stream, pb("new"))
	require.NoError(t, err)
	_, err = s.ReadGroup(ctx, stream, "G", "c1", 1, 0)
	require.NoError(t, err)

	n, err := s.Ack(ctx, stream, "G", trimmed, kept)
	assert.Equal(t, 1, n, "only the live entry counts")
	var lost *types.LostError
	require.ErrorAs(t, err, &lost)
	assert.ErrorIs(t, err, types.ErrEntryLost)
	assert.Equal(t, []types.EntryID{trimmed}, lost.IDs)

	n, err = s.Ack(ctx, stream, "G", trimmed)
	require.NoError(t, err, "the lost id left the PEL")
	assert.Equal(t, 0, n)

	pending, err := s.Pending(ctx, stream, "G")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRedisBlockTimeout(t *testing.T) {
	s, stream := openRedis(t)
	ctx := context.Background()
	_, err := s.CreateGroup(ctx, stream, "G", types.StartTail)
	require.NoError(t, err)

	start := time.Now()
	got, err := s.ReadGroup(ctx, stream, "G", "c1", 1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
