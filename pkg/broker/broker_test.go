package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/downfa11-org/xstream/pkg/broker"
	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfig(t *testing.T, storage string) *config.Config {
	cfg := &config.Config{Storage: storage, LogDir: t.TempDir()}
	cfg.Normalize()
	return cfg
}

func openBroker(t *testing.T, cfg *config.Config) *broker.Broker {
	t.Helper()
	b := broker.NewBroker(cfg)
	require.NoError(t, b.Open())
	return b
}

func pb(s string) types.Fields {
	return types.Fields{{Key: "pb", Value: []byte(s)}}
}

func TestBrokerGroupFlow(t *testing.T) {
	ctx := context.Background()
	b := openBroker(t, newConfig(t, config.StorageMemory))
	defer b.Close()

	res, err := b.CreateGroup(ctx, "telemetry", "G", types.StartTail)
	require.NoError(t, err, "creating a group creates the stream")
	assert.Equal(t, types.Created, res)

	id, err := b.Append(ctx, "telemetry", pb("e1"))
	require.NoError(t, err)

	got, err := b.ReadGroup(ctx, "telemetry", "G", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)

	n, err := b.Ack(ctx, "telemetry", "G", id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	groups, err := b.Groups(ctx, "telemetry")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "G", groups[0].Name)
	assert.Equal(t, 0, groups[0].Pending)
}

func TestBrokerUnknownStream(t *testing.T) {
	ctx := context.Background()
	b := openBroker(t, newConfig(t, config.StorageMemory))
	defer b.Close()

	_, err := b.ReadGroup(ctx, "missing", "G", "c1", 1, 0)
	assert.ErrorIs(t, err, types.ErrGroupNotFound)

	entries, err := b.ReadRange(ctx, "missing", types.ZeroID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	removed, err := b.Trim(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	existed, err := b.DeleteGroup(ctx, "missing", "G")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = b.Append(ctx, "", pb("x"))
	assert.ErrorIs(t, err, types.ErrInvalidName)
}

func TestBrokerRetention(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t, config.StorageMemory)
	cfg.MaxLen = 3
	b := openBroker(t, cfg)
	defer b.Close()

	for i := 0; i < 5; i++ {
		_, err := b.Append(ctx, "telemetry", pb("x"))
		require.NoError(t, err)
	}
	entries, err := b.ReadRange(ctx, "telemetry", types.ZeroID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestBrokerRestoresStreamsAndStaticGroups(t *testing.T) {
	ctx := context.Background()
	cfg := newConfig(t, config.StoragePebble)
	cfg.StaticGroups = []config.StaticGroupConfig{{Stream: "audit", Group: "auditors", Start: "beginning"}}

	b := openBroker(t, cfg)
	_, err := b.CreateGroup(ctx, "telemetry", "G", types.StartBeginning)
	require.NoError(t, err)
	first, err := b.Append(ctx, "telemetry", pb("e1"))
	require.NoError(t, err)
	_, err = b.ReadGroup(ctx, "telemetry", "G", "c1", 10, 0)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b = openBroker(t, cfg)
	defer b.Close()

	pending, err := b.Pending(ctx, "telemetry", "G")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first, pending[0].ID)

	second, err := b.Append(ctx, "telemetry", pb("e2"))
	require.NoError(t, err)
	assert.True(t, first.Less(second))

	groups, err := b.Groups(ctx, "audit")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "auditors", groups[0].Name)

	names := make([]string, 0)
	for _, c := range b.Coordinators() {
		names = append(names, c.Stream())
	}
	assert.Equal(t, []string{"audit", "telemetry"}, names)
}

func TestBrokerCloseReleasesReaders(t *testing.T) {
	ctx := context.Background()
	b := openBroker(t, newConfig(t, config.StorageMemory))
	_, err := b.CreateGroup(ctx, "telemetry", "G", types.StartTail)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := b.ReadGroup(ctx, "telemetry", "G", "c1", 10, 10*time.Second)
		done <- err
	}()
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, types.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked reader not released by Close")
	}

	_, err = b.Append(ctx, "telemetry", pb("x"))
	assert.ErrorIs(t, err, types.ErrClosed)
}
