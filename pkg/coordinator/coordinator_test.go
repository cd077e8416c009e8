package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/coordinator"
	"github.com/downfa11-org/xstream/pkg/disk"
	"github.com/downfa11-org/xstream/pkg/stream"
	"github.com/downfa11-org/xstream/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	log   *stream.Log
	coord *coordinator.Coordinator
	clock *fakeClock
}

func newFixture(t *testing.T, store types.StorageHandler) *fixture {
	t.Helper()
	clock := newFakeClock()
	log := stream.OpenLog("telemetry", store, stream.WithClock(clock.Now))
	coord, err := coordinator.NewCoordinator(log, store, coordinator.WithClock(clock.Now))
	require.NoError(t, err)
	return &fixture{log: log, coord: coord, clock: clock}
}

func (f *fixture) append(t *testing.T, values ...string) []types.EntryID {
	t.Helper()
	ids := make([]types.EntryID, len(values))
	for i, v := range values {
		id, err := f.log.Append(types.Fields{{Key: "pb", Value: []byte(v)}})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func payload(d types.Delivery) string {
	v, _ := d.Fields.Get("pb")
	return string(v)
}

func TestTailGroupSeesOnlyNewEntries(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	f.append(t, "e1", "e2", "e3")

	res, err := f.coord.CreateGroup("G", types.StartTail)
	require.NoError(t, err)
	assert.Equal(t, types.Created, res)

	ids := f.append(t, "e4")

	got, err := f.coord.ReadGroup(context.Background(), "G", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[0], got[0].ID)
	assert.Equal(t, "e4", payload(got[0]))
	assert.Equal(t, 1, got[0].DeliveryCount)

	pending, err := f.coord.Pending("G")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].Consumer)
}

func TestCreateGroupIdempotent(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	f.append(t, "e1")

	res, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	assert.Equal(t, types.Created, res)

	f.append(t, "e2")
	res, err = f.coord.CreateGroup("G", types.StartTail)
	require.NoError(t, err)
	assert.Equal(t, types.AlreadyExisted, res)

	got, err := f.coord.ReadGroup(context.Background(), "G", "c1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2, "second create must not move the cursor")
}

func TestTwoConsumersSplitEntries(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1", "e2")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)

	a, err := f.coord.ReadGroup(context.Background(), "G", "c1", 1, 0)
	require.NoError(t, err)
	b, err := f.coord.ReadGroup(context.Background(), "G", "c2", 1, 0)
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, ids[0], a[0].ID)
	assert.Equal(t, ids[1], b[0].ID)

	pending, err := f.coord.Pending("G")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c1", pending[0].Consumer)
	assert.Equal(t, "c2", pending[1].Consumer)
}

func TestClaimAfterIdle(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)

	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 1, 0)
	require.NoError(t, err)

	got, err := f.coord.Claim("G", "c2", 30*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, got, "entry idle for less than minIdle must not be claimed")

	f.clock.Advance(60 * time.Second)
	got, err = f.coord.Claim("G", "c2", 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids[0], got[0].ID)
	assert.Equal(t, "c2", got[0].Consumer)
	assert.Equal(t, 2, got[0].DeliveryCount)

	pending, err := f.coord.Pending("G")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c2", pending[0].Consumer)
	assert.Equal(t, 2, pending[0].DeliveryCount)
	assert.Equal(t, f.clock.Now(), pending[0].LastDelivery)

	// claiming resets idle time
	got, err = f.coord.Claim("G", "c3", 30*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClaimRespectsCountInIDOrder(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1", "e2", "e3")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 10, 0)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	got, err := f.coord.Claim("G", "c2", time.Second, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[0], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)
}

func TestAckIdempotent(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 1, 0)
	require.NoError(t, err)

	n, err := f.coord.Ack("G", ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.coord.Ack("G", ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.coord.Ack("G", types.EntryID{Ms: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unknown ids are skipped")
}

func TestAckDuplicateIDsCountedOnce(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1", "e2")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 10, 0)
	require.NoError(t, err)

	n, err := f.coord.Ack("G", ids[0], ids[0], ids[1])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnknownGroup(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())

	_, err := f.coord.ReadGroup(context.Background(), "nope", "c1", 1, 0)
	assert.ErrorIs(t, err, types.ErrGroupNotFound)
	_, err = f.coord.Ack("nope", types.EntryID{Ms: 1})
	assert.ErrorIs(t, err, types.ErrGroupNotFound)
	_, err = f.coord.Claim("nope", "c1", 0, 1)
	assert.ErrorIs(t, err, types.ErrGroupNotFound)
}

func TestDeleteGroup(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	f.append(t, "e1")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 1, 0)
	require.NoError(t, err)

	existed, err := f.coord.DeleteGroup("G")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = f.coord.DeleteGroup("G")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = f.coord.Pending("G")
	assert.ErrorIs(t, err, types.ErrGroupNotFound)

	// recreated group starts fresh
	_, err = f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	pending, err := f.coord.Pending("G")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTrimmedPendingEntriesAreLost(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1", "e2", "e3")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 3, 0)
	require.NoError(t, err)

	_, err = f.log.Trim(1)
	require.NoError(t, err)

	n, err := f.coord.Ack("G", ids[0], ids[2])
	assert.Equal(t, 1, n, "the surviving entry is acknowledged")
	require.ErrorIs(t, err, types.ErrEntryLost)
	var lostErr *types.LostError
	require.True(t, errors.As(err, &lostErr))
	assert.Equal(t, []types.EntryID{ids[0]}, lostErr.IDs)

	f.clock.Advance(time.Minute)
	got, err := f.coord.Claim("G", "c2", time.Second, 10)
	assert.Empty(t, got)
	require.True(t, errors.As(err, &lostErr))
	assert.Equal(t, []types.EntryID{ids[1]}, lostErr.IDs)

	pending, err := f.coord.Pending("G")
	require.NoError(t, err)
	assert.Empty(t, pending, "lost entries leave the PEL")
}

func TestReadPendingReplaysOwnEntries(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	ids := f.append(t, "e1", "e2", "e3")
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 2, 0)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c2", 1, 0)
	require.NoError(t, err)

	got, err := f.coord.ReadPending(context.Background(), "G", "c1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[0], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)
	assert.Equal(t, 2, got[0].DeliveryCount)

	got, err = f.coord.ReadPending(context.Background(), "G", "c1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].DeliveryCount)

	got, err = f.coord.ReadPending(context.Background(), "G", "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadGroupBlocksUntilAppend(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	_, err := f.coord.CreateGroup("G", types.StartTail)
	require.NoError(t, err)

	done := make(chan []types.Delivery, 1)
	go func() {
		got, err := f.coord.ReadGroup(context.Background(), "G", "c1", 10, 5*time.Second)
		if err != nil {
			t.Errorf("ReadGroup: %v", err)
		}
		done <- got
	}()

	time.Sleep(50 * time.Millisecond)
	f.append(t, "late")

	select {
	case got := <-done:
		require.Len(t, got, 1)
		assert.Equal(t, "late", payload(got[0]))
	case <-time.After(2 * time.Second):
		t.Fatal("reader was not woken by append")
	}
}

func TestReadGroupTimeoutIsEmpty(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	_, err := f.coord.CreateGroup("G", types.StartTail)
	require.NoError(t, err)

	start := time.Now()
	got, err := f.coord.ReadGroup(context.Background(), "G", "c1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReadGroupHonoursCancellation(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	_, err := f.coord.CreateGroup("G", types.StartTail)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = f.coord.ReadGroup(ctx, "G", "c1", 10, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConcurrentConsumersNeverShareEntries(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)

	const total = 200
	for i := 0; i < total; i++ {
		f.append(t, fmt.Sprintf("e%d", i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[types.EntryID]string)
		wg   sync.WaitGroup
	)
	for c := 0; c < 4; c++ {
		consumer := fmt.Sprintf("c%d", c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last types.EntryID
			for {
				got, err := f.coord.ReadGroup(context.Background(), "G", consumer, 7, 0)
				if err != nil {
					t.Errorf("ReadGroup: %v", err)
					return
				}
				if len(got) == 0 {
					return
				}
				mu.Lock()
				for _, d := range got {
					if owner, dup := seen[d.ID]; dup {
						t.Errorf("%s delivered to both %s and %s", d.ID, owner, consumer)
					}
					seen[d.ID] = consumer
					if !last.Less(d.ID) {
						t.Errorf("%s: ids not increasing (%s after %s)", consumer, d.ID, last)
					}
					last = d.ID
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	groups := f.coord.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, f.log.LastID(), groups[0].Cursor)
	assert.Equal(t, total, groups[0].Pending)
	assert.NotZero(t, groups[0].Consumers)
}

func TestCursorNeverDecreases(t *testing.T) {
	f := newFixture(t, disk.NewMemoryHandler())
	_, err := f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)

	var prev types.EntryID
	for i := 0; i < 5; i++ {
		ids := f.append(t, "x")
		_, err := f.coord.ReadGroup(context.Background(), "G", "c1", 1, 0)
		require.NoError(t, err)
		_, err = f.coord.Ack("G", ids[0])
		require.NoError(t, err)

		cur := f.coord.Groups()[0].Cursor
		assert.False(t, cur.Less(prev))
		prev = cur
	}
}

func TestGroupStateSurvivesRestart(t *testing.T) {
	cfg := &config.Config{Storage: config.StoragePebble, LogDir: t.TempDir()}
	cfg.Normalize()

	dm := disk.NewDiskManager(cfg)
	h, err := dm.GetHandler("telemetry")
	require.NoError(t, err)
	f := newFixture(t, h)
	ids := f.append(t, "e1", "e2", "e3")
	_, err = f.coord.CreateGroup("G", types.StartBeginning)
	require.NoError(t, err)
	_, err = f.coord.ReadGroup(context.Background(), "G", "c1", 2, 0)
	require.NoError(t, err)
	_, err = f.coord.Ack("G", ids[0])
	require.NoError(t, err)
	require.NoError(t, dm.CloseAllHandlers())

	dm = disk.NewDiskManager(cfg)
	defer func() { _ = dm.CloseAllHandlers() }()
	h, err = dm.GetHandler("telemetry")
	require.NoError(t, err)
	f = newFixture(t, h)

	pending, err := f.coord.Pending("G")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].ID)
	assert.Equal(t, "c1", pending[0].Consumer)

	got, err := f.coord.ReadGroup(context.Background(), "G", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1, "cursor resumes after the last delivered entry")
	assert.Equal(t, ids[2], got[0].ID)

	replay, err := f.coord.ReadPending(context.Background(), "G", "c1", 10)
	require.NoError(t, err)
	require.Len(t, replay, 2)
	assert.Equal(t, ids[1], replay[0].ID)
	assert.Equal(t, 2, replay[0].DeliveryCount)
}
