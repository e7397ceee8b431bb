package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-price-insight/internal/cache"
	"github.com/utrading/utrading-price-insight/internal/market"
	"github.com/utrading/utrading-price-insight/internal/scope"
)

type fetchCall struct {
	ctx context.Context
	ids []uint32
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	fn    func(ctx context.Context, ids []uint32) (map[uint32]*market.Snapshot, error)
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, _ string, _ uint32, ids []uint32) (map[uint32]*market.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{ctx: ctx, ids: append([]uint32(nil), ids...)})
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, ids)
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func priced(price int64) func(context.Context, []uint32) (map[uint32]*market.Snapshot, error) {
	return func(_ context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		return snapshots(ids, price), nil
	}
}

func snapshots(ids []uint32, price int64) map[uint32]*market.Snapshot {
	out := make(map[uint32]*market.Snapshot, len(ids))
	for _, id := range ids {
		s := market.Empty(id, time.Now())
		s.MinimumPrice.World.NQ = &market.Listing{Price: price, World: "Cactuar"}
		out[id] = s
	}
	return out
}

var testTarget = FetchTarget{
	Scope: "Aether",
	Home:  scope.HomeWorld{WorldID: 79, World: "Cactuar", Datacenter: "Aether", Region: "North-America"},
}

func readyTarget() (FetchTarget, bool) { return testTarget, true }

func newTestCoalescer(t *testing.T, f *fakeFetcher, target TargetFunc, resolve ResolveFunc) (*FetchCoalescer, *cache.PriceCache) {
	t.Helper()
	pc := cache.NewPriceCache(time.Minute)
	c, err := NewFetchCoalescer(&CoalescerConfig{
		Window:               20 * time.Millisecond,
		MaxBatchSize:         50,
		MaxConcurrentBatches: 4,
		ImmediateMaxActive:   1,
	}, pc, f, target, resolve)
	require.NoError(t, err)
	c.Start()
	t.Cleanup(c.Stop)
	return c, pc
}

func waitState(t *testing.T, pc *cache.PriceCache, id uint32, state cache.State) cache.Entry {
	t.Helper()
	var e cache.Entry
	require.Eventually(t, func() bool {
		var ok bool
		e, ok = pc.Get(id)
		return ok && e.State == state
	}, 2*time.Second, 5*time.Millisecond, "item %d never reached %s", id, state)
	return e
}

func TestFetchCoalescer_RequestDedup(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{fn: func(_ context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		<-release
		return snapshots(ids, 100), nil
	}}
	c, pc := newTestCoalescer(t, f, readyTarget, nil)

	assert.True(t, c.Request(5057))
	assert.False(t, c.Request(5057))
	assert.False(t, c.Request(5057))

	e, ok := pc.Get(5057)
	require.True(t, ok)
	assert.Equal(t, cache.StatePending, e.State)

	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	close(release)

	e = waitState(t, pc, 5057, cache.StateReady)
	assert.Equal(t, int64(100), e.Snapshot.MinimumPrice.World.NQ.Price)
	assert.Len(t, f.Calls(), 1)

	// Ready 后再次请求不触发上游
	assert.False(t, c.Request(5057))
}

func TestFetchCoalescer_PrefetchBatches(t *testing.T) {
	var running, maxRunning atomic.Int32
	f := &fakeFetcher{fn: func(_ context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return snapshots(ids, 10), nil
	}}
	c, pc := newTestCoalescer(t, f, readyTarget, nil)

	ids := make([]uint32, 120)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	assert.Equal(t, 120, c.Enqueue(ids...))
	assert.Equal(t, 0, c.Enqueue(ids...))

	for _, id := range ids {
		waitState(t, pc, id, cache.StateReady)
	}

	calls := f.Calls()
	assert.GreaterOrEqual(t, len(calls), 3)

	seen := make(map[uint32]int)
	for _, call := range calls {
		assert.LessOrEqual(t, len(call.ids), 50)
		for _, id := range call.ids {
			seen[id]++
		}
	}
	assert.Len(t, seen, 120)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %d fetched more than once", id)
	}
	assert.LessOrEqual(t, maxRunning.Load(), int32(4))
}

func TestFetchCoalescer_OmittedIDsBecomeEmpty(t *testing.T) {
	f := &fakeFetcher{fn: func(_ context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		return snapshots(ids[:1], 42), nil
	}}
	c, pc := newTestCoalescer(t, f, readyTarget, nil)

	c.Enqueue(1, 2)

	e1 := waitState(t, pc, 1, cache.StateReady)
	assert.True(t, e1.Snapshot.HasData())

	e2 := waitState(t, pc, 2, cache.StateReady)
	assert.False(t, e2.Snapshot.HasData())
	assert.Equal(t, "Cactuar", e2.Snapshot.HomeWorld)
	assert.Equal(t, "North-America", e2.Snapshot.Region)
}

func TestFetchCoalescer_FailureIsolation(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := &fakeFetcher{fn: func(_ context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		if fail.Load() {
			return nil, errors.New("upstream 502")
		}
		return snapshots(ids, 7), nil
	}}

	var mu sync.Mutex
	var failed []uint32
	c, pc := newTestCoalescer(t, f, readyTarget, func(r Resolution) {
		mu.Lock()
		failed = append(failed, r.Failed...)
		mu.Unlock()
	})

	c.Enqueue(1, 2, 3)
	for _, id := range []uint32{1, 2, 3} {
		e := waitState(t, pc, id, cache.StateFailed)
		assert.Error(t, e.Err)
	}
	mu.Lock()
	assert.ElementsMatch(t, []uint32{1, 2, 3}, failed)
	mu.Unlock()

	fail.Store(false)
	c.ForceRefresh(2)

	waitState(t, pc, 2, cache.StateReady)
	for _, id := range []uint32{1, 3} {
		e, ok := pc.Get(id)
		require.True(t, ok)
		assert.Equal(t, cache.StateFailed, e.State)
	}
	last := f.Calls()[len(f.Calls())-1]
	assert.Equal(t, []uint32{2}, last.ids)
}

func TestFetchCoalescer_ForceRefreshCancelsSoleItem(t *testing.T) {
	var n atomic.Int32
	f := &fakeFetcher{fn: func(ctx context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		if n.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return snapshots(ids, 200), nil
	}}
	c, pc := newTestCoalescer(t, f, readyTarget, nil)

	c.Request(9)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	c.ForceRefresh(9)

	e := waitState(t, pc, 9, cache.StateReady)
	assert.Equal(t, int64(200), e.Snapshot.MinimumPrice.World.NQ.Price)
	assert.ErrorIs(t, f.Calls()[0].ctx.Err(), context.Canceled)
}

func TestFetchCoalescer_ForceRefreshKeepsBatchMates(t *testing.T) {
	release := make(chan struct{})
	var n atomic.Int32
	f := &fakeFetcher{fn: func(_ context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		if n.Add(1) == 1 {
			<-release
			return snapshots(ids, 100), nil
		}
		return snapshots(ids, 200), nil
	}}
	c, pc := newTestCoalescer(t, f, readyTarget, nil)

	c.Enqueue(1, 2)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	c.ForceRefresh(1)
	e1 := waitState(t, pc, 1, cache.StateReady)
	assert.Equal(t, int64(200), e1.Snapshot.MinimumPrice.World.NQ.Price)

	// 旧批次未被取消，但它对 1 的结果必须被丢弃
	assert.NoError(t, f.Calls()[0].ctx.Err())
	close(release)

	e2 := waitState(t, pc, 2, cache.StateReady)
	assert.Equal(t, int64(100), e2.Snapshot.MinimumPrice.World.NQ.Price)

	e1, _ = pc.Get(1)
	assert.Equal(t, int64(200), e1.Snapshot.MinimumPrice.World.NQ.Price)
}

func TestFetchCoalescer_Reset(t *testing.T) {
	var n atomic.Int32
	f := &fakeFetcher{fn: func(ctx context.Context, ids []uint32) (map[uint32]*market.Snapshot, error) {
		if n.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return snapshots(ids, 5), nil
	}}
	c, pc := newTestCoalescer(t, f, readyTarget, nil)

	c.Request(1)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	c.Enqueue(2, 3)

	c.Reset()
	assert.Equal(t, 0, pc.Len())
	assert.Equal(t, 0, c.Stats()["queue_size"])
	assert.Equal(t, 0, c.Stats()["inflight_items"])
	require.Eventually(t, func() bool { return f.Calls()[0].ctx.Err() != nil }, time.Second, 5*time.Millisecond)

	// 被取消的结果不会写成 Failed
	time.Sleep(50 * time.Millisecond)
	_, ok := pc.Get(1)
	assert.False(t, ok)

	assert.True(t, c.Request(1))
	waitState(t, pc, 1, cache.StateReady)
}

func TestFetchCoalescer_WaitsForTarget(t *testing.T) {
	var ready atomic.Bool
	target := func() (FetchTarget, bool) { return testTarget, ready.Load() }
	f := &fakeFetcher{fn: priced(1)}
	c, pc := newTestCoalescer(t, f, target, nil)

	c.Request(11)
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, f.Calls())
	assert.Equal(t, 1, c.Stats()["queue_size"])

	ready.Store(true)
	waitState(t, pc, 11, cache.StateReady)
}

func TestFetchCoalescer_StopCancelsInflight(t *testing.T) {
	f := &fakeFetcher{fn: func(ctx context.Context, _ []uint32) (map[uint32]*market.Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	pc := cache.NewPriceCache(time.Minute)
	c, err := NewFetchCoalescer(&CoalescerConfig{Window: 20 * time.Millisecond}, pc, f, readyTarget, nil)
	require.NoError(t, err)
	c.Start()

	c.Request(1)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
	assert.ErrorIs(t, f.Calls()[0].ctx.Err(), context.Canceled)
}

// newIdleCoalescer 不启动周期协程，由测试手动驱动
func newIdleCoalescer(t *testing.T, f *fakeFetcher, immediateMaxActive int) (*FetchCoalescer, *cache.PriceCache) {
	t.Helper()
	pc := cache.NewPriceCache(time.Minute)
	c, err := NewFetchCoalescer(&CoalescerConfig{
		Window:               time.Hour,
		MaxBatchSize:         50,
		MaxConcurrentBatches: 4,
		ImmediateMaxActive:   immediateMaxActive,
	}, pc, f, readyTarget, nil)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c, pc
}

func TestFetchCoalescer_RequestSkipsPrefetchBacklog(t *testing.T) {
	f := &fakeFetcher{fn: priced(1)}
	c, pc := newIdleCoalescer(t, f, 1)

	backlog := make([]uint32, 0, 150)
	for id := uint32(1); id <= 150; id++ {
		backlog = append(backlog, id)
	}
	require.Equal(t, 150, c.Enqueue(backlog...))

	assert.True(t, c.Request(5057))
	waitState(t, pc, 5057, cache.StateReady)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []uint32{5057}, calls[0].ids)
	assert.Equal(t, 150, c.Stats()["queue_size"])
}

func TestFetchCoalescer_RequestPromotesQueuedID(t *testing.T) {
	f := &fakeFetcher{fn: priced(1)}
	c, pc := newIdleCoalescer(t, f, 1)

	ids := make([]uint32, 0, 120)
	for id := uint32(1); id <= 120; id++ {
		ids = append(ids, id)
	}
	c.Enqueue(ids...)

	// 已在预取队列中，不重复入队，但提前发出
	assert.False(t, c.Request(99))
	waitState(t, pc, 99, cache.StateReady)

	calls := f.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []uint32{99}, calls[0].ids)
	assert.Equal(t, 119, c.Stats()["queue_size"])
}

func TestFetchCoalescer_TickDrainsInteractiveFirst(t *testing.T) {
	f := &fakeFetcher{fn: priced(1)}
	c, pc := newIdleCoalescer(t, f, 0)

	ids := make([]uint32, 0, 80)
	for id := uint32(1); id <= 80; id++ {
		ids = append(ids, id)
	}
	c.Enqueue(ids...)
	assert.True(t, c.Request(5057))
	assert.Equal(t, 1, c.Stats()["urgent_size"])
	assert.Empty(t, f.Calls())

	c.dispatch(false)
	waitState(t, pc, 5057, cache.StateReady)

	calls := f.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].ids, 50)
	assert.Equal(t, uint32(5057), calls[0].ids[0])
	assert.Equal(t, uint32(1), calls[0].ids[1])
	assert.Equal(t, 31, c.Stats()["queue_size"])
}
