package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-price-insight/config"
	"github.com/utrading/utrading-price-insight/internal/nats"
	"github.com/utrading/utrading-price-insight/internal/processor"
	"github.com/utrading/utrading-price-insight/internal/ws"
)

type fakeReplier struct {
	mu   sync.Mutex
	sent []any
	err  error
}

func (r *fakeReplier) Send(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, v)
	return r.err
}

func (r *fakeReplier) Prices() []ws.PriceReply {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ws.PriceReply
	for _, v := range r.sent {
		if p, ok := v.(ws.PriceReply); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *fakeReplier) Pushes() []ws.ResolvedPush {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ws.ResolvedPush
	for _, v := range r.sent {
		if p, ok := v.(ws.ResolvedPush); ok {
			out = append(out, p)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*nats.ResolvedEvent
}

func (p *fakePublisher) PublishResolved(ev *nats.ResolvedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Events() []*nats.ResolvedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*nats.ResolvedEvent(nil), p.events...)
}

func newHandlerEnv(t *testing.T, price int64) (*lookupEnv, *EventHandler, *fakeReplier, *fakePublisher) {
	t.Helper()
	env := newLookupEnv(t, time.Minute, newFakeFetcher(price))
	replier := &fakeReplier{}
	publisher := &fakePublisher{}
	h := NewEventHandler(env.lookup, env.player, replier, publisher)
	unsubscribe := env.lookup.OnResolved(h.PushResolved)
	t.Cleanup(unsubscribe)
	return env, h, replier, publisher
}

func lastPrice(t *testing.T, r *fakeReplier) ws.PriceReply {
	t.Helper()
	prices := r.Prices()
	require.NotEmpty(t, prices)
	return prices[len(prices)-1]
}

func TestEventHandler_HoverFlow(t *testing.T) {
	env, h, replier, publisher := newHandlerEnv(t, 1500)

	require.NoError(t, h.HandleMessage(processor.PlayerMessage{ContentID: 1, HomeWorld: 79, CurrentWorld: 79}))
	assert.True(t, env.player.LoggedIn())

	require.NoError(t, h.HandleMessage(processor.HoverMessage{RequestID: "a", ItemID: 1_005_057}))
	reply := lastPrice(t, replier)
	assert.Equal(t, ws.TypePrice, reply.Type)
	assert.Equal(t, "a", reply.RequestID)
	assert.Equal(t, uint32(5057), reply.ItemID)
	assert.True(t, reply.HQ)
	assert.Equal(t, "marketable", reply.State)
	assert.True(t, reply.Pending)
	assert.Nil(t, reply.Snapshot)

	require.Eventually(t, func() bool { return len(replier.Pushes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint32{5057}, replier.Pushes()[0].Ready)

	require.Eventually(t, func() bool { return len(publisher.Events()) == 1 }, time.Second, 5*time.Millisecond)
	ev := publisher.Events()[0]
	assert.Equal(t, []uint32{5057}, ev.Ready)
	assert.Equal(t, "Cactuar", ev.World)
	assert.Equal(t, "Aether", ev.Datacenter)

	require.NoError(t, h.HandleMessage(processor.HoverMessage{RequestID: "b", ItemID: 5057}))
	reply = lastPrice(t, replier)
	assert.False(t, reply.Pending)
	assert.False(t, reply.HQ)
	require.NotNil(t, reply.Snapshot)
	assert.Equal(t, int64(1500), reply.Snapshot.MinimumPrice.World.NQ.Price)
}

func TestEventHandler_NonMarketableHover(t *testing.T) {
	_, h, replier, _ := newHandlerEnv(t, 1)
	require.NoError(t, h.HandleMessage(processor.PlayerMessage{ContentID: 1, HomeWorld: 79, CurrentWorld: 79}))

	require.NoError(t, h.HandleMessage(processor.HoverMessage{ItemID: 2_000_010}))
	reply := lastPrice(t, replier)
	assert.Equal(t, "non_marketable", reply.State)
	assert.False(t, reply.Pending)
}

func TestEventHandler_RefreshWithAlt(t *testing.T) {
	env, h, replier, _ := newHandlerEnv(t, 100)
	require.NoError(t, h.HandleMessage(processor.PlayerMessage{ContentID: 1, HomeWorld: 79, CurrentWorld: 79}))

	h.HandleMessage(processor.HoverMessage{ItemID: 4850})
	env.waitReady(t, 4850)
	env.fetcher.price.Store(200)

	// 未开启 refresh_with_alt 时忽略刷新键
	require.NoError(t, h.HandleMessage(processor.HoverMessage{ItemID: 4850, Refresh: true}))
	reply := lastPrice(t, replier)
	require.NotNil(t, reply.Snapshot)
	assert.Equal(t, int64(100), reply.Snapshot.MinimumPrice.World.NQ.Price)

	env.settings.Set(config.Lookup{ShowDatacenter: true, RefreshWithAlt: true})
	require.NoError(t, h.HandleMessage(processor.HoverMessage{ItemID: 4850, Refresh: true}))
	reply = lastPrice(t, replier)
	assert.True(t, reply.Pending)

	snap := env.waitReady(t, 4850)
	assert.Equal(t, int64(200), snap.MinimumPrice.World.NQ.Price)
}

func TestEventHandler_InventoryPrefetch(t *testing.T) {
	env, h, _, _ := newHandlerEnv(t, 1)
	require.NoError(t, h.HandleMessage(processor.PlayerMessage{ContentID: 1, HomeWorld: 79, CurrentWorld: 79}))

	require.NoError(t, h.HandleMessage(processor.InventoryMessage{Container: 1, Items: []uint64{1, 2, 3}}))
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, env.fetcher.Calls())

	env.settings.Set(config.Lookup{ShowDatacenter: true, PrefetchInventory: true})
	require.NoError(t, h.HandleMessage(processor.InventoryMessage{Container: 1, Items: []uint64{1, 2, 3}}))
	for _, raw := range []uint64{1, 2, 3} {
		env.waitReady(t, raw)
	}
	require.Len(t, env.fetcher.Calls(), 1)
	assert.ElementsMatch(t, []uint32{1, 2, 3}, env.fetcher.Calls()[0].ids)
}

func TestEventHandler_Logout(t *testing.T) {
	env, h, _, _ := newHandlerEnv(t, 1)
	require.NoError(t, h.HandleMessage(processor.PlayerMessage{ContentID: 1, HomeWorld: 79, CurrentWorld: 79}))
	h.HandleMessage(processor.HoverMessage{ItemID: 5057})
	env.waitReady(t, 5057)

	require.NoError(t, h.HandleMessage(processor.LogoutMessage{}))
	assert.False(t, env.player.LoggedIn())
	assert.False(t, env.lookup.CheckReady())
	assert.Equal(t, 0, env.lookup.Stats()["item_count"])
}

func TestEventHandler_ReplierDisconnected(t *testing.T) {
	_, h, replier, _ := newHandlerEnv(t, 1)
	replier.err = ws.ErrNotConnected

	assert.NoError(t, h.HandleMessage(processor.HoverMessage{ItemID: 5057}))
}

type unknownMessage struct{}

func (unknownMessage) Type() string { return "unknown" }

func TestEventHandler_Unsupported(t *testing.T) {
	_, h, _, _ := newHandlerEnv(t, 1)
	assert.Error(t, h.HandleMessage(unknownMessage{}))
}
