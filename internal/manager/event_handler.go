package manager

import (
	"errors"
	"fmt"

	"github.com/utrading/utrading-price-insight/internal/game"
	"github.com/utrading/utrading-price-insight/internal/inventory"
	"github.com/utrading/utrading-price-insight/internal/item"
	"github.com/utrading/utrading-price-insight/internal/nats"
	"github.com/utrading/utrading-price-insight/internal/processor"
	"github.com/utrading/utrading-price-insight/internal/ws"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

var _ processor.MessageHandler = (*EventHandler)(nil)

// Replier 向桥接端发送消息
type Replier interface {
	Send(v any) error
}

// ResolvedPublisher 抓取结束事件的外部发布
type ResolvedPublisher interface {
	PublishResolved(ev *nats.ResolvedEvent) error
}

// EventHandler 处理桥接端消息：角色状态、悬停查询、背包预取、登出
type EventHandler struct {
	lookup    *PriceLookup
	player    *game.Player
	scanner   *inventory.Scanner
	replier   Replier
	publisher ResolvedPublisher
}

// NewEventHandler 创建事件处理器，publisher 可为 nil
func NewEventHandler(lookup *PriceLookup, player *game.Player, replier Replier, publisher ResolvedPublisher) *EventHandler {
	return &EventHandler{
		lookup:    lookup,
		player:    player,
		scanner:   inventory.NewScanner(lookup),
		replier:   replier,
		publisher: publisher,
	}
}

// HandleMessage 实现 processor.MessageHandler
func (h *EventHandler) HandleMessage(msg processor.Message) error {
	switch m := msg.(type) {
	case processor.PlayerMessage:
		h.handlePlayer(m)
	case processor.HoverMessage:
		return h.handleHover(m)
	case processor.InventoryMessage:
		h.handleInventory(m)
	case processor.LogoutMessage:
		h.handleLogout()
	default:
		return fmt.Errorf("unsupported message type %q", msg.Type())
	}
	return nil
}

func (h *EventHandler) handlePlayer(m processor.PlayerMessage) {
	prev := h.player.ContentID()
	h.player.Update(m.ContentID, m.HomeWorld, m.CurrentWorld)

	if prev != 0 && prev != m.ContentID {
		// 换角色：背包需要重新扫描，主服务器变化由下一次查询触发失效
		h.scanner.Reset()
	}

	logger.WithWorld(m.CurrentWorld).Debug().
		Uint32("home_world", m.HomeWorld).
		Bool("character_changed", prev != m.ContentID).
		Msg("player state updated")
}

func (h *EventHandler) handleHover(m processor.HoverMessage) error {
	refresh := m.Refresh && h.lookup.settings().RefreshWithAlt
	snap, state := h.lookup.Get(m.ItemID, refresh)

	id, _ := item.Normalize(m.ItemID)
	reply := ws.PriceReply{
		Type:      ws.TypePrice,
		RequestID: m.RequestID,
		ItemID:    id,
		HQ:        item.IsHQ(m.ItemID),
		State:     state.String(),
		Pending:   snap == nil && state == LookupMarketable,
		Snapshot:  snap,
	}
	return h.send(reply)
}

func (h *EventHandler) handleInventory(m processor.InventoryMessage) {
	if !h.lookup.settings().PrefetchInventory {
		return
	}
	h.scanner.Observe(m.Container, m.Items)
}

func (h *EventHandler) handleLogout() {
	h.player.Logout()
	h.scanner.Reset()
	h.lookup.Invalidate(ReasonLogout)
}

// PushResolved 抓取结束后通知桥接端和外部订阅者
func (h *EventHandler) PushResolved(res processor.Resolution) {
	if err := h.send(ws.ResolvedPush{Type: ws.TypeResolved, Ready: res.Ready, Failed: res.Failed}); err != nil {
		logger.Debug().Err(err).Msg("push resolved to bridge failed")
	}

	if h.publisher == nil {
		return
	}
	ev := nats.NewResolvedEvent(res.Ready, res.Failed)
	if home, ok := h.lookup.resolver.HomeWorld(); ok {
		ev.World, ev.Datacenter, ev.Region = home.World, home.Datacenter, home.Region
	}
	if err := h.publisher.PublishResolved(ev); err != nil {
		logger.Warn().Err(err).Int("ready", len(res.Ready)).Int("failed", len(res.Failed)).Msg("publish resolved event failed")
	}
}

func (h *EventHandler) send(v any) error {
	if h.replier == nil {
		return nil
	}
	err := h.replier.Send(v)
	if errors.Is(err, ws.ErrNotConnected) {
		// 桥接端断开时应答没有接收者
		return nil
	}
	return err
}
