package ws

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utrading/utrading-price-insight/internal/monitor"
	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

const clientName = "price-insight"

// Bridge 与游戏内插件的 websocket 连接，断线后指数退避重连
type Bridge struct {
	url        string
	dispatcher *Dispatcher

	mu     sync.RWMutex
	client *Client

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	closed  atomic.Bool

	reconnecting     atomic.Bool
	reconnectMu      sync.Mutex    // 保证同一时间只有一个重连过程在跑
	reconnectBackoff time.Duration // 当前退避时间
	initialBackoff   time.Duration
	maxBackoff       time.Duration
}

// NewBridge 创建桥接连接，收到的消息经 Dispatcher 进入 sink
func NewBridge(url string, sink Sink) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		url:            url,
		dispatcher:     NewDispatcher(sink),
		ctx:            ctx,
		cancel:         cancel,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
	}
}

// Start 建立首次连接；游戏未启动时不报错，后台持续重连
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}

	if err := b.connect(); err != nil {
		logger.Warn().Err(err).Str("url", b.url).Msg("bridge not reachable, retrying in background")
		goplus.Go(b.handleDisconnect)
		return
	}
	logger.Info().Str("url", b.url).Msg("bridge connected")
}

func (b *Bridge) connect() error {
	client := NewClient(b.url)
	client.SetMessageHandler(b.dispatcher.Dispatch)
	client.SetDisconnectCallback(func() {
		b.mu.RLock()
		current := b.client == client
		b.mu.RUnlock()
		// 被替换掉的旧连接断开时不触发重连
		if !current || b.closed.Load() {
			return
		}
		monitor.SetBridgeConnected(false)
		logger.Warn().Msg("bridge disconnected, triggering reconnect")
		goplus.Go(b.handleDisconnect)
	})

	b.mu.Lock()
	old := b.client
	b.client = client
	b.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if err := client.Connect(b.ctx); err != nil {
		return err
	}

	monitor.SetBridgeConnected(true)

	// 让桥接端重放角色状态
	if err := client.Send(Hello{Type: TypeHello, Client: clientName}); err != nil {
		logger.Warn().Err(err).Msg("send hello failed")
	}
	return nil
}

func (b *Bridge) handleDisconnect() {
	// 使用 TryLock 防止并发重连
	if !b.reconnectMu.TryLock() {
		return
	}
	defer b.reconnectMu.Unlock()

	b.reconnecting.Store(true)
	defer b.reconnecting.Store(false)

	if b.reconnectBackoff == 0 {
		b.reconnectBackoff = b.initialBackoff
	}

	for {
		// 抖动范围 [0.5 * backoff, 1.5 * backoff]
		jitter := time.Duration(float64(b.reconnectBackoff) * (0.5 + rand.Float64()))
		logger.Debug().Dur("backoff", jitter).Msg("reconnecting bridge")

		select {
		case <-time.After(jitter):
		case <-b.ctx.Done():
			return
		}

		if err := b.connect(); err == nil {
			break
		}

		b.reconnectBackoff *= 2
		if b.reconnectBackoff > b.maxBackoff {
			b.reconnectBackoff = b.maxBackoff
		}
	}

	b.reconnectBackoff = b.initialBackoff
	logger.Info().Msg("bridge reconnected, backoff reset")
}

// Send 发送一条消息，未连接时返回 ErrNotConnected
func (b *Bridge) Send(v any) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()

	if client == nil {
		return ErrNotConnected
	}
	return client.Send(v)
}

// IsConnected 检查是否有活动连接
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client != nil && b.client.IsConnected()
}

// IsReconnecting 是否正在重连
func (b *Bridge) IsReconnecting() bool {
	return b.reconnecting.Load()
}

// Stats 获取统计信息
func (b *Bridge) Stats() map[string]any {
	stats := b.dispatcher.Stats()
	stats["connected"] = b.IsConnected()
	stats["reconnecting"] = b.IsReconnecting()
	return stats
}

// Close 关闭连接并停止重连
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()

	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client != nil {
		client.Close()
	}
	monitor.SetBridgeConnected(false)
	return nil
}
