package processor

import (
	"sync"

	"github.com/utrading/utrading-price-insight/internal/monitor"
	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

// MessageHandler 消息处理器接口
type MessageHandler interface {
	HandleMessage(msg Message) error
}

// MessageHandlerFunc 函数形式的消息处理器
type MessageHandlerFunc func(msg Message) error

func (f MessageHandlerFunc) HandleMessage(msg Message) error { return f(msg) }

// MessageQueue 异步消息队列
// 单个工作协程按到达顺序处理，保证 player 消息先于其后的 hover 生效
type MessageQueue struct {
	queue    chan Message
	wg       sync.WaitGroup
	handler  MessageHandler
	done     chan struct{}
	stopOnce sync.Once
}

// NewMessageQueue 创建消息队列
func NewMessageQueue(size int, handler MessageHandler) *MessageQueue {
	if size <= 0 {
		size = 1024
	}
	return &MessageQueue{
		queue:   make(chan Message, size),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start 启动工作协程
func (q *MessageQueue) Start() {
	q.wg.Add(1)
	goplus.Go(q.worker)
}

func (q *MessageQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.queue:
			monitor.SetMessageQueueSize(len(q.queue))
			q.handle(msg)
		case <-q.done:
			return
		}
	}
}

func (q *MessageQueue) handle(msg Message) {
	var err error
	if !goplus.SafeCall(func() { err = q.handler.HandleMessage(msg) }) {
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("type", msg.Type()).Msg("handle message failed")
	}
}

// Enqueue 发送消息（带背压策略）
func (q *MessageQueue) Enqueue(msg Message) error {
	select {
	case q.queue <- msg:
		monitor.SetMessageQueueSize(len(q.queue))
		return nil
	default:
		// 队列满，同步处理
		monitor.IncMessageQueueFull()
		logger.Warn().
			Str("type", msg.Type()).
			Int("queue_size", len(q.queue)).
			Msg("message queue full, falling back to sync processing")

		return q.handler.HandleMessage(msg)
	}
}

// Stop 停止队列，未处理的消息丢弃
func (q *MessageQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
		q.wg.Wait()
	})
}

// SetHandler 设置消息处理器，需在 Start 之前调用
func (q *MessageQueue) SetHandler(handler MessageHandler) {
	q.handler = handler
}

// Size 返回当前队列大小
func (q *MessageQueue) Size() int {
	return len(q.queue)
}
