package nats

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-price-insight/internal/monitor"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

const sinkNATS = "nats"

// Publisher NATS 发布器
type Publisher struct {
	*nats.Conn
	subject string
	mu      sync.RWMutex
	closed  bool
}

// NewPublisher 创建 NATS 发布器
func NewPublisher(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("price-insight"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.SetNATSConnected(false)
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			monitor.SetNATSConnected(true)
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	monitor.SetNATSConnected(true)
	return &Publisher{Conn: conn, subject: subject}, nil
}

// PublishResolved 发布抓取结束事件
func (p *Publisher) PublishResolved(ev *ResolvedEvent) error {
	data, err := ev.Marshal()
	if err != nil {
		logger.Error().Err(err).Msg("marshal resolved event failed")
		return err
	}

	if err = p.Publish(p.subject, data); err != nil {
		monitor.IncPublishErrors(sinkNATS)
		return err
	}
	monitor.IncResolvedPublished(sinkNATS)
	return nil
}

// Subject 发布主题
func (p *Publisher) Subject() string {
	return p.subject
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && p.Conn.IsConnected()
}

// Close 排空后关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		if err := p.Conn.Drain(); err != nil {
			p.Conn.Close()
		}
	}
	return nil
}
