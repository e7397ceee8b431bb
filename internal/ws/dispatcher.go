package ws

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-price-insight/internal/processor"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

var (
	ErrMalformed   = errors.New("malformed bridge message")
	ErrUnknownType = errors.New("unknown bridge message type")
)

// Sink 解析后的消息去向
type Sink interface {
	Enqueue(msg processor.Message) error
}

// Dispatcher 解析桥接端消息并转交给消息队列
type Dispatcher struct {
	sink     Sink
	received atomic.Int64
	dropped  atomic.Int64
}

// NewDispatcher 创建分发器
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Dispatch 处理收到的原始消息
func (d *Dispatcher) Dispatch(data []byte) {
	d.received.Add(1)

	msg, err := Decode(data)
	if err != nil {
		d.dropped.Add(1)
		logger.Warn().Err(err).Int("size", len(data)).Msg("drop bridge message")
		return
	}

	if err = d.sink.Enqueue(msg); err != nil {
		logger.Error().Err(err).Str("type", msg.Type()).Msg("enqueue bridge message failed")
	}
}

// Stats 获取统计信息
func (d *Dispatcher) Stats() map[string]any {
	return map[string]any{
		"received": d.received.Load(),
		"dropped":  d.dropped.Load(),
	}
}

// Decode 按 type 字段解析桥接端消息
func Decode(data []byte) (processor.Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformed
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrMalformed
	}

	typ := root.Get("type").String()
	switch typ {
	case processor.TypePlayer:
		home := root.Get("home_world")
		if !home.Exists() {
			return nil, fmt.Errorf("%w: player without home_world", ErrMalformed)
		}
		current := root.Get("current_world")
		if !current.Exists() {
			current = home
		}
		homeID, ok := uint32Field(home)
		if !ok {
			return nil, fmt.Errorf("%w: home_world out of range", ErrMalformed)
		}
		currentID, ok := uint32Field(current)
		if !ok {
			return nil, fmt.Errorf("%w: current_world out of range", ErrMalformed)
		}
		return processor.PlayerMessage{
			ContentID:    root.Get("content_id").Uint(),
			HomeWorld:    homeID,
			CurrentWorld: currentID,
		}, nil

	case processor.TypeHover:
		id := root.Get("item_id")
		if !id.Exists() {
			return nil, fmt.Errorf("%w: hover without item_id", ErrMalformed)
		}
		return processor.HoverMessage{
			RequestID: root.Get("request_id").String(),
			ItemID:    id.Uint(),
			Refresh:   root.Get("refresh").Bool(),
		}, nil

	case processor.TypeInventory:
		items := root.Get("items").Array()
		ids := make([]uint64, 0, len(items))
		for _, it := range items {
			if v := it.Uint(); v > 0 {
				ids = append(ids, v)
			}
		}
		container, ok := uint32Field(root.Get("container"))
		if !ok {
			return nil, fmt.Errorf("%w: container out of range", ErrMalformed)
		}
		return processor.InventoryMessage{
			Container: container,
			Items:     ids,
		}, nil

	case processor.TypeLogout:
		return processor.LogoutMessage{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
}

// uint32Field 超出 uint32 范围时 ok=false，缺省字段按 0 处理
func uint32Field(r gjson.Result) (uint32, bool) {
	v := r.Uint()
	if v > math.MaxUint32 || (r.Type == gjson.Number && r.Num < 0) {
		return 0, false
	}
	return uint32(v), true
}
