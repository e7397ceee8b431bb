package nats

import (
	"encoding/json"
	"time"
)

const DefaultSubject = "price_insight.resolved"

// ResolvedEvent 一批物品抓取结束
type ResolvedEvent struct {
	Ready      []uint32 `json:"ready,omitempty"`  // 已有价格（含上游无数据）
	Failed     []uint32 `json:"failed,omitempty"` // 抓取失败
	World      string   `json:"world,omitempty"`
	Datacenter string   `json:"datacenter,omitempty"`
	Region     string   `json:"region,omitempty"`
	Timestamp  int64    `json:"timestamp"` // 毫秒
}

// NewResolvedEvent 以当前时间创建事件
func NewResolvedEvent(ready, failed []uint32) *ResolvedEvent {
	return &ResolvedEvent{
		Ready:     ready,
		Failed:    failed,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Marshal 序列化事件
func (e *ResolvedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
