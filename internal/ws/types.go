// internal/ws/types.go
package ws

import "github.com/utrading/utrading-price-insight/internal/market"

// 发往桥接端的消息类型
const (
	TypeHello    = "hello"
	TypePrice    = "price"
	TypeResolved = "resolved"
)

// Hello 连接建立后发送，桥接端收到后重放当前角色状态
type Hello struct {
	Type    string `json:"type"`
	Client  string `json:"client"`
	Version string `json:"version,omitempty"`
}

// PriceReply hover 的应答
type PriceReply struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	ItemID    uint32           `json:"item_id"`
	HQ        bool             `json:"hq"`
	State     string           `json:"state"`
	Pending   bool             `json:"pending"`
	Snapshot  *market.Snapshot `json:"snapshot,omitempty"`
}

// ResolvedPush 物品抓取结束，桥接端据此刷新正在显示的提示框
type ResolvedPush struct {
	Type   string   `json:"type"`
	Ready  []uint32 `json:"ready,omitempty"`
	Failed []uint32 `json:"failed,omitempty"`
}
