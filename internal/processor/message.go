package processor

// 桥接消息类型
const (
	TypePlayer    = "player"
	TypeHover     = "hover"
	TypeInventory = "inventory"
	TypeLogout    = "logout"
)

// Message 消息接口
type Message interface {
	Type() string
}

// PlayerMessage 角色登录或换服
type PlayerMessage struct {
	ContentID    uint64
	HomeWorld    uint32
	CurrentWorld uint32
}

func (m PlayerMessage) Type() string { return TypePlayer }

// HoverMessage 鼠标悬停物品，Refresh 表示按住了刷新键
type HoverMessage struct {
	RequestID string
	ItemID    uint64
	Refresh   bool
}

func (m HoverMessage) Type() string { return TypeHover }

// InventoryMessage 背包 / 雇员 / 陆行鸟鞍囊等容器内容
type InventoryMessage struct {
	Container uint32
	Items     []uint64
}

func (m InventoryMessage) Type() string { return TypeInventory }

// LogoutMessage 角色登出
type LogoutMessage struct{}

func (m LogoutMessage) Type() string { return TypeLogout }
