package scope

import (
	"sync"

	"github.com/utrading/utrading-price-insight/internal/world"
)

// Kind 查询范围
type Kind uint8

const (
	KindWorld Kind = iota
	KindDatacenter
	KindRegion
)

func (k Kind) String() string {
	switch k {
	case KindDatacenter:
		return "datacenter"
	case KindRegion:
		return "region"
	default:
		return "world"
	}
}

// Settings 影响查询范围的开关
type Settings struct {
	ShowRegion                   bool
	ShowDatacenter               bool
	ShowWorld                    bool
	ShowMostRecentPurchase       bool
	ShowMostRecentPurchaseRegion bool
	UseCurrentWorld              bool
}

// KindFor 显示大区数据时查大区，显示数据中心数据时查数据中心，否则只查服务器
func KindFor(s Settings) Kind {
	switch {
	case s.ShowRegion || s.ShowMostRecentPurchaseRegion:
		return KindRegion
	case s.ShowDatacenter || s.ShowMostRecentPurchase:
		return KindDatacenter
	default:
		return KindWorld
	}
}

// HomeWorld 解析后的主服务器上下文
type HomeWorld struct {
	WorldID    uint32
	World      string
	Datacenter string
	Region     string
}

// Scope 返回指定范围的查询字符串
func (h HomeWorld) Scope(k Kind) string {
	switch k {
	case KindRegion:
		return h.Region
	case KindDatacenter:
		return h.Datacenter
	default:
		return h.World
	}
}

// PlayerState 角色所在服务器
type PlayerState interface {
	HomeWorld() (uint32, bool)
	CurrentWorld() (uint32, bool)
}

// WorldDirectory 服务器元数据
type WorldDirectory interface {
	Lookup(id uint32) (world.Info, bool)
}

// Resolver 解析并缓存主服务器
// 角色未上报或元数据未加载时返回未就绪，调用方稍后重试
type Resolver struct {
	player PlayerState
	worlds WorldDirectory

	mu         sync.RWMutex
	cached     *HomeWorld
	useCurrent bool
}

func NewResolver(player PlayerState, worlds WorldDirectory) *Resolver {
	return &Resolver{player: player, worlds: worlds}
}

// ResolveHomeWorld 返回有效的主服务器 ID
// UseCurrentWorld 开启时使用角色当前所在服务器
func (r *Resolver) ResolveHomeWorld(s Settings) (uint32, bool) {
	h, ok := r.resolve(s)
	return h.WorldID, ok
}

// HomeWorld 已缓存的主服务器上下文
func (r *Resolver) HomeWorld() (HomeWorld, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return HomeWorld{}, false
	}
	return *r.cached, true
}

// CurrentScope 当前配置下的查询范围字符串
func (r *Resolver) CurrentScope(s Settings) (string, bool) {
	h, ok := r.resolve(s)
	if !ok {
		return "", false
	}
	scope := h.Scope(KindFor(s))
	if scope == "" {
		return "", false
	}
	return scope, true
}

func (r *Resolver) resolve(s Settings) (HomeWorld, bool) {
	r.mu.RLock()
	if r.cached != nil {
		h := *r.cached
		r.mu.RUnlock()
		return h, true
	}
	r.mu.RUnlock()

	var (
		id uint32
		ok bool
	)
	if s.UseCurrentWorld {
		id, ok = r.player.CurrentWorld()
	} else {
		id, ok = r.player.HomeWorld()
	}
	if !ok {
		return HomeWorld{}, false
	}

	info, ok := r.worlds.Lookup(id)
	if !ok {
		return HomeWorld{}, false
	}

	h := HomeWorld{
		WorldID:    info.ID,
		World:      info.Name,
		Datacenter: info.Datacenter,
		Region:     info.Region,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return *r.cached, true
	}
	r.cached = &h
	r.useCurrent = s.UseCurrentWorld
	return h, true
}

// NeedsInvalidation 缓存的主服务器是否已失效：
// UseCurrentWorld 开关变化、开启时当前服务器变化、关闭时主服务器变化（换角色）
func (r *Resolver) NeedsInvalidation(s Settings) bool {
	r.mu.RLock()
	cached := r.cached
	useCurrent := r.useCurrent
	r.mu.RUnlock()

	if cached == nil {
		return false
	}
	if s.UseCurrentWorld != useCurrent {
		return true
	}

	var (
		id uint32
		ok bool
	)
	if s.UseCurrentWorld {
		id, ok = r.player.CurrentWorld()
	} else {
		id, ok = r.player.HomeWorld()
	}
	return ok && id != cached.WorldID
}

// Invalidate 丢弃缓存的主服务器
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}
