package cache

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-price-insight/internal/market"
)

// DefaultTTL Ready / Failed 条目的保留时间
const DefaultTTL = 90 * time.Minute

// State 缓存条目状态
type State uint8

const (
	StatePending State = iota + 1
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry 缓存条目
// Pending 条目记录持有它的抓取令牌，只有同一令牌的结果才能落盘
type Entry struct {
	State    State
	Snapshot *market.Snapshot
	Err      error
	At       time.Time
	Token    uint64
}

// PriceCache 物品价格缓存，使用 go-cache 实现 TTL 自动过期
// Ready / Failed 条目在状态转换后 ttl 过期，Pending 条目不会自行过期
type PriceCache struct {
	cache *cache.Cache
	ttl   time.Duration
	// 串行化条件写入（检查后写）
	mu sync.Mutex
}

// NewPriceCache 创建价格缓存，清理间隔 = 2×TTL
func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PriceCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

func key(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Get 读取条目，已过期的条目视为不存在
func (c *PriceCache) Get(id uint32) (Entry, bool) {
	v, ok := c.cache.Get(key(id))
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// MarkPending 标记抓取中
// 已有 Ready / Pending 条目时返回 false，Failed 或不存在时写入 Pending
func (c *PriceCache) MarkPending(id uint32, token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.Get(id); ok && e.State != StateFailed {
		return false
	}
	c.cache.Set(key(id), Entry{State: StatePending, At: time.Now(), Token: token}, cache.NoExpiration)
	return true
}

// Resolve 仅当条目仍是 token 持有的 Pending 时写入 Ready
func (c *PriceCache) Resolve(id uint32, token uint64, snap *market.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownedLocked(id, token) {
		return false
	}
	c.cache.Set(key(id), Entry{State: StateReady, Snapshot: snap, At: time.Now()}, cache.DefaultExpiration)
	return true
}

// Reject 仅当条目仍是 token 持有的 Pending 时写入 Failed
func (c *PriceCache) Reject(id uint32, token uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownedLocked(id, token) {
		return false
	}
	c.cache.Set(key(id), Entry{State: StateFailed, Err: err, At: time.Now()}, cache.DefaultExpiration)
	return true
}

// Release 放弃 token 持有的 Pending 条目（例如任务被取消但未被替换）
func (c *PriceCache) Release(id uint32, token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownedLocked(id, token) {
		return false
	}
	c.cache.Delete(key(id))
	return true
}

func (c *PriceCache) ownedLocked(id uint32, token uint64) bool {
	e, ok := c.Get(id)
	return ok && e.State == StatePending && e.Token == token
}

// Remove 删除条目
func (c *PriceCache) Remove(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Delete(key(id))
}

// Clear 清空全部条目
// 必须与抓取任务的取消一起调用，避免残留指向已取消任务的 Pending
func (c *PriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Flush()
}

// Len 条目数量（可能包含尚未被清理的过期条目）
func (c *PriceCache) Len() int {
	return c.cache.ItemCount()
}

// Stats 获取统计信息
func (c *PriceCache) Stats() map[string]interface{} {
	counts := map[State]int{}
	for _, item := range c.cache.Items() {
		counts[item.Object.(Entry).State]++
	}
	return map[string]interface{}{
		"item_count":  c.cache.ItemCount(),
		"pending":     counts[StatePending],
		"ready":       counts[StateReady],
		"failed":      counts[StateFailed],
		"ttl_minutes": c.ttl.Minutes(),
	}
}
