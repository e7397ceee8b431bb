package item

import (
	"sync/atomic"

	"github.com/utrading/utrading-price-insight/pkg/concurrent"
)

const (
	hqOffset          = 1_000_000
	collectableOffset = 500_000
	eventItemStart    = 2_000_000
)

// Normalize 去掉 HQ 偏移得到基础物品 ID
// 收藏品区间 [500000, 1000000) 和事件物品 [2000000, ∞) 直接判定不可交易
func Normalize(raw uint64) (uint32, bool) {
	if raw >= eventItemStart || (raw >= collectableOffset && raw < hqOffset) {
		return 0, false
	}
	return uint32(raw % collectableOffset), true
}

// IsHQ 原始 ID 是否带 HQ 偏移
func IsHQ(raw uint64) bool {
	return raw >= hqOffset && raw < eventItemStart
}

// Catalog 可交易物品集合
type Catalog struct {
	ids    concurrent.Map[uint32, struct{}]
	loaded atomic.Bool
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Replace 整表替换
func (c *Catalog) Replace(ids []uint32) {
	src := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		src[id] = struct{}{}
	}
	c.ids.Sync(src)
	c.loaded.Store(true)
}

// Loaded 是否已完成首次加载
func (c *Catalog) Loaded() bool {
	return c.loaded.Load()
}

func (c *Catalog) Len() int64 {
	return c.ids.Len()
}

// IsMarketable 判断基础 ID 是否可以上架交易
func (c *Catalog) IsMarketable(id uint32) bool {
	return c.ids.Has(id)
}

// Resolve 原始 ID -> 可交易的基础 ID
func (c *Catalog) Resolve(raw uint64) (uint32, bool) {
	id, ok := Normalize(raw)
	if !ok || !c.IsMarketable(id) {
		return 0, false
	}
	return id, true
}
