package manager

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-price-insight/config"
	"github.com/utrading/utrading-price-insight/internal/cache"
	"github.com/utrading/utrading-price-insight/internal/item"
	"github.com/utrading/utrading-price-insight/internal/market"
	"github.com/utrading/utrading-price-insight/internal/monitor"
	"github.com/utrading/utrading-price-insight/internal/processor"
	"github.com/utrading/utrading-price-insight/internal/scope"
	"github.com/utrading/utrading-price-insight/internal/universalis"
	"github.com/utrading/utrading-price-insight/pkg/concurrent"
	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

// LookupState 查询结果状态
type LookupState uint8

const (
	LookupNonMarketable LookupState = iota
	LookupMarketable
	LookupFaulted
)

func (s LookupState) String() string {
	switch s {
	case LookupNonMarketable:
		return "non_marketable"
	case LookupFaulted:
		return "faulted"
	default:
		return "marketable"
	}
}

// 缓存失效原因
const (
	ReasonWorldChanged    = "world_changed"
	ReasonUseCurrentWorld = "use_current_world"
	ReasonScopeChanged    = "scope_changed"
	ReasonLogout          = "logout"
)

// MarketCatalog 可交易物品目录
type MarketCatalog interface {
	IsMarketable(id uint32) bool
	Loaded() bool
}

// ResolvedFunc 物品抓取结束回调
type ResolvedFunc func(processor.Resolution)

// LookupOption PriceLookup 可选项
type LookupOption func(*PriceLookup)

// WithSettings 替换查询开关来源，默认读取全局配置
func WithSettings(fn func() config.Lookup) LookupOption {
	return func(p *PriceLookup) { p.settings = fn }
}

// PriceLookup 价格查询服务
// UI 每帧轮询 Get，读路径只访问内存，未命中时交给抓取合并器
type PriceLookup struct {
	catalog   MarketCatalog
	resolver  *scope.Resolver
	cache     *cache.PriceCache
	coalescer *processor.FetchCoalescer
	settings  func() config.Lookup

	// 读路径持读锁，缓存失效持写锁
	mu sync.RWMutex

	observers   concurrent.Map[uint64, ResolvedFunc]
	observerSeq atomic.Uint64
	notifyPool  *ants.Pool

	invalidations atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPriceLookup 创建价格查询服务并启动抓取合并器
func NewPriceLookup(cfg config.Coalescer, catalog MarketCatalog, resolver *scope.Resolver, fetcher universalis.Fetcher, opts ...LookupOption) (*PriceLookup, error) {
	p := &PriceLookup{
		catalog:  catalog,
		resolver: resolver,
		cache:    cache.NewPriceCache(cfg.PriceTTL),
		settings: func() config.Lookup { return config.Get().Lookup },
	}
	for _, opt := range opts {
		opt(p)
	}

	// 非阻塞，观察者慢时不占用抓取协程
	pool, err := ants.NewPool(max(cfg.MaxConcurrentBatches, 4),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r any) {
			logger.Error().Interface("panic", r).Msg("resolved observer panic")
		}),
	)
	if err != nil {
		return nil, err
	}
	p.notifyPool = pool

	p.coalescer, err = processor.NewFetchCoalescer(&processor.CoalescerConfig{
		Window:               cfg.Window,
		MaxBatchSize:         cfg.MaxBatchSize,
		MaxConcurrentBatches: cfg.MaxConcurrentBatches,
		ImmediateMaxActive:   cfg.ImmediateMaxActive,
	}, p.cache, fetcher, p.target, p.notify)
	if err != nil {
		pool.Release()
		return nil, err
	}
	p.coalescer.Start()

	config.OnChange(p.onConfigChange)
	return p, nil
}

func scopeSettings(l config.Lookup) scope.Settings {
	return scope.Settings{
		ShowRegion:                   l.ShowRegion,
		ShowDatacenter:               l.ShowDatacenter,
		ShowWorld:                    l.ShowWorld,
		ShowMostRecentPurchase:       l.ShowMostRecentPurchase,
		ShowMostRecentPurchaseRegion: l.ShowMostRecentPurchaseRegion,
		UseCurrentWorld:              l.UseCurrentWorld,
	}
}

func (p *PriceLookup) currentSettings() scope.Settings {
	return scopeSettings(p.settings())
}

// target 批次发出时的查询范围，主服务器已失效时不发出
func (p *PriceLookup) target() (processor.FetchTarget, bool) {
	s := p.currentSettings()
	if p.resolver.NeedsInvalidation(s) {
		return processor.FetchTarget{}, false
	}
	sc, ok := p.resolver.CurrentScope(s)
	if !ok {
		return processor.FetchTarget{}, false
	}
	home, ok := p.resolver.HomeWorld()
	if !ok {
		return processor.FetchTarget{}, false
	}
	return processor.FetchTarget{Scope: sc, Home: home}, true
}

// CheckReady 元数据已加载且能解析出查询范围
// 角色换服或换角色后先丢弃旧范围的价格
func (p *PriceLookup) CheckReady() bool {
	if p.closed.Load() || !p.catalog.Loaded() {
		return false
	}
	s := p.currentSettings()
	p.invalidateIfStale(s)
	_, ok := p.resolver.CurrentScope(s)
	return ok
}

// invalidateIfStale 写锁内再次确认，并发调用只失效一次
func (p *PriceLookup) invalidateIfStale(s scope.Settings) {
	if !p.resolver.NeedsInvalidation(s) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolver.NeedsInvalidation(s) {
		p.invalidateLocked(ReasonWorldChanged)
	}
}

// Get 查询物品价格，不会阻塞在网络请求上
// 未就绪时返回 (nil, LookupMarketable) 且没有任何副作用
func (p *PriceLookup) Get(raw uint64, forceRefresh bool) (*market.Snapshot, LookupState) {
	id, ok := item.Normalize(raw)
	if !ok {
		monitor.IncLookup("non_marketable")
		return nil, LookupNonMarketable
	}
	if p.catalog.Loaded() && !p.catalog.IsMarketable(id) {
		monitor.IncLookup("non_marketable")
		return nil, LookupNonMarketable
	}

	if !p.CheckReady() {
		monitor.IncLookup("not_ready")
		return nil, LookupMarketable
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if forceRefresh {
		monitor.IncLookup("refresh")
		p.coalescer.ForceRefresh(id)
		return nil, LookupMarketable
	}

	e, ok := p.cache.Get(id)
	if !ok {
		monitor.IncLookup("miss")
		monitor.IncCacheMiss("price")
		p.coalescer.Request(id)
		return nil, LookupMarketable
	}

	monitor.IncCacheHit(e.State.String())
	switch e.State {
	case cache.StateReady:
		monitor.IncLookup("ready")
		return e.Snapshot, LookupMarketable
	case cache.StateFailed:
		monitor.IncLookup("faulted")
		return nil, LookupFaulted
	default:
		monitor.IncLookup("pending")
		return nil, LookupMarketable
	}
}

// Prefetch 批量预取，跳过不可交易及已 Ready / Pending 的物品
// 返回实际入队数量
func (p *PriceLookup) Prefetch(raws []uint64) int {
	if !p.CheckReady() {
		return 0
	}

	ids := make([]uint32, 0, len(raws))
	seen := make(map[uint32]struct{}, len(raws))
	for _, raw := range raws {
		id, ok := item.Normalize(raw)
		if !ok || !p.catalog.IsMarketable(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	n := p.coalescer.Enqueue(ids...)
	if n > 0 {
		logger.Debug().Int("requested", len(ids)).Int("enqueued", n).Msg("prefetch enqueued")
	}
	return n
}

// OnResolved 注册抓取结束回调，返回取消函数
func (p *PriceLookup) OnResolved(fn ResolvedFunc) (unsubscribe func()) {
	id := p.observerSeq.Add(1)
	p.observers.Store(id, fn)
	return func() { p.observers.Delete(id) }
}

func (p *PriceLookup) notify(res processor.Resolution) {
	if p.closed.Load() {
		return
	}
	// 旧范围的结果会在下次 CheckReady 时被丢弃，不再推送
	if p.resolver.NeedsInvalidation(p.currentSettings()) {
		return
	}
	p.observers.Range(func(_ uint64, fn ResolvedFunc) bool {
		err := p.notifyPool.Submit(func() { fn(res) })
		if err != nil && !errors.Is(err, ants.ErrPoolClosed) {
			// 池满时另起协程
			goplus.Go(func() { fn(res) })
		}
		return true
	})
}

// Invalidate 丢弃主服务器和全部价格，取消进行中的请求
func (p *PriceLookup) Invalidate(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidateLocked(reason)
}

func (p *PriceLookup) invalidateLocked(reason string) {
	p.invalidations.Add(1)
	p.resolver.Invalidate()
	p.coalescer.Reset()

	monitor.IncCacheInvalidation(reason)
	logger.Info().Str("reason", reason).Msg("price cache invalidated")
}

func (p *PriceLookup) onConfigChange(old, cur *config.Config) {
	if p.closed.Load() || old == nil || cur == nil {
		return
	}
	switch {
	case old.Lookup.UseCurrentWorld != cur.Lookup.UseCurrentWorld:
		p.Invalidate(ReasonUseCurrentWorld)
	case scope.KindFor(scopeSettings(old.Lookup)) != scope.KindFor(scopeSettings(cur.Lookup)):
		p.Invalidate(ReasonScopeChanged)
	}
}

// Stats 获取统计信息
func (p *PriceLookup) Stats() map[string]any {
	stats := p.cache.Stats()
	for k, v := range p.coalescer.Stats() {
		stats[k] = v
	}
	stats["observers"] = p.observers.Len()
	stats["invalidations"] = p.invalidations.Load()
	if h, ok := p.resolver.HomeWorld(); ok {
		stats["home_world"] = h.World
		stats["datacenter"] = h.Datacenter
		stats["region"] = h.Region
	}
	return stats
}

// Close 停止抓取合并器并清空缓存
func (p *PriceLookup) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.coalescer.Stop()

		p.mu.Lock()
		p.cache.Clear()
		p.mu.Unlock()

		p.notifyPool.Release()
		logger.Info().Msg("price lookup closed")
	})
}
