package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/utrading/utrading-price-insight/internal/cache"
	"github.com/utrading/utrading-price-insight/internal/market"
	"github.com/utrading/utrading-price-insight/internal/monitor"
	"github.com/utrading/utrading-price-insight/internal/scope"
	"github.com/utrading/utrading-price-insight/internal/universalis"
	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

// CoalescerConfig 抓取合并配置
type CoalescerConfig struct {
	Window               time.Duration // 合并窗口（默认 500ms）
	MaxBatchSize         int           // 单次上游请求最多物品数（默认 50）
	MaxConcurrentBatches int           // 同时进行的上游请求数（默认 8）
	ImmediateMaxActive   int           // 进行中批次少于该值时单个请求立即发出（默认 1）
}

// FetchTarget 批次发出时使用的查询范围
type FetchTarget struct {
	Scope string
	Home  scope.HomeWorld
}

// TargetFunc 返回当前查询范围，未就绪时 ok=false，队列保留到下个周期
type TargetFunc func() (FetchTarget, bool)

// Resolution 一个批次结束后状态发生变化的物品
type Resolution struct {
	Ready  []uint32
	Failed []uint32
}

// ResolveFunc 批次结束回调，在工作协程中执行
type ResolveFunc func(Resolution)

// ErrFetchPanic 上游调用 panic
var ErrFetchPanic = errors.New("fetch panicked")

type batch struct {
	seq    uint64
	ids    []uint32
	tokens map[uint32]uint64
	target FetchTarget
	ctx    context.Context
	cancel context.CancelFunc
	// 仍归属本批次的物品数，归零时取消上游请求
	live int
	// ids 前 urgent 个来自交互队列
	urgent int
}

type flight struct {
	b     *batch
	token uint64
}

// FetchCoalescer 把逐个到达的物品请求合并成批量上游请求
// 物品在入队时标记 Pending，每个周期最多取 MaxBatchSize 个发出一次请求
// 交互请求走单独的 urgent 队列，每批优先取出，不排在预取积压之后
type FetchCoalescer struct {
	config  *CoalescerConfig
	cache   *cache.PriceCache
	fetcher universalis.Fetcher
	target  TargetFunc
	resolve ResolveFunc
	pool    *ants.Pool

	mu          sync.Mutex
	urgent      []uint32 // 交互请求
	queue       []uint32 // 预取
	queued      map[uint32]uint64 // id -> token
	inflight    map[uint32]flight
	active      int
	lastRequest time.Time
	nextToken   uint64
	nextSeq     uint64
	// Reset 时递增，用于丢弃在重置前解析出的查询范围
	epoch uint64

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFetchCoalescer 创建抓取合并器
func NewFetchCoalescer(config *CoalescerConfig, priceCache *cache.PriceCache, fetcher universalis.Fetcher, target TargetFunc, resolve ResolveFunc) (*FetchCoalescer, error) {
	if config == nil {
		config = &CoalescerConfig{}
	}
	if config.Window <= 0 {
		config.Window = 500 * time.Millisecond
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 50
	}
	if config.MaxConcurrentBatches <= 0 {
		config.MaxConcurrentBatches = 8
	}
	if config.ImmediateMaxActive < 0 {
		config.ImmediateMaxActive = 0
	}
	if resolve == nil {
		resolve = func(Resolution) {}
	}

	pool, err := ants.NewPool(config.MaxConcurrentBatches,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error().Interface("panic", p).Msg("fetch worker panic")
		}),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FetchCoalescer{
		config:   config,
		cache:    priceCache,
		fetcher:  fetcher,
		target:   target,
		resolve:  resolve,
		pool:     pool,
		queued:   make(map[uint32]uint64),
		inflight: make(map[uint32]flight),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start 启动周期协程
func (c *FetchCoalescer) Start() {
	c.wg.Add(1)
	goplus.Go(c.tickLoop)
}

func (c *FetchCoalescer) tickLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.dispatch(false)
		case <-c.done:
			return
		}
	}
}

// Request 交互式请求：已有 Ready / 进行中时什么都不做
// 已在预取队列中的物品提到交互队列
// 距上次请求超过一个窗口且空闲时立即单独发出交互队列，不等下个周期
func (c *FetchCoalescer) Request(id uint32) bool {
	c.mu.Lock()
	now := time.Now()
	immediate := now.Sub(c.lastRequest) >= c.config.Window && c.active < c.config.ImmediateMaxActive
	c.lastRequest = now
	added := c.enqueueLocked(id, true)
	promoted := !added && c.promoteLocked(id)
	c.mu.Unlock()

	if (added || promoted) && immediate {
		c.dispatch(true)
	}
	return added
}

// Enqueue 批量入队（预取），只等周期发出；返回实际入队数量
func (c *FetchCoalescer) Enqueue(ids ...uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, id := range ids {
		if c.enqueueLocked(id, false) {
			n++
		}
	}
	return n
}

func (c *FetchCoalescer) enqueueLocked(id uint32, urgent bool) bool {
	if _, ok := c.queued[id]; ok {
		return false
	}
	if _, ok := c.inflight[id]; ok {
		return false
	}

	c.nextToken++
	token := c.nextToken
	if !c.cache.MarkPending(id, token) {
		return false
	}

	if urgent {
		c.urgent = append(c.urgent, id)
	} else {
		c.queue = append(c.queue, id)
	}
	c.queued[id] = token
	monitor.SetCoalescerQueueSize(c.queueLenLocked())
	return true
}

// promoteLocked 把预取队列中的物品移到交互队列
func (c *FetchCoalescer) promoteLocked(id uint32) bool {
	if _, ok := c.queued[id]; !ok {
		return false
	}
	for i, q := range c.queue {
		if q == id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.urgent = append(c.urgent, id)
			return true
		}
	}
	return false
}

func (c *FetchCoalescer) queueLenLocked() int {
	return len(c.urgent) + len(c.queue)
}

// ForceRefresh 取消该物品的进行中请求，清除缓存后重新请求
// 同批次的其他物品不受影响
func (c *FetchCoalescer) ForceRefresh(id uint32) {
	c.mu.Lock()
	if f, ok := c.inflight[id]; ok {
		delete(c.inflight, id)
		f.b.live--
		if f.b.live == 0 {
			f.b.cancel()
		}
	}
	if _, ok := c.queued[id]; ok {
		delete(c.queued, id)
		c.removeFromQueueLocked(id)
	}
	c.cache.Remove(id)
	c.mu.Unlock()

	logger.WithItem(id).Debug().Msg("force refresh")
	c.Request(id)
}

func (c *FetchCoalescer) removeFromQueueLocked(id uint32) {
	c.urgent = removeID(c.urgent, id)
	c.queue = removeID(c.queue, id)
	monitor.SetCoalescerQueueSize(c.queueLenLocked())
}

func removeID(ids []uint32, id uint32) []uint32 {
	for i, q := range ids {
		if q == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Reset 取消全部批次并清空队列和缓存
func (c *FetchCoalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancelled := make(map[*batch]struct{})
	for _, f := range c.inflight {
		if _, ok := cancelled[f.b]; !ok {
			f.b.cancel()
			cancelled[f.b] = struct{}{}
		}
	}
	c.inflight = make(map[uint32]flight)
	c.epoch++
	c.urgent = nil
	c.queue = nil
	c.queued = make(map[uint32]uint64)
	c.cache.Clear()

	monitor.SetCoalescerQueueSize(0)
	logger.Info().Int("cancelled_batches", len(cancelled)).Msg("fetch coalescer reset")
}

// dispatch 取出一批并提交到协程池，交互队列优先
// urgentOnly 时只发交互队列
func (c *FetchCoalescer) dispatch(urgentOnly bool) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	if c.batchLenLocked(urgentOnly) == 0 || c.active >= c.config.MaxConcurrentBatches {
		c.mu.Unlock()
		return
	}
	epoch := c.epoch
	c.mu.Unlock()

	target, ok := c.target()
	if !ok {
		return
	}

	c.mu.Lock()
	n := c.batchLenLocked(urgentOnly)
	if n == 0 || epoch != c.epoch || c.active >= c.config.MaxConcurrentBatches {
		c.mu.Unlock()
		return
	}

	c.nextSeq++
	ctx, cancel := context.WithCancel(c.ctx)
	b := &batch{
		seq:    c.nextSeq,
		ids:    make([]uint32, n),
		tokens: make(map[uint32]uint64, n),
		target: target,
		ctx:    ctx,
		cancel: cancel,
		live:   n,
		urgent: min(n, len(c.urgent)),
	}
	copy(b.ids, c.urgent[:b.urgent])
	copy(b.ids[b.urgent:], c.queue[:n-b.urgent])
	c.urgent = c.urgent[b.urgent:]
	c.queue = c.queue[n-b.urgent:]
	for _, id := range b.ids {
		token := c.queued[id]
		delete(c.queued, id)
		b.tokens[id] = token
		c.inflight[id] = flight{b: b, token: token}
	}
	c.active++
	monitor.SetCoalescerQueueSize(c.queueLenLocked())
	monitor.SetInflightBatches(c.active)
	c.mu.Unlock()

	if err := c.pool.Submit(func() { c.run(b) }); err != nil {
		c.requeue(b)
		monitor.IncPoolRejection()
		logger.WithBatch(b.seq, len(b.ids)).Warn().Err(err).Msg("fetch pool saturated, batch requeued")
	}
}

func (c *FetchCoalescer) batchLenLocked(urgentOnly bool) int {
	if urgentOnly {
		return min(len(c.urgent), c.config.MaxBatchSize)
	}
	return min(c.queueLenLocked(), c.config.MaxBatchSize)
}

// requeue 协程池拒绝时把仍归属本批次的物品放回队首
func (c *FetchCoalescer) requeue(b *batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var urgent, back []uint32
	for i, id := range b.ids {
		f, ok := c.inflight[id]
		if !ok || f.b != b {
			continue
		}
		delete(c.inflight, id)
		c.queued[id] = f.token
		if i < b.urgent {
			urgent = append(urgent, id)
		} else {
			back = append(back, id)
		}
	}
	c.urgent = append(urgent, c.urgent...)
	c.queue = append(back, c.queue...)
	c.active--
	b.cancel()
	monitor.SetCoalescerQueueSize(c.queueLenLocked())
	monitor.SetInflightBatches(c.active)
}

func (c *FetchCoalescer) run(b *batch) {
	start := time.Now()
	log := logger.WithBatch(b.seq, len(b.ids))
	log.Debug().Str("scope", b.target.Scope).Msg("fetch batch started")

	var (
		result map[uint32]*market.Snapshot
		err    error
	)
	if !goplus.SafeCall(func() {
		result, err = c.fetcher.FetchBatch(b.ctx, b.target.Scope, b.target.Home.WorldID, b.ids)
	}) {
		err = ErrFetchPanic
	}
	took := time.Since(start)
	canceled := b.ctx.Err() != nil

	// 取出仍归属本批次的物品
	c.mu.Lock()
	owned := make([]uint32, 0, len(b.ids))
	for _, id := range b.ids {
		if f, ok := c.inflight[id]; ok && f.b == b {
			delete(c.inflight, id)
			owned = append(owned, id)
		}
	}
	c.active--
	monitor.SetInflightBatches(c.active)
	c.mu.Unlock()
	b.cancel()

	monitor.ObserveFetchBatchSize(len(b.ids))
	monitor.ObserveFetchDuration(took.Seconds())

	if err != nil && (canceled || errors.Is(err, context.Canceled)) {
		// 被取代或服务关闭，结果直接丢弃
		for _, id := range owned {
			c.cache.Release(id, b.tokens[id])
		}
		monitor.IncFetchBatch("canceled")
		log.Debug().Dur("took", took).Msg("fetch batch canceled")
		return
	}

	var res Resolution
	if err != nil {
		for _, id := range owned {
			if c.cache.Reject(id, b.tokens[id], err) {
				res.Failed = append(res.Failed, id)
			}
		}
		monitor.IncFetchBatch("failure")
		monitor.AddFetchItems("failed", len(res.Failed))
		log.Warn().Err(err).Dur("took", took).Int("failed", len(res.Failed)).Msg("fetch batch failed")
	} else {
		now := time.Now()
		h := b.target.Home
		empty := 0
		for _, id := range owned {
			snap, ok := result[id]
			if !ok || snap == nil {
				// 上游未返回的物品视为无数据
				snap = market.Empty(id, now).WithHome(h.World, h.Datacenter, h.Region)
				empty++
			}
			if c.cache.Resolve(id, b.tokens[id], snap) {
				res.Ready = append(res.Ready, id)
			}
		}
		monitor.IncFetchBatch("success")
		monitor.AddFetchItems("ready", len(res.Ready)-empty)
		monitor.AddFetchItems("empty", empty)
		log.Debug().Dur("took", took).Int("ready", len(res.Ready)).Int("empty", empty).Msg("fetch batch done")
	}

	if len(res.Ready) > 0 || len(res.Failed) > 0 {
		c.resolve(res)
	}
}

// Stats 获取统计信息
func (c *FetchCoalescer) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"queue_size":     c.queueLenLocked(),
		"urgent_size":    len(c.urgent),
		"inflight_items": len(c.inflight),
		"active_batches": c.active,
		"batches_sent":   c.nextSeq,
	}
}

// Stop 停止周期协程并取消全部进行中的请求
func (c *FetchCoalescer) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.cancel()

		if err := c.pool.ReleaseTimeout(3 * time.Second); err != nil {
			logger.Warn().Err(err).Msg("fetch pool release timeout")
		}
	})
}
