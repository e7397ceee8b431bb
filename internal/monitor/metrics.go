package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	lookupsTotal       *prometheus.CounterVec
	cacheHitTotal      *prometheus.CounterVec
	cacheMissTotal     *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	// 抓取批次相关
	fetchBatchesTotal   *prometheus.CounterVec
	fetchItemsTotal     *prometheus.CounterVec
	fetchBatchSize      prometheus.Histogram
	fetchDurationSecs   prometheus.Histogram
	coalescerQueueSize  prometheus.Gauge
	inflightBatches     prometheus.Gauge
	poolRejectionsTotal prometheus.Counter
	// 连接状态
	bridgeConnected prometheus.Gauge
	natsConnected   prometheus.Gauge
	// 消息队列相关
	messageQueueSize      prometheus.Gauge
	messageQueueFullTotal prometheus.Counter
	// 推送相关
	resolvedPublished *prometheus.CounterVec
	publishErrors     *prometheus.CounterVec
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Total number of price lookups by result",
			},
			[]string{"result"},
		),
		cacheHitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hit_total",
				Help:      "Total number of price cache hits by entry state",
			},
			[]string{"state"},
		),
		cacheMissTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_miss_total",
				Help:      "Total number of price cache misses",
			},
			[]string{"cache"},
		),
		cacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Total number of full price cache invalidations",
			},
			[]string{"reason"},
		),
		fetchBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_batches_total",
				Help:      "Total number of upstream batch calls by result",
			},
			[]string{"result"},
		),
		fetchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_items_total",
				Help:      "Total number of items resolved by upstream batches",
			},
			[]string{"result"},
		),
		fetchBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_batch_size",
				Help:      "Number of item ids per upstream call",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
			},
		),
		fetchDurationSecs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Upstream batch call duration",
				Buckets:   prometheus.DefBuckets,
			},
		),
		coalescerQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "coalescer_queue_size",
				Help:      "Number of item ids waiting for the next tick",
			},
		),
		inflightBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "coalescer_inflight_batches",
				Help:      "Number of upstream batch calls in flight",
			},
		),
		poolRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coalescer_pool_rejections_total",
				Help:      "Total number of batches requeued because the worker pool was saturated",
			},
		),
		bridgeConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bridge_connected",
				Help:      "Game bridge connection status (1=connected, 0=disconnected)",
			},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		messageQueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "message_queue_size",
				Help:      "Current bridge message queue size",
			},
		),
		messageQueueFullTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "message_queue_full_total",
				Help:      "Total number of times the bridge message queue was full",
			},
		),
		resolvedPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolved_published_total",
				Help:      "Total number of resolved notifications pushed by sink",
			},
			[]string{"sink"},
		),
		publishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_errors_total",
				Help:      "Total number of resolved notification push errors",
			},
			[]string{"sink"},
		),
	}

	prometheus.MustRegister(
		m.lookupsTotal,
		m.cacheHitTotal,
		m.cacheMissTotal,
		m.cacheInvalidations,
		m.fetchBatchesTotal,
		m.fetchItemsTotal,
		m.fetchBatchSize,
		m.fetchDurationSecs,
		m.coalescerQueueSize,
		m.inflightBatches,
		m.poolRejectionsTotal,
		m.bridgeConnected,
		m.natsConnected,
		m.messageQueueSize,
		m.messageQueueFullTotal,
		m.resolvedPublished,
		m.publishErrors,
	)

	return m
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

// IncLookup 增加查询计数
func (m *Metrics) IncLookup(result string) {
	m.lookupsTotal.WithLabelValues(result).Inc()
}

// IncCacheHit 增加缓存命中计数
func (m *Metrics) IncCacheHit(state string) {
	m.cacheHitTotal.WithLabelValues(state).Inc()
}

// IncCacheMiss 增加缓存未命中计数
func (m *Metrics) IncCacheMiss(cacheType string) {
	m.cacheMissTotal.WithLabelValues(cacheType).Inc()
}

// IncCacheInvalidation 增加整表失效计数
func (m *Metrics) IncCacheInvalidation(reason string) {
	m.cacheInvalidations.WithLabelValues(reason).Inc()
}

// IncFetchBatch 增加批次计数
func (m *Metrics) IncFetchBatch(result string) {
	m.fetchBatchesTotal.WithLabelValues(result).Inc()
}

// AddFetchItems 增加物品结果计数
func (m *Metrics) AddFetchItems(result string, n int) {
	m.fetchItemsTotal.WithLabelValues(result).Add(float64(n))
}

// ObserveFetchBatchSize 观察批次大小
func (m *Metrics) ObserveFetchBatchSize(size int) {
	m.fetchBatchSize.Observe(float64(size))
}

// ObserveFetchDuration 观察批次耗时
func (m *Metrics) ObserveFetchDuration(seconds float64) {
	m.fetchDurationSecs.Observe(seconds)
}

// SetCoalescerQueueSize 设置待抓取队列长度
func (m *Metrics) SetCoalescerQueueSize(size int) {
	m.coalescerQueueSize.Set(float64(size))
}

// SetInflightBatches 设置进行中的批次数
func (m *Metrics) SetInflightBatches(n int) {
	m.inflightBatches.Set(float64(n))
}

// IncPoolRejection 增加协程池拒绝计数
func (m *Metrics) IncPoolRejection() {
	m.poolRejectionsTotal.Inc()
}

// SetBridgeConnected 设置游戏桥连接状态
func (m *Metrics) SetBridgeConnected(connected bool) {
	boolGauge(m.bridgeConnected, connected)
}

// SetNATSConnected 设置NATS连接状态
func (m *Metrics) SetNATSConnected(connected bool) {
	boolGauge(m.natsConnected, connected)
}

// SetMessageQueueSize 设置消息队列大小
func (m *Metrics) SetMessageQueueSize(size int) {
	m.messageQueueSize.Set(float64(size))
}

// IncMessageQueueFull 增加消息队列满事件计数
func (m *Metrics) IncMessageQueueFull() {
	m.messageQueueFullTotal.Inc()
}

// IncResolvedPublished 增加推送计数
func (m *Metrics) IncResolvedPublished(sink string) {
	m.resolvedPublished.WithLabelValues(sink).Inc()
}

// IncPublishErrors 增加推送错误计数
func (m *Metrics) IncPublishErrors(sink string) {
	m.publishErrors.WithLabelValues(sink).Inc()
}

var globalMetrics *Metrics
var metricsMu sync.Once

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsMu.Do(func() {
		globalMetrics = NewMetrics("price_insight")
	})
	return globalMetrics
}

// InitMetrics 初始化指标收集器（供main使用）
func InitMetrics() {
	GetMetrics()
}
