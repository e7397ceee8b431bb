package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

// IncLookup 增加查询计数
func IncLookup(result string) {
	GetMetrics().IncLookup(result)
}

// IncCacheHit 增加缓存命中计数
func IncCacheHit(state string) {
	GetMetrics().IncCacheHit(state)
}

// IncCacheMiss 增加缓存未命中计数
func IncCacheMiss(cacheType string) {
	GetMetrics().IncCacheMiss(cacheType)
}

// IncCacheInvalidation 增加整表失效计数
func IncCacheInvalidation(reason string) {
	GetMetrics().IncCacheInvalidation(reason)
}

// IncFetchBatch 增加批次计数
func IncFetchBatch(result string) {
	GetMetrics().IncFetchBatch(result)
}

// AddFetchItems 增加物品结果计数
func AddFetchItems(result string, n int) {
	GetMetrics().AddFetchItems(result, n)
}

// ObserveFetchBatchSize 观察批次大小
func ObserveFetchBatchSize(size int) {
	GetMetrics().ObserveFetchBatchSize(size)
}

// ObserveFetchDuration 观察批次耗时
func ObserveFetchDuration(seconds float64) {
	GetMetrics().ObserveFetchDuration(seconds)
}

// SetCoalescerQueueSize 设置待抓取队列长度
func SetCoalescerQueueSize(size int) {
	GetMetrics().SetCoalescerQueueSize(size)
}

// SetInflightBatches 设置进行中的批次数
func SetInflightBatches(n int) {
	GetMetrics().SetInflightBatches(n)
}

// IncPoolRejection 增加协程池拒绝计数
func IncPoolRejection() {
	GetMetrics().IncPoolRejection()
}

// SetBridgeConnected 设置游戏桥连接状态
func SetBridgeConnected(connected bool) {
	GetMetrics().SetBridgeConnected(connected)
}

// SetNATSConnected 设置NATS连接状态
func SetNATSConnected(connected bool) {
	GetMetrics().SetNATSConnected(connected)
}

// SetMessageQueueSize 设置消息队列大小
func SetMessageQueueSize(size int) {
	GetMetrics().SetMessageQueueSize(size)
}

// IncMessageQueueFull 增加消息队列满事件计数
func IncMessageQueueFull() {
	GetMetrics().IncMessageQueueFull()
}

// IncResolvedPublished 增加推送计数
func IncResolvedPublished(sink string) {
	GetMetrics().IncResolvedPublished(sink)
}

// IncPublishErrors 增加推送错误计数
func IncPublishErrors(sink string) {
	GetMetrics().IncPublishErrors(sink)
}
