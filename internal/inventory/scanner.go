package inventory

import (
	"sync"
	"time"

	"github.com/utrading/utrading-price-insight/pkg/logger"
)

const (
	DefaultRescanAfter = 59 * time.Minute
	DefaultEmptyRetry  = 10 * time.Second
	DefaultChunkSize   = 50
)

// Prefetcher 价格预取
type Prefetcher interface {
	CheckReady() bool
	Prefetch(raws []uint64) int
}

// Scanner 按容器节流的背包预取
// 每个容器最多每 59 分钟扫描一次；整个容器为空时（雇员背包加载前就是空的）10 秒后重试
type Scanner struct {
	prefetcher  Prefetcher
	rescanAfter time.Duration
	emptyRetry  time.Duration
	chunkSize   int
	now         func() time.Time

	mu   sync.Mutex
	next map[uint32]time.Time // 容器 -> 下次允许扫描的时间
}

func NewScanner(prefetcher Prefetcher) *Scanner {
	return &Scanner{
		prefetcher:  prefetcher,
		rescanAfter: DefaultRescanAfter,
		emptyRetry:  DefaultEmptyRetry,
		chunkSize:   DefaultChunkSize,
		now:         time.Now,
		next:        make(map[uint32]time.Time),
	}
}

// Observe 收到容器内容；返回实际入队的物品数
func (s *Scanner) Observe(container uint32, items []uint64) int {
	if !s.prefetcher.CheckReady() {
		return 0
	}

	now := s.now()

	s.mu.Lock()
	if next, ok := s.next[container]; ok && now.Before(next) {
		s.mu.Unlock()
		return 0
	}

	unique := dedupe(items)
	if len(unique) == 0 {
		s.next[container] = now.Add(s.emptyRetry)
		s.mu.Unlock()
		return 0
	}
	s.next[container] = now.Add(s.rescanAfter)
	s.mu.Unlock()

	enqueued := 0
	for start := 0; start < len(unique); start += s.chunkSize {
		end := min(start+s.chunkSize, len(unique))
		enqueued += s.prefetcher.Prefetch(unique[start:end])
	}

	logger.Info().
		Uint32("container", container).
		Int("items", len(unique)).
		Int("enqueued", enqueued).
		Msg("prefetching inventory")
	return enqueued
}

// Reset 换角色或登出后重新扫描所有容器
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = make(map[uint32]time.Time)
}

func dedupe(items []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(items))
	out := make([]uint64, 0, len(items))
	for _, id := range items {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
