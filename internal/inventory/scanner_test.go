package inventory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePrefetcher struct {
	mu     sync.Mutex
	ready  bool
	chunks [][]uint64
}

func (f *fakePrefetcher) CheckReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakePrefetcher) Prefetch(raws []uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, append([]uint64(nil), raws...))
	return len(raws)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestScanner() (*Scanner, *fakePrefetcher, *clock) {
	p := &fakePrefetcher{ready: true}
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewScanner(p)
	s.now = c.Now
	return s, p, c
}

func items(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i + 1)
	}
	return out
}

func TestScanner_Chunks(t *testing.T) {
	s, p, _ := newTestScanner()

	assert.Equal(t, 120, s.Observe(1, items(120)))
	if assert.Len(t, p.chunks, 3) {
		assert.Len(t, p.chunks[0], 50)
		assert.Len(t, p.chunks[1], 50)
		assert.Len(t, p.chunks[2], 20)
	}
}

func TestScanner_RescanInterval(t *testing.T) {
	s, p, c := newTestScanner()

	assert.Equal(t, 3, s.Observe(1, []uint64{5057, 5057, 0, 4850, 1_005_057}))
	assert.Equal(t, 0, s.Observe(1, []uint64{5057}))

	// 其他容器不受影响
	assert.Equal(t, 1, s.Observe(2, []uint64{7}))

	c.Advance(58 * time.Minute)
	assert.Equal(t, 0, s.Observe(1, []uint64{5057}))

	c.Advance(time.Minute)
	assert.Equal(t, 1, s.Observe(1, []uint64{5057}))
	assert.Len(t, p.chunks, 3)
}

func TestScanner_EmptyContainerRetry(t *testing.T) {
	s, p, c := newTestScanner()

	assert.Equal(t, 0, s.Observe(10, []uint64{0, 0, 0}))
	assert.Empty(t, p.chunks)

	c.Advance(5 * time.Second)
	assert.Equal(t, 0, s.Observe(10, []uint64{9}))

	c.Advance(5 * time.Second)
	assert.Equal(t, 1, s.Observe(10, []uint64{9}))
}

func TestScanner_NotReady(t *testing.T) {
	s, p, _ := newTestScanner()
	p.ready = false

	assert.Equal(t, 0, s.Observe(1, items(3)))
	assert.Empty(t, p.chunks)

	// 未就绪时不记录扫描时间
	p.ready = true
	assert.Equal(t, 3, s.Observe(1, items(3)))
}

func TestScanner_Reset(t *testing.T) {
	s, _, _ := newTestScanner()

	assert.Equal(t, 2, s.Observe(1, items(2)))
	assert.Equal(t, 0, s.Observe(1, items(2)))

	s.Reset()
	assert.Equal(t, 2, s.Observe(1, items(2)))
}
