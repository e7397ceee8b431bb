package goplus

import (
	"sync"
	"sync/atomic"
)

var (
	defaultGroup     *WaitGroup
	defaultGroupOnce sync.Once
)

// DefaultGroup 进程级协程组，Shutdown 时可等待全部后台任务退出
func DefaultGroup() *WaitGroup {
	defaultGroupOnce.Do(func() {
		defaultGroup = NewWaitGroup()
	})
	return defaultGroup
}

// Go 在默认协程组中启动带 panic 恢复的协程
func Go(fn func()) {
	DefaultGroup().Go(fn)
}

// Wait 等待默认协程组
func Wait() {
	DefaultGroup().Wait()
}

// WaitGroup 带计数的 sync.WaitGroup，协程 panic 不会拖垮进程
type WaitGroup struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

func NewWaitGroup() *WaitGroup {
	return &WaitGroup{}
}

// Go 启动协程，panic 由 Recover 记录
func (s *WaitGroup) Go(fn func()) {
	s.running.Add(1)
	s.wg.Add(1)

	go func() {
		defer func() {
			s.running.Add(-1)
			s.wg.Done()
		}()
		defer Recover()

		fn()
	}()
}

// Running 当前存活的协程数
func (s *WaitGroup) Running() int64 {
	return s.running.Load()
}

func (s *WaitGroup) Wait() {
	s.wg.Wait()
}
