package cleaner

import (
	"context"
	"sync"
	"time"

	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

const (
	defaultInterval = time.Hour
	// 同一次同步写入的行时间相差很小，早于最近同步超过该值的行没有出现在上一次同步里
	defaultGrace = time.Hour
)

// Store 元数据清理
type Store interface {
	LatestWorldSync(ctx context.Context) (time.Time, error)
	DeleteWorldsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteDatacentersBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner 数据清理器，定时删除上游已下线的服务器和数据中心
// 以最近一次同步时间为基准，上游长期不可达时不会误删
type Cleaner struct {
	store    Store
	interval time.Duration // 清理间隔
	grace    time.Duration
	done     chan struct{} // 停止信号
	stopOnce sync.Once
}

// NewCleaner 创建清理器
func NewCleaner(store Store) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: defaultInterval,
		grace:    defaultGrace,
		done:     make(chan struct{}),
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	goplus.Go(func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		logger.Info().Msg("cleaner started")

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	})
}

// Stop 停止清理器
func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Cleaner) clean() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := c.Clean(ctx); err != nil {
		logger.Error().Err(err).Msg("clean stale metadata failed")
	}
}

// Clean 执行一次清理，返回删除的行数
func (c *Cleaner) Clean(ctx context.Context) (int64, error) {
	latest, err := c.store.LatestWorldSync(ctx)
	if err != nil {
		return 0, err
	}
	if latest.IsZero() {
		return 0, nil
	}

	cutoff := latest.Add(-c.grace)
	worlds, err := c.store.DeleteWorldsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	dcs, err := c.store.DeleteDatacentersBefore(ctx, cutoff)
	if err != nil {
		return worlds, err
	}

	if worlds+dcs > 0 {
		logger.Info().
			Int64("worlds", worlds).
			Int64("datacenters", dcs).
			Time("cutoff", cutoff).
			Msg("cleaned retired worlds")
	}
	return worlds + dcs, nil
}
