package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utrading/utrading-price-insight/internal/item"
	"github.com/utrading/utrading-price-insight/internal/models"
	"github.com/utrading/utrading-price-insight/internal/universalis"
	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

const (
	defaultReloadInterval = 6 * time.Hour
	retryInterval         = 30 * time.Second
	loadTimeout           = time.Minute
)

// Store 元数据持久化
type Store interface {
	ListWorlds(ctx context.Context) ([]*models.World, error)
	ListDatacenters(ctx context.Context) ([]*models.Datacenter, error)
	ListMarketableIDs(ctx context.Context) ([]uint32, error)
	CountMarketable(ctx context.Context) (int64, error)
	UpsertWorlds(ctx context.Context, worlds []*models.World) error
	UpsertDatacenters(ctx context.Context, dcs []*models.Datacenter) error
	ReplaceMarketable(ctx context.Context, ids []uint32) error
}

// Source 上游元数据
type Source interface {
	Worlds(ctx context.Context) ([]universalis.WorldEntry, error)
	DataCenters(ctx context.Context) ([]universalis.DataCenterEntry, error)
	MarketableIDs(ctx context.Context) ([]uint32, error)
}

// Loader 元数据加载器
// 启动时从数据库加载，表为空时先从 Universalis 同步；之后按周期重新同步
type Loader struct {
	store          Store
	source         Source
	directory      *Directory
	catalog        *item.Catalog
	reloadInterval time.Duration
	sf             singleflight.Group
	done           chan struct{}
	closeOnce      sync.Once
}

// NewLoader 创建 Loader，不会立即加载
func NewLoader(store Store, source Source, directory *Directory, catalog *item.Catalog, reloadInterval time.Duration) *Loader {
	if reloadInterval <= 0 {
		reloadInterval = defaultReloadInterval
	}
	return &Loader{
		store:          store,
		source:         source,
		directory:      directory,
		catalog:        catalog,
		reloadInterval: reloadInterval,
		done:           make(chan struct{}),
	}
}

// Load 加载到内存；数据库为空时先同步
// 并发调用合并为一次
func (l *Loader) Load(ctx context.Context) error {
	_, err, _ := l.sf.Do("load", func() (any, error) {
		n, err := l.store.CountMarketable(ctx)
		if err != nil {
			return nil, fmt.Errorf("count marketable: %w", err)
		}
		worlds, err := l.store.ListWorlds(ctx)
		if err != nil {
			return nil, fmt.Errorf("list worlds: %w", err)
		}
		if n == 0 || len(worlds) == 0 {
			if err = l.sync(ctx); err != nil {
				return nil, err
			}
		}
		return nil, l.loadFromStore(ctx)
	})
	return err
}

// Sync 从 Universalis 同步后重新加载
func (l *Loader) Sync(ctx context.Context) error {
	_, err, _ := l.sf.Do("sync", func() (any, error) {
		if err := l.sync(ctx); err != nil {
			return nil, err
		}
		return nil, l.loadFromStore(ctx)
	})
	return err
}

func (l *Loader) sync(ctx context.Context) error {
	if l.source == nil {
		return errors.New("metadata source not configured")
	}

	worldEntries, err := l.source.Worlds(ctx)
	if err != nil {
		return fmt.Errorf("fetch worlds: %w", err)
	}
	dcEntries, err := l.source.DataCenters(ctx)
	if err != nil {
		return fmt.Errorf("fetch data centers: %w", err)
	}
	ids, err := l.source.MarketableIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch marketable: %w", err)
	}

	dcOf := make(map[uint32]string)
	dcs := make([]*models.Datacenter, 0, len(dcEntries))
	for _, dc := range dcEntries {
		dcs = append(dcs, &models.Datacenter{Name: dc.Name, Region: dc.Region})
		for _, wid := range dc.Worlds {
			dcOf[wid] = dc.Name
		}
	}

	// 不属于任何数据中心的服务器（测试服等）不可查询
	worlds := make([]*models.World, 0, len(worldEntries))
	for _, w := range worldEntries {
		dc, ok := dcOf[w.ID]
		if !ok {
			continue
		}
		worlds = append(worlds, &models.World{ID: w.ID, Name: w.Name, Datacenter: dc})
	}

	if err = l.store.UpsertDatacenters(ctx, dcs); err != nil {
		return fmt.Errorf("upsert data centers: %w", err)
	}
	if err = l.store.UpsertWorlds(ctx, worlds); err != nil {
		return fmt.Errorf("upsert worlds: %w", err)
	}
	if len(ids) > 0 {
		if err = l.store.ReplaceMarketable(ctx, ids); err != nil {
			return fmt.Errorf("replace marketable: %w", err)
		}
	}

	logger.Info().
		Int("worlds", len(worlds)).
		Int("datacenters", len(dcs)).
		Int("marketable", len(ids)).
		Msg("metadata synced from universalis")
	return nil
}

func (l *Loader) loadFromStore(ctx context.Context) error {
	worlds, err := l.store.ListWorlds(ctx)
	if err != nil {
		return fmt.Errorf("list worlds: %w", err)
	}
	dcs, err := l.store.ListDatacenters(ctx)
	if err != nil {
		return fmt.Errorf("list data centers: %w", err)
	}
	ids, err := l.store.ListMarketableIDs(ctx)
	if err != nil {
		return fmt.Errorf("list marketable: %w", err)
	}

	l.directory.Replace(worlds, dcs)
	l.catalog.Replace(ids)

	logger.Info().
		Int64("worlds", l.directory.Len()).
		Int64("marketable", l.catalog.Len()).
		Msg("metadata loaded")
	return nil
}

// Start 启动后台加载：先加载一次，失败时每 30 秒重试，成功后按周期同步
func (l *Loader) Start() {
	goplus.Go(func() {
		wait := l.tryLoad()
		timer := time.NewTimer(wait)
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				if l.directory.Loaded() && l.catalog.Loaded() {
					wait = l.trySync()
				} else {
					wait = l.tryLoad()
				}
				timer.Reset(wait)
			case <-l.done:
				return
			}
		}
	})
}

func (l *Loader) tryLoad() time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if err := l.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("load metadata failed, will retry")
		return retryInterval
	}
	return l.reloadInterval
}

func (l *Loader) trySync() time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if err := l.Sync(ctx); err != nil {
		// 同步失败时保留内存中的旧数据
		logger.Warn().Err(err).Msg("reload metadata failed, keeping previous data")
	}
	return l.reloadInterval
}

// Close 停止重载
func (l *Loader) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
