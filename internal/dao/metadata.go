package dao

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/utrading/utrading-price-insight/internal/models"
)

const upsertBatchSize = 500

// MetadataDAO 世界、数据中心、可交易物品元数据
type MetadataDAO struct {
	db *gorm.DB
}

var (
	_metadata     *MetadataDAO
	_metadataOnce sync.Once
)

// InitMetadataDAO 初始化 MetadataDAO
func InitMetadataDAO(db *gorm.DB) {
	_metadataOnce.Do(func() {
		_metadata = NewMetadataDAO(db)
	})
}

// Metadata 获取 MetadataDAO 单例
func Metadata() *MetadataDAO {
	return _metadata
}

func NewMetadataDAO(db *gorm.DB) *MetadataDAO {
	return &MetadataDAO{db: db}
}

// ListWorlds 全部服务器
func (d *MetadataDAO) ListWorlds(ctx context.Context) ([]*models.World, error) {
	var worlds []*models.World
	err := d.db.WithContext(ctx).Order("id").Find(&worlds).Error
	return worlds, err
}

// ListDatacenters 全部数据中心
func (d *MetadataDAO) ListDatacenters(ctx context.Context) ([]*models.Datacenter, error) {
	var dcs []*models.Datacenter
	err := d.db.WithContext(ctx).Order("name").Find(&dcs).Error
	return dcs, err
}

// ListMarketableIDs 全部可交易物品 ID
func (d *MetadataDAO) ListMarketableIDs(ctx context.Context) ([]uint32, error) {
	var ids []uint32
	err := d.db.WithContext(ctx).Model(&models.MarketableItem{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// CountMarketable 可交易物品数量，用于判断是否需要首次同步
func (d *MetadataDAO) CountMarketable(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.MarketableItem{}).Count(&n).Error
	return n, err
}

// UpsertWorlds 批量 upsert 服务器
func (d *MetadataDAO) UpsertWorlds(ctx context.Context, worlds []*models.World) error {
	if len(worlds) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "datacenter", "updated_at"}),
	}).CreateInBatches(worlds, upsertBatchSize).Error
}

// UpsertDatacenters 批量 upsert 数据中心
func (d *MetadataDAO) UpsertDatacenters(ctx context.Context, dcs []*models.Datacenter) error {
	if len(dcs) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"region", "updated_at"}),
	}).CreateInBatches(dcs, upsertBatchSize).Error
}

// ReplaceMarketable 用新列表替换可交易物品
func (d *MetadataDAO) ReplaceMarketable(ctx context.Context, ids []uint32) error {
	items := make([]*models.MarketableItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, &models.MarketableItem{ID: id})
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.MarketableItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(items, upsertBatchSize).Error
	})
}

// LatestWorldSync 最近一次写入服务器表的时间，表为空时返回零值
func (d *MetadataDAO) LatestWorldSync(ctx context.Context) (time.Time, error) {
	var w models.World
	err := d.db.WithContext(ctx).Order("updated_at DESC").Limit(1).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	return w.UpdatedAt, err
}

// DeleteWorldsBefore 删除 cutoff 之前未被同步刷新的服务器
func (d *MetadataDAO) DeleteWorldsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.World{})
	return result.RowsAffected, result.Error
}

// DeleteDatacentersBefore 删除 cutoff 之前未被同步刷新的数据中心
func (d *MetadataDAO) DeleteDatacentersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.Datacenter{})
	return result.RowsAffected, result.Error
}
