package world

import (
	"sync/atomic"

	"github.com/utrading/utrading-price-insight/internal/models"
	"github.com/utrading/utrading-price-insight/pkg/concurrent"
)

// Info 服务器及其所属数据中心、大区
type Info struct {
	ID         uint32 `json:"id"`
	Name       string `json:"name"`
	Datacenter string `json:"datacenter"`
	Region     string `json:"region"`
}

// Directory 服务器元数据的内存视图
type Directory struct {
	worlds concurrent.Map[uint32, Info]
	loaded atomic.Bool
}

func NewDirectory() *Directory {
	return &Directory{}
}

// Replace 用数据库中的服务器和数据中心整表替换
// 找不到数据中心的服务器保留，大区留空
func (d *Directory) Replace(worlds []*models.World, dcs []*models.Datacenter) {
	regions := make(map[string]string, len(dcs))
	for _, dc := range dcs {
		regions[dc.Name] = dc.Region
	}

	src := make(map[uint32]Info, len(worlds))
	for _, w := range worlds {
		src[w.ID] = Info{
			ID:         w.ID,
			Name:       w.Name,
			Datacenter: w.Datacenter,
			Region:     regions[w.Datacenter],
		}
	}

	d.worlds.Sync(src)
	d.loaded.Store(len(src) > 0)
}

// Lookup 按 ID 查询服务器
func (d *Directory) Lookup(id uint32) (Info, bool) {
	return d.worlds.Load(id)
}

// Name 服务器名，未知时返回空串
func (d *Directory) Name(id uint32) string {
	info, _ := d.worlds.Load(id)
	return info.Name
}

// Loaded 是否已加载到可用数据
func (d *Directory) Loaded() bool {
	return d.loaded.Load()
}

func (d *Directory) Len() int64 {
	return d.worlds.Len()
}

// Describe 提供给上游客户端的名称查询
func (d *Directory) Describe(id uint32) (name, datacenter, region string, ok bool) {
	info, ok := d.worlds.Load(id)
	return info.Name, info.Datacenter, info.Region, ok
}
