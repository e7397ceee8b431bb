package world

import (
	"time"

	"github.com/utrading/utrading-price-insight/internal/item"
)

// Manager 元数据管理器（纯容器）
// 统一管理 Directory、Catalog 和 Loader 的生命周期
type Manager struct {
	directory *Directory
	catalog   *item.Catalog
	loader    *Loader
}

// NewManager 创建管理器并启动后台加载
// 首次加载在后台进行，加载完成前查询处于未就绪状态
func NewManager(store Store, source Source, reloadInterval time.Duration) *Manager {
	directory := NewDirectory()
	catalog := item.NewCatalog()
	loader := NewLoader(store, source, directory, catalog, reloadInterval)
	loader.Start()

	return &Manager{
		directory: directory,
		catalog:   catalog,
		loader:    loader,
	}
}

// Close 关闭管理器，停止后台重载
func (m *Manager) Close() error {
	m.loader.Close()
	return nil
}

func (m *Manager) Directory() *Directory {
	return m.directory
}

func (m *Manager) Catalog() *item.Catalog {
	return m.catalog
}

// Ready 服务器和物品数据均已加载
func (m *Manager) Ready() bool {
	return m.directory.Loaded() && m.catalog.Loaded()
}
