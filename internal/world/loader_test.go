package world

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/utrading/utrading-price-insight/internal/dao"
	"github.com/utrading/utrading-price-insight/internal/item"
	"github.com/utrading/utrading-price-insight/internal/models"
	"github.com/utrading/utrading-price-insight/internal/universalis"
)

func setupStore(t *testing.T) *dao.MetadataDAO {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "meta.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.World{}, &models.Datacenter{}, &models.MarketableItem{}))
	return dao.NewMetadataDAO(db)
}

// metadataServer 模拟 Universalis 元数据接口，fail 为 true 时返回 503
func metadataServer(t *testing.T, hits *atomic.Int32, fail *atomic.Bool) *universalis.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail != nil && fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/v2/worlds":
			fmt.Fprint(w, `[{"id": 79, "name": "Cactuar"}, {"id": 99, "name": "Sargatanas"}, {"id": 404, "name": "Test"}]`)
		case "/api/v2/data-centers":
			fmt.Fprint(w, `[{"name": "Aether", "region": "North-America", "worlds": [79, 99]}]`)
		case "/api/v2/marketable":
			fmt.Fprint(w, `[2, 3, 5057]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return universalis.NewClient(universalis.WithBaseURL(server.URL))
}

func TestLoader_LoadSyncsEmptyStore(t *testing.T) {
	var hits atomic.Int32
	store := setupStore(t)
	directory := NewDirectory()
	catalog := item.NewCatalog()
	loader := NewLoader(store, metadataServer(t, &hits, nil), directory, catalog, time.Hour)

	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, int32(3), hits.Load())
	assert.True(t, directory.Loaded())
	assert.True(t, catalog.Loaded())

	info, ok := directory.Lookup(79)
	require.True(t, ok)
	assert.Equal(t, "North-America", info.Region)

	// 不属于任何数据中心的服务器被丢弃
	_, ok = directory.Lookup(404)
	assert.False(t, ok)

	assert.True(t, catalog.IsMarketable(5057))

	// 数据库已有数据时不再请求上游
	require.NoError(t, loader.Load(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestLoader_SyncFailureKeepsData(t *testing.T) {
	var hits atomic.Int32
	var fail atomic.Bool
	store := setupStore(t)
	directory := NewDirectory()
	catalog := item.NewCatalog()
	loader := NewLoader(store, metadataServer(t, &hits, &fail), directory, catalog, time.Hour)

	require.NoError(t, loader.Load(context.Background()))

	fail.Store(true)
	err := loader.Sync(context.Background())
	assert.ErrorIs(t, err, universalis.ErrStatus)

	// 旧数据仍可用
	assert.True(t, catalog.IsMarketable(5057))
	_, ok := directory.Lookup(99)
	assert.True(t, ok)
}

func TestLoader_LoadFailsWithoutSource(t *testing.T) {
	store := setupStore(t)
	loader := NewLoader(store, nil, NewDirectory(), item.NewCatalog(), time.Hour)

	err := loader.Load(context.Background())
	assert.Error(t, err)
}

func TestManager_BackgroundLoad(t *testing.T) {
	var hits atomic.Int32
	m := NewManager(setupStore(t), metadataServer(t, &hits, nil), time.Hour)
	defer m.Close()

	assert.Eventually(t, m.Ready, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Catalog().IsMarketable(2))
	assert.Equal(t, "Cactuar", m.Directory().Name(79))
}
