package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[price_insight]
bridge_url = "ws://127.0.0.1:9999/bridge"

[lookup]
show_region = true
use_current_world = true

[coalescer]
window = "200ms"
max_batch_size = 40

[universalis]
api = "legacy"
`

func TestLoad_MergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	require.NoError(t, Load(path))
	c := Get()

	assert.Equal(t, "ws://127.0.0.1:9999/bridge", c.PriceInsight.BridgeURL)
	assert.True(t, c.Lookup.ShowRegion)
	assert.True(t, c.Lookup.UseCurrentWorld)
	assert.Equal(t, 200*time.Millisecond, c.Coalescer.Window)
	assert.Equal(t, 40, c.Coalescer.MaxBatchSize)
	assert.Equal(t, "legacy", c.Universalis.API)

	// 未配置的字段保持默认值
	assert.Equal(t, 90*time.Minute, c.Coalescer.PriceTTL)
	assert.Equal(t, "sqlite", c.Database.Driver)
}

func TestReloadIfNeeded_FiresHooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	require.NoError(t, Load(path))

	var old, cur *Config
	OnChange(func(o, c *Config) {
		old, cur = o, c
	})

	updated := `
[lookup]
use_current_world = false
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	// 确保 mtime 前进
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	reloadIfNeeded()

	require.NotNil(t, old)
	require.NotNil(t, cur)
	assert.True(t, old.Lookup.UseCurrentWorld)
	assert.False(t, cur.Lookup.UseCurrentWorld)
}

func TestLoad_MissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
