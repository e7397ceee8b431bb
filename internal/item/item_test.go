package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  uint64
		want uint32
		ok   bool
	}{
		{"normal", 5057, 5057, true},
		{"hq offset stripped", 1_005_057, 5057, true},
		{"collectable range", 505_057, 0, false},
		{"collectable lower bound", 500_000, 0, false},
		{"event item", 2_000_001, 0, false},
		{"last hq id", 1_499_999, 499_999, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsHQ(t *testing.T) {
	assert.True(t, IsHQ(1_005_057))
	assert.False(t, IsHQ(5057))
	assert.False(t, IsHQ(2_000_001))
}

func TestCatalog_Resolve(t *testing.T) {
	c := NewCatalog()
	assert.False(t, c.Loaded())

	c.Replace([]uint32{5057, 4, 0})
	assert.True(t, c.Loaded())
	assert.Equal(t, int64(2), c.Len())

	id, ok := c.Resolve(1_005_057)
	assert.True(t, ok)
	assert.Equal(t, uint32(5057), id)

	// 基础 ID 合法但不在目录中
	_, ok = c.Resolve(12345)
	assert.False(t, ok)

	// 重载后移除的 ID 不再可交易
	c.Replace([]uint32{4})
	_, ok = c.Resolve(5057)
	assert.False(t, ok)
}
