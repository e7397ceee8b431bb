package universalis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/utrading/utrading-price-insight/internal/market"
)

// Fetcher 批量抓取价格快照
// 返回的 map 只包含上游实际返回的物品
type Fetcher interface {
	FetchBatch(ctx context.Context, scope string, homeWorldID uint32, ids []uint32) (map[uint32]*market.Snapshot, error)
}

var _ Fetcher = (*Client)(nil)

// home 主服务器信息
type home struct {
	worldID    uint32
	world      string
	datacenter string
	region     string
}

func (c *Client) home(worldID uint32) home {
	h := home{worldID: worldID}
	h.world, h.datacenter, h.region, _ = c.worlds.Describe(worldID)
	return h
}

// FetchBatch 按配置的接口形态抓取一批物品
func (c *Client) FetchBatch(ctx context.Context, scope string, homeWorldID uint32, ids []uint32) (map[uint32]*market.Snapshot, error) {
	if len(ids) == 0 {
		return map[uint32]*market.Snapshot{}, nil
	}

	if c.api == APILegacy {
		return c.fetchLegacy(ctx, scope, c.home(homeWorldID), ids)
	}
	return c.fetchAggregated(ctx, c.home(homeWorldID), ids)
}

func (c *Client) fetchAggregated(ctx context.Context, h home, ids []uint32) (map[uint32]*market.Snapshot, error) {
	path := fmt.Sprintf("/api/v2/aggregated/%d/%s", h.worldID, joinIDs(ids))
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return parseAggregated(body, h, c.worlds, c.now())
}

func (c *Client) fetchLegacy(ctx context.Context, scope string, h home, ids []uint32) (map[uint32]*market.Snapshot, error) {
	if scope == "" {
		return nil, fmt.Errorf("legacy fetch: empty scope")
	}

	// 单个物品时上游直接返回物品对象而不是 items 字典
	single := len(ids) == 1
	query := legacyQuery(single)
	body, err := c.get(ctx, "/api/v2/"+scope+"/"+joinIDs(ids), query)
	if err != nil {
		return nil, err
	}

	breadth := breadthOf(scope, h)
	if single {
		snap, err := parseLegacyItem(body, ids[0], h, breadth, c.worlds, c.now())
		if err != nil {
			return nil, err
		}
		return map[uint32]*market.Snapshot{ids[0]: snap}, nil
	}
	return parseLegacyMulti(body, h, breadth, c.worlds, c.now())
}

// breadthOf 根据 scope 字符串判断聚合范围
func breadthOf(scope string, h home) market.Breadth {
	switch {
	case h.world != "" && strings.EqualFold(scope, h.world):
		return market.BreadthWorld
	case h.datacenter != "" && strings.EqualFold(scope, h.datacenter):
		return market.BreadthDatacenter
	default:
		return market.BreadthRegion
	}
}

func joinIDs(ids []uint32) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}
