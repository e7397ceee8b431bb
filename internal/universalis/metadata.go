package universalis

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// WorldEntry /api/v2/worlds 的一项
type WorldEntry struct {
	ID   uint32
	Name string
}

// DataCenterEntry /api/v2/data-centers 的一项
type DataCenterEntry struct {
	Name   string
	Region string
	Worlds []uint32
}

// Worlds 全部服务器
func (c *Client) Worlds(ctx context.Context) ([]WorldEntry, error) {
	arr, err := c.getArray(ctx, "/api/v2/worlds")
	if err != nil {
		return nil, err
	}

	out := make([]WorldEntry, 0, len(arr))
	for _, w := range arr {
		id := uint32(w.Get("id").Uint())
		name := w.Get("name").String()
		if id == 0 || name == "" {
			continue
		}
		out = append(out, WorldEntry{ID: id, Name: name})
	}
	return out, nil
}

// DataCenters 全部数据中心及其服务器
func (c *Client) DataCenters(ctx context.Context) ([]DataCenterEntry, error) {
	arr, err := c.getArray(ctx, "/api/v2/data-centers")
	if err != nil {
		return nil, err
	}

	out := make([]DataCenterEntry, 0, len(arr))
	for _, dc := range arr {
		entry := DataCenterEntry{
			Name:   dc.Get("name").String(),
			Region: dc.Get("region").String(),
		}
		if entry.Name == "" {
			continue
		}
		for _, w := range dc.Get("worlds").Array() {
			entry.Worlds = append(entry.Worlds, uint32(w.Uint()))
		}
		out = append(out, entry)
	}
	return out, nil
}

// MarketableIDs 全部可交易物品 ID
func (c *Client) MarketableIDs(ctx context.Context) ([]uint32, error) {
	arr, err := c.getArray(ctx, "/api/v2/marketable")
	if err != nil {
		return nil, err
	}

	out := make([]uint32, 0, len(arr))
	for _, id := range arr {
		if v := id.Uint(); v > 0 {
			out = append(out, uint32(v))
		}
	}
	return out, nil
}

func (c *Client) getArray(ctx context.Context, path string) ([]gjson.Result, error) {
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json from %s", ErrMalformed, path)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected array from %s", ErrMalformed, path)
	}
	return root.Array(), nil
}
