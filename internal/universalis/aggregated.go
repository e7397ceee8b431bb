package universalis

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-price-insight/internal/market"
)

var breadthKeys = []struct {
	key     string
	breadth market.Breadth
}{
	{"world", market.BreadthWorld},
	{"dc", market.BreadthDatacenter},
	{"region", market.BreadthRegion},
}

var qualityKeys = []struct {
	key string
	hq  bool
}{
	{"nq", false},
	{"hq", true},
}

// parseAggregated 解析 /api/v2/aggregated 响应
func parseAggregated(body []byte, h home, worlds Worlds, now time.Time) (map[uint32]*market.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}

	results := root.Get("results")
	out := make(map[uint32]*market.Snapshot, len(results.Array()))
	if !results.Exists() || results.Type == gjson.Null {
		return out, nil
	}
	if !results.IsArray() {
		return nil, fmt.Errorf("%w: results is not an array", ErrMalformed)
	}

	for _, r := range results.Array() {
		id := uint32(r.Get("itemId").Uint())
		if id == 0 {
			continue
		}
		out[id] = aggregatedSnapshot(id, r, h, worlds, now)
	}
	return out, nil
}

func aggregatedSnapshot(id uint32, r gjson.Result, h home, worlds Worlds, now time.Time) *market.Snapshot {
	uploads := make(map[uint32]time.Time)
	for _, u := range r.Get("worldUploadTimes").Array() {
		uploads[uint32(u.Get("worldId").Uint())] = time.UnixMilli(u.Get("timestamp").Int())
	}

	homeUpload, ok := uploads[h.worldID]
	if !ok {
		homeUpload = now
	}

	snap := &market.Snapshot{
		ItemID:     id,
		HomeWorld:  h.world,
		Datacenter: h.datacenter,
		Region:     h.region,
		FetchedAt:  now,
	}
	if ok {
		snap.UploadTime = homeUpload
	}

	for _, q := range qualityKeys {
		agg := r.Get(q.key)
		if !agg.Exists() {
			continue
		}
		for _, b := range breadthKeys {
			if l := aggregatedListing(agg.Get("minListing."+b.key), worlds); l != nil {
				// 挂单时间取卖家服务器最近上传时间
				l.Time = homeUpload
				if l.WorldID != 0 {
					if t, found := uploads[l.WorldID]; found {
						l.Time = t
					}
				}
				snap.MinimumPrice.At(b.breadth).Set(q.hq, l)
			}

			if e := agg.Get("recentPurchase." + b.key); e.Exists() {
				if l := aggregatedListing(e, worlds); l != nil {
					if ts := e.Get("timestamp"); ts.Exists() {
						l.Time = time.UnixMilli(ts.Int())
					}
					snap.MostRecentPurchase.At(b.breadth).Set(q.hq, l)
				}
			}

			if p := agg.Get("averageSalePrice." + b.key + ".price").Float(); p > 0 {
				snap.AverageSalePrice.At(b.breadth).Set(q.hq, &p)
			}
			if v := agg.Get("dailySaleVelocity." + b.key + ".quantity").Float(); v > 0 {
				snap.DailySaleVelocity.At(b.breadth).Set(q.hq, &v)
			}
		}
	}
	return snap
}

// aggregatedListing 没有价格字段时返回 nil
func aggregatedListing(e gjson.Result, worlds Worlds) *market.Listing {
	price := e.Get("price")
	if !e.Exists() || !price.Exists() || price.Type == gjson.Null {
		return nil
	}

	l := &market.Listing{Price: price.Int()}
	if w := e.Get("worldId"); w.Exists() && w.Type != gjson.Null {
		l.WorldID = uint32(w.Uint())
		l.World, l.Datacenter, _, _ = worlds.Describe(l.WorldID)
	}
	if q := e.Get("quantity"); q.Exists() {
		l.Quantity = int(q.Int())
	}
	return l
}
