package universalis

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-price-insight/internal/market"
)

var legacyFields = []string{
	"lastUploadTime",
	"listings.pricePerUnit", "listings.hq", "listings.worldID", "listings.quantity",
	"recentHistory.pricePerUnit", "recentHistory.hq", "recentHistory.worldID", "recentHistory.timestamp", "recentHistory.quantity",
	"averagePriceNQ", "averagePriceHQ",
	"nqSaleVelocity", "hqSaleVelocity",
	"worldUploadTimes",
}

func legacyQuery(single bool) url.Values {
	fields := legacyFields
	if !single {
		fields = make([]string, len(legacyFields))
		for i, f := range legacyFields {
			fields[i] = "items." + f
		}
	}
	return url.Values{"fields": {strings.Join(fields, ",")}}
}

// parseLegacyMulti 解析多物品响应 {"items": {"id": {...}}}
func parseLegacyMulti(body []byte, h home, breadth market.Breadth, worlds Worlds, now time.Time) (map[uint32]*market.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}

	out := make(map[uint32]*market.Snapshot)
	items := root.Get("items")
	if !items.Exists() || items.Type == gjson.Null {
		return out, nil
	}
	if !items.IsObject() {
		return nil, fmt.Errorf("%w: items is not an object", ErrMalformed)
	}

	var parseErr error
	items.ForEach(func(key, value gjson.Result) bool {
		id, err := cast.ToUint32E(key.String())
		if err != nil || id == 0 {
			parseErr = fmt.Errorf("%w: bad item key %q", ErrMalformed, key.String())
			return false
		}
		out[id] = legacySnapshot(id, value, h, breadth, worlds, now)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// parseLegacyItem 解析单物品响应
func parseLegacyItem(body []byte, id uint32, h home, breadth market.Breadth, worlds Worlds, now time.Time) (*market.Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}
	return legacySnapshot(id, root, h, breadth, worlds, now), nil
}

type legacyTarget struct {
	tiers *market.Tiers[*market.Listing]
	time  func(entry gjson.Result, worldID uint32) time.Time
}

func legacySnapshot(id uint32, item gjson.Result, h home, breadth market.Breadth, worlds Worlds, now time.Time) *market.Snapshot {
	uploads := make(map[uint32]time.Time)
	item.Get("worldUploadTimes").ForEach(func(key, value gjson.Result) bool {
		if wid, err := cast.ToUint32E(key.String()); err == nil {
			uploads[wid] = time.UnixMilli(value.Int())
		}
		return true
	})

	lastUpload := now
	if lu := item.Get("lastUploadTime"); lu.Exists() && lu.Int() > 0 {
		lastUpload = time.UnixMilli(lu.Int())
	}

	snap := &market.Snapshot{
		ItemID:     id,
		HomeWorld:  h.world,
		Datacenter: h.datacenter,
		Region:     h.region,
		FetchedAt:  now,
	}
	if t, ok := uploads[h.worldID]; ok {
		snap.UploadTime = t
	} else if breadth == market.BreadthWorld {
		snap.UploadTime = lastUpload
	}

	// 挂单时间取卖家服务器的上传时间，成交时间取记录自身（秒）
	listingTime := func(_ gjson.Result, worldID uint32) time.Time {
		if worldID != 0 {
			if t, ok := uploads[worldID]; ok {
				return t
			}
		}
		return lastUpload
	}
	saleTime := func(entry gjson.Result, _ uint32) time.Time {
		if ts := entry.Get("timestamp"); ts.Exists() {
			return time.Unix(ts.Int(), 0)
		}
		return time.Time{}
	}

	pickFirst(item.Get("listings"), h, worlds, legacyTarget{tiers: &snap.MinimumPrice, time: listingTime})
	pickFirst(item.Get("recentHistory"), h, worlds, legacyTarget{tiers: &snap.MostRecentPurchase, time: saleTime})

	// 均价和销量是整个查询范围的统计值
	if v := item.Get("averagePriceNQ").Float(); v > 0 {
		snap.AverageSalePrice.At(breadth).Set(false, &v)
	}
	if v := item.Get("averagePriceHQ").Float(); v > 0 {
		snap.AverageSalePrice.At(breadth).Set(true, &v)
	}
	if v := item.Get("nqSaleVelocity").Float(); v > 0 {
		snap.DailySaleVelocity.At(breadth).Set(false, &v)
	}
	if v := item.Get("hqSaleVelocity").Float(); v > 0 {
		snap.DailySaleVelocity.At(breadth).Set(true, &v)
	}
	return snap
}

// pickFirst 每个范围和品质取第一条（上游已按价格 / 时间排序）
// worldID 缺失说明查询范围就是主服务器
func pickFirst(entries gjson.Result, h home, worlds Worlds, target legacyTarget) {
	for _, e := range entries.Array() {
		hq := e.Get("hq").Bool()
		var worldID uint32
		if w := e.Get("worldID"); w.Exists() && w.Type != gjson.Null {
			worldID = uint32(w.Uint())
		}

		var name, dc string
		inDC := true
		if worldID != 0 {
			var ok bool
			name, dc, _, ok = worlds.Describe(worldID)
			inDC = ok && dc == h.datacenter
		}
		isHome := worldID == 0 || worldID == h.worldID

		newListing := func() *market.Listing {
			return &market.Listing{
				Price:      e.Get("pricePerUnit").Int(),
				WorldID:    worldID,
				World:      name,
				Datacenter: dc,
				Quantity:   int(e.Get("quantity").Int()),
				Time:       target.time(e, worldID),
			}
		}

		if q := target.tiers.At(market.BreadthRegion); q.Get(hq) == nil {
			q.Set(hq, newListing())
		}
		if q := target.tiers.At(market.BreadthDatacenter); inDC && q.Get(hq) == nil {
			q.Set(hq, newListing())
		}
		if q := target.tiers.At(market.BreadthWorld); isHome && q.Get(hq) == nil {
			q.Set(hq, newListing())
		}
	}
}
