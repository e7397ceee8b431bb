package market

import "time"

// Breadth 聚合范围
type Breadth uint8

const (
	BreadthWorld Breadth = iota
	BreadthDatacenter
	BreadthRegion
)

func (b Breadth) String() string {
	switch b {
	case BreadthWorld:
		return "world"
	case BreadthDatacenter:
		return "datacenter"
	case BreadthRegion:
		return "region"
	default:
		return "unknown"
	}
}

// Listing 一条挂单或成交记录
type Listing struct {
	Price      int64     `json:"price"`
	WorldID    uint32    `json:"world_id"`
	World      string    `json:"world,omitempty"`
	Datacenter string    `json:"datacenter,omitempty"`
	Quantity   int       `json:"quantity,omitempty"`
	Time       time.Time `json:"time"`
}

// Quality NQ / HQ 两档
type Quality[T any] struct {
	NQ T `json:"nq"`
	HQ T `json:"hq"`
}

func (q *Quality[T]) Get(hq bool) T {
	if hq {
		return q.HQ
	}
	return q.NQ
}

func (q *Quality[T]) Set(hq bool, v T) {
	if hq {
		q.HQ = v
	} else {
		q.NQ = v
	}
}

// Tiers 按聚合范围分组的数据
type Tiers[T any] struct {
	World      Quality[T] `json:"world"`
	Datacenter Quality[T] `json:"datacenter"`
	Region     Quality[T] `json:"region"`
}

func (t *Tiers[T]) At(b Breadth) *Quality[T] {
	switch b {
	case BreadthDatacenter:
		return &t.Datacenter
	case BreadthRegion:
		return &t.Region
	default:
		return &t.World
	}
}

// Snapshot 一次上游响应构建的价格快照，构建完成后只读
type Snapshot struct {
	ItemID     uint32 `json:"item_id"`
	HomeWorld  string `json:"home_world"`
	Datacenter string `json:"datacenter"`
	Region     string `json:"region"`

	MinimumPrice       Tiers[*Listing] `json:"minimum_price"`
	MostRecentPurchase Tiers[*Listing] `json:"most_recent_purchase"`
	AverageSalePrice   Tiers[*float64] `json:"average_sale_price"`
	DailySaleVelocity  Tiers[*float64] `json:"daily_sale_velocity"`

	// UploadTime 主服务器最近一次上传时间，零值表示未知
	UploadTime time.Time `json:"upload_time"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Empty 上游没有返回该物品时使用的空快照
func Empty(itemID uint32, fetchedAt time.Time) *Snapshot {
	return &Snapshot{ItemID: itemID, FetchedAt: fetchedAt}
}

// HasData 是否包含任意价格数据
func (s *Snapshot) HasData() bool {
	if s == nil {
		return false
	}
	for _, b := range []Breadth{BreadthWorld, BreadthDatacenter, BreadthRegion} {
		for _, hq := range []bool{false, true} {
			if s.MinimumPrice.At(b).Get(hq) != nil ||
				s.MostRecentPurchase.At(b).Get(hq) != nil ||
				s.AverageSalePrice.At(b).Get(hq) != nil ||
				s.DailySaleVelocity.At(b).Get(hq) != nil {
				return true
			}
		}
	}
	return false
}

// WithHome 返回填充了主服务器信息的副本
func (s *Snapshot) WithHome(world, datacenter, region string) *Snapshot {
	cp := *s
	cp.HomeWorld = world
	cp.Datacenter = datacenter
	cp.Region = region
	return &cp
}
