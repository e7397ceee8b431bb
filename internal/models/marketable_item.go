package models

import "time"

// MarketableItem 可在市场板交易的物品
type MarketableItem struct {
	ID        uint32    `gorm:"primaryKey;autoIncrement:false;comment:物品ID" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (MarketableItem) TableName() string {
	return "pi_marketable_items"
}
