package models

import "time"

// World 游戏服务器
type World struct {
	ID         uint32    `gorm:"primaryKey;autoIncrement:false;comment:服务器ID" json:"id"`
	Name       string    `gorm:"type:varchar(32);not null;comment:服务器名" json:"name"`
	Datacenter string    `gorm:"type:varchar(32);not null;index:idx_datacenter;comment:所属数据中心" json:"datacenter"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (World) TableName() string {
	return "pi_worlds"
}
