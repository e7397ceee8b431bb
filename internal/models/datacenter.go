package models

import "time"

// Datacenter 数据中心
type Datacenter struct {
	Name      string    `gorm:"type:varchar(32);primaryKey;comment:数据中心名" json:"name"`
	Region    string    `gorm:"type:varchar(32);not null;comment:所属大区" json:"region"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Datacenter) TableName() string {
	return "pi_datacenters"
}
