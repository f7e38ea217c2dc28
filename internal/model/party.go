package model

import (
	"time"
)

// Party 计费客户，RegionID 为空时只能匹配全局默认费率
type Party struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	RegionID  *int64    `gorm:"index" json:"region_id"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Party) TableName() string {
	return "party"
}
