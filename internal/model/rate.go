package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RateSourceParty   = "PARTY"
	RateSourceDefault = "DEFAULT"
)

// GlobalRegionKey 全局默认费率的 region_key
const GlobalRegionKey int64 = 0

// RegionKeyOf 把可空的区域映射成非空键，nil 即全局
func RegionKeyOf(regionID *int64) int64 {
	if regionID == nil {
		return GlobalRegionKey
	}
	return *regionID
}

// RateDefault 区域默认费率，RegionID 为空表示全局默认
//
// 唯一索引建在非空的 region_key 上，全局默认同样受约束。
// 自然键 (region_key, package_type, weight_slab_id) 唯一，只通过 Upsert 写入。
type RateDefault struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RegionID      *int64          `gorm:"index" json:"region_id"`
	RegionKey     int64           `gorm:"not null;default:0;uniqueIndex:uk_rate_default" json:"-"`
	PackageType   string          `gorm:"type:varchar(32);not null;uniqueIndex:uk_rate_default" json:"package_type"`
	WeightSlabID  int64           `gorm:"not null;uniqueIndex:uk_rate_default" json:"weight_slab_id"`
	BaseRate      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"base_rate"`
	ExtraPer1000g decimal.Decimal `gorm:"column:extra_per_1000g;type:decimal(14,2);not null" json:"extra_per_1000g"`
	Notes         string          `gorm:"type:varchar(256)" json:"notes"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RateDefault) TableName() string {
	return "rate_default"
}

func (d *RateDefault) BeforeSave(tx *gorm.DB) error {
	d.RegionKey = RegionKeyOf(d.RegionID)
	return nil
}

// PartyRateSlab 客户专属费率，命中时优先于 RateDefault，不做混合
type PartyRateSlab struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyID          int64           `gorm:"not null;uniqueIndex:uk_party_rate_slab" json:"party_id"`
	ShipmentType     string          `gorm:"type:varchar(32);not null;uniqueIndex:uk_party_rate_slab" json:"shipment_type"`
	ModeID           int64           `gorm:"not null;uniqueIndex:uk_party_rate_slab" json:"mode_id"`
	ServiceTypeID    int64           `gorm:"not null;uniqueIndex:uk_party_rate_slab" json:"service_type_id"`
	DistanceSlabID   int64           `gorm:"not null;uniqueIndex:uk_party_rate_slab" json:"distance_slab_id"`
	WeightSlabID     int64           `gorm:"not null;uniqueIndex:uk_party_rate_slab" json:"weight_slab_id"`
	BaseRate         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"base_rate"`
	FuelSurchargePct decimal.Decimal `gorm:"type:decimal(7,3);not null" json:"fuel_surcharge_pct"`
	PackingCharge    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"packing_charge"`
	HandlingCharge   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"handling_charge"`
	GstPct           decimal.Decimal `gorm:"type:decimal(7,3);not null" json:"gst_pct"`
	Active           bool            `gorm:"not null;index" json:"active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PartyRateSlab) TableName() string {
	return "party_rate_slab"
}
