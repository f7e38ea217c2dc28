package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice 发票
//
// TotalAmount 开票后不可变；ReceivedAmount 只由账本按分配记录重算写入。
type Invoice struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyID        int64           `gorm:"index;not null" json:"party_id"`
	InvoiceNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"invoice_no"`
	InvoiceDate    time.Time       `gorm:"not null" json:"invoice_date"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_amount"`
	ReceivedAmount decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"received_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Lines []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

func (Invoice) TableName() string {
	return "invoice"
}

// Outstanding 未收金额 = 总额 - 已收，最小为 0
func (i Invoice) Outstanding() decimal.Decimal {
	out := i.TotalAmount.Sub(i.ReceivedAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// InvoiceLine 一票货的计价结果快照
type InvoiceLine struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID      int64           `gorm:"index;not null" json:"invoice_id"`
	BookingRef     string          `gorm:"type:varchar(64);not null" json:"booking_ref"`
	ShipmentType   string          `gorm:"type:varchar(32);not null" json:"shipment_type"`
	ModeID         int64           `gorm:"not null" json:"mode_id"`
	ServiceTypeID  int64           `gorm:"not null" json:"service_type_id"`
	DistanceSlabID int64           `gorm:"not null" json:"distance_slab_id"`
	WeightSlabID   int64           `gorm:"not null" json:"weight_slab_id"`
	WeightGrams    *int64          `json:"weight_grams"`
	RateSource     string          `gorm:"type:varchar(16);not null" json:"rate_source"`
	RateID         int64           `gorm:"not null" json:"rate_id"`
	BaseRate       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"base_rate"`
	FuelAmount     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"fuel_amount"`
	PreGstTotal    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"pre_gst_total"`
	GstAmount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"gst_amount"`
	Total          decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`
}

func (InvoiceLine) TableName() string {
	return "invoice_line"
}
