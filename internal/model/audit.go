package model

import (
	"time"
)

const (
	AuditActionCreate     = "CREATE"
	AuditActionUpdate     = "UPDATE"
	AuditActionDeactivate = "DEACTIVATE"
)

// RateAudit 费率变更审计
//
// 只追加，不修改，不删除。与 PartyRateSlab 的写入处于同一事务。
type RateAudit struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyRateSlabID int64     `gorm:"index;not null" json:"party_rate_slab_id"`
	Action          string    `gorm:"type:varchar(16);not null" json:"action"`
	ChangedBy       string    `gorm:"type:varchar(64);not null" json:"changed_by"`
	ChangedAt       time.Time `gorm:"index;not null" json:"changed_at"`
	Before          string    `gorm:"type:text" json:"before"`
	After           string    `gorm:"type:text;not null" json:"after"`
}

func (RateAudit) TableName() string {
	return "rate_audit"
}
