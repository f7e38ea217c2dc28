package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartyPayment 客户来款
type PartyPayment struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	PartyID    int64           `gorm:"index;not null" json:"party_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Reference  string          `gorm:"type:varchar(128)" json:"reference"`
	ReceivedAt time.Time       `gorm:"not null" json:"received_at"`
	CreatedBy  string          `gorm:"type:varchar(64);not null" json:"created_by"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PartyPayment) TableName() string {
	return "party_payment"
}

// PaymentAllocation 来款到发票的分配
//
// 【不变量】invoice.received_amount == SUM(amount) WHERE invoice_id = invoice.id
// 行创建后不修改，只在冲销流程中删除。
type PaymentAllocation struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyPaymentID int64           `gorm:"index;not null" json:"party_payment_id"`
	InvoiceID      int64           `gorm:"index;not null;uniqueIndex:uk_allocation_request" json:"invoice_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	RequestID      string          `gorm:"type:varchar(64);not null;uniqueIndex:uk_allocation_request" json:"request_id"`
	CreatedBy      string          `gorm:"type:varchar(64);not null" json:"created_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PaymentAllocation) TableName() string {
	return "payment_allocation"
}

const (
	AllocationRequestApplied           = "APPLIED"
	AllocationRequestPartiallyReversed = "PARTIALLY_REVERSED"
	AllocationRequestReversed          = "REVERSED"
)

// AllocationRequest 分配请求台账，一个 request_id 一行
//
// 冲销只删除 PaymentAllocation 并更新 Status，本行永不删除，
// 因此同一 request_id 在冲销之后重放也不会再次入账。
// Payload 为按发票 id 排序的 "invoice_id:amount" 列表，用于比对重放内容。
type AllocationRequest struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	PartyPaymentID int64           `gorm:"index;not null" json:"party_payment_id"`
	Payload        string          `gorm:"type:text;not null" json:"payload"`
	Amount         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Status         string          `gorm:"type:varchar(32);not null" json:"status"`
	CreatedBy      string          `gorm:"type:varchar(64);not null" json:"created_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AllocationRequest) TableName() string {
	return "allocation_request"
}

