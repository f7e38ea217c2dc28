package repository

import (
	"context"
	"errors"

	"courierledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAllocationNotFound        = errors.New("分配记录不存在")
	ErrAllocationRequestNotFound = errors.New("分配请求不存在")
)

// AllocationRepository 账本数据访问
//
// received_amount 的唯一写入口是 RecomputeInvoiceReceived。
type AllocationRepository struct {
	db *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) CreateBatch(ctx context.Context, tx *gorm.DB, allocations []*model.PaymentAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&allocations).Error
}

func (r *AllocationRepository) ListByRequestID(ctx context.Context, tx *gorm.DB, requestID string) ([]*model.PaymentAllocation, error) {
	if tx == nil {
		tx = r.db
	}
	var allocations []*model.PaymentAllocation
	err := tx.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("id ASC").
		Find(&allocations).Error
	return allocations, err
}

func (r *AllocationRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]*model.PaymentAllocation, error) {
	var allocations []*model.PaymentAllocation
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC, id ASC").
		Find(&allocations).Error
	return allocations, err
}

func (r *AllocationRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.PaymentAllocation, error) {
	if tx == nil {
		tx = r.db
	}
	var allocation model.PaymentAllocation
	err := tx.WithContext(ctx).Where("id = ?", id).First(&allocation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationNotFound
		}
		return nil, err
	}
	return &allocation, nil
}

func (r *AllocationRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	result := tx.WithContext(ctx).Where("id = ?", id).Delete(&model.PaymentAllocation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAllocationNotFound
	}
	return nil
}

func (r *AllocationRepository) sum(ctx context.Context, tx *gorm.DB, column string, id int64) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	var total decimal.Decimal
	row := tx.WithContext(ctx).
		Model(&model.PaymentAllocation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where(column+" = ?", id).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	// 部分驱动按浮点返回 SUM，统一回到两位小数
	return total.Round(2), nil
}

func (r *AllocationRepository) SumByInvoice(ctx context.Context, tx *gorm.DB, invoiceID int64) (decimal.Decimal, error) {
	return r.sum(ctx, tx, "invoice_id", invoiceID)
}

func (r *AllocationRepository) SumByPayment(ctx context.Context, tx *gorm.DB, paymentID int64) (decimal.Decimal, error) {
	return r.sum(ctx, tx, "party_payment_id", paymentID)
}

// RecomputeInvoiceReceived 用分配合计重算发票已收金额（重算而不是累加）
func (r *AllocationRepository) RecomputeInvoiceReceived(ctx context.Context, tx *gorm.DB, invoiceID int64) (decimal.Decimal, error) {
	received, err := r.SumByInvoice(ctx, tx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}

	// 调用方已在同一事务内确认发票存在；MySQL 在值未变化时 RowsAffected 为 0，不能据此判断
	err = tx.WithContext(ctx).
		Model(&model.Invoice{}).
		Where("id = ?", invoiceID).
		Update("received_amount", received).Error
	if err != nil {
		return decimal.Zero, err
	}
	return received, nil
}

// ============================================================================
// 分配请求台账
// ============================================================================

func (r *AllocationRepository) GetRequest(ctx context.Context, tx *gorm.DB, requestID string) (*model.AllocationRequest, error) {
	if tx == nil {
		tx = r.db
	}
	var req model.AllocationRequest
	err := tx.WithContext(ctx).Where("request_id = ?", requestID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocationRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *AllocationRepository) CreateRequest(ctx context.Context, tx *gorm.DB, req *model.AllocationRequest) error {
	return tx.WithContext(ctx).Create(req).Error
}

func (r *AllocationRepository) CountByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.PaymentAllocation{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	return count, err
}

func (r *AllocationRepository) UpdateRequestStatus(ctx context.Context, tx *gorm.DB, requestID, status string) error {
	return tx.WithContext(ctx).
		Model(&model.AllocationRequest{}).
		Where("request_id = ?", requestID).
		Update("status", status).Error
}

