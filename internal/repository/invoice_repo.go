package repository

import (
	"context"
	"errors"

	"courierledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvoiceNotFound = errors.New("发票不存在")
	ErrInvoiceNoExists = errors.New("发票号已存在")
)

// InvoiceRepository 不提供写 received_amount 的方法，该字段归账本所有
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create 连同明细一起写入
func (r *InvoiceRepository) Create(ctx context.Context, tx *gorm.DB, invoice *model.Invoice) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(invoice).Error
}

func (r *InvoiceRepository) ExistsByInvoiceNo(ctx context.Context, tx *gorm.DB, invoiceNo string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Invoice{}).
		Where("invoice_no = ?", invoiceNo).
		Count(&count).Error
	return count > 0, err
}

func (r *InvoiceRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Invoice, error) {
	if tx == nil {
		tx = r.db
	}
	var invoice model.Invoice
	err := tx.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *InvoiceRepository) GetWithLines(ctx context.Context, id int64) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// GetByIDs 返回 id -> 发票；缺失的 id 不在结果中
func (r *InvoiceRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]*model.Invoice, error) {
	if tx == nil {
		tx = r.db
	}
	var invoices []*model.Invoice
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&invoices).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]*model.Invoice, len(invoices))
	for _, inv := range invoices {
		out[inv.ID] = inv
	}
	return out, nil
}

// LockByIDs 按 id 升序加行锁，多张发票的加锁顺序固定，避免死锁
func (r *InvoiceRepository) LockByIDs(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]*model.Invoice, error) {
	var invoices []*model.Invoice
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*model.Invoice, len(invoices))
	for _, inv := range invoices {
		out[inv.ID] = inv
	}
	return out, nil
}

// ListAfterID 按 id 游标分批扫描，供对账任务使用
func (r *InvoiceRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*model.Invoice, error) {
	var invoices []*model.Invoice
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}
