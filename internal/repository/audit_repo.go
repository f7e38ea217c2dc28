package repository

import (
	"context"

	"courierledger/internal/model"

	"gorm.io/gorm"
)

// AuditRepository 只提供写入和查询，不存在更新/删除
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, tx *gorm.DB, audit *model.RateAudit) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(audit).Error
}

// List 按 changed_at 倒序分页；partyRateSlabID 为空时返回全部
func (r *AuditRepository) List(ctx context.Context, partyRateSlabID *int64, limit, offset int) ([]*model.RateAudit, int64, error) {
	var audits []*model.RateAudit
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RateAudit{})
	if partyRateSlabID != nil {
		query = query.Where("party_rate_slab_id = ?", *partyRateSlabID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("changed_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&audits).Error

	return audits, total, err
}

