package service

import (
	"context"
	"fmt"

	"courierledger/internal/model"
	"courierledger/internal/repository"

	"gorm.io/gorm"
)

const defaultAuditPageSize = 20

type AuditService struct {
	auditRepo *repository.AuditRepository
	maxLimit  int
}

func NewAuditService(db *gorm.DB, maxLimit int) *AuditService {
	if maxLimit <= 0 {
		maxLimit = 200
	}
	return &AuditService{
		auditRepo: repository.NewAuditRepository(db),
		maxLimit:  maxLimit,
	}
}

type AuditPage struct {
	Items  []*model.RateAudit `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// ListAudits 最新的在前；limit 为 0 取默认值，超过上限按上限截断
func (s *AuditService) ListAudits(ctx context.Context, partyRateSlabID *int64, limit, offset int) (*AuditPage, error) {
	if limit < 0 || offset < 0 {
		return nil, validationError("limit / offset 不能为负数")
	}
	if limit == 0 {
		limit = defaultAuditPageSize
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	items, total, err := s.auditRepo.List(ctx, partyRateSlabID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("查询费率审计失败: %w", err)
	}
	return &AuditPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}
