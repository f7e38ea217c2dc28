package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"courierledger/internal/auth"
	"courierledger/internal/infrastructure/cache"
	"courierledger/internal/model"
	"courierledger/internal/repository"

	"gorm.io/gorm"
)

const activeSlabsKey = "weight_slabs:active"

// CatalogService 重量段 / 距离段 / 服务类型 / 运输方式
//
// 启用的重量段列表缓存在进程内，任何写操作后整体失效。
type CatalogService struct {
	db       *gorm.DB
	slabRepo *repository.SlabRepository
	slabs    *cache.LookupCache[string, []model.WeightSlab]
}

func NewCatalogService(db *gorm.DB, slabCache *cache.LookupCache[string, []model.WeightSlab]) *CatalogService {
	return &CatalogService{
		db:       db,
		slabRepo: repository.NewSlabRepository(db),
		slabs:    slabCache,
	}
}

func (s *CatalogService) activeSlabs(ctx context.Context) ([]model.WeightSlab, error) {
	return s.slabs.GetOrLoad(ctx, activeSlabsKey, s.slabRepo.ListActiveWeightSlabs)
}

// FindWeightSlab 返回包含该重量的启用重量段
//
// 按 min_weight_grams 升序取第一个命中的段，防止误配置的重叠区间产生歧义。
// 没有命中返回 found=false，不是错误。
func (s *CatalogService) FindWeightSlab(ctx context.Context, weightGrams int64) (*model.WeightSlab, bool, error) {
	if weightGrams < 0 {
		return nil, false, validationError("重量不能为负数: %d", weightGrams)
	}

	slabs, err := s.activeSlabs(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("查询重量段失败: %w", err)
	}

	for i := range slabs {
		if slabs[i].Contains(weightGrams) {
			slab := slabs[i]
			return &slab, true, nil
		}
	}
	return nil, false, nil
}

// GetActiveWeightSlab 按 id 取启用的重量段，不存在或已停用返回 found=false
func (s *CatalogService) GetActiveWeightSlab(ctx context.Context, id int64) (*model.WeightSlab, bool, error) {
	slabs, err := s.activeSlabs(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("查询重量段失败: %w", err)
	}
	for i := range slabs {
		if slabs[i].ID == id {
			slab := slabs[i]
			return &slab, true, nil
		}
	}
	return nil, false, nil
}

func (s *CatalogService) ListWeightSlabs(ctx context.Context) ([]model.WeightSlab, error) {
	return s.slabRepo.ListWeightSlabs(ctx)
}

type CreateWeightSlabRequest struct {
	Name           string `json:"name" binding:"required"`
	MinWeightGrams int64  `json:"min_weight_grams"`
	MaxWeightGrams *int64 `json:"max_weight_grams"`
}

// CreateWeightSlab 新增重量段，与任一启用段重叠时拒绝
func (s *CatalogService) CreateWeightSlab(ctx context.Context, actor *auth.User, req *CreateWeightSlabRequest) (*model.WeightSlab, error) {
	if !auth.HasRole(actor, auth.RoleAdmin) {
		return nil, forbiddenError("需要管理员权限")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, validationError("重量段名称不能为空")
	}
	if req.MinWeightGrams < 0 {
		return nil, validationError("起始重量不能为负数")
	}
	if req.MaxWeightGrams != nil && *req.MaxWeightGrams <= req.MinWeightGrams {
		return nil, validationError("结束重量必须大于起始重量")
	}

	slab := &model.WeightSlab{
		Name:           strings.TrimSpace(req.Name),
		MinWeightGrams: req.MinWeightGrams,
		MaxWeightGrams: req.MaxWeightGrams,
		Active:         true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		active, err := s.slabRepo.ListActiveWeightSlabsForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		for _, other := range active {
			if slab.Overlaps(other) {
				return validationError("与重量段 %s(#%d) 区间重叠", other.Name, other.ID)
			}
		}
		return s.slabRepo.CreateWeightSlab(ctx, tx, slab)
	})
	if err != nil {
		return nil, err
	}

	s.slabs.InvalidateAll()
	return slab, nil
}

// DeactivateWeightSlab 软删除；历史发票明细仍引用该段
func (s *CatalogService) DeactivateWeightSlab(ctx context.Context, actor *auth.User, id int64) error {
	if !auth.HasRole(actor, auth.RoleAdmin) {
		return forbiddenError("需要管理员权限")
	}
	if err := s.slabRepo.SetWeightSlabActive(ctx, nil, id, false); err != nil {
		if errors.Is(err, repository.ErrWeightSlabNotFound) {
			return notFoundError(err, "重量段不存在: %d", id)
		}
		return err
	}
	s.slabs.InvalidateAll()
	return nil
}

// ReferenceInput 枚举表的 upsert 入参
type ReferenceInput struct {
	Code   string `json:"code" binding:"required"`
	Title  string `json:"title" binding:"required"`
	Active *bool  `json:"active"`
}

func (in *ReferenceInput) normalize() (code, title string, active bool, err error) {
	code = strings.ToUpper(strings.TrimSpace(in.Code))
	title = strings.TrimSpace(in.Title)
	if code == "" || title == "" {
		return "", "", false, validationError("code 和 title 不能为空")
	}
	if len(code) > 32 {
		return "", "", false, validationError("code 过长: %s", code)
	}
	active = true
	if in.Active != nil {
		active = *in.Active
	}
	return code, title, active, nil
}

func (s *CatalogService) UpsertServiceType(ctx context.Context, actor *auth.User, in *ReferenceInput) (*model.ServiceType, error) {
	if !auth.HasRole(actor, auth.RoleAdmin) {
		return nil, forbiddenError("需要管理员权限")
	}
	code, title, active, err := in.normalize()
	if err != nil {
		return nil, err
	}
	return s.slabRepo.UpsertServiceType(ctx, &model.ServiceType{Code: code, Title: title, Active: active})
}

func (s *CatalogService) UpsertMode(ctx context.Context, actor *auth.User, in *ReferenceInput) (*model.Mode, error) {
	if !auth.HasRole(actor, auth.RoleAdmin) {
		return nil, forbiddenError("需要管理员权限")
	}
	code, title, active, err := in.normalize()
	if err != nil {
		return nil, err
	}
	return s.slabRepo.UpsertMode(ctx, &model.Mode{Code: code, Title: title, Active: active})
}

func (s *CatalogService) UpsertDistanceSlab(ctx context.Context, actor *auth.User, in *ReferenceInput) (*model.DistanceSlab, error) {
	if !auth.HasRole(actor, auth.RoleAdmin) {
		return nil, forbiddenError("需要管理员权限")
	}
	code, title, active, err := in.normalize()
	if err != nil {
		return nil, err
	}
	return s.slabRepo.UpsertDistanceSlab(ctx, &model.DistanceSlab{Code: code, Title: title, Active: active})
}

func (s *CatalogService) ListServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	return s.slabRepo.ListServiceTypes(ctx)
}

func (s *CatalogService) ListModes(ctx context.Context) ([]model.Mode, error) {
	return s.slabRepo.ListModes(ctx)
}

func (s *CatalogService) ListDistanceSlabs(ctx context.Context) ([]model.DistanceSlab, error) {
	return s.slabRepo.ListDistanceSlabs(ctx)
}
