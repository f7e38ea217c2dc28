package repository

import (
	"context"
	"errors"

	"courierledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWeightSlabNotFound = errors.New("重量段不存在")
	ErrReferenceNotFound  = errors.New("基础数据不存在")
)

type SlabRepository struct {
	db *gorm.DB
}

func NewSlabRepository(db *gorm.DB) *SlabRepository {
	return &SlabRepository{db: db}
}

// ListActiveWeightSlabs 按 min_weight_grams 升序返回全部启用的重量段
func (r *SlabRepository) ListActiveWeightSlabs(ctx context.Context) ([]model.WeightSlab, error) {
	var slabs []model.WeightSlab
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("min_weight_grams ASC, id ASC").
		Find(&slabs).Error
	return slabs, err
}

func (r *SlabRepository) ListWeightSlabs(ctx context.Context) ([]model.WeightSlab, error) {
	var slabs []model.WeightSlab
	err := r.db.WithContext(ctx).Order("min_weight_grams ASC, id ASC").Find(&slabs).Error
	return slabs, err
}

func (r *SlabRepository) GetWeightSlab(ctx context.Context, tx *gorm.DB, id int64) (*model.WeightSlab, error) {
	if tx == nil {
		tx = r.db
	}
	var slab model.WeightSlab
	err := tx.WithContext(ctx).Where("id = ?", id).First(&slab).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWeightSlabNotFound
		}
		return nil, err
	}
	return &slab, nil
}

// ListActiveWeightSlabsForUpdate 在事务内锁定全部启用重量段，用于新增时的重叠校验
func (r *SlabRepository) ListActiveWeightSlabsForUpdate(ctx context.Context, tx *gorm.DB) ([]model.WeightSlab, error) {
	var slabs []model.WeightSlab
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("active = ?", true).
		Order("min_weight_grams ASC, id ASC").
		Find(&slabs).Error
	return slabs, err
}

func (r *SlabRepository) CreateWeightSlab(ctx context.Context, tx *gorm.DB, slab *model.WeightSlab) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(slab).Error
}

func (r *SlabRepository) SetWeightSlabActive(ctx context.Context, tx *gorm.DB, id int64, active bool) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.WeightSlab{}).
		Where("id = ?", id).
		Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// MySQL 对值未变化的行返回 0，需要再确认一次是否存在
		if _, err := r.GetWeightSlab(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// 按 code 的枚举表：insert or replace by natural key
// ============================================================================
//
// 冲突规则：code 相同则以最后一次写入为准覆盖 title / active（last-write-wins）。

var codeConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "code"}},
	DoUpdates: clause.AssignmentColumns([]string{"title", "active", "updated_at"}),
}

func (r *SlabRepository) UpsertServiceType(ctx context.Context, st *model.ServiceType) (*model.ServiceType, error) {
	if err := r.db.WithContext(ctx).Clauses(codeConflict).Create(st).Error; err != nil {
		return nil, err
	}
	var out model.ServiceType
	err := r.db.WithContext(ctx).Where("code = ?", st.Code).First(&out).Error
	return &out, err
}

func (r *SlabRepository) UpsertMode(ctx context.Context, m *model.Mode) (*model.Mode, error) {
	if err := r.db.WithContext(ctx).Clauses(codeConflict).Create(m).Error; err != nil {
		return nil, err
	}
	var out model.Mode
	err := r.db.WithContext(ctx).Where("code = ?", m.Code).First(&out).Error
	return &out, err
}

func (r *SlabRepository) UpsertDistanceSlab(ctx context.Context, d *model.DistanceSlab) (*model.DistanceSlab, error) {
	if err := r.db.WithContext(ctx).Clauses(codeConflict).Create(d).Error; err != nil {
		return nil, err
	}
	var out model.DistanceSlab
	err := r.db.WithContext(ctx).Where("code = ?", d.Code).First(&out).Error
	return &out, err
}

func (r *SlabRepository) ListServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	var out []model.ServiceType
	err := r.db.WithContext(ctx).Order("code ASC").Find(&out).Error
	return out, err
}

func (r *SlabRepository) ListModes(ctx context.Context) ([]model.Mode, error) {
	var out []model.Mode
	err := r.db.WithContext(ctx).Order("code ASC").Find(&out).Error
	return out, err
}

func (r *SlabRepository) ListDistanceSlabs(ctx context.Context) ([]model.DistanceSlab, error) {
	var out []model.DistanceSlab
	err := r.db.WithContext(ctx).Order("code ASC").Find(&out).Error
	return out, err
}

// ReferencesExist 校验费率行引用的枚举都存在且启用
func (r *SlabRepository) ReferencesExist(ctx context.Context, tx *gorm.DB, modeID, serviceTypeID, distanceSlabID, weightSlabID int64) error {
	if tx == nil {
		tx = r.db
	}
	checks := []struct {
		model any
		id    int64
	}{
		{&model.Mode{}, modeID},
		{&model.ServiceType{}, serviceTypeID},
		{&model.DistanceSlab{}, distanceSlabID},
		{&model.WeightSlab{}, weightSlabID},
	}
	for _, c := range checks {
		var count int64
		err := tx.WithContext(ctx).Model(c.model).
			Where("id = ? AND active = ?", c.id, true).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrReferenceNotFound
		}
	}
	return nil
}
