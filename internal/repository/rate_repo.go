package repository

import (
	"context"
	"errors"

	"courierledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRateSlabNotFound = errors.New("客户费率不存在")
)

// PartyRateKey 客户费率的完整匹配键
type PartyRateKey struct {
	PartyID        int64
	ShipmentType   string
	ModeID         int64
	ServiceTypeID  int64
	DistanceSlabID int64
	WeightSlabID   int64
}

type RateRepository struct {
	db *gorm.DB
}

func NewRateRepository(db *gorm.DB) *RateRepository {
	return &RateRepository{db: db}
}

func (r *RateRepository) whereKey(tx *gorm.DB, key PartyRateKey) *gorm.DB {
	return tx.Where(
		"party_id = ? AND shipment_type = ? AND mode_id = ? AND service_type_id = ? AND distance_slab_id = ? AND weight_slab_id = ?",
		key.PartyID, key.ShipmentType, key.ModeID, key.ServiceTypeID, key.DistanceSlabID, key.WeightSlabID,
	)
}

// FindActivePartyRates 返回匹配键的启用费率，最多 2 行（多于 1 行即数据异常）
func (r *RateRepository) FindActivePartyRates(ctx context.Context, key PartyRateKey) ([]model.PartyRateSlab, error) {
	var rows []model.PartyRateSlab
	err := r.whereKey(r.db.WithContext(ctx), key).
		Where("active = ?", true).
		Order("id ASC").
		Limit(2).
		Find(&rows).Error
	return rows, err
}

// FindPartyRateByKey 不限启用状态，用于新建前的唯一性检查
func (r *RateRepository) FindPartyRateByKey(ctx context.Context, tx *gorm.DB, key PartyRateKey) (*model.PartyRateSlab, error) {
	if tx == nil {
		tx = r.db
	}
	var row model.PartyRateSlab
	err := r.whereKey(tx.WithContext(ctx), key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetPartyRateSlabForUpdate 行锁读取，并发编辑同一行时串行化
func (r *RateRepository) GetPartyRateSlabForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.PartyRateSlab, error) {
	var row model.PartyRateSlab
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRateSlabNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *RateRepository) CreatePartyRateSlab(ctx context.Context, tx *gorm.DB, row *model.PartyRateSlab) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(row).Error
}

func (r *RateRepository) SavePartyRateSlab(ctx context.Context, tx *gorm.DB, row *model.PartyRateSlab) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Save(row).Error
}

func (r *RateRepository) ListPartyRateSlabs(ctx context.Context, partyID int64) ([]model.PartyRateSlab, error) {
	var rows []model.PartyRateSlab
	err := r.db.WithContext(ctx).
		Where("party_id = ?", partyID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ============================================================================
// 默认费率
// ============================================================================

func whereRegion(tx *gorm.DB, regionID *int64) *gorm.DB {
	return tx.Where("region_key = ?", model.RegionKeyOf(regionID))
}

// FindRateDefaults 精确匹配 (region, package_type, weight_slab)，最多 2 行
func (r *RateRepository) FindRateDefaults(ctx context.Context, regionID *int64, packageType string, weightSlabID int64) ([]model.RateDefault, error) {
	var rows []model.RateDefault
	q := r.db.WithContext(ctx).Where("package_type = ? AND weight_slab_id = ?", packageType, weightSlabID)
	err := whereRegion(q, regionID).Order("id ASC").Limit(2).Find(&rows).Error
	return rows, err
}

var rateDefaultConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "region_key"}, {Name: "package_type"}, {Name: "weight_slab_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"base_rate", "extra_per_1000g", "notes", "updated_at"}),
}

// UpsertRateDefault 按自然键插入或覆盖
//
// 冲突规则：last-write-wins，覆盖 base_rate / extra_per_1000g / notes。
// 全局默认的 region_key 为 0，并发写入由唯一索引收敛到同一行。
func (r *RateRepository) UpsertRateDefault(ctx context.Context, tx *gorm.DB, in *model.RateDefault) (*model.RateDefault, error) {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Clauses(rateDefaultConflict).Create(in).Error; err != nil {
		return nil, err
	}

	var saved model.RateDefault
	q := tx.WithContext(ctx).Where("package_type = ? AND weight_slab_id = ?", in.PackageType, in.WeightSlabID)
	if err := whereRegion(q, in.RegionID).First(&saved).Error; err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *RateRepository) ListRateDefaults(ctx context.Context, packageType string) ([]model.RateDefault, error) {
	var rows []model.RateDefault
	q := r.db.WithContext(ctx).Model(&model.RateDefault{})
	if packageType != "" {
		q = q.Where("package_type = ?", packageType)
	}
	err := q.Order("package_type ASC, weight_slab_id ASC, id ASC").Find(&rows).Error
	return rows, err
}
