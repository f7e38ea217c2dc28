package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"courierledger/internal/auth"
	"courierledger/internal/config"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/model"
	"courierledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RateAdminService 客户费率与默认费率维护
//
// 客户费率的每次新增、修改、停用都在同一事务内写一条审计；审计写失败则整个编辑回滚。
type RateAdminService struct {
	db         *gorm.DB
	cfg        *config.Config
	rateRepo   *repository.RateRepository
	slabRepo   *repository.SlabRepository
	auditRepo  *repository.AuditRepository
	partyRepo  *repository.PartyRepository
	outboxRepo *repository.OutboxRepository
	now        func() time.Time
}

func NewRateAdminService(db *gorm.DB, cfg *config.Config) *RateAdminService {
	return &RateAdminService{
		db:         db,
		cfg:        cfg,
		rateRepo:   repository.NewRateRepository(db),
		slabRepo:   repository.NewSlabRepository(db),
		auditRepo:  repository.NewAuditRepository(db),
		partyRepo:  repository.NewPartyRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		now:        time.Now,
	}
}

// RatePricing 费率的可修改部分
type RatePricing struct {
	BaseRate         decimal.Decimal `json:"base_rate"`
	FuelSurchargePct decimal.Decimal `json:"fuel_surcharge_pct"`
	PackingCharge    decimal.Decimal `json:"packing_charge"`
	HandlingCharge   decimal.Decimal `json:"handling_charge"`
	GstPct           decimal.Decimal `json:"gst_pct"`
}

func (p *RatePricing) check() error {
	return nonNegative(
		namedAmount{"base_rate", p.BaseRate},
		namedAmount{"fuel_surcharge_pct", p.FuelSurchargePct},
		namedAmount{"packing_charge", p.PackingCharge},
		namedAmount{"handling_charge", p.HandlingCharge},
		namedAmount{"gst_pct", p.GstPct},
	)
}

func (p *RatePricing) applyTo(row *model.PartyRateSlab) {
	row.BaseRate = p.BaseRate
	row.FuelSurchargePct = p.FuelSurchargePct
	row.PackingCharge = p.PackingCharge
	row.HandlingCharge = p.HandlingCharge
	row.GstPct = p.GstPct
}

type CreatePartyRateSlabRequest struct {
	PartyID        int64  `json:"party_id" validate:"required,gt=0"`
	ShipmentType   string `json:"shipment_type" validate:"required,max=32"`
	ModeID         int64  `json:"mode_id" validate:"required,gt=0"`
	ServiceTypeID  int64  `json:"service_type_id" validate:"required,gt=0"`
	DistanceSlabID int64  `json:"distance_slab_id" validate:"required,gt=0"`
	WeightSlabID   int64  `json:"weight_slab_id" validate:"required,gt=0"`
	RatePricing
}

type UpdatePartyRateSlabRequest struct {
	RatePricing
}

// rateSlabEvent 费率变更事件载荷
type rateSlabEvent struct {
	PartyRateSlabID int64                `json:"party_rate_slab_id"`
	PartyID         int64                `json:"party_id"`
	Action          string               `json:"action"`
	ChangedBy       string               `json:"changed_by"`
	ChangedAt       time.Time            `json:"changed_at"`
	Slab            *model.PartyRateSlab `json:"slab"`
}

func snapshot(row *model.PartyRateSlab) (string, error) {
	if row == nil {
		return "", nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("序列化费率快照失败: %w", err)
	}
	return string(b), nil
}

// writeAudit 审计与事件同事务写入
func (s *RateAdminService) writeAudit(ctx context.Context, tx *gorm.DB, actor *auth.User, action string, before, after *model.PartyRateSlab) error {
	beforeJSON, err := snapshot(before)
	if err != nil {
		return err
	}
	afterJSON, err := snapshot(after)
	if err != nil {
		return err
	}

	changedAt := s.now()
	audit := &model.RateAudit{
		PartyRateSlabID: after.ID,
		Action:          action,
		ChangedBy:       actor.ID,
		ChangedAt:       changedAt,
		Before:          beforeJSON,
		After:           afterJSON,
	}
	if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
		return fmt.Errorf("写入费率审计失败: %w", err)
	}

	return writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.RateChange, model.EventRateSlabChanged, rateSlabEvent{
		PartyRateSlabID: after.ID,
		PartyID:         after.PartyID,
		Action:          action,
		ChangedBy:       actor.ID,
		ChangedAt:       changedAt,
		Slab:            after,
	})
}

func (s *RateAdminService) CreatePartyRateSlab(ctx context.Context, actor *auth.User, req *CreatePartyRateSlabRequest) (*model.PartyRateSlab, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有编辑费率的权限")
	}
	req.ShipmentType = strings.TrimSpace(req.ShipmentType)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := req.RatePricing.check(); err != nil {
		return nil, err
	}

	if _, err := s.partyRepo.GetByID(ctx, req.PartyID); err != nil {
		if errors.Is(err, repository.ErrPartyNotFound) {
			return nil, notFoundError(err, "客户不存在: %d", req.PartyID)
		}
		return nil, fmt.Errorf("查询客户失败: %w", err)
	}

	row := &model.PartyRateSlab{
		PartyID:        req.PartyID,
		ShipmentType:   req.ShipmentType,
		ModeID:         req.ModeID,
		ServiceTypeID:  req.ServiceTypeID,
		DistanceSlabID: req.DistanceSlabID,
		WeightSlabID:   req.WeightSlabID,
		Active:         true,
	}
	req.RatePricing.applyTo(row)

	key := repository.PartyRateKey{
		PartyID:        row.PartyID,
		ShipmentType:   row.ShipmentType,
		ModeID:         row.ModeID,
		ServiceTypeID:  row.ServiceTypeID,
		DistanceSlabID: row.DistanceSlabID,
		WeightSlabID:   row.WeightSlabID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.slabRepo.ReferencesExist(ctx, tx, row.ModeID, row.ServiceTypeID, row.DistanceSlabID, row.WeightSlabID); err != nil {
			if errors.Is(err, repository.ErrReferenceNotFound) {
				return validationError("mode / serviceType / distanceSlab / weightSlab 不存在或已停用")
			}
			return err
		}

		// 停用的行同样占用唯一键，重新启用请走修改
		existing, err := s.rateRepo.FindPartyRateByKey(ctx, tx, key)
		if err != nil {
			return fmt.Errorf("查询客户费率失败: %w", err)
		}
		if existing != nil {
			return validationError("该组合已存在客户费率 #%d", existing.ID)
		}

		if err := s.rateRepo.CreatePartyRateSlab(ctx, tx, row); err != nil {
			// 并发创建同一组合时，后提交的一方在唯一索引上失败
			if repository.IsDuplicateKey(err) {
				return validationError("该组合已存在客户费率")
			}
			return fmt.Errorf("创建客户费率失败: %w", err)
		}
		return s.writeAudit(ctx, tx, actor, model.AuditActionCreate, nil, row)
	})
	if err != nil {
		logging.LogError("rate_admin", "CreatePartyRateSlab", "transaction", key, err)
		return nil, err
	}

	logging.Module("rate_admin").WithField("party_rate_slab_id", row.ID).Info("客户费率已创建")
	return row, nil
}

// UpdatePartyRateSlab 修改价格字段；停用的行修改后重新启用
func (s *RateAdminService) UpdatePartyRateSlab(ctx context.Context, actor *auth.User, id int64, req *UpdatePartyRateSlabRequest) (*model.PartyRateSlab, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有编辑费率的权限")
	}
	if err := req.RatePricing.check(); err != nil {
		return nil, err
	}

	var updated *model.PartyRateSlab
	err := s.db.Transaction(func(tx *gorm.DB) error {
		before, err := s.rateRepo.GetPartyRateSlabForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrRateSlabNotFound) {
				return notFoundError(err, "客户费率不存在: %d", id)
			}
			return err
		}

		after := *before
		req.RatePricing.applyTo(&after)
		after.Active = true
		if err := s.rateRepo.SavePartyRateSlab(ctx, tx, &after); err != nil {
			return fmt.Errorf("更新客户费率失败: %w", err)
		}
		if err := s.writeAudit(ctx, tx, actor, model.AuditActionUpdate, before, &after); err != nil {
			return err
		}
		updated = &after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeactivatePartyRateSlab 软删除，重复停用不再写审计
func (s *RateAdminService) DeactivatePartyRateSlab(ctx context.Context, actor *auth.User, id int64) (*model.PartyRateSlab, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有编辑费率的权限")
	}

	var result *model.PartyRateSlab
	err := s.db.Transaction(func(tx *gorm.DB) error {
		before, err := s.rateRepo.GetPartyRateSlabForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrRateSlabNotFound) {
				return notFoundError(err, "客户费率不存在: %d", id)
			}
			return err
		}
		if !before.Active {
			result = before
			return nil
		}

		after := *before
		after.Active = false
		if err := s.rateRepo.SavePartyRateSlab(ctx, tx, &after); err != nil {
			return fmt.Errorf("停用客户费率失败: %w", err)
		}
		if err := s.writeAudit(ctx, tx, actor, model.AuditActionDeactivate, before, &after); err != nil {
			return err
		}
		result = &after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RateAdminService) ListPartyRateSlabs(ctx context.Context, partyID int64) ([]model.PartyRateSlab, error) {
	if partyID <= 0 {
		return nil, validationError("partyId 必填")
	}
	return s.rateRepo.ListPartyRateSlabs(ctx, partyID)
}

// ============================================================================
// 默认费率
// ============================================================================

type UpsertRateDefaultRequest struct {
	RegionID      *int64          `json:"region_id" validate:"omitempty,gt=0"`
	PackageType   string          `json:"package_type" validate:"required,max=32"`
	WeightSlabID  int64           `json:"weight_slab_id" validate:"required,gt=0"`
	BaseRate      decimal.Decimal `json:"base_rate"`
	ExtraPer1000g decimal.Decimal `json:"extra_per_1000g"`
	Notes         string          `json:"notes" validate:"max=256"`
}

// UpsertRateDefault 按 (region, package_type, weight_slab) 插入或覆盖，后写者胜
func (s *RateAdminService) UpsertRateDefault(ctx context.Context, actor *auth.User, req *UpsertRateDefaultRequest) (*model.RateDefault, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有编辑费率的权限")
	}
	req.PackageType = strings.TrimSpace(req.PackageType)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := nonNegative(
		namedAmount{"base_rate", req.BaseRate},
		namedAmount{"extra_per_1000g", req.ExtraPer1000g},
	); err != nil {
		return nil, err
	}

	var saved *model.RateDefault
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.slabRepo.GetWeightSlab(ctx, tx, req.WeightSlabID); err != nil {
			if errors.Is(err, repository.ErrWeightSlabNotFound) {
				return validationError("重量段不存在: %d", req.WeightSlabID)
			}
			return err
		}

		row, err := s.rateRepo.UpsertRateDefault(ctx, tx, &model.RateDefault{
			RegionID:      req.RegionID,
			PackageType:   req.PackageType,
			WeightSlabID:  req.WeightSlabID,
			BaseRate:      req.BaseRate,
			ExtraPer1000g: req.ExtraPer1000g,
			Notes:         req.Notes,
		})
		if err != nil {
			return fmt.Errorf("保存默认费率失败: %w", err)
		}
		saved = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *RateAdminService) ListRateDefaults(ctx context.Context, packageType string) ([]model.RateDefault, error) {
	return s.rateRepo.ListRateDefaults(ctx, strings.TrimSpace(packageType))
}
