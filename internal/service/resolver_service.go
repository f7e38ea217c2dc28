package service

import (
	"context"
	"fmt"
	"strings"

	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/model"
	"courierledger/internal/pricing"
	"courierledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnresolvedReason 无法定价的原因
type UnresolvedReason string

const (
	ReasonNoWeightSlab UnresolvedReason = "NO_WEIGHT_SLAB"
	ReasonNoDefault    UnresolvedReason = "NO_DEFAULT"
)

// Unresolved "未配置费率" 是正常业务结果，不是错误
type Unresolved struct {
	Reason  UnresolvedReason `json:"reason"`
	Message string           `json:"message"`
}

// ResolveInput 一票货的分类属性；WeightGrams 与 WeightSlabID 至少给一个
type ResolveInput struct {
	PartyID        int64
	ShipmentType   string
	ModeID         int64
	ServiceTypeID  int64
	DistanceSlabID int64
	WeightGrams    *int64
	WeightSlabID   *int64
	// RegionID 来自收件地址；为空时按客户所属区域
	RegionID *int64
}

// ResolvedRate 定价结果
type ResolvedRate struct {
	Source     string            `json:"source"`
	RateID     int64             `json:"rate_id"`
	RegionID   *int64            `json:"region_id,omitempty"`
	WeightSlab model.WeightSlab  `json:"weight_slab"`
	Breakdown  pricing.Breakdown `json:"breakdown"`
}

// ResolverService 费率解析
//
//  1. 给了重量则先定位重量段
//  2. 客户专属费率（完整元组匹配）命中即为最终结果，不与默认费率混合
//  3. 否则取区域默认费率，区域专属优先于全局（region 为空）
//  4. 按命中的行计算价格明细
type ResolverService struct {
	catalog    *CatalogService
	rateRepo   *repository.RateRepository
	parties    PartyDirectory
	defaultGst decimal.Decimal
}

func NewResolverService(db *gorm.DB, catalog *CatalogService, parties PartyDirectory, defaultGst decimal.Decimal) *ResolverService {
	return &ResolverService{
		catalog:    catalog,
		rateRepo:   repository.NewRateRepository(db),
		parties:    parties,
		defaultGst: defaultGst,
	}
}

func (in *ResolveInput) validate() error {
	switch {
	case in.PartyID <= 0:
		return validationError("partyId 必填")
	case strings.TrimSpace(in.ShipmentType) == "":
		return validationError("shipmentType 必填")
	case in.ModeID <= 0:
		return validationError("mode 必填")
	case in.ServiceTypeID <= 0:
		return validationError("serviceType 必填")
	case in.DistanceSlabID <= 0:
		return validationError("distanceSlab 必填")
	case in.WeightGrams == nil && in.WeightSlabID == nil:
		return validationError("weightGrams 与 weightSlabId 至少提供一个")
	case in.WeightGrams != nil && *in.WeightGrams < 0:
		return validationError("重量不能为负数")
	}
	return nil
}

// Resolve 返回 (结果, nil, nil) 或 (nil, 未解析原因, nil)；err 只用于输入错误和系统错误
func (s *ResolverService) Resolve(ctx context.Context, in *ResolveInput) (*ResolvedRate, *Unresolved, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	slab, unresolved, err := s.resolveWeightSlab(ctx, in)
	if err != nil || unresolved != nil {
		return nil, unresolved, err
	}

	key := repository.PartyRateKey{
		PartyID:        in.PartyID,
		ShipmentType:   in.ShipmentType,
		ModeID:         in.ModeID,
		ServiceTypeID:  in.ServiceTypeID,
		DistanceSlabID: in.DistanceSlabID,
		WeightSlabID:   slab.ID,
	}
	partyRates, err := s.rateRepo.FindActivePartyRates(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("查询客户费率失败: %w", err)
	}
	if len(partyRates) > 1 {
		ierr := integrityError("客户费率重复: party=%d shipment=%s mode=%d service=%d distance=%d weight_slab=%d 命中 #%d 与 #%d",
			key.PartyID, key.ShipmentType, key.ModeID, key.ServiceTypeID, key.DistanceSlabID, key.WeightSlabID,
			partyRates[0].ID, partyRates[1].ID)
		logging.LogError("resolver", "Resolve", "party_rate_slab", key, ierr)
		return nil, nil, ierr
	}
	if len(partyRates) == 1 {
		row := partyRates[0]
		return &ResolvedRate{
			Source:     model.RateSourceParty,
			RateID:     row.ID,
			WeightSlab: *slab,
			Breakdown: pricing.ComputePrice(
				row.BaseRate,
				row.FuelSurchargePct,
				row.HandlingCharge.Add(row.PackingCharge),
				row.GstPct,
			),
		}, nil, nil
	}

	return s.resolveDefault(ctx, in, slab)
}

func (s *ResolverService) resolveWeightSlab(ctx context.Context, in *ResolveInput) (*model.WeightSlab, *Unresolved, error) {
	if in.WeightGrams != nil {
		slab, found, err := s.catalog.FindWeightSlab(ctx, *in.WeightGrams)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			return nil, &Unresolved{
				Reason:  ReasonNoWeightSlab,
				Message: fmt.Sprintf("重量 %dg 没有对应的重量段", *in.WeightGrams),
			}, nil
		}
		if in.WeightSlabID != nil && *in.WeightSlabID != slab.ID {
			return nil, nil, validationError("重量 %dg 属于重量段 #%d，与传入的 #%d 不一致", *in.WeightGrams, slab.ID, *in.WeightSlabID)
		}
		return slab, nil, nil
	}

	slab, found, err := s.catalog.GetActiveWeightSlab(ctx, *in.WeightSlabID)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, &Unresolved{
			Reason:  ReasonNoWeightSlab,
			Message: fmt.Sprintf("重量段 #%d 不存在或已停用", *in.WeightSlabID),
		}, nil
	}
	return slab, nil, nil
}

func (s *ResolverService) resolveDefault(ctx context.Context, in *ResolveInput, slab *model.WeightSlab) (*ResolvedRate, *Unresolved, error) {
	regionID := in.RegionID
	if regionID == nil {
		r, err := s.parties.PartyRegion(ctx, in.PartyID)
		if err != nil {
			return nil, nil, fmt.Errorf("查询客户区域失败: %w", err)
		}
		regionID = r
	}

	// 区域专属在前，全局在后
	candidates := []*int64{nil}
	if regionID != nil {
		candidates = []*int64{regionID, nil}
	}

	for _, region := range candidates {
		rows, err := s.rateRepo.FindRateDefaults(ctx, region, in.ShipmentType, slab.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("查询默认费率失败: %w", err)
		}
		if len(rows) > 1 {
			ierr := integrityError("默认费率重复: package_type=%s weight_slab=%d 命中 #%d 与 #%d",
				in.ShipmentType, slab.ID, rows[0].ID, rows[1].ID)
			logging.LogError("resolver", "resolveDefault", "rate_default", rows, ierr)
			return nil, nil, ierr
		}
		if len(rows) == 0 {
			continue
		}

		row := rows[0]
		base := row.BaseRate
		if in.WeightGrams != nil {
			units := pricing.ExtraWeightUnits(*in.WeightGrams, slab.MinWeightGrams)
			base = base.Add(row.ExtraPer1000g.Mul(decimal.NewFromInt(units)))
		}
		return &ResolvedRate{
			Source:     model.RateSourceDefault,
			RateID:     row.ID,
			RegionID:   row.RegionID,
			WeightSlab: *slab,
			Breakdown:  pricing.ComputePrice(base, decimal.Zero, decimal.Zero, s.defaultGst),
		}, nil, nil
	}

	return nil, &Unresolved{
		Reason:  ReasonNoDefault,
		Message: fmt.Sprintf("客户 %d 的 %s/重量段 #%d 未配置费率", in.PartyID, in.ShipmentType, slab.ID),
	}, nil
}
