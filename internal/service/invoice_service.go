package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courierledger/internal/auth"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/model"
	"courierledger/internal/pricing"
	"courierledger/internal/repository"
	"courierledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type InvoiceService struct {
	db          *gorm.DB
	resolver    *ResolverService
	invoiceRepo *repository.InvoiceRepository
	partyRepo   *repository.PartyRepository
}

func NewInvoiceService(db *gorm.DB, resolver *ResolverService) *InvoiceService {
	return &InvoiceService{
		db:          db,
		resolver:    resolver,
		invoiceRepo: repository.NewInvoiceRepository(db),
		partyRepo:   repository.NewPartyRepository(db),
	}
}

type InvoiceLineRequest struct {
	BookingRef     string `json:"booking_ref" validate:"required,max=64"`
	ShipmentType   string `json:"shipment_type" validate:"required,max=32"`
	ModeID         int64  `json:"mode_id" validate:"required,gt=0"`
	ServiceTypeID  int64  `json:"service_type_id" validate:"required,gt=0"`
	DistanceSlabID int64  `json:"distance_slab_id" validate:"required,gt=0"`
	WeightGrams    *int64 `json:"weight_grams" validate:"omitempty,gte=0"`
	WeightSlabID   *int64 `json:"weight_slab_id" validate:"omitempty,gt=0"`
	RegionID       *int64 `json:"region_id" validate:"omitempty,gt=0"`
}

type CreateInvoiceRequest struct {
	PartyID     int64                `json:"party_id" validate:"required,gt=0"`
	InvoiceNo   string               `json:"invoice_no" validate:"max=64"`
	InvoiceDate time.Time            `json:"invoice_date"`
	Lines       []InvoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// CreateInvoice 逐票定价后开票
//
// 定价在事务外完成；任一票无法定价则整张发票拒绝。
func (s *InvoiceService) CreateInvoice(ctx context.Context, actor *auth.User, req *CreateInvoiceRequest) (*model.Invoice, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有开票权限")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if _, err := s.partyRepo.GetByID(ctx, req.PartyID); err != nil {
		if errors.Is(err, repository.ErrPartyNotFound) {
			return nil, notFoundError(err, "客户不存在: %d", req.PartyID)
		}
		return nil, fmt.Errorf("查询客户失败: %w", err)
	}

	lines := make([]model.InvoiceLine, 0, len(req.Lines))
	total := decimal.Zero
	for i := range req.Lines {
		lr := &req.Lines[i]
		rate, unresolved, err := s.resolver.Resolve(ctx, &ResolveInput{
			PartyID:        req.PartyID,
			ShipmentType:   lr.ShipmentType,
			ModeID:         lr.ModeID,
			ServiceTypeID:  lr.ServiceTypeID,
			DistanceSlabID: lr.DistanceSlabID,
			WeightGrams:    lr.WeightGrams,
			WeightSlabID:   lr.WeightSlabID,
			RegionID:       lr.RegionID,
		})
		if err != nil {
			var verr *Error
			if errors.As(err, &verr) && verr.Kind == KindValidation {
				return nil, validationError("第 %d 票(%s): %s", i+1, lr.BookingRef, verr.Message)
			}
			return nil, err
		}
		if unresolved != nil {
			return nil, validationError("第 %d 票(%s)无法定价: %s", i+1, lr.BookingRef, unresolved.Message)
		}

		lines = append(lines, model.InvoiceLine{
			BookingRef:     lr.BookingRef,
			ShipmentType:   lr.ShipmentType,
			ModeID:         lr.ModeID,
			ServiceTypeID:  lr.ServiceTypeID,
			DistanceSlabID: lr.DistanceSlabID,
			WeightSlabID:   rate.WeightSlab.ID,
			WeightGrams:    lr.WeightGrams,
			RateSource:     rate.Source,
			RateID:         rate.RateID,
			BaseRate:       rate.Breakdown.BaseRate,
			FuelAmount:     rate.Breakdown.FuelAmount,
			PreGstTotal:    rate.Breakdown.PreGstTotal,
			GstAmount:      rate.Breakdown.GstAmount,
			Total:          rate.Breakdown.Total,
		})
		total = total.Add(rate.Breakdown.Total)
	}

	invoiceNo := strings.TrimSpace(req.InvoiceNo)
	if invoiceNo == "" {
		invoiceNo = idgen.GenerateInvoiceNo()
	}
	invoiceDate := req.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now()
	}

	invoice := &model.Invoice{
		PartyID:        req.PartyID,
		InvoiceNo:      invoiceNo,
		InvoiceDate:    invoiceDate,
		TotalAmount:    pricing.Round2(total),
		ReceivedAmount: decimal.Zero,
		Lines:          lines,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		exists, err := s.invoiceRepo.ExistsByInvoiceNo(ctx, tx, invoiceNo)
		if err != nil {
			return fmt.Errorf("查询发票号失败: %w", err)
		}
		if exists {
			return validationError("发票号已存在: %s", invoiceNo)
		}
		if err := s.invoiceRepo.Create(ctx, tx, invoice); err != nil {
			return fmt.Errorf("创建发票失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Module("invoice").WithFields(logrus.Fields{
		"invoice_no": invoice.InvoiceNo,
		"party_id":   invoice.PartyID,
		"total":      invoice.TotalAmount.StringFixed(2),
		"lines":      len(lines),
	}).Info("发票已创建")
	return invoice, nil
}

func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.GetWithLines(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return nil, notFoundError(err, "发票不存在: %d", id)
		}
		return nil, err
	}
	return invoice, nil
}
