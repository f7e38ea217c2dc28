package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"courierledger/internal/auth"
	"courierledger/internal/config"
	"courierledger/internal/infrastructure/lock"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/model"
	"courierledger/internal/repository"
	"courierledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerService 来款分配账本
//
// 【不变量】每张发票 received_amount == 该发票全部分配金额之和。
// 分配只会整体成功或整体失败，received_amount 只通过 RecomputeInvoiceReceived 写入。
type LedgerService struct {
	db             *gorm.DB
	cfg            *config.Config
	locker         lock.Locker
	paymentRepo    *repository.PaymentRepository
	allocationRepo *repository.AllocationRepository
	invoiceRepo    *repository.InvoiceRepository
	partyRepo      *repository.PartyRepository
	outboxRepo     *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:             db,
		cfg:            cfg,
		locker:         locker,
		paymentRepo:    repository.NewPaymentRepository(db),
		allocationRepo: repository.NewAllocationRepository(db),
		invoiceRepo:    repository.NewInvoiceRepository(db),
		partyRepo:      repository.NewPartyRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

// ============================================================================
// 来款登记
// ============================================================================

type RecordPaymentRequest struct {
	PartyID    int64           `json:"party_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference" validate:"max=128"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (s *LedgerService) RecordPayment(ctx context.Context, actor *auth.User, req *RecordPaymentRequest) (*model.PartyPayment, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有登记来款的权限")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := checkAmount("amount", req.Amount); err != nil {
		return nil, err
	}

	if _, err := s.partyRepo.GetByID(ctx, req.PartyID); err != nil {
		if errors.Is(err, repository.ErrPartyNotFound) {
			return nil, notFoundError(err, "客户不存在: %d", req.PartyID)
		}
		return nil, fmt.Errorf("查询客户失败: %w", err)
	}

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	payment := &model.PartyPayment{
		PaymentNo:  idgen.GeneratePaymentNo(),
		PartyID:    req.PartyID,
		Amount:     req.Amount,
		Reference:  strings.TrimSpace(req.Reference),
		ReceivedAt: receivedAt,
		CreatedBy:  actor.ID,
	}
	if err := s.paymentRepo.Create(ctx, nil, payment); err != nil {
		return nil, fmt.Errorf("登记来款失败: %w", err)
	}
	return payment, nil
}

// checkAmount 金额必须为正且最多两位小数
func checkAmount(name string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError("%s 必须大于 0", name)
	}
	if !amount.Equal(amount.Round(2)) {
		return validationError("%s 最多两位小数: %s", name, amount.String())
	}
	return nil
}

// ============================================================================
// 分配
// ============================================================================

type AllocationItem struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type AllocateRequest struct {
	RequestID      string           `json:"request_id" validate:"required,max=64"`
	PartyPaymentID int64            `json:"party_payment_id" validate:"required,gt=0"`
	Allocations    []AllocationItem `json:"allocations" validate:"required,min=1,dive"`
}

// InvoiceBalance 发票当前收款状态
type InvoiceBalance struct {
	InvoiceID   int64           `json:"invoice_id"`
	InvoiceNo   string          `json:"invoice_no"`
	Total       decimal.Decimal `json:"total"`
	Received    decimal.Decimal `json:"received"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func balanceOf(inv *model.Invoice) InvoiceBalance {
	return InvoiceBalance{
		InvoiceID:   inv.ID,
		InvoiceNo:   inv.InvoiceNo,
		Total:       inv.TotalAmount,
		Received:    inv.ReceivedAmount,
		Outstanding: inv.Outstanding(),
	}
}

type AllocationResult struct {
	RequestID      string                     `json:"request_id"`
	PartyPaymentID int64                      `json:"party_payment_id"`
	Allocations    []*model.PaymentAllocation `json:"allocations"`
	Invoices       []InvoiceBalance           `json:"invoices"`
	// Status 见 model.AllocationRequest*；冲销后重放时 Allocations 只含未冲销的部分
	Status string `json:"status"`
	// Replayed 为 true 表示同一 request_id 的重放，没有写入任何数据
	Replayed bool `json:"replayed"`
}

// allocationEvent 分配 / 冲销事件载荷
type allocationEvent struct {
	RequestID      string                     `json:"request_id,omitempty"`
	PartyPaymentID int64                      `json:"party_payment_id"`
	Allocations    []*model.PaymentAllocation `json:"allocations"`
	Invoices       []InvoiceBalance           `json:"invoices"`
	Operator       string                     `json:"operator"`
	OccurredAt     time.Time                  `json:"occurred_at"`
}

func (req *AllocateRequest) normalize() error {
	req.RequestID = strings.TrimSpace(req.RequestID)
	if err := validateStruct(req); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(req.Allocations))
	for _, item := range req.Allocations {
		if _, dup := seen[item.InvoiceID]; dup {
			return validationError("同一请求内发票重复: %d", item.InvoiceID)
		}
		seen[item.InvoiceID] = struct{}{}
		if err := checkAmount(fmt.Sprintf("发票 %d 的分配金额", item.InvoiceID), item.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (req *AllocateRequest) invoiceIDs() []int64 {
	ids := make([]int64, 0, len(req.Allocations))
	for _, item := range req.Allocations {
		ids = append(ids, item.InvoiceID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// fingerprint 按发票 id 排序的 "invoice_id:amount" 列表，与请求台账中的 Payload 比对
func (req *AllocateRequest) fingerprint() string {
	items := make([]AllocationItem, len(req.Allocations))
	copy(items, req.Allocations)
	sort.Slice(items, func(i, j int) bool { return items[i].InvoiceID < items[j].InvoiceID })
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%d:%s", item.InvoiceID, item.Amount.StringFixed(2)))
	}
	return strings.Join(parts, ",")
}

func (req *AllocateRequest) total() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range req.Allocations {
		sum = sum.Add(item.Amount)
	}
	return sum
}

// Allocate 把一笔来款分配到多张发票
//
//  1. 幂等检查（request_id，查请求台账）
//  2. 按来款加分布式锁
//  3. 事务内：锁来款行 → 再次幂等检查 → 锁发票行 → 超额校验 → 写台账和分配 → 重算已收 → 写 outbox
//
// 台账行不随冲销删除：同一 request_id 冲销后再次提交只返回当前状态，不会重新入账。
// 冲销后需要重新分配必须使用新的 request_id。
func (s *LedgerService) Allocate(ctx context.Context, actor *auth.User, req *AllocateRequest) (*AllocationResult, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有分配来款的权限")
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	// 幂等校验
	stored, err := s.allocationRepo.GetRequest(ctx, nil, req.RequestID)
	if err == nil {
		return s.replay(ctx, nil, req, stored)
	}
	if !errors.Is(err, repository.ErrAllocationRequestNotFound) {
		return nil, fmt.Errorf("查询分配请求失败: %w", err)
	}

	if _, err := s.paymentRepo.GetByID(ctx, req.PartyPaymentID); err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, notFoundError(err, "来款不存在: %d", req.PartyPaymentID)
		}
		return nil, fmt.Errorf("查询来款失败: %w", err)
	}

	unlock, err := s.locker.Acquire(ctx, lock.PaymentLockKey(req.PartyPaymentID), req.RequestID)
	if err != nil {
		return nil, newError(KindBusy, err, "系统繁忙，请稍后重试")
	}
	defer unlock()

	var result *AllocationResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.GetByIDForUpdate(ctx, tx, req.PartyPaymentID)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentNotFound) {
				return notFoundError(err, "来款不存在: %d", req.PartyPaymentID)
			}
			return fmt.Errorf("锁定来款失败: %w", err)
		}

		// 获取锁后再次检查幂等
		stored, err := s.allocationRepo.GetRequest(ctx, tx, req.RequestID)
		if err == nil {
			result, err = s.replay(ctx, tx, req, stored)
			return err
		}
		if !errors.Is(err, repository.ErrAllocationRequestNotFound) {
			return fmt.Errorf("查询分配请求失败: %w", err)
		}

		ids := req.invoiceIDs()
		invoices, err := s.invoiceRepo.LockByIDs(ctx, tx, ids)
		if err != nil {
			return fmt.Errorf("锁定发票失败: %w", err)
		}

		allocated, err := s.allocationRepo.SumByPayment(ctx, tx, payment.ID)
		if err != nil {
			return fmt.Errorf("统计来款已分配金额失败: %w", err)
		}
		requested := req.total()
		if allocated.Add(requested).GreaterThan(payment.Amount) {
			return validationError("来款 %s 可分配余额 %s，本次申请 %s",
				payment.PaymentNo, payment.Amount.Sub(allocated).StringFixed(2), requested.StringFixed(2))
		}

		rows := make([]*model.PaymentAllocation, 0, len(req.Allocations))
		for _, item := range req.Allocations {
			inv, ok := invoices[item.InvoiceID]
			if !ok {
				return validationError("发票不存在: %d", item.InvoiceID)
			}
			if inv.PartyID != payment.PartyID {
				return validationError("发票 %s 不属于来款客户", inv.InvoiceNo)
			}
			received, err := s.allocationRepo.SumByInvoice(ctx, tx, inv.ID)
			if err != nil {
				return fmt.Errorf("统计发票已收金额失败: %w", err)
			}
			outstanding := inv.TotalAmount.Sub(received)
			if item.Amount.GreaterThan(outstanding) {
				return validationError("发票 %s 未收金额 %s，本次分配 %s",
					inv.InvoiceNo, outstanding.StringFixed(2), item.Amount.StringFixed(2))
			}
			rows = append(rows, &model.PaymentAllocation{
				PartyPaymentID: payment.ID,
				InvoiceID:      inv.ID,
				Amount:         item.Amount,
				RequestID:      req.RequestID,
				CreatedBy:      actor.ID,
			})
		}

		// 不同来款上并发使用同一 request_id 时，由台账唯一索引拦下
		err = s.allocationRepo.CreateRequest(ctx, tx, &model.AllocationRequest{
			RequestID:      req.RequestID,
			PartyPaymentID: payment.ID,
			Payload:        req.fingerprint(),
			Amount:         requested,
			Status:         model.AllocationRequestApplied,
			CreatedBy:      actor.ID,
		})
		if err != nil {
			if repository.IsDuplicateKey(err) {
				return validationError("request_id %s 已被使用", req.RequestID)
			}
			return fmt.Errorf("写入分配请求失败: %w", err)
		}
		if err := s.allocationRepo.CreateBatch(ctx, tx, rows); err != nil {
			return fmt.Errorf("写入分配记录失败: %w", err)
		}

		balances := make([]InvoiceBalance, 0, len(ids))
		for _, id := range ids {
			inv := invoices[id]
			received, err := s.allocationRepo.RecomputeInvoiceReceived(ctx, tx, id)
			if err != nil {
				return fmt.Errorf("重算发票已收金额失败: %w", err)
			}
			inv.ReceivedAmount = received
			balances = append(balances, balanceOf(inv))
		}

		err = writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Allocation, model.EventAllocationCreated, allocationEvent{
			RequestID:      req.RequestID,
			PartyPaymentID: payment.ID,
			Allocations:    rows,
			Invoices:       balances,
			Operator:       actor.ID,
			OccurredAt:     time.Now(),
		})
		if err != nil {
			return err
		}

		result = &AllocationResult{
			RequestID:      req.RequestID,
			PartyPaymentID: payment.ID,
			Allocations:    rows,
			Invoices:       balances,
			Status:         model.AllocationRequestApplied,
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == "" {
			logging.LogError("ledger", "Allocate", "transaction", req, err)
		}
		return nil, err
	}

	if !result.Replayed {
		logging.Module("ledger").WithFields(logrus.Fields{
			"request_id": req.RequestID,
			"payment_id": req.PartyPaymentID,
			"count":      len(result.Allocations),
		}).Info("来款分配成功")
	}
	return result, nil
}

// replay 同一 request_id 再次提交：内容一致返回当前结果，不一致视为请求错误
func (s *LedgerService) replay(ctx context.Context, tx *gorm.DB, req *AllocateRequest, stored *model.AllocationRequest) (*AllocationResult, error) {
	if stored.PartyPaymentID != req.PartyPaymentID || stored.Payload != req.fingerprint() {
		return nil, validationError("request_id %s 已用于另一笔分配", req.RequestID)
	}

	remaining, err := s.allocationRepo.ListByRequestID(ctx, tx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询分配记录失败: %w", err)
	}

	ids := req.invoiceIDs()
	invoices, err := s.invoiceRepo.GetByIDs(ctx, tx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询发票失败: %w", err)
	}
	balances := make([]InvoiceBalance, 0, len(ids))
	for _, id := range ids {
		if inv, ok := invoices[id]; ok {
			balances = append(balances, balanceOf(inv))
		}
	}

	return &AllocationResult{
		RequestID:      req.RequestID,
		PartyPaymentID: req.PartyPaymentID,
		Allocations:    remaining,
		Invoices:       balances,
		Status:         stored.Status,
		Replayed:       true,
	}, nil
}

// ============================================================================
// 冲销
// ============================================================================

type ReverseResult struct {
	Allocation *model.PaymentAllocation `json:"allocation"`
	Invoice    InvoiceBalance           `json:"invoice"`
}

// Reverse 删除一条分配并重算对应发票；不修改其他分配
func (s *LedgerService) Reverse(ctx context.Context, actor *auth.User, allocationID int64) (*ReverseResult, error) {
	if !auth.CanBill(actor) {
		return nil, forbiddenError("没有冲销分配的权限")
	}

	allocation, err := s.allocationRepo.GetByID(ctx, nil, allocationID)
	if err != nil {
		if errors.Is(err, repository.ErrAllocationNotFound) {
			return nil, notFoundError(err, "分配记录不存在: %d", allocationID)
		}
		return nil, fmt.Errorf("查询分配记录失败: %w", err)
	}

	unlock, err := s.locker.Acquire(ctx, lock.PaymentLockKey(allocation.PartyPaymentID), fmt.Sprintf("reverse-%d", allocationID))
	if err != nil {
		return nil, newError(KindBusy, err, "系统繁忙，请稍后重试")
	}
	defer unlock()

	var result *ReverseResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.paymentRepo.GetByIDForUpdate(ctx, tx, allocation.PartyPaymentID); err != nil {
			return fmt.Errorf("锁定来款失败: %w", err)
		}

		// 获取锁后再次确认，防止并发重复冲销
		current, err := s.allocationRepo.GetByID(ctx, tx, allocationID)
		if err != nil {
			if errors.Is(err, repository.ErrAllocationNotFound) {
				return notFoundError(err, "分配记录不存在: %d", allocationID)
			}
			return err
		}

		invoices, err := s.invoiceRepo.LockByIDs(ctx, tx, []int64{current.InvoiceID})
		if err != nil {
			return fmt.Errorf("锁定发票失败: %w", err)
		}
		inv, ok := invoices[current.InvoiceID]
		if !ok {
			return integrityError("分配 #%d 引用的发票 %d 不存在", current.ID, current.InvoiceID)
		}

		if err := s.allocationRepo.Delete(ctx, tx, current.ID); err != nil {
			return fmt.Errorf("删除分配记录失败: %w", err)
		}
		received, err := s.allocationRepo.RecomputeInvoiceReceived(ctx, tx, inv.ID)
		if err != nil {
			return fmt.Errorf("重算发票已收金额失败: %w", err)
		}
		inv.ReceivedAmount = received
		balance := balanceOf(inv)

		if err := s.markRequestReversed(ctx, tx, current.RequestID); err != nil {
			return err
		}

		err = writeEvent(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Allocation, model.EventAllocationReversed, allocationEvent{
			RequestID:      current.RequestID,
			PartyPaymentID: current.PartyPaymentID,
			Allocations:    []*model.PaymentAllocation{current},
			Invoices:       []InvoiceBalance{balance},
			Operator:       actor.ID,
			OccurredAt:     time.Now(),
		})
		if err != nil {
			return err
		}

		result = &ReverseResult{Allocation: current, Invoice: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Module("ledger").WithFields(logrus.Fields{
		"allocation_id": allocationID,
		"invoice_id":    result.Invoice.InvoiceID,
		"operator":      actor.ID,
	}).Info("分配已冲销")
	return result, nil
}

// markRequestReversed 按剩余分配条数更新请求台账状态
func (s *LedgerService) markRequestReversed(ctx context.Context, tx *gorm.DB, requestID string) error {
	if _, err := s.allocationRepo.GetRequest(ctx, tx, requestID); err != nil {
		if errors.Is(err, repository.ErrAllocationRequestNotFound) {
			return integrityError("分配请求 %s 不在台账中", requestID)
		}
		return fmt.Errorf("查询分配请求失败: %w", err)
	}
	remaining, err := s.allocationRepo.CountByRequestID(ctx, tx, requestID)
	if err != nil {
		return fmt.Errorf("统计剩余分配失败: %w", err)
	}
	status := model.AllocationRequestPartiallyReversed
	if remaining == 0 {
		status = model.AllocationRequestReversed
	}
	if err := s.allocationRepo.UpdateRequestStatus(ctx, tx, requestID, status); err != nil {
		return fmt.Errorf("更新分配请求状态失败: %w", err)
	}
	return nil
}

// ============================================================================
// 查询
// ============================================================================

type InvoiceAllocations struct {
	InvoiceBalance
	Allocations []*model.PaymentAllocation `json:"allocations"`
}

func (s *LedgerService) ListInvoiceAllocations(ctx context.Context, invoiceID int64) (*InvoiceAllocations, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, nil, invoiceID)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return nil, notFoundError(err, "发票不存在: %d", invoiceID)
		}
		return nil, err
	}
	allocations, err := s.allocationRepo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("查询分配记录失败: %w", err)
	}
	return &InvoiceAllocations{InvoiceBalance: balanceOf(inv), Allocations: allocations}, nil
}

func (s *LedgerService) GetPayment(ctx context.Context, id int64) (*model.PartyPayment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, notFoundError(err, "来款不存在: %d", id)
		}
		return nil, err
	}
	return payment, nil
}

// ============================================================================
// 对账
// ============================================================================

// Drift 发票记录的已收金额与分配合计不一致，或分配合计超过发票总额
type Drift struct {
	InvoiceID int64           `json:"invoice_id"`
	InvoiceNo string          `json:"invoice_no"`
	Total     decimal.Decimal `json:"total"`
	Recorded  decimal.Decimal `json:"recorded"`
	Computed  decimal.Decimal `json:"computed"`
}

// FindDrifts 扫描 id > afterID 的一批发票，返回不一致项和下一批游标；nextID 为 0 表示扫描结束
func (s *LedgerService) FindDrifts(ctx context.Context, afterID int64, limit int) ([]Drift, int64, error) {
	invoices, err := s.invoiceRepo.ListAfterID(ctx, afterID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("扫描发票失败: %w", err)
	}

	var drifts []Drift
	for _, inv := range invoices {
		computed, err := s.allocationRepo.SumByInvoice(ctx, nil, inv.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("统计发票已收金额失败: %w", err)
		}
		if !computed.Equal(inv.ReceivedAmount) || computed.GreaterThan(inv.TotalAmount) {
			drifts = append(drifts, Drift{
				InvoiceID: inv.ID,
				InvoiceNo: inv.InvoiceNo,
				Total:     inv.TotalAmount,
				Recorded:  inv.ReceivedAmount,
				Computed:  computed,
			})
		}
	}

	var nextID int64
	if len(invoices) == limit && limit > 0 {
		nextID = invoices[len(invoices)-1].ID
	}
	return drifts, nextID, nil
}

// ReportDrift 记录不一致，只告警，不修正数据
func (s *LedgerService) ReportDrift(ctx context.Context, d Drift) error {
	logging.LogError("ledger", "ReportDrift", "invoice", d,
		fmt.Errorf("发票 %s 已收金额 %s 与分配合计 %s 不一致", d.InvoiceNo, d.Recorded.StringFixed(2), d.Computed.StringFixed(2)))
	return writeEvent(ctx, nil, s.outboxRepo, s.cfg.Kafka.Topic.Ledger, model.EventLedgerDrift, d)
}
