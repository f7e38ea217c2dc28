package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"courierledger/internal/auth"
	"courierledger/internal/config"
	"courierledger/internal/infrastructure/cache"
	"courierledger/internal/infrastructure/database/dbtest"
	"courierledger/internal/infrastructure/lock"
	"courierledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	admin    = &auth.User{ID: "admin-1", Roles: []string{auth.RoleAdmin}}
	operator = &auth.User{ID: "op-1", Roles: []string{auth.RoleBillingOperator}}
	viewer   = &auth.User{ID: "viewer-1", Roles: []string{"viewer"}}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func i64(v int64) *int64 {
	return &v
}

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	catalog  *CatalogService
	parties  *DBPartyDirectory
	resolver *ResolverService
	rates    *RateAdminService
	audits   *AuditService
	invoices *InvoiceService
	ledger   *LedgerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	cfg := config.Default()

	catalog := NewCatalogService(db, cache.NewLookupCache[string, []model.WeightSlab](16, time.Minute))
	parties := NewDBPartyDirectory(db, cache.NewLookupCache[int64, *int64](16, time.Minute))
	resolver := NewResolverService(db, catalog, parties, cfg.Business.DefaultGst())

	return &fixture{
		db:       db,
		cfg:      cfg,
		catalog:  catalog,
		parties:  parties,
		resolver: resolver,
		rates:    NewRateAdminService(db, cfg),
		audits:   NewAuditService(db, cfg.Business.AuditPageSizeMax),
		invoices: NewInvoiceService(db, resolver),
		ledger:   NewLedgerService(db, lock.NewLocalLocker(), cfg),
	}
}

func (f *fixture) mustCreate(t *testing.T, v any) {
	t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

// catalogRefs 基础数据：空运 / 标准 / 本地，三个重量段
type catalogRefs struct {
	mode     int64
	service  int64
	distance int64
	small    model.WeightSlab
	medium   model.WeightSlab
	large    model.WeightSlab
}

func (f *fixture) seedCatalog(t *testing.T) catalogRefs {
	t.Helper()
	mode := &model.Mode{Code: "AIR", Title: "Air", Active: true}
	service := &model.ServiceType{Code: "STD", Title: "Standard", Active: true}
	distance := &model.DistanceSlab{Code: "LOCAL", Title: "Local", Active: true}
	small := &model.WeightSlab{Name: "Small", MinWeightGrams: 0, MaxWeightGrams: i64(500), Active: true}
	medium := &model.WeightSlab{Name: "Medium", MinWeightGrams: 500, MaxWeightGrams: i64(1000), Active: true}
	large := &model.WeightSlab{Name: "Large", MinWeightGrams: 1000, Active: true}
	for _, v := range []any{mode, service, distance, small, medium, large} {
		f.mustCreate(t, v)
	}
	return catalogRefs{
		mode:     mode.ID,
		service:  service.ID,
		distance: distance.ID,
		small:    *small,
		medium:   *medium,
		large:    *large,
	}
}

func (f *fixture) seedParty(t *testing.T, name string, regionID *int64) *model.Party {
	t.Helper()
	p := &model.Party{Name: name, RegionID: regionID, Active: true}
	f.mustCreate(t, p)
	return p
}

func (f *fixture) seedInvoice(t *testing.T, partyID int64, total string) *model.Invoice {
	t.Helper()
	inv := &model.Invoice{
		PartyID:     partyID,
		InvoiceNo:   fmt.Sprintf("T-%d-%s-%d", partyID, total, time.Now().UnixNano()),
		InvoiceDate: time.Now(),
		TotalAmount: dec(total),
	}
	f.mustCreate(t, inv)
	return inv
}

func (f *fixture) seedPayment(t *testing.T, partyID int64, amount string) *model.PartyPayment {
	t.Helper()
	p, err := f.ledger.RecordPayment(context.Background(), operator, &RecordPaymentRequest{
		PartyID: partyID,
		Amount:  dec(amount),
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	return p
}

// received 直接从库里读发票已收金额
func (f *fixture) received(t *testing.T, invoiceID int64) decimal.Decimal {
	t.Helper()
	var inv model.Invoice
	if err := f.db.First(&inv, invoiceID).Error; err != nil {
		t.Fatalf("load invoice %d: %v", invoiceID, err)
	}
	return inv.ReceivedAmount
}

// allocatedSum 分配合计，作为 received 的对照
func (f *fixture) allocatedSum(t *testing.T, column string, id int64) decimal.Decimal {
	t.Helper()
	var rows []model.PaymentAllocation
	if err := f.db.Where(column+" = ?", id).Find(&rows).Error; err != nil {
		t.Fatalf("load allocations: %v", err)
	}
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount)
	}
	return sum
}

func (f *fixture) count(t *testing.T, m any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", m, err)
	}
	return n
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %q (%v)", kind, got, err)
	}
}
