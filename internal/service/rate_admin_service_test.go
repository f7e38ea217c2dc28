package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"courierledger/internal/model"

	"gorm.io/gorm"
)

func newRateRequest(partyID int64, refs catalogRefs) *CreatePartyRateSlabRequest {
	return &CreatePartyRateSlabRequest{
		PartyID:        partyID,
		ShipmentType:   "PARCEL",
		ModeID:         refs.mode,
		ServiceTypeID:  refs.service,
		DistanceSlabID: refs.distance,
		WeightSlabID:   refs.small.ID,
		RatePricing: RatePricing{
			BaseRate:         dec("100"),
			FuelSurchargePct: dec("10"),
			PackingCharge:    dec("2"),
			HandlingCharge:   dec("3"),
			GstPct:           dec("18"),
		},
	}
}

func TestPartyRateSlabLifecycleAudited(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	party := f.seedParty(t, "Acme", nil)
	ctx := context.Background()

	row, err := f.rates.CreatePartyRateSlab(ctx, operator, newRateRequest(party.ID, refs))
	if err != nil {
		t.Fatalf("CreatePartyRateSlab: %v", err)
	}
	if !row.Active {
		t.Fatalf("new rate slab should be active")
	}
	if n := f.count(t, &model.RateAudit{}, "party_rate_slab_id = ?", row.ID); n != 1 {
		t.Fatalf("audits after create = %d, want 1", n)
	}

	updated, err := f.rates.UpdatePartyRateSlab(ctx, admin, row.ID, &UpdatePartyRateSlabRequest{RatePricing: RatePricing{
		BaseRate: dec("120"), FuelSurchargePct: dec("10"), PackingCharge: dec("2"), HandlingCharge: dec("3"), GstPct: dec("18"),
	}})
	if err != nil {
		t.Fatalf("UpdatePartyRateSlab: %v", err)
	}
	if !updated.BaseRate.Equal(dec("120")) {
		t.Fatalf("base rate = %s, want 120", updated.BaseRate)
	}

	if _, err := f.rates.DeactivatePartyRateSlab(ctx, operator, row.ID); err != nil {
		t.Fatalf("DeactivatePartyRateSlab: %v", err)
	}
	// 重复停用不产生新审计
	if _, err := f.rates.DeactivatePartyRateSlab(ctx, operator, row.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}

	page, err := f.audits.ListAudits(ctx, &row.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListAudits: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("audits = %d/%d, want 3", len(page.Items), page.Total)
	}
	wantActions := []string{model.AuditActionDeactivate, model.AuditActionUpdate, model.AuditActionCreate}
	for i, a := range page.Items {
		if a.Action != wantActions[i] {
			t.Fatalf("audit[%d].Action = %s, want %s", i, a.Action, wantActions[i])
		}
	}

	create := page.Items[2]
	if create.Before != "" || create.ChangedBy != operator.ID {
		t.Fatalf("unexpected create audit %+v", create)
	}
	update := page.Items[1]
	if !strings.Contains(update.Before, `"base_rate":"100"`) || !strings.Contains(update.After, `"base_rate":"120"`) {
		t.Fatalf("update audit snapshots: before=%s after=%s", update.Before, update.After)
	}

	if n := f.count(t, &model.OutboxMessage{}, "event_type = ?", model.EventRateSlabChanged); n != 3 {
		t.Fatalf("rate change events = %d, want 3", n)
	}
}

func TestUpdateReactivatesRateSlab(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	party := f.seedParty(t, "Acme", nil)
	ctx := context.Background()

	row, err := f.rates.CreatePartyRateSlab(ctx, operator, newRateRequest(party.ID, refs))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.rates.DeactivatePartyRateSlab(ctx, operator, row.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	updated, err := f.rates.UpdatePartyRateSlab(ctx, operator, row.ID, &UpdatePartyRateSlabRequest{RatePricing: newRateRequest(party.ID, refs).RatePricing})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Active {
		t.Fatalf("update should reactivate the slab")
	}
}

func TestCreatePartyRateSlabRejections(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	party := f.seedParty(t, "Acme", nil)
	ctx := context.Background()

	if _, err := f.rates.CreatePartyRateSlab(ctx, operator, newRateRequest(party.ID, refs)); err != nil {
		t.Fatalf("create: %v", err)
	}

	negative := newRateRequest(party.ID, refs)
	negative.WeightSlabID = refs.medium.ID
	negative.BaseRate = dec("-1")

	badRef := newRateRequest(party.ID, refs)
	badRef.WeightSlabID = refs.large.ID
	badRef.ModeID = 9999

	missing := newRateRequest(party.ID, refs)
	missing.ShipmentType = "  "

	tests := []struct {
		name string
		req  *CreatePartyRateSlabRequest
		kind ErrorKind
	}{
		{"duplicate key", newRateRequest(party.ID, refs), KindValidation},
		{"negative base", negative, KindValidation},
		{"unknown mode", badRef, KindValidation},
		{"blank shipment type", missing, KindValidation},
		{"unknown party", newRateRequest(9999, refs), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rates.CreatePartyRateSlab(ctx, operator, tt.req)
			wantKind(t, err, tt.kind)
		})
	}

	_, err := f.rates.CreatePartyRateSlab(ctx, viewer, newRateRequest(party.ID, refs))
	wantKind(t, err, KindForbidden)

	if n := f.count(t, &model.PartyRateSlab{}, ""); n != 1 {
		t.Fatalf("rate slabs = %d, want 1", n)
	}
	if n := f.count(t, &model.RateAudit{}, ""); n != 1 {
		t.Fatalf("audits = %d, want 1", n)
	}
}

// 审计写入失败时整个编辑回滚
func TestAuditFailureRollsBackEdit(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	party := f.seedParty(t, "Acme", nil)
	ctx := context.Background()

	row, err := f.rates.CreatePartyRateSlab(ctx, operator, newRateRequest(party.ID, refs))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	errAuditDown := errors.New("audit store unavailable")
	err = f.db.Callback().Create().Before("gorm:create").Register("test:fail_rate_audit", func(tx *gorm.DB) {
		if tx.Statement.Table == "rate_audit" {
			tx.AddError(errAuditDown)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	second := newRateRequest(party.ID, refs)
	second.WeightSlabID = refs.medium.ID
	if _, err := f.rates.CreatePartyRateSlab(ctx, operator, second); !errors.Is(err, errAuditDown) {
		t.Fatalf("create with failing audit: got %v", err)
	}
	if n := f.count(t, &model.PartyRateSlab{}, ""); n != 1 {
		t.Fatalf("rate slabs = %d, want 1 after rollback", n)
	}

	_, err = f.rates.UpdatePartyRateSlab(ctx, operator, row.ID, &UpdatePartyRateSlabRequest{RatePricing: RatePricing{
		BaseRate: dec("999"), FuelSurchargePct: dec("0"), PackingCharge: dec("0"), HandlingCharge: dec("0"), GstPct: dec("0"),
	}})
	if !errors.Is(err, errAuditDown) {
		t.Fatalf("update with failing audit: got %v", err)
	}
	var stored model.PartyRateSlab
	if err := f.db.First(&stored, row.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !stored.BaseRate.Equal(dec("100")) {
		t.Fatalf("base rate = %s, want 100 after rollback", stored.BaseRate)
	}
	if n := f.count(t, &model.OutboxMessage{}, ""); n != 1 {
		t.Fatalf("outbox rows = %d, want 1", n)
	}
}

func TestUpdatePartyRateSlabNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.rates.UpdatePartyRateSlab(context.Background(), admin, 42, &UpdatePartyRateSlabRequest{})
	wantKind(t, err, KindNotFound)
	_, err = f.rates.DeactivatePartyRateSlab(context.Background(), admin, 42)
	wantKind(t, err, KindNotFound)
}

func TestUpsertRateDefaultLastWriteWins(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	ctx := context.Background()

	for _, base := range []string{"40", "55"} {
		if _, err := f.rates.UpsertRateDefault(ctx, operator, &UpsertRateDefaultRequest{
			RegionID: i64(3), PackageType: "PARCEL", WeightSlabID: refs.small.ID,
			BaseRate: dec(base), ExtraPer1000g: dec("5"),
		}); err != nil {
			t.Fatalf("upsert %s: %v", base, err)
		}
	}
	// 全局默认与区域默认是不同的自然键
	for _, base := range []string{"30", "35"} {
		if _, err := f.rates.UpsertRateDefault(ctx, operator, &UpsertRateDefaultRequest{
			PackageType: "PARCEL", WeightSlabID: refs.small.ID,
			BaseRate: dec(base), ExtraPer1000g: dec("0"),
		}); err != nil {
			t.Fatalf("upsert global %s: %v", base, err)
		}
	}

	rows, err := f.rates.ListRateDefaults(ctx, "PARCEL")
	if err != nil {
		t.Fatalf("ListRateDefaults: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rate defaults = %d, want 2", len(rows))
	}
	for _, r := range rows {
		switch {
		case r.RegionID != nil && !r.BaseRate.Equal(dec("55")):
			t.Fatalf("regional base = %s, want 55", r.BaseRate)
		case r.RegionID == nil && !r.BaseRate.Equal(dec("35")):
			t.Fatalf("global base = %s, want 35", r.BaseRate)
		}
	}

	_, err = f.rates.UpsertRateDefault(ctx, operator, &UpsertRateDefaultRequest{PackageType: "PARCEL", WeightSlabID: 9999, BaseRate: dec("1")})
	wantKind(t, err, KindValidation)
	_, err = f.rates.UpsertRateDefault(ctx, viewer, &UpsertRateDefaultRequest{PackageType: "PARCEL", WeightSlabID: refs.small.ID, BaseRate: dec("1")})
	wantKind(t, err, KindForbidden)
}

func TestGlobalRateDefaultIsUnique(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)

	f.mustCreate(t, &model.RateDefault{PackageType: "PARCEL", WeightSlabID: refs.small.ID, BaseRate: dec("30"), ExtraPer1000g: dec("0")})
	err := f.db.Create(&model.RateDefault{PackageType: "PARCEL", WeightSlabID: refs.small.ID, BaseRate: dec("31"), ExtraPer1000g: dec("0")}).Error
	if err == nil {
		t.Fatalf("second global default for the same key was accepted")
	}

	var stored model.RateDefault
	if err := f.db.Where("package_type = ? AND weight_slab_id = ?", "PARCEL", refs.small.ID).First(&stored).Error; err != nil {
		t.Fatalf("load default: %v", err)
	}
	if stored.RegionKey != model.GlobalRegionKey || stored.RegionID != nil {
		t.Fatalf("global default stored with region_key=%d region_id=%v", stored.RegionKey, stored.RegionID)
	}
}

func TestCreatePartyRateSlabDuplicateKeyIsValidation(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	party := f.seedParty(t, "Acme", nil)

	// 模拟并发创建中后提交的一方：唯一索引报冲突
	err := f.db.Callback().Create().Before("gorm:create").Register("test:duplicate_party_rate", func(tx *gorm.DB) {
		if tx.Statement.Table == "party_rate_slab" {
			tx.AddError(gorm.ErrDuplicatedKey)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = f.rates.CreatePartyRateSlab(context.Background(), operator, newRateRequest(party.ID, refs))
	wantKind(t, err, KindValidation)
	if n := f.count(t, &model.RateAudit{}, ""); n != 0 {
		t.Fatalf("audits = %d, want 0", n)
	}
}

func TestListAuditsLimits(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	party := f.seedParty(t, "Acme", nil)
	ctx := context.Background()

	row, err := f.rates.CreatePartyRateSlab(ctx, operator, newRateRequest(party.ID, refs))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 24; i++ {
		req := &UpdatePartyRateSlabRequest{RatePricing: newRateRequest(party.ID, refs).RatePricing}
		if _, err := f.rates.UpdatePartyRateSlab(ctx, operator, row.ID, req); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	page, err := f.audits.ListAudits(ctx, nil, 0, 0)
	if err != nil {
		t.Fatalf("ListAudits: %v", err)
	}
	if page.Limit != 20 || len(page.Items) != 20 || page.Total != 25 {
		t.Fatalf("default page: limit=%d items=%d total=%d", page.Limit, len(page.Items), page.Total)
	}

	page, err = f.audits.ListAudits(ctx, nil, 1000, 20)
	if err != nil {
		t.Fatalf("ListAudits: %v", err)
	}
	if page.Limit != 200 || len(page.Items) != 5 {
		t.Fatalf("capped page: limit=%d items=%d", page.Limit, len(page.Items))
	}
	if page.Items[len(page.Items)-1].Action != model.AuditActionCreate {
		t.Fatalf("oldest audit should be CREATE, got %s", page.Items[len(page.Items)-1].Action)
	}

	_, err = f.audits.ListAudits(ctx, nil, -1, 0)
	wantKind(t, err, KindValidation)
}
