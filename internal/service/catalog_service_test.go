package service

import (
	"context"
	"testing"
)

func TestCreateWeightSlabRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	refs := f.seedCatalog(t)
	ctx := context.Background()

	_, err := f.catalog.CreateWeightSlab(ctx, admin, &CreateWeightSlabRequest{Name: "Overlap", MinWeightGrams: 900, MaxWeightGrams: i64(1200)})
	wantKind(t, err, KindValidation)

	_, err = f.catalog.CreateWeightSlab(ctx, operator, &CreateWeightSlabRequest{Name: "Tiny", MinWeightGrams: 0, MaxWeightGrams: i64(10)})
	wantKind(t, err, KindForbidden)

	_, err = f.catalog.CreateWeightSlab(ctx, admin, &CreateWeightSlabRequest{Name: "Bad", MinWeightGrams: 10, MaxWeightGrams: i64(10)})
	wantKind(t, err, KindValidation)

	// 停用 Large 后可以新建不重叠的段，缓存随之刷新
	if _, found, _ := f.catalog.FindWeightSlab(ctx, 1500); !found {
		t.Fatalf("expected 1500g to hit Large before deactivation")
	}
	if err := f.catalog.DeactivateWeightSlab(ctx, admin, refs.large.ID); err != nil {
		t.Fatalf("DeactivateWeightSlab: %v", err)
	}
	if _, found, _ := f.catalog.FindWeightSlab(ctx, 1500); found {
		t.Fatalf("deactivated slab still matched")
	}

	slab, err := f.catalog.CreateWeightSlab(ctx, admin, &CreateWeightSlabRequest{Name: "Heavy", MinWeightGrams: 1000, MaxWeightGrams: i64(5000)})
	if err != nil {
		t.Fatalf("CreateWeightSlab: %v", err)
	}
	got, found, err := f.catalog.FindWeightSlab(ctx, 1500)
	if err != nil || !found || got.ID != slab.ID {
		t.Fatalf("FindWeightSlab(1500) = %+v found=%v err=%v", got, found, err)
	}

	err = f.catalog.DeactivateWeightSlab(ctx, admin, 9999)
	wantKind(t, err, KindNotFound)
}

func TestUpsertReferenceByCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.catalog.UpsertServiceType(ctx, admin, &ReferenceInput{Code: "exp", Title: "Express"})
	if err != nil {
		t.Fatalf("UpsertServiceType: %v", err)
	}
	inactive := false
	second, err := f.catalog.UpsertServiceType(ctx, admin, &ReferenceInput{Code: "EXP", Title: "Express Plus", Active: &inactive})
	if err != nil {
		t.Fatalf("UpsertServiceType again: %v", err)
	}
	if first.ID != second.ID || second.Title != "Express Plus" || second.Active {
		t.Fatalf("upsert did not update in place: first=%+v second=%+v", first, second)
	}

	list, err := f.catalog.ListServiceTypes(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListServiceTypes = %+v, %v", list, err)
	}

	if _, err := f.catalog.UpsertMode(ctx, admin, &ReferenceInput{Code: "SURFACE", Title: "Surface"}); err != nil {
		t.Fatalf("UpsertMode: %v", err)
	}
	if _, err := f.catalog.UpsertDistanceSlab(ctx, admin, &ReferenceInput{Code: "ZONE_A", Title: "Zone A"}); err != nil {
		t.Fatalf("UpsertDistanceSlab: %v", err)
	}

	_, err = f.catalog.UpsertMode(ctx, operator, &ReferenceInput{Code: "AIR", Title: "Air"})
	wantKind(t, err, KindForbidden)
	_, err = f.catalog.UpsertMode(ctx, admin, &ReferenceInput{Code: " ", Title: "Air"})
	wantKind(t, err, KindValidation)
}

func TestPartyRegionDirectory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedParty(t, "North", i64(7))

	region, err := f.parties.PartyRegion(ctx, p.ID)
	if err != nil || region == nil || *region != 7 {
		t.Fatalf("PartyRegion = %v, %v", region, err)
	}
	region, err = f.parties.PartyRegion(ctx, 9999)
	if err != nil || region != nil {
		t.Fatalf("unknown party region = %v, %v", region, err)
	}
}
