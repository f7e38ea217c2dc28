package job

import (
	"context"
	"errors"
	"testing"

	"courierledger/internal/config"
	"courierledger/internal/service"
)

type fakeChecker struct {
	batches  map[int64][]service.Drift
	next     map[int64]int64
	failAt   int64
	reported []service.Drift
	calls    []int64
}

func (f *fakeChecker) FindDrifts(ctx context.Context, afterID int64, limit int) ([]service.Drift, int64, error) {
	f.calls = append(f.calls, afterID)
	if f.failAt != 0 && afterID == f.failAt {
		return nil, 0, errors.New("db down")
	}
	return f.batches[afterID], f.next[afterID], nil
}

func (f *fakeChecker) ReportDrift(ctx context.Context, d service.Drift) error {
	f.reported = append(f.reported, d)
	return nil
}

func TestLedgerReconcileWalksAllBatches(t *testing.T) {
	checker := &fakeChecker{
		batches: map[int64][]service.Drift{
			0:  {{InvoiceID: 3}},
			10: nil,
			20: {{InvoiceID: 21}, {InvoiceID: 25}},
		},
		next: map[int64]int64{0: 10, 10: 20, 20: 0},
	}
	j := NewLedgerReconcileJob(checker, config.Default())

	if n := j.RunOnce(context.Background()); n != 3 {
		t.Fatalf("drifts = %d, want 3", n)
	}
	if len(checker.calls) != 3 || checker.calls[2] != 20 {
		t.Fatalf("cursor walk = %v", checker.calls)
	}
	if len(checker.reported) != 3 || checker.reported[0].InvoiceID != 3 {
		t.Fatalf("reported = %+v", checker.reported)
	}
}

func TestLedgerReconcileStopsOnError(t *testing.T) {
	checker := &fakeChecker{
		batches: map[int64][]service.Drift{0: {{InvoiceID: 1}}},
		next:    map[int64]int64{0: 5},
		failAt:  5,
	}
	j := NewLedgerReconcileJob(checker, config.Default())

	if n := j.RunOnce(context.Background()); n != 1 {
		t.Fatalf("drifts = %d, want 1", n)
	}
	if len(checker.calls) != 2 {
		t.Fatalf("calls = %v", checker.calls)
	}
}
