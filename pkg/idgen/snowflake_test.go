package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestNextIDUniqueUnderConcurrency(t *testing.T) {
	if err := Init(3); err != nil {
		t.Fatalf("Init: %v", err)
	}
	const n = 2000
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				ids <- NextID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateNoPrefixes(t *testing.T) {
	if no := GenerateInvoiceNo(); !strings.HasPrefix(no, "INV") || len(no) != 3+14+8 {
		t.Fatalf("unexpected invoice no %q", no)
	}
	if no := GeneratePaymentNo(); !strings.HasPrefix(no, "PMT") {
		t.Fatalf("unexpected payment no %q", no)
	}
}

func TestInitRejectsOutOfRangeWorkerID(t *testing.T) {
	for _, id := range []int64{-1, maxWorkerID + 1, 1 << 20} {
		if err := Init(id); err == nil {
			t.Fatalf("Init(%d) accepted an out-of-range worker id", id)
		}
	}
	for _, id := range []int64{0, maxWorkerID} {
		if err := Init(id); err != nil {
			t.Fatalf("Init(%d): %v", id, err)
		}
	}
}

