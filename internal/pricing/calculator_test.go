package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputePriceReferenceExample(t *testing.T) {
	b := ComputePrice(d("100"), d("10"), d("5"), d("18"))

	want := map[string]string{
		"fuel":   "10.00",
		"preGst": "115.00",
		"gst":    "20.70",
		"total":  "135.70",
	}
	got := map[string]string{
		"fuel":   b.FuelAmount.StringFixed(2),
		"preGst": b.PreGstTotal.StringFixed(2),
		"gst":    b.GstAmount.StringFixed(2),
		"total":  b.Total.StringFixed(2),
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %s got %s", k, v, got[k])
		}
	}
}

func TestComputePriceRoundsEachStep(t *testing.T) {
	cases := []struct {
		name                       string
		base, fuel, handling, gst  string
		wantFuel, wantPre, wantGst string
		wantTotal                  string
	}{
		// 33.33 * 7.5% = 2.49975 -> 2.50
		{"fuel half up", "33.33", "7.5", "0", "0", "2.50", "35.83", "0.00", "35.83"},
		// 10.05 * 5% = 0.5025 -> 0.50; pre 10.55 * 18% = 1.899 -> 1.90
		{"gst on rounded pre", "10.05", "5", "0", "18", "0.50", "10.55", "1.90", "12.45"},
		// 0.125 gst rounds half up to 0.13
		{"exact half", "2.5", "0", "0", "5", "0.00", "2.50", "0.13", "2.63"},
		{"zero", "0", "0", "0", "0", "0.00", "0.00", "0.00", "0.00"},
		{"handling only", "0", "12", "40", "18", "0.00", "40.00", "7.20", "47.20"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := ComputePrice(d(tc.base), d(tc.fuel), d(tc.handling), d(tc.gst))
			if b.FuelAmount.StringFixed(2) != tc.wantFuel {
				t.Fatalf("fuel expected %s got %s", tc.wantFuel, b.FuelAmount.StringFixed(2))
			}
			if b.PreGstTotal.StringFixed(2) != tc.wantPre {
				t.Fatalf("preGst expected %s got %s", tc.wantPre, b.PreGstTotal.StringFixed(2))
			}
			if b.GstAmount.StringFixed(2) != tc.wantGst {
				t.Fatalf("gst expected %s got %s", tc.wantGst, b.GstAmount.StringFixed(2))
			}
			if b.Total.StringFixed(2) != tc.wantTotal {
				t.Fatalf("total expected %s got %s", tc.wantTotal, b.Total.StringFixed(2))
			}
		})
	}
}

func TestComputePriceDeterministic(t *testing.T) {
	first := ComputePrice(d("1234.567"), d("12.345"), d("17.5"), d("18"))
	for i := 0; i < 100; i++ {
		again := ComputePrice(d("1234.567"), d("12.345"), d("17.5"), d("18"))
		if !again.Total.Equal(first.Total) || !again.GstAmount.Equal(first.GstAmount) ||
			!again.FuelAmount.Equal(first.FuelAmount) || !again.PreGstTotal.Equal(first.PreGstTotal) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestExtraWeightUnits(t *testing.T) {
	cases := []struct {
		weight, min, want int64
	}{
		{500, 500, 0},
		{499, 500, 0},
		{501, 500, 1},
		{1500, 500, 1},
		{1501, 500, 2},
	}
	for _, tc := range cases {
		if got := ExtraWeightUnits(tc.weight, tc.min); got != tc.want {
			t.Fatalf("ExtraWeightUnits(%d,%d) expected %d got %d", tc.weight, tc.min, tc.want, got)
		}
	}
}
