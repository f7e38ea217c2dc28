// Package pricing 纯函数计价，不访问数据库
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Breakdown 计价明细，除 BaseRate 原样回显外均为两位小数
type Breakdown struct {
	BaseRate    decimal.Decimal `json:"base_rate"`
	FuelAmount  decimal.Decimal `json:"fuel_amount"`
	PreGstTotal decimal.Decimal `json:"pre_gst_total"`
	GstAmount   decimal.Decimal `json:"gst_amount"`
	Total       decimal.Decimal `json:"total"`
}

// Round2 四舍五入到两位小数（正数 half-up）
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputePrice 计算价格明细
//
// 每一步先取两位小数再参与下一步，与发票按分计账保持一致：
//
//	fuelAmount  = round2(baseRate * fuelPct / 100)
//	preGstTotal = round2(baseRate + fuelAmount + handling)
//	gstAmount   = round2(preGstTotal * gstPct / 100)
//	total       = round2(preGstTotal + gstAmount)
func ComputePrice(baseRate, fuelPct, handling, gstPct decimal.Decimal) Breakdown {
	fuel := Round2(baseRate.Mul(fuelPct).Div(hundred))
	preGst := Round2(baseRate.Add(fuel).Add(handling))
	gst := Round2(preGst.Mul(gstPct).Div(hundred))

	return Breakdown{
		BaseRate:    baseRate,
		FuelAmount:  fuel,
		PreGstTotal: preGst,
		GstAmount:   gst,
		Total:       Round2(preGst.Add(gst)),
	}
}

// ExtraWeightUnits 超出段起点的重量按每 1000g 向上取整计数
func ExtraWeightUnits(weightGrams, slabMinGrams int64) int64 {
	over := weightGrams - slabMinGrams
	if over <= 0 {
		return 0
	}
	return (over + 999) / 1000
}
