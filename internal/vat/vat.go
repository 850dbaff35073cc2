package vat

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Breakdown aggregates the tax-exclusive and tax-inclusive components of an amount.
type Breakdown struct {
	Subtotal    float64 `json:"subtotal"`
	VAT         float64 `json:"vatAmount"`
	Total       float64 `json:"total"`
	RatePercent float64 `json:"ratePercent"`
}

// Amount returns the VAT owed on a tax-exclusive amount.
func Amount(amount, ratePercent float64) float64 {
	return AmountDecimal(decimal.NewFromFloat(amount), decimal.NewFromFloat(ratePercent)).InexactFloat64()
}

// TotalWithVat returns the tax-inclusive total for a tax-exclusive amount.
func TotalWithVat(amount, ratePercent float64) float64 {
	return TotalWithVatDecimal(decimal.NewFromFloat(amount), decimal.NewFromFloat(ratePercent)).InexactFloat64()
}

// ExtractFromTotal splits a tax-inclusive total into subtotal and VAT.
func ExtractFromTotal(total, ratePercent float64) (subtotal, vatAmount float64) {
	sub, tax := ExtractFromTotalDecimal(decimal.NewFromFloat(total), decimal.NewFromFloat(ratePercent))
	return sub.InexactFloat64(), tax.InexactFloat64()
}

// AmountDecimal is the decimal form of Amount.
func AmountDecimal(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(normaliseRate(ratePercent)).Div(hundred)
}

// TotalWithVatDecimal is the decimal form of TotalWithVat.
func TotalWithVatDecimal(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Add(AmountDecimal(amount, ratePercent))
}

// ExtractFromTotalDecimal is the decimal form of ExtractFromTotal.
func ExtractFromTotalDecimal(total, ratePercent decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(normaliseRate(ratePercent).Div(hundred))
	subtotal := total.Div(divisor)
	return subtotal, total.Sub(subtotal)
}

// Exclusive builds a breakdown from a tax-exclusive amount.
func Exclusive(amount, ratePercent float64) Breakdown {
	rate := decimal.NewFromFloat(ratePercent)
	base := decimal.NewFromFloat(amount)
	tax := AmountDecimal(base, rate)
	return Breakdown{
		Subtotal:    base.InexactFloat64(),
		VAT:         tax.InexactFloat64(),
		Total:       base.Add(tax).InexactFloat64(),
		RatePercent: normaliseRate(rate).InexactFloat64(),
	}
}

// Inclusive builds a breakdown from a tax-inclusive total.
func Inclusive(total, ratePercent float64) Breakdown {
	rate := decimal.NewFromFloat(ratePercent)
	gross := decimal.NewFromFloat(total)
	subtotal, tax := ExtractFromTotalDecimal(gross, rate)
	return Breakdown{
		Subtotal:    subtotal.InexactFloat64(),
		VAT:         tax.InexactFloat64(),
		Total:       gross.InexactFloat64(),
		RatePercent: normaliseRate(rate).InexactFloat64(),
	}
}

// negative rates are treated as zero
func normaliseRate(rate decimal.Decimal) decimal.Decimal {
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}
