package documents

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Totals are the derived amounts of a document.
type Totals struct {
	SubTotal       decimal.Decimal `json:"sub_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Rounded returns the totals rounded to two fraction digits for display.
func (t Totals) Rounded() Totals {
	return Totals{
		SubTotal:       t.SubTotal.Round(2),
		DiscountAmount: t.DiscountAmount.Round(2),
		TaxAmount:      t.TaxAmount.Round(2),
		Total:          t.Total.Round(2),
	}
}

// Equal reports whether both totals carry the same values.
func (t Totals) Equal(o Totals) bool {
	return t.SubTotal.Equal(o.SubTotal) &&
		t.DiscountAmount.Equal(o.DiscountAmount) &&
		t.TaxAmount.Equal(o.TaxAmount) &&
		t.Total.Equal(o.Total)
}

// percentOf returns base × rate / 100. Shift keeps the result exact.
func percentOf(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Shift(-2)
}

// LineAmount applies the per-item rule: quantity × unitPrice plus the line
// tax when taxRate is positive.
func LineAmount(quantity, unitPrice, taxRate decimal.Decimal) decimal.Decimal {
	amount := quantity.Mul(unitPrice)
	if taxRate.IsPositive() {
		amount = amount.Add(percentOf(amount, taxRate))
	}
	return amount
}

// Compute derives sub-total, discount, tax and grand total. Taxes stack
// additively on the discounted base. The discount is not clamped, so a flat
// discount larger than the sub-total yields a negative total.
func Compute(items []LineItem, discount DiscountSpec, taxes []TaxSpec) Totals {
	subTotal := decimal.Zero
	for _, item := range items {
		subTotal = subTotal.Add(item.Amount)
	}

	var discountAmount decimal.Decimal
	switch discount.Type {
	case DiscountPercentage:
		discountAmount = percentOf(subTotal, discount.Value)
	default:
		discountAmount = discount.Value
	}

	base := subTotal.Sub(discountAmount)
	taxAmount := decimal.Zero
	for _, tax := range taxes {
		taxAmount = taxAmount.Add(percentOf(base, tax.RatePercent))
	}

	return Totals{
		SubTotal:       subTotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		Total:          base.Add(taxAmount),
	}
}

var rateInLabel = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// ParseTaxLabel extracts the rate from a label such as "GST 10%".
func ParseTaxLabel(label string) (decimal.Decimal, error) {
	match := rateInLabel.FindString(strings.TrimSpace(label))
	if match == "" {
		return decimal.Zero, fmt.Errorf("%w: tax %q has no rate", ErrValidation, label)
	}
	rate, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: tax %q: %v", ErrValidation, label, err)
	}
	return rate, nil
}

// FromFloat converts a float from an external collaborator into a decimal.
// NaN and infinities are rejected.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrComputation, f)
	}
	return decimal.NewFromFloat(f), nil
}
