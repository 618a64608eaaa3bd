package documents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// validateStruct runs struct tag validation and folds failures into
// ErrValidation with the offending fields listed.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func requireNonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrValidation, field)
	}
	return nil
}

func validateDiscount(d DiscountSpec) error {
	switch d.Type {
	case DiscountPercentage, DiscountFlat:
	default:
		return fmt.Errorf("%w: discount type %q", ErrValidation, d.Type)
	}
	return requireNonNegative("discount", d.Value)
}

// normalizeTaxes fills missing rates from labels and checks the tax count.
func normalizeTaxes(taxes []TaxSpec) ([]TaxSpec, error) {
	if len(taxes) > MaxTaxes {
		return nil, fmt.Errorf("%w: at most %d taxes allowed", ErrValidation, MaxTaxes)
	}
	out := make([]TaxSpec, 0, len(taxes))
	for _, tax := range taxes {
		tax.Label = strings.TrimSpace(tax.Label)
		if tax.RatePercent.IsZero() && tax.Label != "" {
			rate, err := ParseTaxLabel(tax.Label)
			if err != nil {
				return nil, err
			}
			tax.RatePercent = rate
		}
		if err := requireNonNegative("tax rate", tax.RatePercent); err != nil {
			return nil, err
		}
		out = append(out, tax)
	}
	return out, nil
}

func (p Policy) checkLine(item LineItem) error {
	if item.TaxRate.IsPositive() && !p.allowsItemTax() {
		return fmt.Errorf("%w: %s lines cannot carry a tax rate", ErrValidation, p.Kind)
	}
	return nil
}

func (p Policy) checkTaxes(taxes []TaxSpec) error {
	if len(taxes) > 0 && !p.allowsDocumentTax() {
		return fmt.Errorf("%w: %s documents use per-item taxes", ErrValidation, p.Kind)
	}
	return nil
}
