package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/catalog"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// ItemSource is one of the two accepted shapes for a new line: a free-form
// ItemInput or a CatalogLine.
type ItemSource interface {
	lineItem() (LineItem, error)
}

// ItemInput is a free-form line.
type ItemInput struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description,omitempty" validate:"max=2000"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Unit        string           `json:"unit,omitempty" validate:"max=20"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TaxRate     decimal.Decimal  `json:"tax_rate"`
}

func (in ItemInput) lineItem() (LineItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return LineItem{}, err
	}
	qty := decimal.NewFromInt(1)
	if in.Quantity != nil {
		qty = *in.Quantity
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = DefaultUnit
	}
	return newLine(in.Name, in.Description, qty, unit, in.UnitPrice, in.TaxRate, nil)
}

// CatalogLine adds a catalog item as a line.
type CatalogLine struct {
	Item     catalog.Item
	Quantity *decimal.Decimal
	TaxRate  decimal.Decimal
}

func (c CatalogLine) lineItem() (LineItem, error) {
	name := strings.TrimSpace(c.Item.Title)
	if name == "" {
		return LineItem{}, fmt.Errorf("%w: catalog item %d has no title", ErrValidation, c.Item.ID)
	}
	qty := decimal.NewFromInt(1)
	if c.Quantity != nil {
		qty = *c.Quantity
	}
	unit := strings.TrimSpace(c.Item.UnitType)
	if unit == "" {
		unit = DefaultUnit
	}
	id := c.Item.ID
	return newLine(name, c.Item.Description, qty, unit, c.Item.Rate, c.TaxRate, &id)
}

func newLine(name, description string, qty decimal.Decimal, unit string, price, taxRate decimal.Decimal, catalogID *int64) (LineItem, error) {
	if err := requireNonNegative("quantity", qty); err != nil {
		return LineItem{}, err
	}
	if err := requireNonNegative("unit price", price); err != nil {
		return LineItem{}, err
	}
	if err := requireNonNegative("tax rate", taxRate); err != nil {
		return LineItem{}, err
	}
	return LineItem{
		Name:          name,
		Description:   description,
		Quantity:      qty,
		Unit:          unit,
		UnitPrice:     price,
		TaxRate:       taxRate,
		Amount:        LineAmount(qty, price, taxRate),
		CatalogItemID: catalogID,
	}, nil
}

// ItemPatch replaces the given fields of a line. Nil fields are kept.
type ItemPatch struct {
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	Description *string          `json:"description,omitempty"`
}

// CreateInput holds the terms a caller supplies for a new draft document.
type CreateInput struct {
	Kind       Kind          `json:"kind" validate:"required"`
	ClientID   int64         `json:"client_id" validate:"required,gt=0"`
	Number     string        `json:"number,omitempty" validate:"max=50"`
	Currency   string        `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	ValidUntil *time.Time    `json:"valid_until,omitempty"`
	DueDate    *time.Time    `json:"due_date,omitempty"`
	Discount   *DiscountSpec `json:"discount,omitempty"`
	Taxes      []TaxSpec     `json:"taxes,omitempty"`
	Items      []ItemInput   `json:"items,omitempty"`
}

// New builds a draft document with computed totals.
func New(scope tenant.Scope, in CreateInput, now time.Time) (Document, error) {
	if err := scope.Validate(); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validateStruct(in); err != nil {
		return Document{}, err
	}
	policy, err := PolicyFor(in.Kind)
	if err != nil {
		return Document{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	doc := Document{
		Tenant:     scope,
		ClientID:   in.ClientID,
		Number:     strings.TrimSpace(in.Number),
		Kind:       in.Kind,
		Items:      []LineItem{},
		Discount:   DiscountSpec{Value: decimal.Zero, Type: DiscountPercentage},
		Taxes:      []TaxSpec{},
		Currency:   currency,
		Status:     StatusDraft,
		ValidUntil: in.ValidUntil,
		DueDate:    in.DueDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Discount != nil {
		if err := validateDiscount(*in.Discount); err != nil {
			return Document{}, err
		}
		doc.Discount = *in.Discount
	}
	taxes, err := normalizeTaxes(in.Taxes)
	if err != nil {
		return Document{}, err
	}
	if err := policy.checkTaxes(taxes); err != nil {
		return Document{}, err
	}
	doc.Taxes = taxes
	for i, item := range in.Items {
		line, err := item.lineItem()
		if err != nil {
			return Document{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		if err := policy.checkLine(line); err != nil {
			return Document{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		doc.Items = append(doc.Items, line)
	}
	return doc.withTotals(), nil
}

// AddItem appends a line built from src and recomputes the document.
func AddItem(doc Document, src ItemSource) (Document, error) {
	if src == nil {
		return doc, fmt.Errorf("%w: item source required", ErrValidation)
	}
	policy, err := PolicyFor(doc.Kind)
	if err != nil {
		return doc, err
	}
	line, err := src.lineItem()
	if err != nil {
		return doc, err
	}
	if err := policy.checkLine(line); err != nil {
		return doc, err
	}
	out := doc.clone()
	out.Items = append(out.Items, line)
	return out.withTotals(), nil
}

// UpdateItem applies patch to the line at index and recomputes the document.
func UpdateItem(doc Document, index int, patch ItemPatch) (Document, error) {
	if index < 0 || index >= len(doc.Items) {
		return doc, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(doc.Items))
	}
	policy, err := PolicyFor(doc.Kind)
	if err != nil {
		return doc, err
	}
	line := doc.Items[index]
	if patch.Quantity != nil {
		line.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		line.UnitPrice = *patch.UnitPrice
	}
	if patch.TaxRate != nil {
		line.TaxRate = *patch.TaxRate
	}
	if patch.Description != nil {
		line.Description = *patch.Description
	}
	line, err = newLine(line.Name, line.Description, line.Quantity, line.Unit, line.UnitPrice, line.TaxRate, line.CatalogItemID)
	if err != nil {
		return doc, err
	}
	if err := policy.checkLine(line); err != nil {
		return doc, err
	}
	out := doc.clone()
	out.Items[index] = line
	return out.withTotals(), nil
}

// RemoveItem drops the line at index and recomputes the document.
func RemoveItem(doc Document, index int) (Document, error) {
	if index < 0 || index >= len(doc.Items) {
		return doc, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(doc.Items))
	}
	out := doc.clone()
	out.Items = append(out.Items[:index], out.Items[index+1:]...)
	return out.withTotals(), nil
}

// SetDiscount replaces the discount term and recomputes the document.
func SetDiscount(doc Document, discount DiscountSpec) (Document, error) {
	if err := validateDiscount(discount); err != nil {
		return doc, err
	}
	out := doc.clone()
	out.Discount = discount
	return out.withTotals(), nil
}

// SetTaxes replaces the document-level taxes and recomputes the document.
func SetTaxes(doc Document, taxes []TaxSpec) (Document, error) {
	policy, err := PolicyFor(doc.Kind)
	if err != nil {
		return doc, err
	}
	normalized, err := normalizeTaxes(taxes)
	if err != nil {
		return doc, err
	}
	if err := policy.checkTaxes(normalized); err != nil {
		return doc, err
	}
	out := doc.clone()
	out.Taxes = normalized
	return out.withTotals(), nil
}
