// Package documents implements the financial document engine shared by
// estimates, proposals, contracts, invoices and orders: line item ledger,
// discount and tax calculation, display status resolution and aggregation.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// Kind enumerates document kinds.
type Kind string

const (
	KindEstimate Kind = "estimate"
	KindProposal Kind = "proposal"
	KindContract Kind = "contract"
	KindInvoice  Kind = "invoice"
	KindOrder    Kind = "order"
)

// Status enumerates persisted and derived document statuses.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusSent          Status = "sent"
	StatusAccepted      Status = "accepted"
	StatusDeclined      Status = "declined"
	StatusUnpaid        Status = "unpaid"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"

	// Derived at read time, never persisted.
	StatusExpired Status = "expired"
	StatusOverdue Status = "overdue"
)

// DiscountType selects how DiscountSpec.Value is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

// DefaultCurrency applies when a document is created without one.
const DefaultCurrency = "USD"

// DefaultUnit applies when a line is added without a unit.
const DefaultUnit = "PC"

// MaxTaxes is the number of document-level taxes a document may carry.
const MaxTaxes = 2

// LineItem is one priced row of a document. Amount is always derived.
type LineItem struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Amount        decimal.Decimal `json:"amount"`
	CatalogItemID *int64          `json:"catalog_item_id,omitempty"`
}

// DiscountSpec is the single discount term of a document.
type DiscountSpec struct {
	Value decimal.Decimal `json:"value"`
	Type  DiscountType    `json:"type"`
}

// TaxSpec is a document-level tax such as "GST 10%".
type TaxSpec struct {
	Label       string          `json:"label"`
	RatePercent decimal.Decimal `json:"rate_percent"`
}

// Document is one financial record composed of lines plus discount and tax
// terms. SubTotal, DiscountAmount, TaxAmount and Total are derived.
type Document struct {
	ID             int64           `json:"id"`
	Tenant         tenant.Scope    `json:"tenant_id"`
	ClientID       int64           `json:"client_id"`
	Number         string          `json:"number"`
	Kind           Kind            `json:"kind"`
	Items          []LineItem      `json:"items"`
	Discount       DiscountSpec    `json:"discount"`
	Taxes          []TaxSpec       `json:"taxes"`
	Currency       string          `json:"currency"`
	SubTotal       decimal.Decimal `json:"sub_total"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Status         Status          `json:"status"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Totals returns the derived amounts currently stored on the document.
func (d Document) Totals() Totals {
	return Totals{
		SubTotal:       d.SubTotal,
		DiscountAmount: d.DiscountAmount,
		TaxAmount:      d.TaxAmount,
		Total:          d.Total,
	}
}

// Balance is the amount still due on an invoice.
func (d Document) Balance() decimal.Decimal {
	return d.Total.Sub(d.AmountPaid)
}

// Deadline returns the date after which the document expires or is overdue.
func (d Document) Deadline() *time.Time {
	if d.Kind == KindInvoice && d.DueDate != nil {
		return d.DueDate
	}
	if d.ValidUntil != nil {
		return d.ValidUntil
	}
	return d.DueDate
}

// Recompute re-derives every line amount and the document totals.
func (d Document) Recompute() Document {
	out := d.clone()
	for i := range out.Items {
		out.Items[i].Amount = LineAmount(out.Items[i].Quantity, out.Items[i].UnitPrice, out.Items[i].TaxRate)
	}
	return out.withTotals()
}

func (d Document) withTotals() Document {
	t := Compute(d.Items, d.Discount, d.Taxes)
	d.SubTotal = t.SubTotal
	d.DiscountAmount = t.DiscountAmount
	d.TaxAmount = t.TaxAmount
	d.Total = t.Total
	return d
}

// clone copies the slices so mutations never alias the caller's document.
func (d Document) clone() Document {
	out := d
	if d.Items != nil {
		out.Items = make([]LineItem, len(d.Items))
		copy(out.Items, d.Items)
	}
	if d.Taxes != nil {
		out.Taxes = make([]TaxSpec, len(d.Taxes))
		copy(out.Taxes, d.Taxes)
	}
	return out
}
