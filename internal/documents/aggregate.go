package documents

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawAmount is a monetary field as found in stored or imported records.
// It decodes from JSON numbers, strings or null without failing; values
// that do not parse count as zero.
type RawAmount string

// UnmarshalJSON implements json.Unmarshaler and never returns an error.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*a = RawAmount(s)
			return nil
		}
	}
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	*a = RawAmount(data)
	return nil
}

// Decimal parses the amount, returning zero when it is missing or malformed.
func (a RawAmount) Decimal() decimal.Decimal {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AmountOf renders a decimal as a RawAmount.
func AmountOf(d decimal.Decimal) RawAmount {
	return RawAmount(d.String())
}

// Record is the minimal view of a document the aggregator reads.
type Record struct {
	Kind       Kind       `json:"kind"`
	Status     Status     `json:"status"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Total      RawAmount  `json:"total"`
	Paid       RawAmount  `json:"amount_paid"`
}

// RecordOf projects a document into a Record.
func RecordOf(d Document) Record {
	return Record{
		Kind:       d.Kind,
		Status:     d.Status,
		ValidUntil: d.ValidUntil,
		DueDate:    d.DueDate,
		Total:      AmountOf(d.Total),
		Paid:       AmountOf(d.AmountPaid),
	}
}

func (r Record) deadline() *time.Time {
	return Document{Kind: r.Kind, ValidUntil: r.ValidUntil, DueDate: r.DueDate}.Deadline()
}

// Bucket is a count and amount for one display status.
type Bucket struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

func (b Bucket) add(amount decimal.Decimal) Bucket {
	return Bucket{Count: b.Count + 1, Amount: b.Amount.Add(amount)}
}

// AggregateSummary rolls a collection of documents up by display status.
type AggregateSummary struct {
	OverdueCount        int             `json:"overdue_count"`
	OverdueAmount       decimal.Decimal `json:"overdue_amount"`
	UnpaidCount         int             `json:"unpaid_count"`
	UnpaidAmount        decimal.Decimal `json:"unpaid_amount"`
	PartiallyPaidCount  int             `json:"partially_paid_count"`
	PartiallyPaidAmount decimal.Decimal `json:"partially_paid_amount"`
	PaidCount           int             `json:"paid_count"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	DraftCount          int             `json:"draft_count"`
	DraftAmount         decimal.Decimal `json:"draft_amount"`
	TotalInvoiced       decimal.Decimal `json:"total_invoiced"`
	TotalPaid           decimal.Decimal `json:"total_paid"`
	TotalDue            decimal.Decimal `json:"total_due"`

	ByStatus map[Status]Bucket `json:"by_status"`
}

// Aggregate folds records into a summary using each record's display status
// at now. Decimal addition is exact, so the result does not depend on the
// order of records.
func Aggregate(records []Record, now time.Time) AggregateSummary {
	sum := AggregateSummary{ByStatus: map[Status]Bucket{}}
	for _, r := range records {
		total := r.Total.Decimal()
		status := resolveDisplay(r.Kind, r.Status, r.deadline(), now)
		sum.ByStatus[status] = sum.ByStatus[status].add(total)

		switch status {
		case StatusOverdue:
			sum.OverdueCount++
			sum.OverdueAmount = sum.OverdueAmount.Add(total)
		case StatusUnpaid:
			sum.UnpaidCount++
			sum.UnpaidAmount = sum.UnpaidAmount.Add(total)
		case StatusPartiallyPaid:
			sum.PartiallyPaidCount++
			sum.PartiallyPaidAmount = sum.PartiallyPaidAmount.Add(total)
		case StatusPaid:
			sum.PaidCount++
			sum.PaidAmount = sum.PaidAmount.Add(total)
		case StatusDraft:
			sum.DraftCount++
			sum.DraftAmount = sum.DraftAmount.Add(total)
		}

		if r.Kind != KindInvoice || r.Status == StatusDraft {
			continue
		}
		paid := r.Paid.Decimal()
		sum.TotalInvoiced = sum.TotalInvoiced.Add(total)
		sum.TotalPaid = sum.TotalPaid.Add(paid)
		sum.TotalDue = sum.TotalDue.Add(total.Sub(paid))
	}
	return sum
}

// AggregateDocuments is Aggregate over computed documents.
func AggregateDocuments(docs []Document, now time.Time) AggregateSummary {
	records := make([]Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, RecordOf(d))
	}
	return Aggregate(records, now)
}
