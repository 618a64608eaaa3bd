package documents

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Clock supplies the current time to read-time status resolution.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

var transitions = map[Family]map[Status][]Status{
	FamilyQuote: {
		StatusDraft: {StatusSent},
		StatusSent:  {StatusAccepted, StatusDeclined, StatusDraft},
	},
	FamilyInvoice: {
		StatusDraft:         {StatusUnpaid},
		StatusUnpaid:        {StatusPartiallyPaid, StatusPaid},
		StatusPartiallyPaid: {StatusPaid},
	},
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusPaid:
		return true
	}
	return false
}

// CanTransition reports whether kind allows moving from one persisted
// status to another.
func CanTransition(kind Kind, from, to Status) bool {
	policy, err := PolicyFor(kind)
	if err != nil {
		return false
	}
	for _, next := range transitions[policy.Family][from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves the persisted status of doc to next. Invoices reach
// partially_paid and paid only through RecordPayment, so the status always
// agrees with AmountPaid.
func UpdateStatus(doc Document, next Status) (Document, error) {
	if paymentDriven(doc.Kind, next) {
		return doc, fmt.Errorf("%w: %s %s is set by recording a payment", ErrInvalidTransition, doc.Kind, next)
	}
	return transition(doc, next)
}

func paymentDriven(kind Kind, status Status) bool {
	policy, err := PolicyFor(kind)
	if err != nil || policy.Family != FamilyInvoice {
		return false
	}
	return status == StatusPartiallyPaid || status == StatusPaid
}

func transition(doc Document, next Status) (Document, error) {
	if !CanTransition(doc.Kind, doc.Status, next) {
		return doc, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, doc.Kind, doc.Status, next)
	}
	out := doc.clone()
	out.Status = next
	return out, nil
}

// ResolveDisplayStatus returns the status to show at now. A non-terminal
// document whose deadline is strictly before now shows as expired (quotes)
// or overdue (invoices). Draft invoices have not been issued and are never
// overdue. The persisted status is left untouched.
func ResolveDisplayStatus(doc Document, now time.Time) Status {
	return resolveDisplay(doc.Kind, doc.Status, doc.Deadline(), now)
}

// NextDisplayChange returns the deadline after which the display status of
// doc will change, or nil when it is already settled at now.
func NextDisplayChange(doc Document, now time.Time) *time.Time {
	deadline := doc.Deadline()
	if deadline == nil || deadline.Before(now) {
		return nil
	}
	if resolveDisplay(doc.Kind, doc.Status, deadline, deadline.Add(time.Nanosecond)) == doc.Status {
		return nil
	}
	return deadline
}

func resolveDisplay(kind Kind, status Status, deadline *time.Time, now time.Time) Status {
	if deadline == nil || IsTerminal(status) || !deadline.Before(now) {
		return status
	}
	policy, err := PolicyFor(kind)
	if err != nil {
		return status
	}
	if policy.Family == FamilyInvoice && status == StatusDraft {
		return status
	}
	return policy.DerivedStatus()
}

// RecordPayment adds amount to an invoice's paid total and moves it to
// partially_paid or paid. Payments on drafts are rejected.
func RecordPayment(doc Document, amount decimal.Decimal) (Document, error) {
	if doc.Kind != KindInvoice {
		return doc, fmt.Errorf("%w: payments apply to invoices only", ErrValidation)
	}
	if !amount.IsPositive() {
		return doc, fmt.Errorf("%w: payment must be positive", ErrValidation)
	}
	if doc.Status != StatusUnpaid && doc.Status != StatusPartiallyPaid {
		return doc, fmt.Errorf("%w: cannot pay %s invoice", ErrInvalidTransition, doc.Status)
	}
	out := doc.clone()
	out.AmountPaid = out.AmountPaid.Add(amount)
	next := StatusPartiallyPaid
	if out.AmountPaid.GreaterThanOrEqual(out.Total) {
		next = StatusPaid
	}
	if next == out.Status {
		return out, nil
	}
	return transition(out, next)
}

// ConvertToInvoice turns an accepted quote-family document into a new draft
// invoice carrying the same lines and terms.
func ConvertToInvoice(doc Document, dueDate *time.Time, now time.Time) (Document, error) {
	policy, err := PolicyFor(doc.Kind)
	if err != nil {
		return Document{}, err
	}
	if policy.Family != FamilyQuote {
		return Document{}, fmt.Errorf("%w: %s cannot be converted", ErrValidation, doc.Kind)
	}
	if doc.Status != StatusAccepted {
		return Document{}, fmt.Errorf("%w: only accepted documents convert, got %s", ErrInvalidTransition, doc.Status)
	}
	src := doc.clone()
	inv := Document{
		Tenant:    src.Tenant,
		ClientID:  src.ClientID,
		Kind:      KindInvoice,
		Items:     src.Items,
		Discount:  src.Discount,
		Taxes:     src.Taxes,
		Currency:  src.Currency,
		Status:    StatusDraft,
		DueDate:   dueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return inv.Recompute(), nil
}
