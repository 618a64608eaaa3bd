package documents

import "fmt"

// TaxMode selects which tax mechanism a kind uses.
type TaxMode int

const (
	// TaxPerDocument applies document-level taxes; line tax rates must be zero.
	TaxPerDocument TaxMode = iota
	// TaxPerItem applies line tax rates; document-level taxes must be empty.
	TaxPerItem
	// TaxEither accepts both mechanisms.
	TaxEither
)

// Family groups kinds that share a status lifecycle.
type Family int

const (
	FamilyQuote Family = iota
	FamilyInvoice
)

// Policy is the kind-specific behaviour injected into the shared engine.
type Policy struct {
	Kind    Kind
	TaxMode TaxMode
	Family  Family
	Prefix  string
}

var policies = map[Kind]Policy{
	KindEstimate: {Kind: KindEstimate, TaxMode: TaxPerDocument, Family: FamilyQuote, Prefix: "EST"},
	KindProposal: {Kind: KindProposal, TaxMode: TaxPerItem, Family: FamilyQuote, Prefix: "PRP"},
	KindContract: {Kind: KindContract, TaxMode: TaxPerDocument, Family: FamilyQuote, Prefix: "CTR"},
	KindOrder:    {Kind: KindOrder, TaxMode: TaxPerDocument, Family: FamilyQuote, Prefix: "ORD"},
	KindInvoice:  {Kind: KindInvoice, TaxMode: TaxEither, Family: FamilyInvoice, Prefix: "INV"},
}

// PolicyFor returns the policy registered for kind.
func PolicyFor(kind Kind) (Policy, error) {
	p, ok := policies[kind]
	if !ok {
		return Policy{}, fmt.Errorf("%w: unknown document kind %q", ErrValidation, kind)
	}
	return p, nil
}

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindEstimate, KindProposal, KindContract, KindOrder, KindInvoice}
}

// DerivedStatus is the read-time status shown once the deadline has passed.
func (p Policy) DerivedStatus() Status {
	if p.Family == FamilyInvoice {
		return StatusOverdue
	}
	return StatusExpired
}

func (p Policy) allowsItemTax() bool {
	return p.TaxMode == TaxPerItem || p.TaxMode == TaxEither
}

func (p Policy) allowsDocumentTax() bool {
	return p.TaxMode == TaxPerDocument || p.TaxMode == TaxEither
}
