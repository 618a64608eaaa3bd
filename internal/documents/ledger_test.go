package documents

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/catalog"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newEstimate(t *testing.T, items ...ItemInput) Document {
	t.Helper()
	doc, err := New(1, CreateInput{Kind: KindEstimate, ClientID: 7, Items: items}, fixedNow)
	require.NoError(t, err)
	return doc
}

func TestNewDefaults(t *testing.T) {
	doc := newEstimate(t, ItemInput{Name: "Design", UnitPrice: dec("120")})
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, DefaultCurrency, doc.Currency)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "1", doc.Items[0].Quantity.String())
	assert.Equal(t, DefaultUnit, doc.Items[0].Unit)
	assert.Equal(t, "120", doc.Total.String())
}

func TestNewRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		scope int64
		in    CreateInput
	}{
		{"missing tenant", 0, CreateInput{Kind: KindEstimate, ClientID: 1}},
		{"unknown kind", 1, CreateInput{Kind: "receipt", ClientID: 1}},
		{"missing client", 1, CreateInput{Kind: KindInvoice}},
		{"bad currency", 1, CreateInput{Kind: KindInvoice, ClientID: 1, Currency: "DOLLARS"}},
		{"three taxes", 1, CreateInput{Kind: KindInvoice, ClientID: 1, Taxes: []TaxSpec{{Label: "A 1%"}, {Label: "B 2%"}, {Label: "C 3%"}}}},
		{"proposal with document tax", 1, CreateInput{Kind: KindProposal, ClientID: 1, Taxes: []TaxSpec{{Label: "GST 10%"}}}},
		{"negative discount", 1, CreateInput{Kind: KindEstimate, ClientID: 1, Discount: &DiscountSpec{Value: dec("-1"), Type: DiscountFlat}}},
		{"empty item name", 1, CreateInput{Kind: KindEstimate, ClientID: 1, Items: []ItemInput{{Name: "  ", UnitPrice: dec("1")}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tenant.Scope(tc.scope), tc.in, fixedNow)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewParsesTaxLabels(t *testing.T) {
	doc, err := New(1, CreateInput{
		Kind:     KindContract,
		ClientID: 3,
		Taxes:    []TaxSpec{{Label: "GST 10%"}},
		Items:    []ItemInput{{Name: "Retainer", Quantity: decPtr("2"), UnitPrice: dec("50")}},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "10", doc.Taxes[0].RatePercent.String())
	assert.Equal(t, "10", doc.TaxAmount.String())
	assert.Equal(t, "110", doc.Total.String())
}

func TestAddItemFreeForm(t *testing.T) {
	doc := newEstimate(t)
	out, err := AddItem(doc, ItemInput{Name: "Hosting", Quantity: decPtr("3"), Unit: "MO", UnitPrice: dec("15")})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	assert.Equal(t, "MO", out.Items[0].Unit)
	assert.Equal(t, "45", out.Items[0].Amount.String())
	assert.Equal(t, "45", out.SubTotal.String())
	assert.Empty(t, doc.Items, "input document must not change")
}

func TestAddItemFromCatalog(t *testing.T) {
	doc := newEstimate(t, ItemInput{Name: "First", UnitPrice: dec("10")})
	item := catalog.Item{ID: 99, Title: "Logo pack", Description: "Three concepts", Rate: dec("250"), UnitType: "SET"}

	out, err := AddItem(doc, CatalogLine{Item: item})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)

	added := out.Items[1]
	assert.Equal(t, "Logo pack", added.Name)
	assert.Equal(t, "SET", added.Unit)
	assert.Equal(t, "1", added.Quantity.String())
	require.NotNil(t, added.CatalogItemID)
	assert.Equal(t, int64(99), *added.CatalogItemID)
	assert.Equal(t, "260", out.Total.String())
	assert.Equal(t, "First", out.Items[0].Name, "insertion order is kept")
}

func TestAddItemValidation(t *testing.T) {
	doc := newEstimate(t)
	cases := map[string]ItemSource{
		"nil source":           nil,
		"negative quantity":    ItemInput{Name: "x", Quantity: decPtr("-1"), UnitPrice: dec("1")},
		"negative price":       ItemInput{Name: "x", UnitPrice: dec("-0.01")},
		"missing name":         ItemInput{UnitPrice: dec("1")},
		"item tax on estimate": ItemInput{Name: "x", UnitPrice: dec("1"), TaxRate: dec("5")},
		"untitled catalog":     CatalogLine{Item: catalog.Item{ID: 1, Rate: dec("1")}},
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := AddItem(doc, src)
			require.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, out.Items)
		})
	}
}

func TestProposalUsesItemTax(t *testing.T) {
	doc, err := New(1, CreateInput{Kind: KindProposal, ClientID: 2}, fixedNow)
	require.NoError(t, err)

	doc, err = AddItem(doc, ItemInput{Name: "Audit", Quantity: decPtr("2"), UnitPrice: dec("50"), TaxRate: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, "110", doc.Items[0].Amount.String())
	assert.Equal(t, "110", doc.Total.String())

	_, err = SetTaxes(doc, []TaxSpec{{Label: "GST 10%"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateItem(t *testing.T) {
	doc := newEstimate(t, ItemInput{Name: "A", UnitPrice: dec("10")}, ItemInput{Name: "B", UnitPrice: dec("20")})
	desc := "rush"
	out, err := UpdateItem(doc, 1, ItemPatch{Quantity: decPtr("3"), Description: &desc})
	require.NoError(t, err)

	assert.Equal(t, "60", out.Items[1].Amount.String())
	assert.Equal(t, "rush", out.Items[1].Description)
	assert.Equal(t, "70", out.Total.String())
	assert.Equal(t, "20", doc.Items[1].Amount.String(), "input document must not change")

	_, err = UpdateItem(doc, 0, ItemPatch{UnitPrice: decPtr("-5")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = UpdateItem(doc, 2, ItemPatch{Quantity: decPtr("1")})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestRemoveItem(t *testing.T) {
	doc := newEstimate(t,
		ItemInput{Name: "A", UnitPrice: dec("1")},
		ItemInput{Name: "B", UnitPrice: dec("2")},
		ItemInput{Name: "C", UnitPrice: dec("3")},
	)

	out, err := RemoveItem(doc, 99)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Len(t, out.Items, 3)
	assert.Len(t, doc.Items, 3)
	assert.Equal(t, "6", doc.Total.String())

	_, err = RemoveItem(doc, -1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	out, err = RemoveItem(doc, 1)
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "A", out.Items[0].Name)
	assert.Equal(t, "C", out.Items[1].Name)
	assert.Equal(t, "4", out.Total.String())
	assert.Equal(t, "B", doc.Items[1].Name, "input document must not change")
}

func TestSetDiscountAndTaxes(t *testing.T) {
	doc := newEstimate(t, ItemInput{Name: "A", Quantity: decPtr("2"), UnitPrice: dec("50")})

	doc, err := SetDiscount(doc, DiscountSpec{Value: dec("10"), Type: DiscountPercentage})
	require.NoError(t, err)
	assert.Equal(t, "90", doc.Total.String())

	doc, err = SetTaxes(doc, []TaxSpec{{Label: "GST 10%"}, {Label: "PST", RatePercent: dec("5")}})
	require.NoError(t, err)
	assert.Equal(t, "13.5", doc.TaxAmount.String())
	assert.Equal(t, "103.5", doc.Total.String())

	_, err = SetDiscount(doc, DiscountSpec{Value: dec("5"), Type: "bogus"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = SetTaxes(doc, []TaxSpec{{Label: "GST", RatePercent: dec("-1")}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRecomputeRederivesLines(t *testing.T) {
	doc := newEstimate(t, ItemInput{Name: "A", UnitPrice: dec("10")})
	doc.Items[0].Amount = decimal.NewFromInt(999)
	doc.Total = decimal.NewFromInt(999)

	fixed := doc.Recompute()
	assert.Equal(t, "10", fixed.Items[0].Amount.String())
	assert.Equal(t, "10", fixed.Total.String())
}
