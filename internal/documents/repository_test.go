package documents

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "INV-00042", FormatNumber("INV", 42))
	assert.Equal(t, "EST-123456", FormatNumber("EST", 123456))
}

func TestBuildListQuery(t *testing.T) {
	query, args := buildListQuery(3, ListFilter{Kind: KindInvoice, ClientID: 9, Limit: 20, Offset: 40})
	assert.Contains(t, query, "tenant_id = $1 AND kind = $2 AND client_id = $3")
	assert.Contains(t, query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{int64(3), "invoice", int64(9), 20, 40}, args)

	query, args = buildListQuery(3, ListFilter{Status: StatusPaid})
	assert.Contains(t, query, "AND status = $2")
	assert.NotContains(t, query, "LIMIT")
	assert.Len(t, args, 2)
}

func TestDocumentRowDecode(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	row := documentRow{
		id: 5, tenantID: 2, clientID: 8, version: 3,
		number: "INV-00005", kind: "invoice", status: "unpaid", currency: "USD", discTyp: "flat",
		items:      []byte(`[{"name":"Work","quantity":"2","unit":"PC","unit_price":"50.125","tax_rate":"0","amount":"100.25"}]`),
		taxes:      []byte(`[{"label":"GST 10%","rate_percent":"10"}]`),
		discValue:  "0.25",
		subTotal:   "100.25",
		discAmount: "0.25",
		taxAmount:  "10",
		total:      "110",
		amountPaid: "0",
		dueDate:    &due,
	}
	doc, err := row.document()
	require.NoError(t, err)
	assert.Equal(t, KindInvoice, doc.Kind)
	assert.Equal(t, DiscountFlat, doc.Discount.Type)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "50.125", doc.Items[0].UnitPrice.String())
	assert.Equal(t, "10", doc.Taxes[0].RatePercent.String())
	assert.True(t, doc.Recompute().Totals().Equal(doc.Totals()))

	row.total = "NaN?"
	_, err = row.document()
	require.ErrorIs(t, err, ErrComputation)
}

func TestDocumentRowKeepsDiscountPrecisionAcrossEdits(t *testing.T) {
	row := documentRow{
		id: 9, tenantID: 1, clientID: 3, version: 2,
		number: "EST-00009", kind: "estimate", status: "draft", currency: "USD", discTyp: "percentage",
		items:      []byte(`[{"name":"Work","quantity":"1","unit":"PC","unit_price":"200","tax_rate":"0","amount":"200"}]`),
		taxes:      []byte(`[]`),
		discValue:  "12.34567",
		subTotal:   "200",
		discAmount: "24.69134",
		taxAmount:  "0",
		total:      "175.30866",
		amountPaid: "0",
	}
	doc, err := row.document()
	require.NoError(t, err)
	assert.Equal(t, "12.34567", doc.Discount.Value.String())
	assert.True(t, doc.Recompute().Totals().Equal(doc.Totals()), "stored totals match a fresh compute")

	edited, err := AddItem(doc, ItemInput{Name: "More", UnitPrice: dec("100")})
	require.NoError(t, err)
	assert.True(t, edited.DiscountAmount.Equal(dec("37.03701")), edited.DiscountAmount.String())
	assert.True(t, edited.Total.Equal(dec("262.96299")), edited.Total.String())
}

func TestMigrationNumericColumnsAreUnconstrained(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_documents.up.sql"))
	require.NoError(t, err)
	assert.NotRegexp(t, regexp.MustCompile(`(?i)NUMERIC\s*\(`), string(data), "amounts keep full precision in storage")
	assert.Contains(t, string(data), "discount_value  NUMERIC NOT NULL")
}
