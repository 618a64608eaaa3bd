package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// Repository provides PostgreSQL backed persistence for documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const documentColumns = `id, tenant_id, client_id, number, kind, status, currency,
	items, discount_value::text, discount_type, taxes,
	sub_total::text, discount_amount::text, tax_amount::text, total::text, amount_paid::text,
	valid_until, due_date, version, created_at, updated_at`

// Get loads one document of a tenant.
func (r *Repository) Get(ctx context.Context, scope tenant.Scope, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE tenant_id = $1 AND id = $2`, int64(scope), id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List returns documents of a tenant, newest first.
func (r *Repository) List(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Document, error) {
	query, args := buildListQuery(scope, filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	return docs, nil
}

func buildListQuery(scope tenant.Scope, filter ListFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = $1`)
	args := []any{int64(scope)}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		fmt.Fprintf(&b, " AND kind = $%d", len(args))
	}
	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		fmt.Fprintf(&b, " AND client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		fmt.Fprintf(&b, " AND status = $%d", len(args))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

// Create inserts doc and allocates a per-tenant number when none is given.
func (r *Repository) Create(ctx context.Context, doc Document) (Document, error) {
	policy, err := PolicyFor(doc.Kind)
	if err != nil {
		return Document{}, err
	}
	items, taxes, err := encodeTerms(doc)
	if err != nil {
		return Document{}, err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if doc.Number == "" {
			var seq int64
			if err := tx.QueryRow(ctx, `
				INSERT INTO document_counters (tenant_id, kind, last_value) VALUES ($1, $2, 1)
				ON CONFLICT (tenant_id, kind) DO UPDATE SET last_value = document_counters.last_value + 1
				RETURNING last_value`, int64(doc.Tenant), string(doc.Kind)).Scan(&seq); err != nil {
				return fmt.Errorf("documents: allocate number: %w", err)
			}
			doc.Number = FormatNumber(policy.Prefix, seq)
		}
		return tx.QueryRow(ctx, `
			INSERT INTO documents (
				tenant_id, client_id, number, kind, status, currency,
				items, discount_value, discount_type, taxes,
				sub_total, discount_amount, tax_amount, total, amount_paid,
				valid_until, due_date, version, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8::numeric, $9, $10,
				$11::numeric, $12::numeric, $13::numeric, $14::numeric, $15::numeric,
				$16, $17, 1, $18, $18
			) RETURNING id, version`,
			int64(doc.Tenant), doc.ClientID, doc.Number, string(doc.Kind), string(doc.Status), doc.Currency,
			items, doc.Discount.Value.String(), string(doc.Discount.Type), taxes,
			doc.SubTotal.String(), doc.DiscountAmount.String(), doc.TaxAmount.String(), doc.Total.String(), doc.AmountPaid.String(),
			doc.ValidUntil, doc.DueDate, doc.CreatedAt,
		).Scan(&doc.ID, &doc.Version)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Document{}, fmt.Errorf("%w: number %q already used", ErrValidation, doc.Number)
		}
		return Document{}, err
	}
	doc.UpdatedAt = doc.CreatedAt
	return doc, nil
}

// Update saves the editable fields of doc guarded by its version.
func (r *Repository) Update(ctx context.Context, scope tenant.Scope, doc Document) (Document, error) {
	items, taxes, err := encodeTerms(doc)
	if err != nil {
		return Document{}, err
	}
	err = r.pool.QueryRow(ctx, `
		UPDATE documents SET
			client_id = $4, status = $5, currency = $6,
			items = $7, discount_value = $8::numeric, discount_type = $9, taxes = $10,
			sub_total = $11::numeric, discount_amount = $12::numeric, tax_amount = $13::numeric,
			total = $14::numeric, amount_paid = $15::numeric,
			valid_until = $16, due_date = $17, updated_at = $18,
			version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND version = $3
		RETURNING version`,
		int64(scope), doc.ID, doc.Version,
		doc.ClientID, string(doc.Status), doc.Currency,
		items, doc.Discount.Value.String(), string(doc.Discount.Type), taxes,
		doc.SubTotal.String(), doc.DiscountAmount.String(), doc.TaxAmount.String(),
		doc.Total.String(), doc.AmountPaid.String(),
		doc.ValidUntil, doc.DueDate, doc.UpdatedAt,
	).Scan(&doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, r.missOrStale(ctx, scope, doc.ID)
	}
	if err != nil {
		return Document{}, fmt.Errorf("documents: update %d: %w", doc.ID, err)
	}
	return doc, nil
}

// UpdateStatus sets the persisted status guarded by version.
func (r *Repository) UpdateStatus(ctx context.Context, scope tenant.Scope, id int64, status Status, version int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE documents SET status = $4, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND version = $3
		RETURNING `+documentColumns,
		int64(scope), id, version, string(status))
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, r.missOrStale(ctx, scope, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("documents: update status %d: %w", id, err)
	}
	return doc, nil
}

func (r *Repository) missOrStale(ctx context.Context, scope tenant.Scope, id int64) error {
	var version int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM documents WHERE tenant_id = $1 AND id = $2`, int64(scope), id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stored version %d", ErrStaleVersion, version)
}

// FormatNumber renders a document number such as "INV-00042".
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%05d", prefix, seq)
}

func encodeTerms(doc Document) ([]byte, []byte, error) {
	lines := doc.Items
	if lines == nil {
		lines = []LineItem{}
	}
	items, err := json.Marshal(lines)
	if err != nil {
		return nil, nil, fmt.Errorf("documents: encode items: %w", err)
	}
	list := doc.Taxes
	if list == nil {
		list = []TaxSpec{}
	}
	taxes, err := json.Marshal(list)
	if err != nil {
		return nil, nil, fmt.Errorf("documents: encode taxes: %w", err)
	}
	return items, taxes, nil
}

type documentRow struct {
	id, tenantID, clientID, version         int64
	number, kind, status, currency, discTyp string
	items, taxes                            []byte
	discValue, subTotal, discAmount         string
	taxAmount, total, amountPaid            string
	validUntil, dueDate                     *time.Time
	createdAt, updatedAt                    time.Time
}

func scanDocument(row pgx.Row) (Document, error) {
	var r documentRow
	if err := row.Scan(
		&r.id, &r.tenantID, &r.clientID, &r.number, &r.kind, &r.status, &r.currency,
		&r.items, &r.discValue, &r.discTyp, &r.taxes,
		&r.subTotal, &r.discAmount, &r.taxAmount, &r.total, &r.amountPaid,
		&r.validUntil, &r.dueDate, &r.version, &r.createdAt, &r.updatedAt,
	); err != nil {
		return Document{}, err
	}
	return r.document()
}

func (r documentRow) document() (Document, error) {
	doc := Document{
		ID:         r.id,
		Tenant:     tenant.Scope(r.tenantID),
		ClientID:   r.clientID,
		Number:     r.number,
		Kind:       Kind(r.kind),
		Status:     Status(r.status),
		Currency:   r.currency,
		ValidUntil: r.validUntil,
		DueDate:    r.dueDate,
		Version:    r.version,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
	}
	if err := json.Unmarshal(r.items, &doc.Items); err != nil {
		return Document{}, fmt.Errorf("documents: decode items of %d: %w", r.id, err)
	}
	if err := json.Unmarshal(r.taxes, &doc.Taxes); err != nil {
		return Document{}, fmt.Errorf("documents: decode taxes of %d: %w", r.id, err)
	}
	amounts := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&doc.Discount.Value, r.discValue},
		{&doc.SubTotal, r.subTotal},
		{&doc.DiscountAmount, r.discAmount},
		{&doc.TaxAmount, r.taxAmount},
		{&doc.Total, r.total},
		{&doc.AmountPaid, r.amountPaid},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(a.raw)
		if err != nil {
			return Document{}, fmt.Errorf("%w: document %d amount %q", ErrComputation, r.id, a.raw)
		}
		*a.dst = d
	}
	doc.Discount.Type = DiscountType(r.discTyp)
	return doc, nil
}
