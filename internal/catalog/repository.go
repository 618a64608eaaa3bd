package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// Repository provides PostgreSQL backed catalog reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, title, COALESCE(description, ''), rate::text, unit_type, COALESCE(category, '')`

// ListItems returns the active items of a tenant, optionally filtered by category.
func (r *Repository) ListItems(ctx context.Context, scope tenant.Scope, category string) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items
		WHERE tenant_id = $1 AND deleted_at IS NULL AND ($2::text = '' OR category = $2::text)
		ORDER BY title, id`
	rows, err := r.pool.Query(ctx, query, int64(scope), category)
	if err != nil {
		return nil, fmt.Errorf("catalog: list items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list items: %w", err)
	}
	return items, nil
}

// GetItem loads one item of a tenant.
func (r *Repository) GetItem(ctx context.Context, scope tenant.Scope, id int64) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	item, err := scanItem(r.pool.QueryRow(ctx, query, int64(scope), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item Item
		rate string
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Description, &rate, &item.UnitType, &item.Category); err != nil {
		return Item{}, err
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return Item{}, fmt.Errorf("catalog: item %d rate %q: %w", item.ID, rate, err)
	}
	item.Rate = d
	return item, nil
}
