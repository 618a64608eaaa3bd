// Package catalog exposes the purchasable item catalog of a tenant.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// ErrNotFound indicates the catalog item does not exist in the tenant scope.
var ErrNotFound = errors.New("catalog: item not found")

// Item is one catalog entry that can be added to a document as a line.
type Item struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	UnitType    string          `json:"unit_type"`
	Category    string          `json:"category,omitempty"`
}

// Reader is the read side of the catalog consumed by the document engine.
type Reader interface {
	ListItems(ctx context.Context, scope tenant.Scope, category string) ([]Item, error)
	GetItem(ctx context.Context, scope tenant.Scope, id int64) (*Item, error)
}
