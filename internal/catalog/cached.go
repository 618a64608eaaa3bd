package catalog

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// CachedReader serves catalog reads from the versioned Redis cache.
type CachedReader struct {
	next  Reader
	cache *cache.Cache
}

// NewCachedReader wraps next. A nil cache passes every call through.
func NewCachedReader(next Reader, c *cache.Cache) *CachedReader {
	return &CachedReader{next: next, cache: c}
}

// ListItems implements Reader.
func (r *CachedReader) ListItems(ctx context.Context, scope tenant.Scope, category string) ([]Item, error) {
	key, err := r.cache.BuildKey(ctx, "catalog", "items", scope.String(), category)
	if err != nil {
		return nil, err
	}
	var items []Item
	_, err = r.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		return r.next.ListItems(ctx, scope, category)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem implements Reader. Misses are not cached.
func (r *CachedReader) GetItem(ctx context.Context, scope tenant.Scope, id int64) (*Item, error) {
	key, err := r.cache.BuildKey(ctx, "catalog", "item", scope.String(), strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}
	var item Item
	_, err = r.cache.FetchJSON(ctx, key, &item, func(ctx context.Context) (any, error) {
		return r.next.GetItem(ctx, scope, id)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
