package documents

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/catalog"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[int64]Document
}

func newMemStore() *memStore {
	return &memStore{docs: map[int64]Document{}}
}

func (m *memStore) Get(_ context.Context, scope tenant.Scope, id int64) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.Tenant != scope {
		return Document{}, ErrNotFound
	}
	return doc.clone(), nil
}

func (m *memStore) List(_ context.Context, scope tenant.Scope, filter ListFilter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.docs {
		if doc.Tenant != scope {
			continue
		}
		if filter.Kind != "" && doc.Kind != filter.Kind {
			continue
		}
		if filter.ClientID > 0 && doc.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, doc.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset > len(out) {
		return []Document{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	doc.ID = m.nextID
	doc.Version = 1
	if doc.Number == "" {
		policy, err := PolicyFor(doc.Kind)
		if err != nil {
			return Document{}, err
		}
		doc.Number = FormatNumber(policy.Prefix, doc.ID)
	}
	m.docs[doc.ID] = doc.clone()
	return doc, nil
}

func (m *memStore) Update(_ context.Context, scope tenant.Scope, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok || cur.Tenant != scope {
		return Document{}, ErrNotFound
	}
	if cur.Version != doc.Version {
		return Document{}, ErrStaleVersion
	}
	doc.Version++
	m.docs[doc.ID] = doc.clone()
	return doc, nil
}

func (m *memStore) UpdateStatus(_ context.Context, scope tenant.Scope, id int64, status Status, version int64) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[id]
	if !ok || cur.Tenant != scope {
		return Document{}, ErrNotFound
	}
	if cur.Version != version {
		return Document{}, ErrStaleVersion
	}
	cur.Status = status
	cur.Version++
	m.docs[id] = cur
	return cur.clone(), nil
}

type staticCatalog map[int64]catalog.Item

func (c staticCatalog) ListItems(context.Context, tenant.Scope, string) ([]catalog.Item, error) {
	out := make([]catalog.Item, 0, len(c))
	for _, item := range c {
		out = append(out, item)
	}
	return out, nil
}

func (c staticCatalog) GetItem(_ context.Context, _ tenant.Scope, id int64) (*catalog.Item, error) {
	item, ok := c[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &item, nil
}

type mutationLog struct {
	mu      sync.Mutex
	ok      []string
	failed  []string
	changed []int64
}

func (l *mutationLog) DocumentMutation(kind, op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.failed = append(l.failed, kind+":"+op)
		return
	}
	l.ok = append(l.ok, kind+":"+op)
}

func (l *mutationLog) DocumentChanged(_ context.Context, _ tenant.Scope, clientID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changed = append(l.changed, clientID)
}

func newTestService(t *testing.T) (*Service, *memStore, *mutationLog) {
	t.Helper()
	store := newMemStore()
	log := &mutationLog{}
	svc := NewService(store, Options{
		Catalog: staticCatalog{
			77: {ID: 77, Title: "Logo pack", Rate: decimal.RequireFromString("250"), UnitType: "SET"},
		},
		Clock:    ClockFunc(func() time.Time { return fixedNow }),
		Metrics:  log,
		Notifier: log,
	})
	return svc, store, log
}

func TestServiceCreateAndEdit(t *testing.T) {
	ctx := context.Background()
	svc, _, log := newTestService(t)

	created, err := svc.Create(ctx, 1, CreateInput{Kind: KindEstimate, ClientID: 12})
	require.NoError(t, err)
	assert.Equal(t, "EST-00001", created.Number)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, StatusDraft, created.DisplayStatus)

	v, err := svc.AddItem(ctx, 1, created.ID, created.Version, AddItemInput{Item: &ItemInput{Name: "Design", Quantity: decPtr("2"), UnitPrice: dec("50")}})
	require.NoError(t, err)
	assert.Equal(t, "100", v.Total.String())
	assert.Equal(t, int64(2), v.Version)

	v, err = svc.AddItem(ctx, 1, created.ID, v.Version, AddItemInput{CatalogItemID: int64Ptr(77)})
	require.NoError(t, err)
	assert.Equal(t, "350", v.Total.String())
	require.NotNil(t, v.Items[1].CatalogItemID)

	v, err = svc.SetDiscount(ctx, 1, created.ID, v.Version, DiscountSpec{Value: dec("10"), Type: DiscountPercentage})
	require.NoError(t, err)
	v, err = svc.SetTaxes(ctx, 1, created.ID, v.Version, []TaxSpec{{Label: "GST 10%"}})
	require.NoError(t, err)
	assert.Equal(t, "346.5", v.Total.String())

	v, err = svc.UpdateItem(ctx, 1, created.ID, v.Version, 0, ItemPatch{Quantity: decPtr("1")})
	require.NoError(t, err)
	v, err = svc.RemoveItem(ctx, 1, created.ID, v.Version, 1)
	require.NoError(t, err)
	assert.Equal(t, "49.5", v.Total.String())

	assert.Len(t, log.ok, 7)
	assert.Empty(t, log.failed)
	assert.Len(t, log.changed, 7)
}

func int64Ptr(v int64) *int64 { return &v }

func TestServiceRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	svc, _, log := newTestService(t)

	created, err := svc.Create(ctx, 1, CreateInput{Kind: KindEstimate, ClientID: 12})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 1, created.ID, created.Version, AddItemInput{Item: &ItemInput{Name: "A", UnitPrice: dec("1")}})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, 1, created.ID, created.Version, AddItemInput{Item: &ItemInput{Name: "B", UnitPrice: dec("1")}})
	require.ErrorIs(t, err, ErrStaleVersion)

	got, err := svc.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.Empty(t, log.failed, "stale reads are rejected before the engine runs")
}

func TestServiceTenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	created, err := svc.Create(ctx, 1, CreateInput{Kind: KindInvoice, ClientID: 3})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SetDiscount(ctx, 2, created.ID, 0, DiscountSpec{Type: DiscountFlat})
	require.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(ctx, 2, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestServiceAddItemSourceErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	created, err := svc.Create(ctx, 1, CreateInput{Kind: KindEstimate, ClientID: 1})
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, 1, created.ID, 0, AddItemInput{})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.AddItem(ctx, 1, created.ID, 0, AddItemInput{CatalogItemID: int64Ptr(404)})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.AddItem(ctx, 1, created.ID, 0, AddItemInput{Item: &ItemInput{Name: "x"}, CatalogItemID: int64Ptr(77)})
	require.ErrorIs(t, err, ErrValidation)
}

func TestServiceInvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	due := fixedNow.AddDate(0, 0, -1)
	inv, err := svc.Create(ctx, 1, CreateInput{
		Kind:     KindInvoice,
		ClientID: 4,
		DueDate:  &due,
		Items:    []ItemInput{{Name: "Work", UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-00001", inv.Number)
	assert.Equal(t, StatusDraft, inv.DisplayStatus)

	_, err = svc.RecordPayment(ctx, 1, inv.ID, inv.Version, dec("10"))
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err := svc.ChangeStatus(ctx, 1, inv.ID, inv.Version, StatusUnpaid)
	require.NoError(t, err)
	assert.Equal(t, StatusUnpaid, v.Status)
	assert.Equal(t, StatusOverdue, v.DisplayStatus)

	_, err = svc.ChangeStatus(ctx, 1, inv.ID, v.Version, StatusPaid)
	require.ErrorIs(t, err, ErrInvalidTransition, "paid is reached by recording payments")

	v, err = svc.RecordPayment(ctx, 1, inv.ID, v.Version, dec("40"))
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, v.Status)
	v, err = svc.RecordPayment(ctx, 1, inv.ID, v.Version, dec("60"))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, v.Status)
	assert.Equal(t, StatusPaid, v.DisplayStatus)

	_, err = svc.ChangeStatus(ctx, 1, inv.ID, v.Version, StatusDraft)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.AddItem(ctx, 1, inv.ID, v.Version, AddItemInput{Item: &ItemInput{Name: "Extra", UnitPrice: dec("5")}})
	require.ErrorIs(t, err, ErrInvalidTransition, "paid invoices are closed for edits")
	_, err = svc.SetDiscount(ctx, 1, inv.ID, v.Version, DiscountSpec{Value: dec("5"), Type: DiscountFlat})
	require.ErrorIs(t, err, ErrInvalidTransition)
	got, err := svc.Get(ctx, 1, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance().IsZero())
}

func TestServiceConvertToInvoice(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	est, err := svc.Create(ctx, 1, CreateInput{
		Kind:     KindProposal,
		ClientID: 6,
		Items:    []ItemInput{{Name: "Audit", UnitPrice: dec("100"), TaxRate: dec("5")}},
	})
	require.NoError(t, err)

	_, err = svc.ConvertToInvoice(ctx, 1, est.ID, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	v, err := svc.ChangeStatus(ctx, 1, est.ID, est.Version, StatusSent)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, 1, est.ID, v.Version, StatusAccepted)
	require.NoError(t, err)

	inv, err := svc.ConvertToInvoice(ctx, 1, est.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, KindInvoice, inv.Kind)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, "105", inv.Total.String())
	assert.NotEqual(t, est.ID, inv.ID)
	assert.Len(t, store.docs, 2)
}

func TestServiceListFilters(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	for _, kind := range []Kind{KindEstimate, KindInvoice, KindInvoice} {
		_, err := svc.Create(ctx, 1, CreateInput{Kind: kind, ClientID: 1})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, 1, ListFilter{Kind: KindInvoice})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = svc.List(ctx, 1, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].ID)

	_, err = svc.List(ctx, 1, ListFilter{Kind: "receipt"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.List(ctx, 0, ListFilter{})
	require.ErrorIs(t, err, ErrValidation)
}
