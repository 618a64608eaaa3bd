package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/catalog"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

// Default and maximum page sizes for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ListFilter narrows a document listing. Zero values match everything.
type ListFilter struct {
	Kind     Kind
	ClientID int64
	Status   Status
	Limit    int
	Offset   int
}

// Store persists documents. Every call is scoped to one tenant; ErrNotFound
// is returned for ids outside the scope.
type Store interface {
	Get(ctx context.Context, scope tenant.Scope, id int64) (Document, error)
	List(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]Document, error)
	// Create inserts doc, assigning ID, Number when empty and Version 1.
	Create(ctx context.Context, doc Document) (Document, error)
	// Update saves doc when the stored version still equals doc.Version and
	// returns it with the incremented version. Otherwise ErrStaleVersion.
	Update(ctx context.Context, scope tenant.Scope, doc Document) (Document, error)
	UpdateStatus(ctx context.Context, scope tenant.Scope, id int64, status Status, version int64) (Document, error)
}

// Recorder receives mutation outcomes for metrics.
type Recorder interface {
	DocumentMutation(kind, op string, err error)
}

// ChangeNotifier is told when a client's documents change.
type ChangeNotifier interface {
	DocumentChanged(ctx context.Context, scope tenant.Scope, clientID int64)
}

// Options configures optional collaborators of Service.
type Options struct {
	Catalog  catalog.Reader
	Clock    Clock
	Logger   *slog.Logger
	Metrics  Recorder
	Notifier ChangeNotifier
}

// View is a document with its display status resolved at read time.
type View struct {
	Document
	DisplayStatus Status `json:"display_status"`
}

// AddItemInput adds either a free-form line or a catalog item by id.
type AddItemInput struct {
	Item          *ItemInput       `json:"item,omitempty"`
	CatalogItemID *int64           `json:"catalog_item_id,omitempty"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	TaxRate       decimal.Decimal  `json:"tax_rate"`
}

// Service orchestrates load, mutate, recompute and save for documents.
type Service struct {
	store    Store
	catalog  catalog.Reader
	clock    Clock
	logger   *slog.Logger
	metrics  Recorder
	notifier ChangeNotifier
}

// NewService builds Service instance.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:    store,
		catalog:  opts.Catalog,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) view(doc Document) View {
	return View{Document: doc, DisplayStatus: ResolveDisplayStatus(doc, s.clock.Now())}
}

// Create builds and stores a new draft document.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, in CreateInput) (View, error) {
	doc, err := New(scope, in, s.clock.Now())
	if err != nil {
		s.record(in.Kind, "create", err)
		return View{}, err
	}
	saved, err := s.store.Create(ctx, doc)
	s.record(in.Kind, "create", err)
	if err != nil {
		return View{}, s.fail(ctx, "create document", err, scope, 0)
	}
	s.changed(ctx, saved, "create")
	return s.view(saved), nil
}

// Get loads one document.
func (s *Service) Get(ctx context.Context, scope tenant.Scope, id int64) (View, error) {
	doc, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return View{}, err
	}
	return s.view(doc), nil
}

// List returns a page of documents matching filter.
func (s *Service) List(ctx context.Context, scope tenant.Scope, filter ListFilter) ([]View, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if filter.Kind != "" {
		if _, err := PolicyFor(filter.Kind); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	docs, err := s.store.List(ctx, scope, filter)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(docs))
	for _, doc := range docs {
		views = append(views, s.view(doc))
	}
	return views, nil
}

// AddItem appends a line to a document.
func (s *Service) AddItem(ctx context.Context, scope tenant.Scope, id, version int64, in AddItemInput) (View, error) {
	src, err := s.itemSource(ctx, scope, in)
	if err != nil {
		return View{}, err
	}
	return s.edit(ctx, scope, id, version, "add_item", func(doc Document) (Document, error) {
		return AddItem(doc, src)
	})
}

func (s *Service) itemSource(ctx context.Context, scope tenant.Scope, in AddItemInput) (ItemSource, error) {
	switch {
	case in.Item != nil && in.CatalogItemID != nil:
		return nil, fmt.Errorf("%w: give either item or catalog_item_id", ErrValidation)
	case in.Item != nil:
		return *in.Item, nil
	case in.CatalogItemID != nil:
		if s.catalog == nil {
			return nil, fmt.Errorf("%w: catalog unavailable", ErrValidation)
		}
		item, err := s.catalog.GetItem(ctx, scope, *in.CatalogItemID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: catalog item %d not found", ErrValidation, *in.CatalogItemID)
		}
		if err != nil {
			return nil, err
		}
		return CatalogLine{Item: *item, Quantity: in.Quantity, TaxRate: in.TaxRate}, nil
	}
	return nil, fmt.Errorf("%w: item or catalog_item_id required", ErrValidation)
}

// UpdateItem patches the line at index.
func (s *Service) UpdateItem(ctx context.Context, scope tenant.Scope, id, version int64, index int, patch ItemPatch) (View, error) {
	return s.edit(ctx, scope, id, version, "update_item", func(doc Document) (Document, error) {
		return UpdateItem(doc, index, patch)
	})
}

// RemoveItem drops the line at index.
func (s *Service) RemoveItem(ctx context.Context, scope tenant.Scope, id, version int64, index int) (View, error) {
	return s.edit(ctx, scope, id, version, "remove_item", func(doc Document) (Document, error) {
		return RemoveItem(doc, index)
	})
}

// SetDiscount replaces the discount term.
func (s *Service) SetDiscount(ctx context.Context, scope tenant.Scope, id, version int64, discount DiscountSpec) (View, error) {
	return s.edit(ctx, scope, id, version, "set_discount", func(doc Document) (Document, error) {
		return SetDiscount(doc, discount)
	})
}

// SetTaxes replaces the document-level taxes.
func (s *Service) SetTaxes(ctx context.Context, scope tenant.Scope, id, version int64, taxes []TaxSpec) (View, error) {
	return s.edit(ctx, scope, id, version, "set_taxes", func(doc Document) (Document, error) {
		return SetTaxes(doc, taxes)
	})
}

// RecordPayment adds a payment to an invoice.
func (s *Service) RecordPayment(ctx context.Context, scope tenant.Scope, id, version int64, amount decimal.Decimal) (View, error) {
	return s.mutate(ctx, scope, id, version, "record_payment", func(doc Document) (Document, error) {
		return RecordPayment(doc, amount)
	})
}

// ChangeStatus moves a document's persisted status through the transition table.
func (s *Service) ChangeStatus(ctx context.Context, scope tenant.Scope, id, version int64, next Status) (View, error) {
	doc, err := s.load(ctx, scope, id, version)
	if err != nil {
		return View{}, err
	}
	if _, err := UpdateStatus(doc, next); err != nil {
		s.record(doc.Kind, "change_status", err)
		return View{}, err
	}
	saved, err := s.store.UpdateStatus(ctx, scope, id, next, doc.Version)
	s.record(doc.Kind, "change_status", err)
	if err != nil {
		return View{}, s.fail(ctx, "change status", err, scope, id)
	}
	s.logger.InfoContext(ctx, "document status changed",
		slog.Int64("tenant", int64(scope)),
		slog.Int64("id", id),
		slog.String("from", string(doc.Status)),
		slog.String("to", string(next)),
	)
	s.changed(ctx, saved, "change_status")
	return s.view(saved), nil
}

// ConvertToInvoice stores a new draft invoice built from an accepted quote.
func (s *Service) ConvertToInvoice(ctx context.Context, scope tenant.Scope, id int64, dueDate *time.Time) (View, error) {
	src, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return View{}, err
	}
	inv, err := ConvertToInvoice(src, dueDate, s.clock.Now())
	if err != nil {
		s.record(src.Kind, "convert", err)
		return View{}, err
	}
	saved, err := s.store.Create(ctx, inv)
	s.record(src.Kind, "convert", err)
	if err != nil {
		return View{}, s.fail(ctx, "convert document", err, scope, id)
	}
	s.logger.InfoContext(ctx, "document converted",
		slog.Int64("tenant", int64(scope)),
		slog.Int64("source_id", id),
		slog.Int64("invoice_id", saved.ID),
	)
	s.changed(ctx, saved, "convert")
	return s.view(saved), nil
}

func (s *Service) load(ctx context.Context, scope tenant.Scope, id, version int64) (Document, error) {
	doc, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return Document{}, err
	}
	if version > 0 && doc.Version != version {
		return Document{}, fmt.Errorf("%w: have %d, stored %d", ErrStaleVersion, version, doc.Version)
	}
	return doc, nil
}

// mutate loads a document, applies fn and saves the result. version 0 skips
// the early check; the store still rejects writes that race with another save.
func (s *Service) mutate(ctx context.Context, scope tenant.Scope, id, version int64, op string, fn func(Document) (Document, error)) (View, error) {
	doc, err := s.load(ctx, scope, id, version)
	if err != nil {
		return View{}, err
	}
	next, err := fn(doc)
	if err != nil {
		s.record(doc.Kind, op, err)
		return View{}, err
	}
	next.UpdatedAt = s.clock.Now()
	saved, err := s.store.Update(ctx, scope, next)
	s.record(doc.Kind, op, err)
	if err != nil {
		return View{}, s.fail(ctx, op, err, scope, id)
	}
	s.changed(ctx, saved, op)
	return s.view(saved), nil
}

// edit is mutate for line and term edits, which terminal documents refuse.
func (s *Service) edit(ctx context.Context, scope tenant.Scope, id, version int64, op string, fn func(Document) (Document, error)) (View, error) {
	return s.mutate(ctx, scope, id, version, op, func(doc Document) (Document, error) {
		if IsTerminal(doc.Status) {
			return doc, fmt.Errorf("%w: %s %s is closed for edits", ErrInvalidTransition, doc.Kind, doc.Status)
		}
		return fn(doc)
	})
}

func (s *Service) record(kind Kind, op string, err error) {
	if s.metrics != nil {
		s.metrics.DocumentMutation(string(kind), op, err)
	}
}

func (s *Service) changed(ctx context.Context, doc Document, op string) {
	s.logger.DebugContext(ctx, "document saved",
		slog.String("op", op),
		slog.Int64("tenant", int64(doc.Tenant)),
		slog.Int64("id", doc.ID),
		slog.Int64("version", doc.Version),
	)
	if s.notifier != nil {
		s.notifier.DocumentChanged(ctx, doc.Tenant, doc.ClientID)
	}
}

// fail logs unexpected store errors. Domain errors pass through quietly.
func (s *Service) fail(ctx context.Context, msg string, err error, scope tenant.Scope, id int64) error {
	if !errors.Is(err, ErrStaleVersion) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrValidation) {
		s.logger.ErrorContext(ctx, msg, slog.Any("error", err), slog.Int64("tenant", int64(scope)), slog.Int64("id", id))
	}
	return err
}
