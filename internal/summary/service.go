// Package summary builds per-client document dashboards from the aggregator.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-crm/internal/documents"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/tenant"
)

const (
	pageSize     = documents.MaxPageSize
	buildTimeout = 30 * time.Second
)

// ErrInvalidClient indicates a missing client id.
var ErrInvalidClient = errors.New("summary: client id must be positive")

// Lister reads documents of one tenant.
type Lister interface {
	List(ctx context.Context, scope tenant.Scope, filter documents.ListFilter) ([]documents.Document, error)
}

// CacheRecorder observes cache hits and misses.
type CacheRecorder interface {
	SummaryCache(hit bool)
}

// Dashboard is the document overview of one client. FreshUntil is the
// earliest deadline that will change a display status in it.
type Dashboard struct {
	Tenant     tenant.Scope                                  `json:"tenant_id"`
	ClientID   int64                                         `json:"client_id"`
	AsOf       time.Time                                     `json:"as_of"`
	Invoices   documents.AggregateSummary                    `json:"invoices"`
	Quotes     documents.AggregateSummary                    `json:"quotes"`
	ByKind     map[documents.Kind]documents.AggregateSummary `json:"by_kind"`
	FreshUntil *time.Time                                    `json:"fresh_until,omitempty"`
}

// Service builds and caches client dashboards.
type Service struct {
	lister  Lister
	cache   *cache.Cache
	clock   documents.Clock
	logger  *slog.Logger
	metrics CacheRecorder
	group   singleflight.Group
}

// NewService constructs the summary service. A nil cache builds every call.
func NewService(lister Lister, c *cache.Cache, clock documents.Clock, logger *slog.Logger, metrics CacheRecorder) *Service {
	if clock == nil {
		clock = documents.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{lister: lister, cache: c, clock: clock, logger: logger, metrics: metrics}
}

// ClientDashboard returns the dashboard of clientID as of today.
func (s *Service) ClientDashboard(ctx context.Context, scope tenant.Scope, clientID int64) (Dashboard, error) {
	if err := scope.Validate(); err != nil {
		return Dashboard{}, err
	}
	if clientID <= 0 {
		return Dashboard{}, ErrInvalidClient
	}
	now := s.clock.Now()
	key, err := s.cache.BuildKey(ctx, "summary", scope.String(), strconv.FormatInt(clientID, 10), now.Format("20060102"))
	if err != nil {
		return Dashboard{}, fmt.Errorf("summary: cache key: %w", err)
	}

	// The build is shared by every waiter on key, so it must not die with the
	// first caller's context.
	ch := s.group.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		return s.load(buildCtx, key, scope, clientID, now)
	})
	select {
	case <-ctx.Done():
		return Dashboard{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Dashboard{}, res.Err
		}
		return res.Val.(Dashboard), nil
	}
}

// load serves the cached dashboard while every display status in it still
// holds, and rebuilds it otherwise.
func (s *Service) load(ctx context.Context, key string, scope tenant.Scope, clientID int64, now time.Time) (Dashboard, error) {
	var cached Dashboard
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		return Dashboard{}, err
	}
	if hit && cached.freshAt(now) {
		s.recordCache(true)
		return cached, nil
	}
	out, err := s.build(ctx, scope, clientID, now)
	if err != nil {
		return Dashboard{}, err
	}
	if err := s.cache.SetJSON(ctx, key, out, out.ttl(now, s.cache.TTL())); err != nil {
		return Dashboard{}, err
	}
	s.recordCache(false)
	return out, nil
}

func (s *Service) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.SummaryCache(hit)
	}
}

func (d Dashboard) freshAt(now time.Time) bool {
	return d.FreshUntil == nil || !now.After(*d.FreshUntil)
}

// ttl caps the cache lifetime at the next display status change.
func (d Dashboard) ttl(now time.Time, limit time.Duration) time.Duration {
	if d.FreshUntil == nil {
		return limit
	}
	until := d.FreshUntil.Sub(now) + time.Second
	if limit > 0 && until > limit {
		return limit
	}
	return until
}

// Warm populates the cache for one client.
func (s *Service) Warm(ctx context.Context, scope tenant.Scope, clientID int64) error {
	_, err := s.ClientDashboard(ctx, scope, clientID)
	return err
}

func (s *Service) build(ctx context.Context, scope tenant.Scope, clientID int64, now time.Time) (Dashboard, error) {
	start := time.Now()
	kinds := documents.Kinds()
	loaded := make([][]documents.Document, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			docs, err := s.listAll(gctx, scope, documents.ListFilter{Kind: kind, ClientID: clientID})
			if err != nil {
				return fmt.Errorf("summary: load %s: %w", kind, err)
			}
			loaded[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	out := Dashboard{
		Tenant:   scope,
		ClientID: clientID,
		AsOf:     now,
		ByKind:   make(map[documents.Kind]documents.AggregateSummary, len(kinds)),
	}
	var quotes []documents.Document
	for i, kind := range kinds {
		out.ByKind[kind] = documents.AggregateDocuments(loaded[i], now)
		if kind != documents.KindInvoice {
			quotes = append(quotes, loaded[i]...)
		}
	}
	out.Invoices = out.ByKind[documents.KindInvoice]
	for _, docs := range loaded {
		for _, doc := range docs {
			next := documents.NextDisplayChange(doc, now)
			if next != nil && (out.FreshUntil == nil || next.Before(*out.FreshUntil)) {
				out.FreshUntil = next
			}
		}
	}
	out.Quotes = documents.AggregateDocuments(quotes, now)

	s.logger.DebugContext(ctx, "summary built",
		slog.Int64("tenant", int64(scope)),
		slog.Int64("client_id", clientID),
		slog.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (s *Service) listAll(ctx context.Context, scope tenant.Scope, filter documents.ListFilter) ([]documents.Document, error) {
	var all []documents.Document
	filter.Limit = pageSize
	for {
		page, err := s.lister.List(ctx, scope, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		filter.Offset += len(page)
	}
}
