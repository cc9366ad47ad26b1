package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"salesanalysis/backend/internal/cache"
	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/performance"
)

// Where a performance view's data came from.
const (
	SourceMemory = "memory"
	SourceCache  = "cache"
	SourceAPI    = "api"
)

// performanceBoard holds the performance sheet and its order lines once
// fetched, plus the table's sort state.
type performanceBoard struct {
	mu      sync.Mutex
	ttl     time.Duration
	loaded  bool
	rows    []domain.PerformanceRow
	details []domain.PerformanceDetail
	sort    performance.SortState
	loads   singleflight.Group
}

func newPerformanceBoard(ttl time.Duration) *performanceBoard {
	return &performanceBoard{ttl: ttl, sort: performance.DefaultSort}
}

type PerformanceQuery struct {
	Customer string
	Rep      string
}

type PerformanceView struct {
	Rows          []domain.PerformanceRow `json:"rows"`
	Customers     []string                `json:"customers"`
	Reps          []string                `json:"reps"`
	Sort          performance.SortState   `json:"sort"`
	TotalOrders   int64                   `json:"total_orders"`
	TotalAmount   int64                   `json:"total_amount"`
	DetailsLoaded bool                    `json:"details_loaded"`
	Source        string                  `json:"source"`
}

type performanceData struct {
	rows    []domain.PerformanceRow
	details []domain.PerformanceDetail
	source  string
}

// Performance returns the filtered, sorted performance table. The sheet is
// fetched on first use and then served from memory, or from the persistent
// cache while it is younger than the configured TTL.
func (s *Service) Performance(ctx context.Context, q PerformanceQuery) (PerformanceView, error) {
	source, err := s.ensurePerformance(ctx)
	if err != nil {
		return PerformanceView{}, err
	}
	b := s.performance
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view(q, source), nil
}

// SortPerformance toggles the table sort on field and returns the re-sorted view.
func (s *Service) SortPerformance(ctx context.Context, field string, q PerformanceQuery) (PerformanceView, error) {
	if !performance.ValidField(field) {
		return PerformanceView{}, ErrInvalidInput
	}
	source, err := s.ensurePerformance(ctx)
	if err != nil {
		return PerformanceView{}, err
	}
	b := s.performance
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sort = performance.Toggle(b.sort, field)
	return b.view(q, source), nil
}

// PerformanceBreakdown tallies one representative's orders by product and by
// vehicle.
func (s *Service) PerformanceBreakdown(ctx context.Context, rep string) (domain.RepBreakdown, error) {
	rep = strings.TrimSpace(rep)
	if rep == "" {
		return domain.RepBreakdown{}, ErrInvalidInput
	}
	if _, err := s.ensurePerformance(ctx); err != nil {
		return domain.RepBreakdown{}, err
	}
	b := s.performance
	b.mu.Lock()
	defer b.mu.Unlock()
	return performance.Breakdown(b.details, rep), nil
}

// ClearPerformance drops the cached sheet so the next request fetches it again.
func (s *Service) ClearPerformance(ctx context.Context) {
	if s.store != nil {
		s.store.Delete(ctx, cache.PerformanceKey)
		s.store.Delete(ctx, cache.PerformanceRawKey)
	}
	b := s.performance
	b.mu.Lock()
	b.loaded = false
	b.rows = nil
	b.details = nil
	b.mu.Unlock()
}

func (s *Service) ensurePerformance(ctx context.Context) (string, error) {
	b := s.performance
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()
	if loaded {
		return SourceMemory, nil
	}

	v, err, _ := b.loads.Do("performance", func() (any, error) {
		return s.fetchPerformance(ctx)
	})
	if err != nil {
		return "", err
	}
	data := v.(*performanceData)

	b.mu.Lock()
	b.rows = data.rows
	b.details = data.details
	b.loaded = true
	b.mu.Unlock()
	return data.source, nil
}

// fetchPerformance reads both sheets from the cache, falling back to the API.
// Order lines are best effort: without them only the breakdown is empty.
func (s *Service) fetchPerformance(ctx context.Context) (*performanceData, error) {
	ttl := s.performance.ttl
	data := &performanceData{source: SourceCache}
	cachedRows := s.store != nil && s.store.GetFresh(ctx, cache.PerformanceKey, ttl, &data.rows)
	cachedDetails := s.store != nil && s.store.GetFresh(ctx, cache.PerformanceRawKey, ttl, &data.details)
	if cachedRows && cachedDetails {
		return data, nil
	}

	var g errgroup.Group
	if !cachedRows {
		data.source = SourceAPI
		g.Go(func() error {
			rows, err := s.api.PerformanceData(ctx)
			if err != nil {
				return err
			}
			data.rows = rows
			s.stamp(ctx, cache.PerformanceKey, rows)
			return nil
		})
	}
	if !cachedDetails {
		g.Go(func() error {
			details, err := s.api.PerformanceRawData(ctx)
			if err != nil {
				s.logger.Warn("performance detail fetch failed", zap.Error(err))
				return nil
			}
			data.details = details
			s.stamp(ctx, cache.PerformanceRawKey, details)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if data.rows == nil {
		data.rows = []domain.PerformanceRow{}
	}
	s.logger.Info("performance data ready",
		zap.String("source", data.source),
		zap.Int("rows", len(data.rows)),
		zap.Int("details", len(data.details)),
	)
	return data, nil
}

func (s *Service) stamp(ctx context.Context, key string, value any) {
	if s.store == nil {
		return
	}
	if !s.store.SetStamped(ctx, key, value) {
		s.logger.Warn("performance cache write failed", zap.String("key", key))
	}
}

func (b *performanceBoard) view(q PerformanceQuery, source string) PerformanceView {
	rows := performance.Filter(b.rows, q.Customer, q.Rep)
	performance.Sort(rows, b.sort)
	orders, amount := performance.Totals(rows)
	return PerformanceView{
		Rows:          rows,
		Customers:     performance.Customers(b.rows),
		Reps:          performance.Reps(b.rows, q.Customer),
		Sort:          b.sort,
		TotalOrders:   orders,
		TotalAmount:   amount,
		DetailsLoaded: len(b.details) > 0,
		Source:        source,
	}
}
