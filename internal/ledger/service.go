package ledger

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// InputSource abstracts the repository for service tests.
type InputSource interface {
	FetchInputs(ctx context.Context, tenantID int64, start, end time.Time) (ComputeInput, error)
}

// Service renders valuation reports, collapsing concurrent identical requests
// with singleflight and serving repeated ones from the versioned cache.
type Service struct {
	source InputSource
	cache  *Cache
	group  singleflight.Group
}

// NewService constructs the ledger service. cache may be nil.
func NewService(source InputSource, cache *Cache) *Service {
	return &Service{source: source, cache: cache}
}

// Report renders the ledger for [start, end]; end is pinned to end-of-day.
func (s *Service) Report(ctx context.Context, tenantID int64, start, end time.Time, mode Mode) (Report, error) {
	if tenantID <= 0 {
		return Report{}, shared.ErrTenantRequired
	}
	start, end, err := NormalizeRange(start, end)
	if err != nil {
		return Report{}, err
	}

	key, err := s.cache.BuildKey(ctx, tenantID, start, end, mode)
	if err != nil {
		return Report{}, err
	}
	result, err, _ := s.group.Do(key, func() (any, error) {
		var report Report
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (Report, error) {
			return s.compute(ctx, tenantID, start, end, mode)
		})
		return report, err
	})
	if err != nil {
		return Report{}, err
	}
	report, ok := result.(Report)
	if !ok {
		return Report{}, fmt.Errorf("ledger: unexpected cache payload %T", result)
	}
	return report, nil
}

// Warm primes the cache with the current month's full report.
func (s *Service) Warm(ctx context.Context, tenantID int64, now time.Time) error {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, -1)
	_, err := s.Report(ctx, tenantID, start, end, ModeFull)
	return err
}

// Invalidate retires the tenant's cached reports after a committed document.
func (s *Service) Invalidate(ctx context.Context, tenantID int64) error {
	return s.cache.Bump(ctx, tenantID)
}

func (s *Service) compute(ctx context.Context, tenantID int64, start, end time.Time, mode Mode) (Report, error) {
	in, err := s.source.FetchInputs(ctx, tenantID, start, end)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Start:       start,
		End:         end,
		Mode:        mode,
		Rows:        Compute(in, start, end, mode),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
