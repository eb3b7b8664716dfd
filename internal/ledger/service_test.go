package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

type countingSource struct {
	calls int
	input ComputeInput
}

func (s *countingSource) FetchInputs(ctx context.Context, tenantID int64, start, end time.Time) (ComputeInput, error) {
	s.calls++
	return s.input, nil
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestReportServesRepeatsFromCache(t *testing.T) {
	source := &countingSource{input: ComputeInput{
		Products: []ProductRef{{ID: 1, Name: "Gauze"}},
		Batches: []BatchState{
			{ID: 1, ProductID: 1, AddedAt: day("2024-12-01"), Quantity: 10, CostRate: 5, SellingRate: 7},
		},
	}}
	svc := NewService(source, testCache(t))
	ctx := context.Background()

	first, err := svc.Report(ctx, 1, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.NoError(t, err)
	require.Len(t, first.Rows, 1)
	require.EqualValues(t, 10, first.Rows[0].Opening.Quantity)

	second, err := svc.Report(ctx, 1, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.NoError(t, err)
	require.Equal(t, first.Rows, second.Rows)
	require.Equal(t, 1, source.calls, "second request is a cache hit")
}

func TestInvalidateRetiresCachedReports(t *testing.T) {
	source := &countingSource{input: ComputeInput{Products: []ProductRef{{ID: 1, Name: "Gauze"}}}}
	svc := NewService(source, testCache(t))
	ctx := context.Background()

	_, err := svc.Report(ctx, 1, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, 1))
	_, err = svc.Report(ctx, 1, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls, "version bump forces a recompute")
}

func TestReportWithoutCache(t *testing.T) {
	source := &countingSource{input: ComputeInput{Products: []ProductRef{{ID: 1, Name: "Gauze"}}}}
	svc := NewService(source, nil)

	_, err := svc.Report(context.Background(), 1, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
}

func TestReportGuards(t *testing.T) {
	svc := NewService(&countingSource{}, nil)

	_, err := svc.Report(context.Background(), 0, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.ErrorIs(t, err, shared.ErrTenantRequired)

	_, err = svc.Report(context.Background(), 1, day("2025-02-01"), day("2025-01-01"), ModeFull)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestWarmPrimesCurrentMonth(t *testing.T) {
	source := &countingSource{input: ComputeInput{Products: []ProductRef{{ID: 1, Name: "Gauze"}}}}
	svc := NewService(source, testCache(t))
	ctx := context.Background()
	now := day("2025-01-17")

	require.NoError(t, svc.Warm(ctx, 1, now))
	_, err := svc.Report(ctx, 1, day("2025-01-01"), day("2025-01-31"), ModeFull)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls, "warmed report serves the month's window")
}
