package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "PUR-000001", Format(PrefixPurchase, 1))
	require.Equal(t, "SAL-000456", Format(PrefixSale, 456))
	require.Equal(t, "PUR-1000000", Format(PrefixPurchase, 1000000))
}

func TestMemoryAllocatorSequence(t *testing.T) {
	alloc := NewMemoryAllocator()
	ctx := context.Background()

	first, err := alloc.Next(ctx, 1, PrefixPurchase)
	require.NoError(t, err)
	require.Equal(t, "PUR-000001", first)

	second, err := alloc.Next(ctx, 1, PrefixPurchase)
	require.NoError(t, err)
	require.Equal(t, "PUR-000002", second)

	// Prefixes and tenants count independently.
	sale, err := alloc.Next(ctx, 1, PrefixSale)
	require.NoError(t, err)
	require.Equal(t, "SAL-000001", sale)

	other, err := alloc.Next(ctx, 2, PrefixPurchase)
	require.NoError(t, err)
	require.Equal(t, "PUR-000001", other)
}

func TestMemoryAllocatorRejectsMissingTenant(t *testing.T) {
	alloc := NewMemoryAllocator()
	_, err := alloc.Next(context.Background(), 0, PrefixSale)
	require.Error(t, err)
}

func TestConcurrentAllocationUniqueness(t *testing.T) {
	alloc := NewMemoryAllocator()
	ctx := context.Background()

	const n = 1000
	var mu sync.Mutex
	numbers := make([]string, 0, n)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			num, err := alloc.Next(ctx, 1, PrefixSale)
			if err != nil {
				return err
			}
			mu.Lock()
			numbers = append(numbers, num)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, numbers, n)
	seen := make(map[string]struct{}, n)
	for _, num := range numbers {
		seen[num] = struct{}{}
	}
	require.Len(t, seen, n, "allocated numbers must be unique")

	sort.Strings(numbers)
	require.Equal(t, "SAL-000001", numbers[0])
	require.Equal(t, Format(PrefixSale, n), numbers[n-1])
}
