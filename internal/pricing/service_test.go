package pricing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	prices []ItemPrice
	nextID int64
	reads  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, itemID int64) ([]ItemPrice, error) {
	var out []ItemPrice
	for _, p := range m.prices {
		if p.ItemID == itemID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (ItemPrice, error) {
	for _, p := range m.prices {
		if p.ID == id {
			return p, nil
		}
	}
	return ItemPrice{}, ErrNotFound
}

func (m *memoryRepo) Create(_ context.Context, price ItemPrice) (ItemPrice, error) {
	price.ID = m.nextID
	m.nextID++
	price.CreatedAt = time.Now()
	price.UpdatedAt = price.CreatedAt
	m.prices = append(m.prices, price)
	return price, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, price ItemPrice) error {
	for i := range m.prices {
		if m.prices[i].ID == id {
			price.ID = id
			price.ItemID = m.prices[i].ItemID
			m.prices[i] = price
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	for i := range m.prices {
		if m.prices[i].ID == id {
			m.prices = append(m.prices[:i], m.prices[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryRepo) CandidatesForItem(ctx context.Context, itemID int64) ([]ItemPrice, error) {
	m.reads++
	all, _ := m.List(ctx, itemID)
	var out []ItemPrice
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) ItemIDs(_ context.Context) ([]int64, error) {
	seen := map[int64]bool{}
	var ids []int64
	for _, p := range m.prices {
		if p.Enabled && !seen[p.ItemID] {
			seen[p.ItemID] = true
			ids = append(ids, p.ItemID)
		}
	}
	return ids, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(slog.Default(), repo, NewCache(nil, time.Minute), "DZD")
	return svc, repo
}

func newCachedService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newMemoryRepo()
	svc := NewService(slog.Default(), repo, NewCache(client, time.Minute), "DZD")
	return svc, repo
}

func ptr(v int64) *int64 { return &v }

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 0, Selling: true, Enabled: true})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Enabled: true})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Buying: true, CustomerID: ptr(7), Enabled: true})
	require.ErrorIs(t, err, ErrInvalidPrice)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	upto := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, Enabled: true, ValidFrom: &from, ValidUpto: &upto})
	require.ErrorIs(t, err, ErrInvalidPrice)

	created, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, Enabled: true})
	require.NoError(t, err)
	require.Equal(t, "DZD", created.Currency)
}

func TestSingleDefaultPerSide(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, IsDefault: true, Enabled: true})
	require.NoError(t, err)

	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 120, Selling: true, IsDefault: true, Enabled: true})
	require.ErrorIs(t, err, ErrDuplicatePrice)

	// A default on the other side is fine.
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 80, Buying: true, IsDefault: true, Enabled: true})
	require.NoError(t, err)
}

func TestOverlappingWindowRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	upto := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, Enabled: true, ValidFrom: &from, ValidUpto: &upto})
	require.NoError(t, err)

	from2 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 110, Selling: true, Enabled: true, ValidFrom: &from2})
	require.ErrorIs(t, err, ErrDuplicatePrice)

	// Disjoint window is accepted.
	from3 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 110, Selling: true, Enabled: true, ValidFrom: &from3})
	require.NoError(t, err)

	// Overlap for a different customer is a separate scope.
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 90, Selling: true, Enabled: true, CustomerID: ptr(5), ValidFrom: &from})
	require.NoError(t, err)
}

func TestResolveCustomerBeatsDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, IsDefault: true, Enabled: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 85, Selling: true, CustomerID: ptr(9), Enabled: true})
	require.NoError(t, err)

	resolved, err := svc.ResolveSelling(ctx, 1, ptr(9), time.Now())
	require.NoError(t, err)
	require.Equal(t, 85.0, resolved.Rate)
	require.True(t, resolved.Scoped)

	resolved, err = svc.ResolveSelling(ctx, 1, ptr(4), time.Now())
	require.NoError(t, err)
	require.Equal(t, 100.0, resolved.Rate)
	require.False(t, resolved.Scoped)

	_, err = svc.ResolveSelling(ctx, 2, nil, time.Now())
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestResolveHonorsValidityWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	upto := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, Enabled: true, ValidFrom: &from, ValidUpto: &upto})
	require.NoError(t, err)

	_, err = svc.ResolveSelling(ctx, 1, nil, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = svc.ResolveSelling(ctx, 1, nil, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestResolveBuyingSupplierScope(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 70, Buying: true, IsDefault: true, Enabled: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 65, Buying: true, SupplierID: ptr(3), Enabled: true})
	require.NoError(t, err)

	resolved, err := svc.ResolveBuying(ctx, 1, ptr(3), time.Now())
	require.NoError(t, err)
	require.Equal(t, 65.0, resolved.Rate)

	resolved, err = svc.ResolveBuying(ctx, 1, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 70.0, resolved.Rate)
}

func TestWarmupCountsItemsWithoutSellingPrice(t *testing.T) {
	svc, _ := newCachedService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, Enabled: true})
	require.NoError(t, err)
	// Buying-only item: selling resolution finds no applicable price,
	// which is not a warmup failure.
	_, err = svc.Create(ctx, ItemPrice{ItemID: 2, Rate: 70, Buying: true, Enabled: true})
	require.NoError(t, err)

	warmed, err := svc.Warmup(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, warmed)
}

func TestResolveUsesCacheUntilBumped(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, ItemPrice{ItemID: 1, Rate: 100, Selling: true, Enabled: true})
	require.NoError(t, err)

	resolved, err := svc.ResolveSelling(ctx, 1, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 100.0, resolved.Rate)
	readsAfterFirst := repo.reads

	// Second lookup is served from Redis.
	resolved, err = svc.ResolveSelling(ctx, 1, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 100.0, resolved.Rate)
	require.Equal(t, readsAfterFirst, repo.reads)

	// Mutation bumps the version so the new rate is visible immediately.
	require.NoError(t, svc.Update(ctx, created.ID, ItemPrice{Rate: 130, Selling: true, Enabled: true}))
	resolved, err = svc.ResolveSelling(ctx, 1, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, 130.0, resolved.Rate)
	require.Greater(t, repo.reads, readsAfterFirst)
}
