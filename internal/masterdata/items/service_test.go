package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tassili-erp/tassili-erp/internal/masterdata/shared"
)

type memoryRepo struct {
	items  map[int64]Item
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Item{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, _ shared.ListFilters) ([]Item, int, error) {
	out := []Item{}
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Item, error) {
	it, ok := m.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return it, nil
}

func (m *memoryRepo) GetByCode(_ context.Context, code string) (Item, error) {
	for _, it := range m.items {
		if it.Code == code {
			return it, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (m *memoryRepo) Create(_ context.Context, item Item) (Item, error) {
	for _, it := range m.items {
		if it.Code == item.Code {
			return Item{}, shared.ErrDuplicate
		}
	}
	item.ID = m.nextID
	m.nextID++
	m.items[item.ID] = item
	return item, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, item Item) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	item.ID = id
	m.items[id] = item
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryRepo) ValuationRate(_ context.Context, itemID int64) (float64, error) {
	it, ok := m.items[itemID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return it.ValuationRate, nil
}

func (m *memoryRepo) SetValuationRate(_ context.Context, itemID int64, rate float64) error {
	it, ok := m.items[itemID]
	if !ok {
		return shared.ErrNotFound
	}
	it.ValuationRate = rate
	m.items[itemID] = it
	return nil
}

func (m *memoryRepo) SetLastPurchaseRate(_ context.Context, itemID int64, rate float64) error {
	it, ok := m.items[itemID]
	if !ok {
		return shared.ErrNotFound
	}
	it.LastPurchaseRate = rate
	m.items[itemID] = it
	return nil
}

func TestCreateValidatesLevels(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	cases := []struct {
		name string
		item Item
	}{
		{"missing code", Item{Name: "Huile 1L", UOM: "Unit"}},
		{"missing name", Item{Code: "HUI-1L", UOM: "Unit"}},
		{"missing uom", Item{Code: "HUI-1L", Name: "Huile 1L"}},
		{"negative reorder", Item{Code: "HUI-1L", Name: "Huile 1L", UOM: "Unit", ReorderLevel: -1}},
		{"reorder below minimum", Item{Code: "HUI-1L", Name: "Huile 1L", UOM: "Unit", ReorderLevel: 5, MinimumLevel: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.item)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	created, err := svc.Create(ctx, Item{Code: "HUI-1L", Name: "Huile 1L", UOM: "Unit", ReorderLevel: 10, MinimumLevel: 5})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Item{Code: "HUI-1L", Name: "Huile 1L", UOM: "Unit"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Item{Code: "HUI-1L", Name: "Huile de table 1L", UOM: "Unit"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestExistsIgnoresDisabled(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, Item{Code: "HUI-1L", Name: "Huile 1L", UOM: "Unit"})
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	disabled := created
	disabled.Disabled = true
	require.NoError(t, repo.Update(ctx, created.ID, disabled))

	ok, err = svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Exists(ctx, 999)
	require.NoError(t, err)
	require.False(t, ok)
}
