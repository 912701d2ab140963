package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ResolvedPrice is the outcome of a price lookup.
type ResolvedPrice struct {
	ItemID   int64   `json:"item_id"`
	Rate     float64 `json:"rate"`
	Currency string  `json:"currency"`
	PriceID  int64   `json:"price_id"`
	Scoped   bool    `json:"scoped"`
}

// Service manages item prices and resolves the applicable rate for a document.
type Service struct {
	logger          *slog.Logger
	repo            Repository
	cache           *Cache
	group           singleflight.Group
	defaultCurrency string
}

// NewService constructs the pricing service.
func NewService(logger *slog.Logger, repo Repository, cache *Cache, defaultCurrency string) *Service {
	return &Service{logger: logger, repo: repo, cache: cache, defaultCurrency: defaultCurrency}
}

// List returns all prices for an item.
func (s *Service) List(ctx context.Context, itemID int64) ([]ItemPrice, error) {
	if itemID <= 0 {
		return nil, fmt.Errorf("%w: item ID is required", ErrInvalidPrice)
	}
	return s.repo.List(ctx, itemID)
}

// Get returns a single price by ID.
func (s *Service) Get(ctx context.Context, id int64) (ItemPrice, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new price, then invalidates cached rates.
func (s *Service) Create(ctx context.Context, price ItemPrice) (ItemPrice, error) {
	price = normalize(price, s.defaultCurrency)
	if err := s.validate(ctx, price, 0); err != nil {
		return ItemPrice{}, err
	}
	created, err := s.repo.Create(ctx, price)
	if err != nil {
		return ItemPrice{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("price cache bump failed", slog.Any("error", err))
	}
	return created, nil
}

// Update validates and replaces an existing price, then invalidates cached rates.
func (s *Service) Update(ctx context.Context, id int64, price ItemPrice) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	price.ItemID = existing.ItemID
	price = normalize(price, s.defaultCurrency)
	if err := s.validate(ctx, price, id); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, price); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("price cache bump failed", slog.Any("error", err))
	}
	return nil
}

// Delete removes a price and invalidates cached rates.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("price cache bump failed", slog.Any("error", err))
	}
	return nil
}

// ResolveSelling returns the selling rate for an item on a date. A price
// scoped to the customer wins over the item default.
func (s *Service) ResolveSelling(ctx context.Context, itemID int64, customerID *int64, on time.Time) (ResolvedPrice, error) {
	if itemID <= 0 {
		return ResolvedPrice{}, fmt.Errorf("%w: item ID is required", ErrInvalidPrice)
	}
	var scopeID int64
	if customerID != nil {
		scopeID = *customerID
	}
	key, err := s.cache.BuildKey(ctx, resolveKey(itemID, scopeID, on)...)
	if err != nil {
		s.logger.Warn("price cache key failed", slog.Any("error", err))
		return s.resolveSelling(ctx, itemID, customerID, on)
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var resolved ResolvedPrice
		err := s.cache.FetchJSON(ctx, key, &resolved, func(ctx context.Context) (interface{}, error) {
			return s.resolveSelling(ctx, itemID, customerID, on)
		})
		return resolved, err
	})
	if err != nil {
		return ResolvedPrice{}, err
	}
	return result.(ResolvedPrice), nil
}

// ResolveBuying returns the buying rate for an item on a date. A price scoped
// to the supplier wins over the item default.
func (s *Service) ResolveBuying(ctx context.Context, itemID int64, supplierID *int64, on time.Time) (ResolvedPrice, error) {
	if itemID <= 0 {
		return ResolvedPrice{}, fmt.Errorf("%w: item ID is required", ErrInvalidPrice)
	}
	var scopeID int64
	if supplierID != nil {
		scopeID = *supplierID
	}
	key, err := s.cache.BuildKey(ctx, buyingKey(itemID, scopeID, on)...)
	if err != nil {
		s.logger.Warn("price cache key failed", slog.Any("error", err))
		return s.resolveBuying(ctx, itemID, supplierID, on)
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var resolved ResolvedPrice
		err := s.cache.FetchJSON(ctx, key, &resolved, func(ctx context.Context) (interface{}, error) {
			return s.resolveBuying(ctx, itemID, supplierID, on)
		})
		return resolved, err
	})
	if err != nil {
		return ResolvedPrice{}, err
	}
	return result.(ResolvedPrice), nil
}

// Warmup preloads the resolved default selling price for every priced item.
// Used by the background warmup job after the cache version changes.
func (s *Service) Warmup(ctx context.Context) (int, error) {
	ids, err := s.repo.ItemIDs(ctx)
	if err != nil {
		return 0, err
	}
	warmed := 0
	now := time.Now()
	for _, id := range ids {
		if _, err := s.ResolveSelling(ctx, id, nil, now); err != nil && !errors.Is(err, ErrNoPrice) {
			s.logger.Warn("price warmup skipped item", slog.Int64("item_id", id), slog.Any("error", err))
			continue
		}
		warmed++
	}
	return warmed, nil
}

func (s *Service) resolveSelling(ctx context.Context, itemID int64, customerID *int64, on time.Time) (ResolvedPrice, error) {
	candidates, err := s.repo.CandidatesForItem(ctx, itemID)
	if err != nil {
		return ResolvedPrice{}, err
	}
	var scoped, fallback *ItemPrice
	for i := range candidates {
		p := candidates[i]
		if !p.Selling || !p.AppliesOn(on) {
			continue
		}
		if p.CustomerID != nil {
			if customerID != nil && *p.CustomerID == *customerID && scoped == nil {
				scoped = &candidates[i]
			}
			continue
		}
		if fallback == nil || (p.IsDefault && !fallback.IsDefault) {
			fallback = &candidates[i]
		}
	}
	return s.pick(itemID, scoped, fallback)
}

func (s *Service) resolveBuying(ctx context.Context, itemID int64, supplierID *int64, on time.Time) (ResolvedPrice, error) {
	candidates, err := s.repo.CandidatesForItem(ctx, itemID)
	if err != nil {
		return ResolvedPrice{}, err
	}
	var scoped, fallback *ItemPrice
	for i := range candidates {
		p := candidates[i]
		if !p.Buying || !p.AppliesOn(on) {
			continue
		}
		if p.SupplierID != nil {
			if supplierID != nil && *p.SupplierID == *supplierID && scoped == nil {
				scoped = &candidates[i]
			}
			continue
		}
		if fallback == nil || (p.IsDefault && !fallback.IsDefault) {
			fallback = &candidates[i]
		}
	}
	return s.pick(itemID, scoped, fallback)
}

func (s *Service) pick(itemID int64, scoped, fallback *ItemPrice) (ResolvedPrice, error) {
	chosen := fallback
	if scoped != nil {
		chosen = scoped
	}
	if chosen == nil {
		return ResolvedPrice{}, ErrNoPrice
	}
	return ResolvedPrice{
		ItemID:   itemID,
		Rate:     chosen.Rate,
		Currency: chosen.Currency,
		PriceID:  chosen.ID,
		Scoped:   chosen == scoped,
	}, nil
}

func (s *Service) validate(ctx context.Context, price ItemPrice, selfID int64) error {
	if price.ItemID <= 0 {
		return fmt.Errorf("%w: item ID is required", ErrInvalidPrice)
	}
	if price.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidPrice)
	}
	if !price.Selling && !price.Buying {
		return fmt.Errorf("%w: price must be selling or buying", ErrInvalidPrice)
	}
	if price.CustomerID != nil && !price.Selling {
		return fmt.Errorf("%w: customer price must be a selling price", ErrInvalidPrice)
	}
	if price.SupplierID != nil && !price.Buying {
		return fmt.Errorf("%w: supplier price must be a buying price", ErrInvalidPrice)
	}
	if price.CustomerID != nil && price.SupplierID != nil {
		return fmt.Errorf("%w: price cannot target a customer and a supplier", ErrInvalidPrice)
	}
	if price.ValidFrom != nil && price.ValidUpto != nil && price.ValidUpto.Before(*price.ValidFrom) {
		return fmt.Errorf("%w: valid_upto precedes valid_from", ErrInvalidPrice)
	}

	existing, err := s.repo.List(ctx, price.ItemID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == selfID || !other.Enabled {
			continue
		}
		if price.IsDefault && other.IsDefault && sameSide(price, other) && other.CustomerID == nil && other.SupplierID == nil && price.CustomerID == nil && price.SupplierID == nil {
			return fmt.Errorf("%w: item already has a default %s price", ErrDuplicatePrice, sideLabel(price))
		}
		if sameScope(price, other) && sameSide(price, other) && windowsOverlap(price, other) {
			return fmt.Errorf("%w: price #%d covers the same period", ErrDuplicatePrice, other.ID)
		}
	}
	return nil
}

func normalize(price ItemPrice, defaultCurrency string) ItemPrice {
	price.Currency = strings.ToUpper(strings.TrimSpace(price.Currency))
	if price.Currency == "" {
		price.Currency = defaultCurrency
	}
	return price
}

func sameSide(a, b ItemPrice) bool {
	return (a.Selling && b.Selling) || (a.Buying && b.Buying)
}

func sameScope(a, b ItemPrice) bool {
	return eqPtr(a.CustomerID, b.CustomerID) && eqPtr(a.SupplierID, b.SupplierID)
}

func eqPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func windowsOverlap(a, b ItemPrice) bool {
	aFrom, aUpto := window(a)
	bFrom, bUpto := window(b)
	return !aUpto.Before(bFrom) && !bUpto.Before(aFrom)
}

func window(p ItemPrice) (time.Time, time.Time) {
	from := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	upto := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if p.ValidFrom != nil {
		from = truncateDay(*p.ValidFrom)
	}
	if p.ValidUpto != nil {
		upto = truncateDay(*p.ValidUpto)
	}
	return from, upto
}

func sideLabel(p ItemPrice) string {
	if p.Selling {
		return "selling"
	}
	return "buying"
}
