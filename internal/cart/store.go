package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/types"
	"golang.org/x/text/currency"
)

// KV is the durable key-value surface the store persists through. The redis
// client satisfies it.
type KV interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(owner string) string
}

// Store is the sole source of truth for what is in a shopper's cart. Every
// mutation is serialized and written through to the KV before it becomes
// visible, so a crash loses at most the last in-flight mutation and can never
// duplicate composite identities.
type Store struct {
	mu       sync.Mutex
	kv       KV
	logg     *logger.Logger
	currency currency.Unit

	lines  map[string][]Line
	loaded map[string]bool
}

// NewStore builds a cart store persisting through kv. Carts have no expiry;
// they survive restarts until explicitly cleared.
func NewStore(kv KV, currencyCode string, logg *logger.Logger) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv store required")
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("parsing currency %q: %w", currencyCode, err)
	}
	return &Store{
		kv:       kv,
		logg:     logg,
		currency: unit,
		lines:    map[string][]Line{},
		loaded:   map[string]bool{},
	}, nil
}

// AddLine merges quantityDelta into the line identified by item's composite
// key, creating the line on first add. The mutation is rejected whole when it
// would exceed a known stock limit.
func (s *Store) AddLine(ctx context.Context, owner string, item Line, quantityDelta int) (Line, error) {
	if err := item.Validate(); err != nil {
		return Line{}, err
	}
	if quantityDelta < 1 {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity delta must be at least 1")
	}
	if item.UnitPrice.IsNegative() {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}
	if item.UnitPrice.Currency != s.currency {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price currency mismatch")
	}
	if item.StockLimit != nil && *item.StockLimit < 1 {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "stock limit must be positive when present")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydrateLocked(ctx, owner)
	if err != nil {
		return Line{}, err
	}

	next := cloneLines(current)
	idx := indexOf(next, item.LineKey)

	var result Line
	if idx >= 0 {
		existing := next[idx]
		limit := existing.StockLimit
		if item.StockLimit != nil {
			limit = item.StockLimit
		}
		newQty := existing.Quantity + quantityDelta
		if limit != nil && newQty > *limit {
			return Line{}, stockExceeded(item.LineKey, *limit, existing.Quantity)
		}
		// Price stays as snapshotted on first add; only quantity and the
		// fresher stock ceiling move.
		existing.Quantity = newQty
		existing.StockLimit = limit
		next[idx] = existing
		result = existing
	} else {
		if item.StockLimit != nil && quantityDelta > *item.StockLimit {
			return Line{}, stockExceeded(item.LineKey, *item.StockLimit, 0)
		}
		created := item.clone()
		created.Quantity = quantityDelta
		next = append(next, created)
		result = created
	}

	if err := s.persistLocked(ctx, owner, next); err != nil {
		return Line{}, err
	}
	s.lines[owner] = next
	return result.clone(), nil
}

// DecrementLine lowers the identified line's quantity by one, removing the
// line when it reaches zero. Absent lines are a no-op, not an error.
func (s *Store) DecrementLine(ctx context.Context, owner string, key LineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydrateLocked(ctx, owner)
	if err != nil {
		return err
	}

	idx := indexOf(current, key)
	if idx < 0 {
		return nil
	}

	next := cloneLines(current)
	if next[idx].Quantity <= 1 {
		next = append(next[:idx], next[idx+1:]...)
	} else {
		next[idx].Quantity--
	}

	if err := s.persistLocked(ctx, owner, next); err != nil {
		return err
	}
	s.lines[owner] = next
	return nil
}

// RemoveLine deletes the identified line regardless of quantity.
func (s *Store) RemoveLine(ctx context.Context, owner string, key LineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydrateLocked(ctx, owner)
	if err != nil {
		return err
	}

	idx := indexOf(current, key)
	if idx < 0 {
		return nil
	}

	next := cloneLines(current)
	next = append(next[:idx], next[idx+1:]...)

	if err := s.persistLocked(ctx, owner, next); err != nil {
		return err
	}
	s.lines[owner] = next
	return nil
}

// Clear empties the cart and its persisted state. Called only after a
// verified payment or an explicit shopper action.
func (s *Store) Clear(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Del(ctx, s.kv.CartKey(owner)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear persisted cart")
	}
	s.lines[owner] = nil
	s.loaded[owner] = true
	return nil
}

// Lines returns a copy of the current cart contents.
func (s *Store) Lines(ctx context.Context, owner string) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydrateLocked(ctx, owner)
	if err != nil {
		return nil, err
	}
	return cloneLines(current), nil
}

// Total recomputes the cart total on demand; it is never stored.
func (s *Store) Total(ctx context.Context, owner string) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydrateLocked(ctx, owner)
	if err != nil {
		return types.Money{}, err
	}
	total := types.Money{Currency: s.currency}
	for _, line := range current {
		sum, err := total.Add(line.Subtotal())
		if err != nil {
			return types.Money{}, err
		}
		total = sum
	}
	return total, nil
}

// Snapshot returns an immutable copy of the current lines, used to open a
// checkout session. Later cart mutations never leak into a taken snapshot.
func (s *Store) Snapshot(ctx context.Context, owner string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.hydrateLocked(ctx, owner)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Owner:   owner,
		Lines:   cloneLines(current),
		TakenAt: time.Now().UTC(),
	}, nil
}

// hydrateLocked reads persisted state once per owner. A malformed payload is
// discarded and the cart degrades to empty; persistence corruption is never
// fatal.
func (s *Store) hydrateLocked(ctx context.Context, owner string) ([]Line, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
	}
	if s.loaded[owner] {
		return s.lines[owner], nil
	}

	payload, found, err := s.kv.Lookup(ctx, s.kv.CartKey(owner))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load persisted cart")
	}

	var lines []Line
	if found {
		lines, err = decodeLines(payload)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithCartOwner(ctx, owner), "discarding malformed persisted cart")
			}
			lines = nil
		}
	}

	s.lines[owner] = lines
	s.loaded[owner] = true
	return lines, nil
}

func (s *Store) persistLocked(ctx context.Context, owner string, lines []Line) error {
	payload, err := encodeLines(lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.kv.Set(ctx, s.kv.CartKey(owner), payload, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
	}
	return nil
}

func indexOf(lines []Line, key LineKey) int {
	for i, line := range lines {
		if line.LineKey == key {
			return i
		}
	}
	return -1
}

func cloneLines(lines []Line) []Line {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Line, len(lines))
	for i, line := range lines {
		out[i] = line.clone()
	}
	return out
}

func stockExceeded(key LineKey, limit, current int) error {
	return pkgerrors.New(pkgerrors.CodeStockExceeded, "insufficient stock for item").
		WithDetails(map[string]any{
			"sku":         key.SKU,
			"stock_limit": limit,
			"in_cart":     current,
		})
}
