package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

type fakeKV struct {
	values  map[string]string
	setErr  error
	getErr  error
	setHits int
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}}
}

func (f *fakeKV) Lookup(_ context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.setHits++
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value.(string)
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeKV) CartKey(owner string) string {
	return "test:cart:" + owner
}

func newTestStore(t *testing.T, kv KV) *Store {
	t.Helper()
	store, err := NewStore(kv, "USD", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func tee(t *testing.T, price string) types.Money {
	t.Helper()
	m, err := types.NewMoney(price, "USD")
	if err != nil {
		t.Fatalf("NewMoney: %v", err)
	}
	return m
}

func teeLine(t *testing.T, price string) Line {
	t.Helper()
	return Line{
		LineKey:     LineKey{ProductID: "P1", Size: "M", Color: "red", SKU: "P1-M-RED"},
		UnitPrice:   tee(t, price),
		DisplayName: "Oversized Tee",
	}
}

func TestAddLineMergesByCompositeKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())
	item := teeLine(t, "999")

	if _, err := store.AddLine(ctx, "owner-1", item, 1); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := store.AddLine(ctx, "owner-1", item, 1); err != nil {
		t.Fatalf("second add: %v", err)
	}

	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", lines[0].Quantity)
	}
}

func TestAddLineDistinguishesVariants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())

	red := teeLine(t, "999")
	blue := teeLine(t, "999")
	blue.Color = "blue"
	blue.SKU = "P1-M-BLUE"

	if _, err := store.AddLine(ctx, "owner-1", red, 1); err != nil {
		t.Fatalf("add red: %v", err)
	}
	if _, err := store.AddLine(ctx, "owner-1", blue, 1); err != nil {
		t.Fatalf("add blue: %v", err)
	}

	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected two distinct lines, got %d", len(lines))
	}
}

func TestAddLineKeepsFirstPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())

	if _, err := store.AddLine(ctx, "owner-1", teeLine(t, "999"), 1); err != nil {
		t.Fatalf("first add: %v", err)
	}

	repriced := teeLine(t, "1299")
	merged, err := store.AddLine(ctx, "owner-1", repriced, 1)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if !merged.UnitPrice.Equal(tee(t, "999")) {
		t.Fatalf("expected add-time price 999 to stick, got %s", merged.UnitPrice)
	}
}

func TestAddLineRejectsStockExceeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())

	limit := 2
	item := teeLine(t, "999")
	item.StockLimit = &limit

	if _, err := store.AddLine(ctx, "owner-1", item, 2); err != nil {
		t.Fatalf("add up to limit: %v", err)
	}

	_, err := store.AddLine(ctx, "owner-1", item, 1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStockExceeded) {
		t.Fatalf("expected stock exceeded, got %v", err)
	}

	// Rejected mutation changed nothing.
	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("expected quantity unchanged at 2, got %d", lines[0].Quantity)
	}
}

func TestDecrementLineRemovesAtZero(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())
	item := teeLine(t, "999")

	if _, err := store.AddLine(ctx, "owner-1", item, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.DecrementLine(ctx, "owner-1", item.LineKey); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(lines))
	}

	// Decrementing the now-absent line is a no-op.
	if err := store.DecrementLine(ctx, "owner-1", item.LineKey); err != nil {
		t.Fatalf("decrement absent line: %v", err)
	}
}

func TestRemoveLineDropsWholeLine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())
	item := teeLine(t, "999")

	if _, err := store.AddLine(ctx, "owner-1", item, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.RemoveLine(ctx, "owner-1", item.LineKey); err != nil {
		t.Fatalf("remove: %v", err)
	}

	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(lines))
	}
}

func TestTotalSumsLineSubtotals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())

	tshirt := teeLine(t, "999")
	hoodie := teeLine(t, "2499")
	hoodie.ProductID = "P2"
	hoodie.SKU = "P2-M-RED"

	if _, err := store.AddLine(ctx, "owner-1", tshirt, 2); err != nil {
		t.Fatalf("add tshirt: %v", err)
	}
	if _, err := store.AddLine(ctx, "owner-1", hoodie, 1); err != nil {
		t.Fatalf("add hoodie: %v", err)
	}

	total, err := store.Total(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if want := tee(t, "4497"); !total.Equal(want) {
		t.Fatalf("expected total %s, got %s", want, total)
	}
}

func TestSnapshotIsolatedFromLaterMutations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())
	item := teeLine(t, "999")

	if _, err := store.AddLine(ctx, "owner-1", item, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	snap, err := store.Snapshot(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if _, err := store.AddLine(ctx, "owner-1", item, 4); err != nil {
		t.Fatalf("mutate after snapshot: %v", err)
	}
	if err := store.Clear(ctx, "owner-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if len(snap.Lines) != 1 || snap.Lines[0].Quantity != 1 {
		t.Fatalf("snapshot mutated: %+v", snap.Lines)
	}
	if want := tee(t, "999"); !snap.Total().Equal(want) {
		t.Fatalf("expected snapshot total %s, got %s", want, snap.Total())
	}
}

func TestCartSurvivesRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newFakeKV()
	item := teeLine(t, "999")

	first := newTestStore(t, kv)
	if _, err := first.AddLine(ctx, "owner-1", item, 2); err != nil {
		t.Fatalf("add: %v", err)
	}

	// A fresh store over the same KV hydrates the persisted cart.
	second := newTestStore(t, kv)
	lines, err := second.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines after restart: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("expected persisted line qty 2, got %+v", lines)
	}
}

func TestCorruptPayloadDegradesToEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newFakeKV()
	kv.values[kv.CartKey("owner-1")] = `{"version":1,"lines":[{"quantity":-3}]}`

	store := newTestStore(t, kv)
	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected corrupt payload to degrade to empty, got %+v", lines)
	}

	// The degraded cart is fully usable.
	if _, err := store.AddLine(ctx, "owner-1", teeLine(t, "999"), 1); err != nil {
		t.Fatalf("add after degrade: %v", err)
	}
}

func TestDuplicateIdentityPayloadDegradesToEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newFakeKV()
	kv.values[kv.CartKey("owner-1")] = `{"version":1,"lines":[` +
		`{"product_id":"P1","size":"M","color":"red","sku":"P1-M-RED","unit_price":{"amount":"9.99","currency":"USD"},"quantity":1,"display_name":"Tee"},` +
		`{"product_id":"P1","size":"M","color":"red","sku":"P1-M-RED","unit_price":{"amount":"9.99","currency":"USD"},"quantity":2,"display_name":"Tee"}]}`

	// Two persisted lines sharing one composite identity can never be produced
	// by the store itself, so the payload is discarded like any other corruption.
	store := newTestStore(t, kv)
	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected duplicate-identity payload to degrade to empty, got %+v", lines)
	}

	// The degraded cart merges normally again.
	if _, err := store.AddLine(ctx, "owner-1", teeLine(t, "999"), 1); err != nil {
		t.Fatalf("add after degrade: %v", err)
	}
	if _, err := store.AddLine(ctx, "owner-1", teeLine(t, "999"), 1); err != nil {
		t.Fatalf("second add after degrade: %v", err)
	}
	lines, err = store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines after adds: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("expected one merged line qty 2, got %+v", lines)
	}
}

func TestFailedPersistLosesOnlyInFlightMutation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newFakeKV()
	store := newTestStore(t, kv)
	item := teeLine(t, "999")

	if _, err := store.AddLine(ctx, "owner-1", item, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	kv.setErr = errors.New("redis down")
	if _, err := store.AddLine(ctx, "owner-1", item, 1); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	kv.setErr = nil

	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if lines[0].Quantity != 1 {
		t.Fatalf("expected pre-failure quantity 1, got %d", lines[0].Quantity)
	}
}

func TestClearEmptiesCartAndPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newFakeKV()
	store := newTestStore(t, kv)

	if _, err := store.AddLine(ctx, "owner-1", teeLine(t, "999"), 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Clear(ctx, "owner-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, ok := kv.values[kv.CartKey("owner-1")]; ok {
		t.Fatal("expected persisted cart key deleted")
	}
	lines, err := store.Lines(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(lines))
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, newFakeKV())

	if _, err := store.AddLine(ctx, "owner-1", teeLine(t, "999"), 1); err != nil {
		t.Fatalf("add owner-1: %v", err)
	}

	lines, err := store.Lines(ctx, "owner-2")
	if err != nil {
		t.Fatalf("Lines owner-2: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected owner-2 cart empty, got %+v", lines)
	}
}
