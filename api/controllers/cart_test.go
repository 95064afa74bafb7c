package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devanshkukreja/looms-backend/api/middleware"
	"github.com/devanshkukreja/looms-backend/internal/cart"
)

type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s, ok := value.(string); ok {
		f.data[key] = s
	}
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeKV) CartKey(owner string) string {
	return "cart:" + owner
}

func newTestCartStore(t *testing.T) *cart.Store {
	t.Helper()
	store, err := cart.NewStore(newFakeKV(), "USD", testLogger())
	if err != nil {
		t.Fatalf("building cart store: %v", err)
	}
	return store
}

func cartRequest(method, target, body, owner string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithCartOwner(req.Context(), owner))
}

func TestCartAddLineMergesSameIdentity(t *testing.T) {
	store := newTestCartStore(t)
	handler := CartAddLine(store, testLogger())

	body := `{"product_id":"P1","sku":"TEE-1","size":"M","color":"red","unit_price":"19.99","currency":"USD","quantity":1,"display_name":"Crew Tee"}`
	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler(resp, cartRequest(http.MethodPost, "/api/v1/cart/lines", body, "anon:tok"))
		if resp.Code != http.StatusOK {
			t.Fatalf("add %d: expected 200 got %d: %s", i, resp.Code, resp.Body.String())
		}
	}

	lines, err := store.Lines(context.Background(), "anon:tok")
	if err != nil {
		t.Fatalf("reading lines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one merged line got %d", len(lines))
	}
	if lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2 got %d", lines[0].Quantity)
	}
}

func TestCartAddLineStockExceededConflict(t *testing.T) {
	store := newTestCartStore(t)
	handler := CartAddLine(store, testLogger())

	body := `{"product_id":"P1","sku":"TEE-1","unit_price":"19.99","currency":"USD","quantity":3,"stock_limit":2,"display_name":"Crew Tee"}`
	resp := httptest.NewRecorder()
	handler(resp, cartRequest(http.MethodPost, "/api/v1/cart/lines", body, "anon:tok"))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", resp.Code, resp.Body.String())
	}

	lines, err := store.Lines(context.Background(), "anon:tok")
	if err != nil {
		t.Fatalf("reading lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("rejected mutation must not change the cart, got %d lines", len(lines))
	}
}

func TestCartAddLineRejectsCurrencyMismatch(t *testing.T) {
	store := newTestCartStore(t)
	handler := CartAddLine(store, testLogger())

	body := `{"product_id":"P1","sku":"TEE-1","unit_price":"19.99","currency":"EUR","quantity":1,"display_name":"Crew Tee"}`
	resp := httptest.NewRecorder()
	handler(resp, cartRequest(http.MethodPost, "/api/v1/cart/lines", body, "anon:tok"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartRemoveLineDropsWholeLine(t *testing.T) {
	store := newTestCartStore(t)
	add := CartAddLine(store, testLogger())
	remove := CartRemoveLine(store, testLogger())

	body := `{"product_id":"P1","sku":"TEE-1","unit_price":"19.99","currency":"USD","quantity":3,"display_name":"Crew Tee"}`
	resp := httptest.NewRecorder()
	add(resp, cartRequest(http.MethodPost, "/api/v1/cart/lines", body, "anon:tok"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for add got %d", resp.Code)
	}

	keyBody := `{"product_id":"P1","sku":"TEE-1"}`
	resp = httptest.NewRecorder()
	remove(resp, cartRequest(http.MethodPost, "/api/v1/cart/lines/remove", keyBody, "anon:tok"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for remove got %d: %s", resp.Code, resp.Body.String())
	}

	lines, err := store.Lines(context.Background(), "anon:tok")
	if err != nil {
		t.Fatalf("reading lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart got %d lines", len(lines))
	}
}

func TestCartHandlersRequireResolvedOwner(t *testing.T) {
	store := newTestCartStore(t)
	handler := CartFetch(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	handler(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when owner middleware missing got %d", resp.Code)
	}
}
