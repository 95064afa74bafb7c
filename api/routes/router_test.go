package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/devanshkukreja/looms-backend/internal/cart"
	"github.com/devanshkukreja/looms-backend/internal/checkout"
	"github.com/devanshkukreja/looms-backend/pkg/config"
	"github.com/devanshkukreja/looms-backend/pkg/db/models"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/redis"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubSessionChecker struct{}

func (stubSessionChecker) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

type stubAuthService struct{}

func (stubAuthService) SendOTP(ctx context.Context, email string) error {
	return nil
}

func (stubAuthService) VerifyOTP(ctx context.Context, name, email, code, existingToken string) (uuid.UUID, string, error) {
	return uuid.New(), "token", nil
}

func (stubAuthService) CheckSession(ctx context.Context, token string) (uuid.UUID, string, error) {
	return uuid.Nil, "", context.Canceled
}

func (stubAuthService) Logout(ctx context.Context, token string) error {
	return nil
}

type stubOrdersService struct{}

func (stubOrdersService) CreateOrder(ctx context.Context, userID uuid.UUID, snapshot cart.Snapshot, shipping types.Address) (types.PaymentOrder, error) {
	return types.PaymentOrder{OrderID: uuid.New(), PaymentIntentID: uuid.New(), Amount: snapshot.Total()}, nil
}

func (stubOrdersService) VerifyPayment(ctx context.Context, userID uuid.UUID, order types.PaymentOrder, confirmation types.PaymentConfirmation) error {
	return nil
}

func (stubOrdersService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (models.Order, error) {
	return models.Order{}, nil
}

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

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
			SessionTTLMinutes: 120,
		},
		Checkout: config.CheckoutConfig{
			CallTimeout: time.Second,
			SessionTTL:  time.Minute,
			Currency:    "USD",
		},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	store, err := cart.NewStore(newFakeKV(), cfg.Checkout.Currency, logg)
	if err != nil {
		t.Fatalf("building cart store: %v", err)
	}
	orch, err := checkout.NewOrchestrator(store, stubAuthService{}, stubOrdersService{}, cfg.Checkout, logg, nil)
	if err != nil {
		t.Fatalf("building orchestrator: %v", err)
	}

	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		&redis.Client{},
		stubSessionChecker{},
		stubAuthService{},
		store,
		orch,
		stubOrdersService{},
	)
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Looms-Env") != "test" {
		t.Fatalf("expected env header, got %q", resp.Header().Get("X-Looms-Env"))
	}
}

func TestCartRoundTripThroughRouter(t *testing.T) {
	router := newTestRouter(t)

	body := `{"product_id":"P1","sku":"TEE-1","size":"M","color":"red","unit_price":"19.99","currency":"USD","quantity":2,"display_name":"Crew Tee"}`
	add := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
	add.Header.Set("Content-Type", "application/json")
	add.Header.Set("X-Cart-Token", "tok-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, add)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for add got %d: %s", resp.Code, resp.Body.String())
	}

	fetch := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	fetch.Header.Set("X-Cart-Token", "tok-1")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, fetch)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for fetch got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "TEE-1") {
		t.Fatalf("expected cart to hold the added line, got %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "39.98") {
		t.Fatalf("expected recomputed total, got %s", resp.Body.String())
	}
}

func TestCartTokenMintedWhenAbsent(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Cart-Token") == "" {
		t.Fatalf("expected a minted cart token header")
	}
}

func TestCheckoutBeginRejectsEmptyCart(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-Cart-Token", "tok-empty")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart got %d", resp.Code)
	}
}

func TestCheckoutBeginOpensSession(t *testing.T) {
	router := newTestRouter(t)

	body := `{"product_id":"P1","sku":"TEE-1","unit_price":"19.99","currency":"USD","quantity":1,"display_name":"Crew Tee"}`
	add := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", strings.NewReader(body))
	add.Header.Set("Content-Type", "application/json")
	add.Header.Set("X-Cart-Token", "tok-2")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, add)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for add got %d", resp.Code)
	}

	begin := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	begin.Header.Set("X-Cart-Token", "tok-2")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, begin)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), string(checkout.StateCollectingName)) {
		t.Fatalf("expected session collecting name, got %s", resp.Body.String())
	}
}

func TestOrdersRequireAuth(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}
