package types

import (
	"encoding/json"
	"testing"
)

func TestNewMoneyParsesAmountAndCurrency(t *testing.T) {
	t.Parallel()

	m, err := NewMoney("24.99", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Cents() != 2499 {
		t.Fatalf("expected 2499 cents got %d", m.Cents())
	}
	if m.Currency.String() != "USD" {
		t.Fatalf("expected USD got %s", m.Currency)
	}

	if _, err := NewMoney("abc", "USD"); err == nil {
		t.Fatalf("expected error for malformed amount")
	}
	if _, err := NewMoney("1.00", "NOPE"); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}

func TestMoneyAddRejectsCurrencyMismatch(t *testing.T) {
	t.Parallel()

	usd := MustMoney("1.00", "USD")
	eur := MustMoney("1.00", "EUR")

	if _, err := usd.Add(eur); err == nil {
		t.Fatalf("expected currency mismatch error")
	}

	sum, err := usd.Add(MustMoney("2.50", "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Cents() != 350 {
		t.Fatalf("expected 350 cents got %d", sum.Cents())
	}
}

func TestMoneyMulInt(t *testing.T) {
	t.Parallel()

	m := MustMoney("9.99", "USD").MulInt(3)
	if m.Cents() != 2997 {
		t.Fatalf("expected 2997 cents got %d", m.Cents())
	}
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	t.Parallel()

	original := MustMoney("129.95", "USD")
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Money
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("expected %s got %s", original, decoded)
	}
}
