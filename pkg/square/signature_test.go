package square

import "testing"

func TestSignAndVerifyConfirmation(t *testing.T) {
	t.Parallel()

	secret := "callback-secret"
	sig := SignConfirmation(secret, "order-1", "payment-1")
	if sig == "" {
		t.Fatalf("expected non-empty signature")
	}

	if !VerifyConfirmation(secret, "order-1", "payment-1", sig) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifyConfirmationRejectsTampering(t *testing.T) {
	t.Parallel()

	secret := "callback-secret"
	sig := SignConfirmation(secret, "order-1", "payment-1")

	if VerifyConfirmation(secret, "order-2", "payment-1", sig) {
		t.Fatalf("signature must not verify for a different order")
	}
	if VerifyConfirmation(secret, "order-1", "payment-2", sig) {
		t.Fatalf("signature must not verify for a different payment")
	}
	if VerifyConfirmation("other-secret", "order-1", "payment-1", sig) {
		t.Fatalf("signature must not verify under a different secret")
	}
}

func TestVerifyConfirmationRejectsEmptyInputs(t *testing.T) {
	t.Parallel()

	if VerifyConfirmation("", "order-1", "payment-1", SignConfirmation("", "order-1", "payment-1")) {
		t.Fatalf("empty secret must never verify")
	}
	if VerifyConfirmation("secret", "order-1", "payment-1", "") {
		t.Fatalf("empty signature must never verify")
	}
}
