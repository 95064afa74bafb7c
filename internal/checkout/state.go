package checkout

// State names one step of the checkout flow. A session advances strictly one
// transition at a time; the orchestrator rejects events the current state does
// not allow.
type State string

const (
	StateIdle               State = "idle"
	StateUnauthenticated    State = "unauthenticated"
	StateCollectingName     State = "collecting_name"
	StateCollectingEmail    State = "collecting_email"
	StateAwaitingOtp        State = "awaiting_otp"
	StateAuthenticated      State = "authenticated"
	StateCollectingShipping State = "collecting_shipping"
	StateCreatingOrder      State = "creating_order"
	StateAwaitingPayment    State = "awaiting_payment"
	StateVerifyingPayment   State = "verifying_payment"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Terminal reports whether the session has reached an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailReason distinguishes terminal failures; the UI decides resumability
// from it.
type FailReason string

const (
	// ReasonUserCancelled covers an explicit cancel and an abandoned hosted
	// payment UI. Checkout may restart with a fresh session.
	ReasonUserCancelled FailReason = "user_cancelled"
	// ReasonPaymentDeclined is a gateway-reported failure before any
	// server-side verification. Checkout may restart with a fresh session.
	ReasonPaymentDeclined FailReason = "payment_declined"
	// ReasonVerificationFailed means the gateway claimed success but
	// server-side verification did not confirm it. Funds may have moved, so
	// this is never silently retried within the flow.
	ReasonVerificationFailed FailReason = "verification_failed"
)

// PaymentOutcome tracks what is known about the session's payment.
type PaymentOutcome string

const (
	PaymentPending  PaymentOutcome = "pending"
	PaymentVerified PaymentOutcome = "verified"
	PaymentFailed   PaymentOutcome = "failed"
)
