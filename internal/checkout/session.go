package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/devanshkukreja/looms-backend/internal/cart"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

// Identity is what checkout knows about the shopper so far. It fills in step
// by step until the OTP verifies, after which UserID and AuthToken are set.
type Identity struct {
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	UserID    uuid.UUID `json:"user_id,omitempty"`
	AuthToken string    `json:"-"`
}

// Authenticated reports whether the shopper's identity has been established.
func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil && i.AuthToken != ""
}

// StepInput carries the shopper's submission for the current step. Only the
// field the active state expects is read; the rest are ignored.
type StepInput struct {
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	OTPCode  string         `json:"otp_code,omitempty"`
	Shipping *types.Address `json:"shipping,omitempty"`
}

// Session is one checkout attempt. It is created from a cart snapshot when
// checkout begins and discarded on a terminal state; pricing during the
// attempt comes solely from the snapshot.
type Session struct {
	ID           uuid.UUID           `json:"id"`
	Owner        string              `json:"owner"`
	State        State               `json:"state"`
	FailReason   FailReason          `json:"fail_reason,omitempty"`
	Identity     Identity            `json:"identity"`
	Shipping     *types.Address      `json:"shipping,omitempty"`
	CartSnapshot cart.Snapshot       `json:"cart_snapshot"`
	RemoteOrder  *types.PaymentOrder `json:"remote_order,omitempty"`
	Payment      PaymentOutcome      `json:"payment"`
	StartedAt    time.Time           `json:"started_at"`
	Deadline     time.Time           `json:"deadline"`

	inFlight bool
}

// Amount is the session's total, computed from the snapshot.
func (s *Session) Amount() types.Money {
	return s.CartSnapshot.Total()
}

func (s *Session) view() Session {
	out := *s
	out.inFlight = false
	if s.Shipping != nil {
		shipping := *s.Shipping
		out.Shipping = &shipping
	}
	if s.RemoteOrder != nil {
		order := *s.RemoteOrder
		out.RemoteOrder = &order
	}
	return out
}
