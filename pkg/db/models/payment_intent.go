package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment intent statuses. "verified" is terminal; the pending->verified
// transition is guarded so it can happen at most once.
const (
	PaymentIntentStatusPending  = "pending"
	PaymentIntentStatusVerified = "verified"
	PaymentIntentStatusFailed   = "failed"
)

// PaymentIntent tracks the single payment attempt attached to an order.
type PaymentIntent struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	Status           string     `gorm:"column:status;not null;default:'pending'"`
	AmountCents      int64      `gorm:"column:amount_cents;not null"`
	Currency         string     `gorm:"column:currency;not null"`
	GatewayPaymentID *string    `gorm:"column:gateway_payment_id"`
	FailureReason    *string    `gorm:"column:failure_reason"`
	VerifiedAt       *time.Time `gorm:"column:verified_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
