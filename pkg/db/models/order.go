package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses move strictly forward: created -> paid, or created -> failed.
const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// Order is the remote-order row created once per checkout session.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Status      string    `gorm:"column:status;not null;default:'created'"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	Currency    string    `gorm:"column:currency;not null"`

	ShippingFullName   string  `gorm:"column:shipping_full_name;not null"`
	ShippingLine1      string  `gorm:"column:shipping_line1;not null"`
	ShippingLine2      *string `gorm:"column:shipping_line2"`
	ShippingCity       string  `gorm:"column:shipping_city;not null"`
	ShippingPostalCode string  `gorm:"column:shipping_postal_code;not null"`
	ShippingCountry    string  `gorm:"column:shipping_country;not null"`
	ShippingPhone      *string `gorm:"column:shipping_phone"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
