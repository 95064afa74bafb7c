package types

import "github.com/google/uuid"

// PaymentOrder is the handle returned once an order and its payment intent
// exist remotely; the gateway key is what the hosted payment UI is opened with.
type PaymentOrder struct {
	OrderID         uuid.UUID `json:"order_id"`
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	GatewayKey      string    `json:"gateway_key"`
	Amount          Money     `json:"amount"`
}

// PaymentConfirmation is the success payload posted back by the hosted payment
// UI. It is untrusted until the signature and gateway status check out
// server-side.
type PaymentConfirmation struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	OrderRef         string `json:"order_ref"`
	Signature        string `json:"signature"`
}
