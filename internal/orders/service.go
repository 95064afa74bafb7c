package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/devanshkukreja/looms-backend/internal/cart"
	"github.com/devanshkukreja/looms-backend/pkg/db/models"
	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
	"github.com/devanshkukreja/looms-backend/pkg/square"
	"github.com/devanshkukreja/looms-backend/pkg/types"
)

const paymentStatusCompleted = "COMPLETED"

type orderStore interface {
	CreateWithIntent(ctx context.Context, order *models.Order, intent *models.PaymentIntent) error
	IntentWithOrder(ctx context.Context, intentID uuid.UUID) (models.PaymentIntent, models.Order, error)
	MarkVerified(ctx context.Context, intentID uuid.UUID, gatewayPaymentID string) (bool, error)
	MarkFailed(ctx context.Context, intentID uuid.UUID, reason string) error
	OrderForUser(ctx context.Context, userID, orderID uuid.UUID) (models.Order, error)
}

type paymentGateway interface {
	ApplicationID() string
	CallbackSecret() string
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// Service owns the remote side of checkout: creating orders with their
// payment intents and confirming gateway callbacks against the gateway itself.
type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, snapshot cart.Snapshot, shipping types.Address) (types.PaymentOrder, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, order types.PaymentOrder, confirmation types.PaymentConfirmation) error
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (models.Order, error)
}

type service struct {
	repo    orderStore
	gateway paymentGateway
	logg    *logger.Logger
}

func NewService(repo orderStore, gateway paymentGateway, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: repo, gateway: gateway, logg: logg}, nil
}

// CreateOrder freezes the snapshot into an order with line items and a pending
// payment intent, all priced from the snapshot.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, snapshot cart.Snapshot, shipping types.Address) (types.PaymentOrder, error) {
	if userID == uuid.Nil {
		return types.PaymentOrder{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	if snapshot.Empty() {
		return types.PaymentOrder{}, pkgerrors.New(pkgerrors.CodeValidation, "cart snapshot is empty")
	}
	if err := shipping.Validate(); err != nil {
		return types.PaymentOrder{}, err
	}

	amount := snapshot.Total()
	if amount.Cents() <= 0 {
		return types.PaymentOrder{}, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}

	order := models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      models.OrderStatusCreated,
		AmountCents: amount.Cents(),
		Currency:    amount.Currency.String(),

		ShippingFullName:   shipping.FullName,
		ShippingLine1:      shipping.Line1,
		ShippingLine2:      shipping.Line2,
		ShippingCity:       shipping.City,
		ShippingPostalCode: shipping.PostalCode,
		ShippingCountry:    shipping.Country,
		ShippingPhone:      shipping.Phone,
	}
	for _, line := range snapshot.Lines {
		order.Items = append(order.Items, models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			Size:           line.Size,
			Color:          line.Color,
			SKU:            line.SKU,
			DisplayName:    line.DisplayName,
			UnitPriceCents: line.UnitPrice.Cents(),
			Qty:            line.Quantity,
			TotalCents:     line.Subtotal().Cents(),
		})
	}

	intent := models.PaymentIntent{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Status:      models.PaymentIntentStatusPending,
		AmountCents: amount.Cents(),
		Currency:    amount.Currency.String(),
	}

	if err := s.repo.CreateWithIntent(ctx, &order, &intent); err != nil {
		return types.PaymentOrder{}, pkgerrors.Wrap(pkgerrors.CodeOrderCreation, err, "persisting order")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "amount_cents": order.AmountCents})
	s.logg.Info(ctx, "order created")

	return types.PaymentOrder{
		OrderID:         order.ID,
		PaymentIntentID: intent.ID,
		GatewayKey:      s.gateway.ApplicationID(),
		Amount:          amount,
	}, nil
}

// VerifyPayment is the server-side confirmation of a gateway success
// callback. The callback is treated as untrusted: the signature must bind the
// gateway payment to this order, and the gateway itself must report the
// payment as completed for the expected amount. The pending-to-verified
// transition is guarded so it applies at most once.
func (s *service) VerifyPayment(ctx context.Context, userID uuid.UUID, order types.PaymentOrder, confirmation types.PaymentConfirmation) error {
	intent, stored, err := s.repo.IntentWithOrder(ctx, order.PaymentIntentID)
	if err != nil {
		return err
	}
	if stored.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if stored.ID != order.OrderID {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent does not match order")
	}
	if intent.Status == models.PaymentIntentStatusVerified {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already verified")
	}

	ctx = s.logg.WithField(ctx, "order_id", stored.ID.String())

	if confirmation.OrderRef != stored.ID.String() {
		return s.fail(ctx, intent.ID, "confirmation references a different order")
	}
	if !square.VerifyConfirmation(s.gateway.CallbackSecret(), confirmation.OrderRef, confirmation.GatewayPaymentID, confirmation.Signature) {
		return s.fail(ctx, intent.ID, "confirmation signature invalid")
	}

	payment, err := s.gateway.GetPayment(ctx, confirmation.GatewayPaymentID)
	if err != nil {
		return s.fail(ctx, intent.ID, fmt.Sprintf("payment lookup failed: %v", err))
	}
	if status := paymentStatus(payment); status != paymentStatusCompleted {
		return s.fail(ctx, intent.ID, fmt.Sprintf("payment status %q", status))
	}
	if cents, currency, ok := paymentAmount(payment); ok {
		if cents != intent.AmountCents {
			return s.fail(ctx, intent.ID, fmt.Sprintf("payment amount %d does not match intent %d", cents, intent.AmountCents))
		}
		if currency != "" && !strings.EqualFold(currency, intent.Currency) {
			return s.fail(ctx, intent.ID, fmt.Sprintf("payment currency %q does not match intent %q", currency, intent.Currency))
		}
	}

	applied, err := s.repo.MarkVerified(ctx, intent.ID, confirmation.GatewayPaymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording verification")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already processed")
	}

	s.logg.Info(ctx, "payment verified")
	return nil
}

// GetOrder returns an order with its line items, scoped to the owning user.
func (s *service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (models.Order, error) {
	if userID == uuid.Nil {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	return s.repo.OrderForUser(ctx, userID, orderID)
}

// fail records the failure on the intent and surfaces the support-directed
// verification error. The recording is best-effort: a failed write must not
// mask the verification outcome.
func (s *service) fail(ctx context.Context, intentID uuid.UUID, reason string) error {
	if err := s.repo.MarkFailed(ctx, intentID, reason); err != nil {
		s.logg.Error(ctx, "recording verification failure", err)
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment verification rejected")
	return pkgerrors.New(pkgerrors.CodeVerificationFailed, "payment verification failed").
		WithDetails(map[string]any{"reason": reason})
}

func paymentStatus(payment *sq.Payment) string {
	if payment == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(stringValue(payment.GetStatus())))
}

func paymentAmount(payment *sq.Payment) (int64, string, bool) {
	if payment == nil {
		return 0, "", false
	}
	money := payment.GetAmountMoney()
	if money == nil || money.GetAmount() == nil {
		return 0, "", false
	}
	var currency string
	if c := money.GetCurrency(); c != nil {
		currency = string(*c)
	}
	return *money.GetAmount(), currency, true
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
