package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devanshkukreja/looms-backend/pkg/db"
	"github.com/devanshkukreja/looms-backend/pkg/db/models"
	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository persists orders, their frozen line items, and payment intents.
type Repository struct {
	db txRunner
}

func NewRepository(client *db.Client) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	return &Repository{db: client}, nil
}

// CreateWithIntent writes the order, its line items, and the pending payment
// intent in one transaction; either the whole order exists or none of it does.
func (r *Repository) CreateWithIntent(ctx context.Context, order *models.Order, intent *models.PaymentIntent) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("creating order: %w", err)
		}
		intent.OrderID = order.ID
		if err := tx.Create(intent).Error; err != nil {
			return fmt.Errorf("creating payment intent: %w", err)
		}
		return nil
	})
}

// IntentWithOrder loads a payment intent together with its order.
func (r *Repository) IntentWithOrder(ctx context.Context, intentID uuid.UUID) (models.PaymentIntent, models.Order, error) {
	var intent models.PaymentIntent
	var order models.Order

	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", intentID).First(&intent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
			}
			return err
		}
		if err := tx.Where("id = ?", intent.OrderID).First(&order).Error; err != nil {
			return fmt.Errorf("loading order for intent: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PaymentIntent{}, models.Order{}, err
	}
	return intent, order, nil
}

// MarkVerified flips the intent from pending to verified and the order to
// paid. The update is guarded on the pending status so concurrent callbacks
// apply it at most once; the return value reports whether this call won.
func (r *Repository) MarkVerified(ctx context.Context, intentID uuid.UUID, gatewayPaymentID string) (bool, error) {
	applied := false
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intentID, models.PaymentIntentStatusPending).
			Updates(map[string]any{
				"status":             models.PaymentIntentStatusVerified,
				"gateway_payment_id": gatewayPaymentID,
				"verified_at":        now,
			})
		if res.Error != nil {
			return fmt.Errorf("marking intent verified: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		var intent models.PaymentIntent
		if err := tx.Where("id = ?", intentID).First(&intent).Error; err != nil {
			return err
		}
		return tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", intent.OrderID, models.OrderStatusCreated).
			Update("status", models.OrderStatusPaid).Error
	})
	return applied, err
}

// MarkFailed records a terminal failure on a still-pending intent and its order.
func (r *Repository) MarkFailed(ctx context.Context, intentID uuid.UUID, reason string) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intentID, models.PaymentIntentStatusPending).
			Updates(map[string]any{
				"status":         models.PaymentIntentStatusFailed,
				"failure_reason": reason,
			})
		if res.Error != nil {
			return fmt.Errorf("marking intent failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var intent models.PaymentIntent
		if err := tx.Where("id = ?", intentID).First(&intent).Error; err != nil {
			return err
		}
		return tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", intent.OrderID, models.OrderStatusCreated).
			Update("status", models.OrderStatusFailed).Error
	})
}

// OrderForUser loads an order with its line items, scoped to the owning user.
func (r *Repository) OrderForUser(ctx context.Context, userID, orderID uuid.UUID) (models.Order, error) {
	var order models.Order
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.Preload("Items").
			Where("id = ? AND user_id = ?", orderID, userID).
			First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}
