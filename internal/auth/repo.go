package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devanshkukreja/looms-backend/pkg/db"
	"github.com/devanshkukreja/looms-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository persists shopper identities.
type Repository struct {
	db txRunner
}

func NewRepository(client *db.Client) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("db client is required")
	}
	return &Repository{db: client}, nil
}

// UpsertByEmail resolves a user by email, creating one on first login and
// refreshing name and last-login on every successful verification. A create
// racing another login for the same email falls back to the winner's row.
func (r *Repository) UpsertByEmail(ctx context.Context, email, name string) (models.User, error) {
	var user models.User
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				ID:          uuid.New(),
				Email:       email,
				Name:        name,
				IsActive:    true,
				LastLoginAt: &now,
			}
			createErr := tx.Create(&user).Error
			if createErr == nil {
				return nil
			}
			if db.IsUniqueViolation(createErr, "") {
				return tx.Where("email = ?", email).First(&user).Error
			}
			return createErr
		}
		if err != nil {
			return err
		}

		updates := map[string]any{"last_login_at": now}
		if name != "" && user.Name != name {
			updates["name"] = name
			user.Name = name
		}
		user.LastLoginAt = &now
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
	})
	if err != nil {
		return models.User{}, fmt.Errorf("upserting user by email: %w", err)
	}
	return user, nil
}
