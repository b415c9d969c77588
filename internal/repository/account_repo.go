package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/models"
)

// AccountRepository exposes the account mutations moderation is allowed to make.
// Mutations report whether a row changed; a missing account yields gorm.ErrRecordNotFound.
type AccountRepository interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
	Suspend(ctx context.Context, id uint, reason string, at time.Time) (bool, error)
	Unsuspend(ctx context.Context, id uint) (bool, error)
	SetVerified(ctx context.Context, id uint, verified bool, at time.Time) (bool, error)
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository constructs the account repository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *accountRepository) Suspend(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, id, "is_suspended = ?", false, map[string]interface{}{
		"is_suspended":      true,
		"suspension_reason": reason,
		"suspended_at":      at,
	})
}

func (r *accountRepository) Unsuspend(ctx context.Context, id uint) (bool, error) {
	return r.conditionalUpdate(ctx, id, "is_suspended = ?", true, map[string]interface{}{
		"is_suspended":      false,
		"suspension_reason": "",
		"suspended_at":      nil,
	})
}

func (r *accountRepository) SetVerified(ctx context.Context, id uint, verified bool, at time.Time) (bool, error) {
	updates := map[string]interface{}{"is_verified": verified}
	if verified {
		updates["verified_at"] = at
	} else {
		updates["verified_at"] = nil
	}
	return r.conditionalUpdate(ctx, id, "is_verified = ?", !verified, updates)
}

// conditionalUpdate writes updates only when the guard still holds, so repeating
// a sanction leaves the row untouched.
func (r *accountRepository) conditionalUpdate(ctx context.Context, id uint, guard string, guardValue interface{}, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Where(guard, guardValue).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
