package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/models"
)

// ErrUnsupportedContentType indicates the target type has no content table.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// ContentRepository soft-deletes and restores user generated content.
type ContentRepository interface {
	// Owner returns the author of the content, including removed content.
	Owner(ctx context.Context, targetType string, id uint) (uint, error)
	SoftDelete(ctx context.Context, targetType string, id uint) (bool, error)
	Restore(ctx context.Context, targetType string, id uint) (bool, error)
}

type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository constructs the content repository.
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func contentModel(targetType string) (interface{}, error) {
	switch targetType {
	case models.TargetTypePost:
		return &models.Post{}, nil
	case models.TargetTypeComment:
		return &models.Comment{}, nil
	case models.TargetTypeGroup:
		return &models.Group{}, nil
	case models.TargetTypeEvent:
		return &models.Event{}, nil
	default:
		return nil, ErrUnsupportedContentType
	}
}

func (r *contentRepository) Owner(ctx context.Context, targetType string, id uint) (uint, error) {
	model, err := contentModel(targetType)
	if err != nil {
		return 0, err
	}

	var row struct {
		UserID uint
	}
	result := r.db.WithContext(ctx).
		Unscoped().
		Model(model).
		Select("user_id").
		Where("id = ?", id).
		Limit(1).
		Scan(&row)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return row.UserID, nil
}

func (r *contentRepository) SoftDelete(ctx context.Context, targetType string, id uint) (bool, error) {
	model, err := contentModel(targetType)
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *contentRepository) Restore(ctx context.Context, targetType string, id uint) (bool, error) {
	model, err := contentModel(targetType)
	if err != nil {
		return false, err
	}

	result := r.db.WithContext(ctx).
		Unscoped().
		Model(model).
		Where("id = ?", id).
		Where("deleted_at IS NOT NULL").
		Update("deleted_at", nil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
