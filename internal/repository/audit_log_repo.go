package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/models"
)

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	Page         int
	PageSize     int
	ActorAdminID *uint
	Action       string
	TargetType   string
	TargetID     string
	From         *time.Time
	To           *time.Time
}

// AuditLogRepository persists the append-only audit trail.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	// Latest returns the newest entry for the target or gorm.ErrRecordNotFound.
	Latest(ctx context.Context, targetType, targetID string) (models.AuditLogEntry, error)
	Chain(ctx context.Context, targetType, targetID string) ([]models.AuditLogEntry, error)
	List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository constructs the audit log repository.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepository) Latest(ctx context.Context, targetType, targetID string) (models.AuditLogEntry, error) {
	var entry models.AuditLogEntry
	result := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("id DESC").
		Limit(1).
		Find(&entry)
	if result.Error != nil {
		return models.AuditLogEntry{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.AuditLogEntry{}, gorm.ErrRecordNotFound
	}
	return entry, nil
}

func (r *auditLogRepository) Chain(ctx context.Context, targetType, targetID string) ([]models.AuditLogEntry, error) {
	var entries []models.AuditLogEntry
	if err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *auditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLogEntry{})

	if filter.ActorAdminID != nil {
		query = query.Where("actor_admin_id = ?", *filter.ActorAdminID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.TargetType != "" {
		query = query.Where("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var entries []models.AuditLogEntry
	if err := query.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
