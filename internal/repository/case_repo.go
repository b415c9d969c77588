package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/modengine-api/internal/models"
)

// CaseFilter narrows moderation case queries.
type CaseFilter struct {
	Kind          string
	Status        string
	Reason        string
	SubjectUserID *uint
	Page          int
	PageSize      int
	Sort          string
}

// CaseTransition describes a compare-and-set status change.
type CaseTransition struct {
	From         []models.CaseStatus
	To           models.CaseStatus
	ReviewerID   uint
	Resolution   *models.Resolution
	Notes        *string
	ReviewedAt   *time.Time
	ClearOpenKey bool
}

// CaseCount is one bucket of an aggregate over cases.
type CaseCount struct {
	Key   string `gorm:"column:bucket"`
	Count int64  `gorm:"column:total"`
}

// CaseRepository persists moderation cases.
type CaseRepository interface {
	Create(ctx context.Context, c *models.ModerationCase) error
	GetByID(ctx context.Context, id uint) (models.ModerationCase, error)
	// GetForUpdate loads the case and holds a row lock where the dialect supports it.
	GetForUpdate(ctx context.Context, id uint) (models.ModerationCase, error)
	// Transition applies the change only while the current status is one of
	// t.From. It reports whether this call won the transition.
	Transition(ctx context.Context, id uint, t CaseTransition) (bool, error)
	HasOpen(ctx context.Context, openKey string) (bool, error)
	List(ctx context.Context, filter CaseFilter) ([]models.ModerationCase, int64, error)
	CountByStatus(ctx context.Context, kind string) ([]CaseCount, error)
	CountByReason(ctx context.Context, kind string) ([]CaseCount, error)
}

type caseRepository struct {
	db *gorm.DB
}

// NewCaseRepository constructs the case repository.
func NewCaseRepository(db *gorm.DB) CaseRepository {
	return &caseRepository{db: db}
}

var allowedCaseSorts = map[string]string{
	"created_at":  "created_at",
	"reviewed_at": "reviewed_at",
	"status":      "status",
	"id":          "id",
}

func (r *caseRepository) Create(ctx context.Context, c *models.ModerationCase) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *caseRepository) GetByID(ctx context.Context, id uint) (models.ModerationCase, error) {
	var c models.ModerationCase
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return models.ModerationCase{}, err
	}
	return c, nil
}

func (r *caseRepository) GetForUpdate(ctx context.Context, id uint) (models.ModerationCase, error) {
	var c models.ModerationCase
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, id).Error; err != nil {
		return models.ModerationCase{}, err
	}
	return c, nil
}

func (r *caseRepository) Transition(ctx context.Context, id uint, t CaseTransition) (bool, error) {
	from := make([]string, 0, len(t.From))
	for _, status := range t.From {
		from = append(from, string(status))
	}

	updates := map[string]interface{}{
		"status":      string(t.To),
		"reviewer_id": t.ReviewerID,
		"updated_at":  time.Now(),
	}
	if t.Resolution != nil {
		updates["resolution"] = string(*t.Resolution)
	}
	if t.Notes != nil {
		updates["notes"] = *t.Notes
	}
	if t.ReviewedAt != nil {
		updates["reviewed_at"] = *t.ReviewedAt
	}
	if t.ClearOpenKey {
		updates["open_key"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.ModerationCase{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *caseRepository) HasOpen(ctx context.Context, openKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ModerationCase{}).
		Where("open_key = ?", openKey).
		Count(&count).Error
	return count > 0, err
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]models.ModerationCase, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ModerationCase{})

	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Reason != "" {
		query = query.Where("reason = ?", filter.Reason)
	}
	if filter.SubjectUserID != nil {
		query = query.Where("subject_user_id = ?", *filter.SubjectUserID)
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
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var cases []models.ModerationCase
	if err := query.Order(caseOrder(filter.Sort)).Order("id DESC").Find(&cases).Error; err != nil {
		return nil, 0, err
	}

	return cases, total, nil
}

func (r *caseRepository) CountByStatus(ctx context.Context, kind string) ([]CaseCount, error) {
	return r.countBy(ctx, "status", kind)
}

func (r *caseRepository) CountByReason(ctx context.Context, kind string) ([]CaseCount, error) {
	return r.countBy(ctx, "reason", kind)
}

func (r *caseRepository) countBy(ctx context.Context, column, kind string) ([]CaseCount, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ModerationCase{}).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var rows []CaseCount
	if err := query.Order(column).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func caseOrder(sort string) string {
	sort = strings.TrimSpace(strings.ToLower(sort))
	direction := "DESC"
	if strings.HasSuffix(sort, " asc") {
		sort = strings.TrimSuffix(sort, " asc")
		direction = "ASC"
	} else {
		sort = strings.TrimSuffix(sort, " desc")
	}

	column, ok := allowedCaseSorts[strings.TrimSpace(sort)]
	if !ok {
		column = "created_at"
	}
	return column + " " + direction
}
