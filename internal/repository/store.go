package repository

import (
	"context"

	"gorm.io/gorm"
)

// ModerationStore groups the repositories touched by a moderation decision so
// they can share one database transaction.
type ModerationStore interface {
	Cases() CaseRepository
	Audit() AuditLogRepository
	Accounts() AccountRepository
	Content() ContentRepository
	// Transaction runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx ModerationStore) error) error
}

type gormModerationStore struct {
	db *gorm.DB
}

// NewModerationStore constructs a GORM-backed moderation store.
func NewModerationStore(db *gorm.DB) ModerationStore {
	return &gormModerationStore{db: db}
}

func (s *gormModerationStore) Cases() CaseRepository {
	return NewCaseRepository(s.db)
}

func (s *gormModerationStore) Audit() AuditLogRepository {
	return NewAuditLogRepository(s.db)
}

func (s *gormModerationStore) Accounts() AccountRepository {
	return NewAccountRepository(s.db)
}

func (s *gormModerationStore) Content() ContentRepository {
	return NewContentRepository(s.db)
}

func (s *gormModerationStore) Transaction(ctx context.Context, fn func(tx ModerationStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormModerationStore{db: tx})
	})
}
