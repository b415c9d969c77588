package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/modengine-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedCase(t *testing.T, db *gorm.DB, c models.ModerationCase) models.ModerationCase {
	t.Helper()
	if c.Status == "" {
		c.Status = models.CaseStatusPending
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func TestCaseRepositoryTransitionIsCompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db)
	ctx := context.Background()

	c := seedCase(t, db, models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: 1, Reason: "spam"})

	won, err := repo.Transition(ctx, c.ID, CaseTransition{
		From:       []models.CaseStatus{models.CaseStatusPending},
		To:         models.CaseStatusReviewing,
		ReviewerID: 9,
	})
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.Transition(ctx, c.ID, CaseTransition{
		From:       []models.CaseStatus{models.CaseStatusPending},
		To:         models.CaseStatusReviewing,
		ReviewerID: 10,
	})
	require.NoError(t, err)
	require.False(t, won, "second claim must lose")

	stored, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusReviewing, stored.Status)
	require.NotNil(t, stored.ReviewerID)
	require.Equal(t, uint(9), *stored.ReviewerID)
	require.Nil(t, stored.Resolution)
}

func TestCaseRepositoryTransitionClearsOpenKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db)
	ctx := context.Background()

	key := models.OpenCaseKey(models.CaseKindAppeal, nil, nil, 4)
	c := seedCase(t, db, models.ModerationCase{Kind: models.CaseKindAppeal, SubjectUserID: 4, Reason: "suspension", OpenKey: &key})

	open, err := repo.HasOpen(ctx, key)
	require.NoError(t, err)
	require.True(t, open)

	resolution := models.ResolutionReject
	notes := "no new evidence"
	reviewedAt := time.Now().UTC()
	won, err := repo.Transition(ctx, c.ID, CaseTransition{
		From:         models.OpenStatuses(models.CaseKindAppeal),
		To:           models.CaseStatusRejected,
		ReviewerID:   2,
		Resolution:   &resolution,
		Notes:        &notes,
		ReviewedAt:   &reviewedAt,
		ClearOpenKey: true,
	})
	require.NoError(t, err)
	require.True(t, won)

	open, err = repo.HasOpen(ctx, key)
	require.NoError(t, err)
	require.False(t, open)

	stored, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.CaseStatusRejected, stored.Status)
	require.Equal(t, models.ResolutionReject, *stored.Resolution)
	require.Equal(t, notes, stored.Notes)
	require.NotNil(t, stored.ReviewedAt)
	require.Nil(t, stored.OpenKey)
}

func TestCaseRepositoryRejectsDuplicateOpenKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db)
	ctx := context.Background()

	key := models.OpenCaseKey(models.CaseKindVerification, nil, nil, 7)
	first := models.ModerationCase{Kind: models.CaseKindVerification, SubjectUserID: 7, Reason: "journalist", Status: models.CaseStatusPending, OpenKey: &key}
	require.NoError(t, repo.Create(ctx, &first))

	duplicateKey := key
	second := models.ModerationCase{Kind: models.CaseKindVerification, SubjectUserID: 7, Reason: "journalist", Status: models.CaseStatusPending, OpenKey: &duplicateKey}
	err := repo.Create(ctx, &second)
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	// reports never hold a key, so any number may coexist
	for i := 0; i < 2; i++ {
		report := models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: 7, Reason: "spam", Status: models.CaseStatusPending}
		require.NoError(t, repo.Create(ctx, &report))
	}
}

func TestCaseRepositoryListFiltersAndPaginates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db)
	ctx := context.Background()

	subject := uint(3)
	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: subject, Reason: "spam"})
	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: subject, Reason: "harassment", Status: models.CaseStatusReviewing})
	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: 8, Reason: "spam"})
	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindAppeal, SubjectUserID: subject, Reason: "suspension"})

	items, total, err := repo.List(ctx, CaseFilter{Kind: "report", SubjectUserID: &subject})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)

	items, total, err = repo.List(ctx, CaseFilter{Reason: "spam", Page: 2, PageSize: 1, Sort: "id asc"})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	require.Equal(t, uint(8), items[0].SubjectUserID)

	items, _, err = repo.List(ctx, CaseFilter{Status: "reviewing"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "harassment", items[0].Reason)
}

func TestCaseRepositoryCountsByStatusAndReason(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db)
	ctx := context.Background()

	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: 1, Reason: "spam"})
	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindReport, SubjectUserID: 1, Reason: "spam", Status: models.CaseStatusDismissed})
	seedCase(t, db, models.ModerationCase{Kind: models.CaseKindAppeal, SubjectUserID: 1, Reason: "suspension"})

	byStatus, err := repo.CountByStatus(ctx, "report")
	require.NoError(t, err)
	require.ElementsMatch(t, []CaseCount{{Key: "dismissed", Count: 1}, {Key: "pending", Count: 1}}, byStatus)

	byReason, err := repo.CountByReason(ctx, "")
	require.NoError(t, err)
	require.ElementsMatch(t, []CaseCount{{Key: "spam", Count: 2}, {Key: "suspension", Count: 1}}, byReason)
}

func TestAccountRepositorySuspendIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	user := models.User{Username: "mallory"}
	require.NoError(t, db.Create(&user).Error)

	at := time.Now().UTC()
	changed, err := repo.Suspend(ctx, user.ID, "spam", at)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.Suspend(ctx, user.ID, "harassment", at.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, changed)

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, stored.IsSuspended)
	require.Equal(t, "spam", stored.SuspensionReason)

	changed, err = repo.Unsuspend(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.Unsuspend(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, changed)

	stored, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, stored.IsSuspended)
	require.Nil(t, stored.SuspendedAt)
}

func TestAccountRepositoryMissingUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)

	_, err := repo.Suspend(context.Background(), 404, "spam", time.Now())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.SetVerified(context.Background(), 404, true, time.Now())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAccountRepositorySetVerifiedKeepsFirstTimestamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	user := models.User{Username: "reporter"}
	require.NoError(t, db.Create(&user).Error)

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	changed, err := repo.SetVerified(ctx, user.ID, true, first)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.SetVerified(ctx, user.ID, true, first.Add(24*time.Hour))
	require.NoError(t, err)
	require.False(t, changed)

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, stored.IsVerified)
	require.NotNil(t, stored.VerifiedAt)
	require.True(t, first.Equal(*stored.VerifiedAt))
}

func TestContentRepositorySoftDeleteAndRestore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContentRepository(db)
	ctx := context.Background()

	post := models.Post{UserID: 5, Body: "buy now"}
	require.NoError(t, db.Create(&post).Error)

	changed, err := repo.SoftDelete(ctx, models.TargetTypePost, post.ID)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.SoftDelete(ctx, models.TargetTypePost, post.ID)
	require.NoError(t, err)
	require.False(t, changed, "removing twice is a no-op")

	var live int64
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&live).Error)
	require.Zero(t, live)

	owner, err := repo.Owner(ctx, models.TargetTypePost, post.ID)
	require.NoError(t, err)
	require.Equal(t, uint(5), owner, "owner resolves for removed content")

	changed, err = repo.Restore(ctx, models.TargetTypePost, post.ID)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.Restore(ctx, models.TargetTypePost, post.ID)
	require.NoError(t, err)
	require.False(t, changed)

	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&live).Error)
	require.Equal(t, int64(1), live)
}

func TestContentRepositoryMissingAndUnsupported(t *testing.T) {
	db := setupTestDB(t)
	repo := NewContentRepository(db)
	ctx := context.Background()

	changed, err := repo.SoftDelete(ctx, models.TargetTypeComment, 99)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = repo.Owner(ctx, models.TargetTypeEvent, 99)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.SoftDelete(ctx, models.TargetTypeUser, 1)
	require.ErrorIs(t, err, ErrUnsupportedContentType)
}

func TestAuditLogRepositoryLatestChainAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	_, err := repo.Latest(ctx, "moderation_case", "1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []models.AuditLogEntry{
		{EventID: "e1", ActorAdminID: 1, Action: "report_claimed", TargetType: "moderation_case", TargetID: "1", Hash: "h1", CreatedAt: base, Detail: datatypes.JSONMap{"kind": "report"}},
		{EventID: "e2", ActorAdminID: 1, Action: "report_resolved", TargetType: "moderation_case", TargetID: "1", PrevHash: "h1", Hash: "h2", CreatedAt: base.Add(time.Minute)},
		{EventID: "e3", ActorAdminID: 2, Action: "appeal_approved", TargetType: "moderation_case", TargetID: "2", Hash: "h3", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	latest, err := repo.Latest(ctx, "moderation_case", "1")
	require.NoError(t, err)
	require.Equal(t, "h2", latest.Hash)

	chain, err := repo.Chain(ctx, "moderation_case", "1")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, "e1", chain[0].EventID)
	require.Equal(t, "report", chain[0].Detail["kind"])

	actor := uint(1)
	items, total, err := repo.List(ctx, AuditLogFilter{ActorAdminID: &actor, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "e2", items[0].EventID, "newest first")

	from := base.Add(90 * time.Second)
	items, total, err = repo.List(ctx, AuditLogFilter{From: &from})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "appeal_approved", items[0].Action)
}

func TestModerationStoreTransactionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	store := NewModerationStore(db)
	ctx := context.Background()

	user := models.User{Username: "target"}
	require.NoError(t, db.Create(&user).Error)

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx ModerationStore) error {
		changed, err := tx.Accounts().Suspend(ctx, user.ID, "spam", time.Now())
		require.NoError(t, err)
		require.True(t, changed)
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.Accounts().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, stored.IsSuspended)
}

func TestNotificationRepositoryListByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Notification{UserID: 1, Type: "moderation.warning", Message: fmt.Sprintf("n%d", i)}))
	}
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: 2, Type: "moderation.warning", Message: "other"}))

	items, err := repo.ListByUser(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "n2", items[0].Message)

	items, err = repo.ListByUser(ctx, 1, 0, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "n0", items[0].Message)
}

func TestAuditLogRepositoryLatestOnEmptyChainDoesNotLogError(t *testing.T) {
	db := setupTestDB(t)
	var logged bytes.Buffer
	quietDB := db.Session(&gorm.Session{Logger: logger.New(log.New(&logged, "", 0), logger.Config{LogLevel: logger.Warn})})
	repo := NewAuditLogRepository(quietDB)

	_, err := repo.Latest(context.Background(), "moderation_case", "77")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.Empty(t, logged.String())
}
