package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
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

// recordingDispatcher captures outcome notifications and can be told to fail.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dto.NotificationCreateRequest
	err   error
}

func (d *recordingDispatcher) Enqueue(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, payload)
	if d.err != nil {
		return dto.NotificationResponse{}, d.err
	}
	return dto.NotificationResponse{UserID: payload.UserID, Type: payload.Type, Message: payload.Message}, nil
}

func (d *recordingDispatcher) sent() []dto.NotificationCreateRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dto.NotificationCreateRequest(nil), d.calls...)
}

type testEngine struct {
	db            *gorm.DB
	store         repository.ModerationStore
	audit         AuditService
	query         CaseQueryService
	resolver      CaseResolver
	notifications *recordingDispatcher
}

func newTestEngine(t *testing.T, cache *redis.Client) *testEngine {
	t.Helper()
	db := setupServiceDB(t)
	store := repository.NewModerationStore(db)
	audit := NewAuditService(store.Audit(), testLogger())
	query := NewCaseQueryService(store.Cases(), cache, time.Minute, testLogger())
	notifications := &recordingDispatcher{}

	resolver := NewCaseResolver(CaseResolverDeps{
		Store:         store,
		Audit:         audit,
		Notifications: notifications,
		Stats:         query,
	}, testValidator(), testLogger())

	return &testEngine{
		db:            db,
		store:         store,
		audit:         audit,
		query:         query,
		resolver:      resolver,
		notifications: notifications,
	}
}

func (e *testEngine) createUser(t *testing.T, username string) models.User {
	t.Helper()
	user := models.User{Username: username}
	require.NoError(t, e.db.Create(&user).Error)
	return user
}

func (e *testEngine) createPost(t *testing.T, owner uint) models.Post {
	t.Helper()
	post := models.Post{UserID: owner, Body: "limited offer, click here"}
	require.NoError(t, e.db.Create(&post).Error)
	return post
}

func (e *testEngine) user(t *testing.T, id uint) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.First(&user, id).Error)
	return user
}

func (e *testEngine) auditEntries(t *testing.T, caseID uint) []models.AuditLogEntry {
	t.Helper()
	var entries []models.AuditLogEntry
	require.NoError(t, e.db.
		Where("target_type = ? AND target_id = ?", AuditTargetCase, fmt.Sprintf("%d", caseID)).
		Order("id ASC").
		Find(&entries).Error)
	return entries
}

func (e *testEngine) submitReport(t *testing.T, reporter uint, targetType string, targetID uint, reason string) dto.CaseResponse {
	t.Helper()
	result, err := e.resolver.Submit(context.Background(), dto.SubmitCaseRequest{
		Kind:       string(models.CaseKindReport),
		Target:     &dto.CaseTargetRequest{Type: targetType, ID: targetID},
		Reason:     reason,
		ReporterID: &reporter,
	})
	require.NoError(t, err)
	return result
}

func admin(id uint) Actor {
	return Actor{ID: id, Role: "admin", IP: "10.0.0.1"}
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, target), "expected %v, got %v", target, err)
}

func isValidatorError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}
