package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sha256 "github.com/minio/sha256-simd"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
)

// AuditEntry captures the details required to append an audit record.
type AuditEntry struct {
	Actor      Actor
	Action     string
	TargetType string
	TargetID   string
	Detail     map[string]interface{}
}

// AuditAppender appends entries through a repository bound to the caller's transaction.
type AuditAppender interface {
	Append(ctx context.Context, repo repository.AuditLogRepository, entry AuditEntry) (models.AuditLogEntry, error)
}

// AuditService exposes the append-only audit log.
type AuditService interface {
	AuditAppender
	List(ctx context.Context, req dto.AuditListRequest) (dto.AuditListResponse, error)
	Verify(ctx context.Context, targetType, targetID string) (dto.AuditVerifyResponse, error)
}

type auditService struct {
	repo   repository.AuditLogRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewAuditService constructs the audit log service.
func NewAuditService(repo repository.AuditLogRepository, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_service").Logger(),
		now:    time.Now,
	}
}

func (s *auditService) Append(ctx context.Context, repo repository.AuditLogRepository, entry AuditEntry) (models.AuditLogEntry, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return models.AuditLogEntry{}, validationError("audit action is required")
	}
	if strings.TrimSpace(entry.TargetType) == "" || strings.TrimSpace(entry.TargetID) == "" {
		return models.AuditLogEntry{}, validationError("audit target is required")
	}
	if repo == nil {
		repo = s.repo
	}

	prevHash := ""
	latest, err := repo.Latest(ctx, entry.TargetType, entry.TargetID)
	switch {
	case err == nil:
		prevHash = latest.Hash
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return models.AuditLogEntry{}, err
	}

	record := models.AuditLogEntry{
		EventID:      uuid.NewString(),
		ActorAdminID: entry.Actor.ID,
		ActorRole:    normalizeRole(entry.Actor.Role),
		Action:       strings.ToLower(strings.TrimSpace(entry.Action)),
		TargetType:   strings.ToLower(strings.TrimSpace(entry.TargetType)),
		TargetID:     strings.TrimSpace(entry.TargetID),
		Detail:       sanitizeMetadata(entry.Detail),
		IP:           strings.TrimSpace(entry.Actor.IP),
		PrevHash:     prevHash,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	hash, err := auditHash(record)
	if err != nil {
		return models.AuditLogEntry{}, err
	}
	record.Hash = hash

	if err := repo.Create(ctx, &record); err != nil {
		s.logger.Error().Err(err).Str("action", record.Action).Msg("failed to persist audit entry")
		return models.AuditLogEntry{}, err
	}

	return record, nil
}

func (s *auditService) List(ctx context.Context, req dto.AuditListRequest) (dto.AuditListResponse, error) {
	filter := repository.AuditLogFilter{
		Page:       normalizePage(req.Page),
		PageSize:   clampPageSize(req.PageSize),
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		TargetType: strings.ToLower(strings.TrimSpace(req.TargetType)),
		TargetID:   strings.TrimSpace(req.TargetID),
		From:       req.From,
		To:         req.To,
	}
	if req.ActorAdminID > 0 {
		filter.ActorAdminID = &req.ActorAdminID
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return dto.AuditListResponse{}, validationError("from must not be after to")
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditListResponse{}, err
	}

	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewAuditEntryResponse(entry))
	}

	return dto.AuditListResponse{
		Items:      items,
		Pagination: paginationMeta(filter.Page, filter.PageSize, total),
	}, nil
}

func (s *auditService) Verify(ctx context.Context, targetType, targetID string) (dto.AuditVerifyResponse, error) {
	targetType = strings.ToLower(strings.TrimSpace(targetType))
	targetID = strings.TrimSpace(targetID)
	if targetType == "" || targetID == "" {
		return dto.AuditVerifyResponse{}, validationError("target_type and target_id are required")
	}

	entries, err := s.repo.Chain(ctx, targetType, targetID)
	if err != nil {
		return dto.AuditVerifyResponse{}, err
	}

	response := dto.AuditVerifyResponse{
		TargetType: targetType,
		TargetID:   targetID,
		Entries:    len(entries),
		Valid:      true,
	}

	if brokenAt, ok := verifyAuditChain(entries); !ok {
		response.Valid = false
		response.BrokenAt = &brokenAt
		s.logger.Warn().
			Str("target_type", targetType).
			Str("target_id", targetID).
			Uint("entry_id", brokenAt).
			Msg("audit chain verification failed")
	}

	return response, nil
}

// verifyAuditChain returns the id of the first entry whose links do not match.
func verifyAuditChain(entries []models.AuditLogEntry) (uint, bool) {
	prev := ""
	for _, entry := range entries {
		if entry.PrevHash != prev {
			return entry.ID, false
		}
		expected, err := auditHash(entry)
		if err != nil || expected != entry.Hash {
			return entry.ID, false
		}
		prev = entry.Hash
	}
	return 0, true
}

func auditHash(entry models.AuditLogEntry) (string, error) {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return "", err
	}

	fields := []string{
		entry.PrevHash,
		entry.EventID,
		strconv.FormatUint(uint64(entry.ActorAdminID), 10),
		entry.ActorRole,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		string(detail),
		entry.IP,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "\n")))
	return hex.EncodeToString(sum[:]), nil
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") {
			if email, ok := value.(string); ok {
				sanitized[key] = maskEmailAddress(email)
			} else {
				sanitized[key] = "***"
			}
			continue
		}
		if strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func maskEmailAddress(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***"
	}
	local := parts[0]
	if len(local) <= 2 {
		local = local[:1] + "***"
	} else {
		local = local[:1] + "***" + local[len(local)-1:]
	}
	return local + "@" + parts[1]
}
