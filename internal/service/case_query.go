package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/observability"
	"github.com/noah-isme/modengine-api/internal/repository"
)

const statsCachePrefix = "moderation:stats:"

// CaseQueryService serves the read side of moderation cases.
type CaseQueryService interface {
	StatsInvalidator
	List(ctx context.Context, req dto.CaseListRequest) (dto.CaseListResponse, error)
	Get(ctx context.Context, id uint) (dto.CaseResponse, error)
	Stats(ctx context.Context, kind string) (dto.CaseStatsResponse, error)
}

type caseQueryService struct {
	repo     repository.CaseRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCaseQueryService constructs the case query service. A nil cache disables stats caching.
func NewCaseQueryService(repo repository.CaseRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) CaseQueryService {
	return &caseQueryService{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "case_query_service").Logger(),
		now:      time.Now,
	}
}

func (s *caseQueryService) List(ctx context.Context, req dto.CaseListRequest) (dto.CaseListResponse, error) {
	filter := repository.CaseFilter{
		Kind:     strings.ToLower(strings.TrimSpace(req.Kind)),
		Status:   strings.ToLower(strings.TrimSpace(req.Status)),
		Reason:   strings.ToLower(strings.TrimSpace(req.Reason)),
		Page:     normalizePage(req.Page),
		PageSize: clampPageSize(req.PageSize),
		Sort:     req.Sort,
	}
	if filter.Kind != "" && !models.CaseKind(filter.Kind).IsValid() {
		return dto.CaseListResponse{}, validationError("unsupported case kind %q", req.Kind)
	}
	if req.SubjectUserID > 0 {
		subject := req.SubjectUserID
		filter.SubjectUserID = &subject
	}

	cases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.CaseListResponse{}, err
	}

	items := make([]dto.CaseResponse, 0, len(cases))
	for _, c := range cases {
		items = append(items, dto.NewCaseResponse(c))
	}

	return dto.CaseListResponse{
		Items:      items,
		Pagination: paginationMeta(filter.Page, filter.PageSize, total),
	}, nil
}

func (s *caseQueryService) Get(ctx context.Context, id uint) (dto.CaseResponse, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CaseResponse{}, ErrCaseNotFound
		}
		return dto.CaseResponse{}, err
	}
	return dto.NewCaseResponse(c), nil
}

func (s *caseQueryService) Stats(ctx context.Context, kind string) (dto.CaseStatsResponse, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != "" && !models.CaseKind(kind).IsValid() {
		return dto.CaseStatsResponse{}, validationError("unsupported case kind %q", kind)
	}

	cacheKey := statsCacheKey(kind)
	tracer := otel.Tracer("github.com/noah-isme/modengine-api/internal/service/case_query")
	ctx, span := tracer.Start(ctx, "moderation.stats")
	span.SetAttributes(attribute.String("stats.cache_key", cacheKey))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var response dto.CaseStatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				span.SetAttributes(attribute.Bool("stats.cache_hit", true))
				observability.StatsCacheLookups().WithLabelValues("hit").Inc()
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
			span.RecordError(err)
		}
		observability.StatsCacheLookups().WithLabelValues("miss").Inc()
	}

	byStatus, err := s.repo.CountByStatus(ctx, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_by_status_failed")
		return dto.CaseStatsResponse{}, err
	}
	byReason, err := s.repo.CountByReason(ctx, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_by_reason_failed")
		return dto.CaseStatsResponse{}, err
	}

	response := dto.CaseStatsResponse{
		Kind:        kind,
		ByStatus:    map[string]int64{},
		ByReason:    map[string]int64{},
		GeneratedAt: s.now().UTC(),
	}
	for _, row := range byStatus {
		response.ByStatus[row.Key] = row.Count
		response.Total += row.Count
	}
	for _, row := range byReason {
		response.ByReason[row.Key] = row.Count
	}
	span.SetAttributes(attribute.Int64("stats.total", response.Total))

	if s.cache != nil && s.cacheTTL > 0 {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store stats cache")
				span.RecordError(err)
			}
		}
	}

	return response, nil
}

// InvalidateStats drops the cached stats for the kind and the combined view.
func (s *caseQueryService) InvalidateStats(ctx context.Context, kind string) {
	if s.cache == nil {
		return
	}
	keys := []string{statsCacheKey("")}
	if kind != "" {
		keys = append(keys, statsCacheKey(kind))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate stats cache")
	}
}

func statsCacheKey(kind string) string {
	if kind == "" {
		return statsCachePrefix + "all"
	}
	return statsCachePrefix + kind
}
