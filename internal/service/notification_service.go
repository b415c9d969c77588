package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/observability"
	"github.com/noah-isme/modengine-api/internal/repository"
)

// NotificationPublisher fans a serialized notification event out to a broker.
type NotificationPublisher interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
}

// NotificationDispatcher enqueues outcome notifications for users.
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// NotificationService persists notifications and publishes them to the configured brokers.
type NotificationService interface {
	NotificationDispatcher
	List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error)
}

// NotificationConfig tunes broker publishing.
type NotificationConfig struct {
	RetryMax        uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type notificationService struct {
	repo       repository.NotificationRepository
	publishers []*guardedPublisher
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	sanitizer  *bluemonday.Policy
	config     NotificationConfig
	nodeID     string
	now        func() time.Time
}

type guardedPublisher struct {
	publisher NotificationPublisher
	breaker   *gobreaker.CircuitBreaker
}

type notificationEvent struct {
	EventID      string                   `json:"event_id"`
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, validate *validator.Validate, logger zerolog.Logger, config NotificationConfig, publishers ...NotificationPublisher) NotificationService {
	if config.InitialInterval <= 0 {
		config.InitialInterval = 100 * time.Millisecond
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 2 * time.Second
	}

	serviceLogger := logger.With().Str("component", "notification_service").Logger()

	guarded := make([]*guardedPublisher, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher == nil {
			continue
		}
		name := publisher.Name()
		guarded = append(guarded, &guardedPublisher{
			publisher: publisher,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "notifications-" + name,
				MaxRequests: 1,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
					serviceLogger.Warn().
						Str("broker", name).
						Str("from", from.String()).
						Str("to", to.String()).
						Msg("notification broker circuit changed state")
				},
			}),
		})
	}

	return &notificationService{
		repo:       repo,
		publishers: guarded,
		validator:  validate,
		logger:     serviceLogger,
		tracer:     otel.Tracer("github.com/noah-isme/modengine-api/internal/service/notification"),
		sanitizer:  bluemonday.StrictPolicy(),
		config:     config,
		nodeID:     uuid.NewString(),
		now:        time.Now,
	}
}

func (s *notificationService) Enqueue(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, validationError("notification message empty after sanitization")
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("notification.user_id", int64(payload.UserID)),
		attribute.String("notification.type", payload.Type),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.enqueue", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Message: cleanMessage,
		Payload: datatypes.JSONMap(payload.Payload),
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.NotificationResponse{}, err
	}

	observability.NotificationsEnqueued().WithLabelValues(model.Type).Inc()

	response := dto.NewNotificationResponse(model)
	if err := s.publish(spanCtx, response); err != nil {
		span.RecordError(err)
		return response, fmt.Errorf("notification %d stored but not published: %w", response.ID, err)
	}

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	if userID == 0 {
		return nil, validationError("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	if len(s.publishers) == 0 {
		return nil
	}

	event := notificationEvent{
		EventID:      uuid.NewString(),
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for _, guarded := range s.publishers {
		guarded := guarded
		p.Go(func(ctx context.Context) error {
			if err := s.publishWithRetry(ctx, guarded, payload); err != nil {
				observability.NotificationPublishFailures().WithLabelValues(guarded.publisher.Name()).Inc()
				return fmt.Errorf("%s: %w", guarded.publisher.Name(), err)
			}
			return nil
		})
	}
	return p.Wait()
}

func (s *notificationService) publishWithRetry(ctx context.Context, guarded *guardedPublisher, payload []byte) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.config.InitialInterval),
		backoff.WithMaxInterval(s.config.MaxInterval),
	), s.config.RetryMax)

	return backoff.Retry(func() error {
		_, err := guarded.breaker.Execute(func() (interface{}, error) {
			return nil, guarded.publisher.Publish(ctx, payload)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

type redisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher publishes notification events on a Redis pub/sub channel.
func NewRedisPublisher(client *redis.Client, channelBase string) NotificationPublisher {
	if client == nil || strings.TrimSpace(channelBase) == "" {
		return nil
	}
	return &redisPublisher{client: client, channel: channelBase + ":notifications"}
}

func (p *redisPublisher) Name() string { return "redis" }

func (p *redisPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.client.Publish(ctx, p.channel, payload).Err()
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher publishes notification events on a NATS subject.
func NewNATSPublisher(conn *nats.Conn, channelBase string) NotificationPublisher {
	if conn == nil || strings.TrimSpace(channelBase) == "" {
		return nil
	}
	return &natsPublisher{conn: conn, subject: strings.ReplaceAll(channelBase, ":", ".") + ".notifications"}
}

func (p *natsPublisher) Name() string { return "nats" }

func (p *natsPublisher) Publish(_ context.Context, payload []byte) error {
	return p.conn.Publish(p.subject, payload)
}
