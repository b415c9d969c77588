package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/observability"
	"github.com/noah-isme/modengine-api/internal/repository"
)

// AuditTargetCase is the audit target type for moderation case decisions.
const AuditTargetCase = "moderation_case"

const maxNotesLength = 2000

// StatsInvalidator drops cached case statistics after a write.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context, kind string)
}

// CaseResolver drives moderation cases through their lifecycle.
type CaseResolver interface {
	Submit(ctx context.Context, req dto.SubmitCaseRequest) (dto.CaseResponse, error)
	Claim(ctx context.Context, id uint, actor Actor) (dto.CaseResponse, error)
	Resolve(ctx context.Context, id uint, actor Actor, req dto.ResolveCaseRequest) (dto.CaseResponse, error)
}

// CaseResolverDeps groups the collaborators of the resolver.
type CaseResolverDeps struct {
	Store         repository.ModerationStore
	Audit         AuditAppender
	Enforcer      Enforcer
	Targets       *TargetRegistry
	Notifications NotificationDispatcher
	Stats         StatsInvalidator
}

type caseResolver struct {
	store         repository.ModerationStore
	audit         AuditAppender
	enforcer      Enforcer
	targets       *TargetRegistry
	notifications NotificationDispatcher
	stats         StatsInvalidator
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewCaseResolver constructs the case resolver.
func NewCaseResolver(deps CaseResolverDeps, validate *validator.Validate, logger zerolog.Logger) CaseResolver {
	targets := deps.Targets
	if targets == nil {
		targets = NewTargetRegistry()
	}
	enforcer := deps.Enforcer
	if enforcer == nil {
		enforcer = NewEnforcer(targets)
	}

	return &caseResolver{
		store:         deps.Store,
		audit:         deps.Audit,
		enforcer:      enforcer,
		targets:       targets,
		notifications: deps.Notifications,
		stats:         deps.Stats,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "case_resolver").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/modengine-api/internal/service/moderation"),
		now:           time.Now,
	}
}

func (r *caseResolver) Submit(ctx context.Context, req dto.SubmitCaseRequest) (dto.CaseResponse, error) {
	if err := r.validator.Struct(req); err != nil {
		return dto.CaseResponse{}, err
	}

	kind := models.CaseKind(req.Kind)
	reason, err := normalizeCaseReason(kind, req.Reason)
	if err != nil {
		return dto.CaseResponse{}, err
	}
	if kind == models.CaseKindReport && req.Target == nil {
		return dto.CaseResponse{}, validationError("report requires a target")
	}
	if kind == models.CaseKindAppeal && reason == models.AppealTypeContentRemoval {
		if req.Target == nil || req.Target.Type == models.TargetTypeUser {
			return dto.CaseResponse{}, validationError("content removal appeal requires a content target")
		}
	}

	spanCtx, span := r.tracer.Start(ctx, "moderation.submit", trace.WithAttributes(
		attribute.String("case.kind", string(kind)),
	))
	defer span.End()

	c := models.ModerationCase{
		Kind:       kind,
		ReporterID: req.ReporterID,
		Reason:     reason,
		Detail:     r.plainText(req.Detail),
		Status:     models.CaseStatusPending,
	}
	if req.Target != nil {
		targetType := strings.ToLower(strings.TrimSpace(req.Target.Type))
		targetID := req.Target.ID
		c.TargetType = &targetType
		c.TargetID = &targetID
	}

	err = r.store.Transaction(spanCtx, func(tx repository.ModerationStore) error {
		subject, err := r.resolveSubject(spanCtx, tx, c, req)
		if err != nil {
			return err
		}
		c.SubjectUserID = subject

		if kind.RequiresUniqueOpenCase() {
			key := models.OpenCaseKey(kind, c.TargetType, c.TargetID, subject)
			open, err := tx.Cases().HasOpen(spanCtx, key)
			if err != nil {
				return err
			}
			if open {
				return ErrDuplicateOpenCase
			}
			c.OpenKey = &key
		}

		if err := tx.Cases().Create(spanCtx, &c); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateOpenCase
			}
			return err
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return dto.CaseResponse{}, err
	}

	observability.CasesSubmitted().WithLabelValues(string(kind)).Inc()
	r.invalidateStats(ctx, kind)

	r.logger.Info().
		Uint("case_id", c.ID).
		Str("kind", string(kind)).
		Str("reason", reason).
		Uint("subject_user_id", c.SubjectUserID).
		Msg("moderation case submitted")

	return dto.NewCaseResponse(c), nil
}

func (r *caseResolver) Claim(ctx context.Context, id uint, actor Actor) (dto.CaseResponse, error) {
	if id == 0 {
		return dto.CaseResponse{}, validationError("case id is required")
	}
	if actor.ID == 0 {
		return dto.CaseResponse{}, validationError("actor is required")
	}

	spanCtx, span := r.tracer.Start(ctx, "moderation.claim", trace.WithAttributes(
		attribute.Int64("case.id", int64(id)),
		attribute.Int64("actor.id", int64(actor.ID)),
	))
	defer span.End()

	var (
		claimed models.ModerationCase
		kind    models.CaseKind
	)
	err := r.store.Transaction(spanCtx, func(tx repository.ModerationStore) error {
		c, err := r.loadForUpdate(spanCtx, tx, id)
		if err != nil {
			return err
		}
		kind = c.Kind

		review, ok := models.ReviewStatus(c.Kind)
		if !ok || c.IsTerminal() {
			return ErrInvalidTransition
		}
		if c.Status == review {
			return ErrAlreadyClaimed
		}

		won, err := tx.Cases().Transition(spanCtx, c.ID, repository.CaseTransition{
			From:       []models.CaseStatus{models.CaseStatusPending},
			To:         review,
			ReviewerID: actor.ID,
		})
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyClaimed
		}

		if _, err := r.audit.Append(spanCtx, tx.Audit(), AuditEntry{
			Actor:      actor,
			Action:     auditActionPrefix(c.Kind) + "_claimed",
			TargetType: AuditTargetCase,
			TargetID:   c.AuditTargetID(),
			Detail: map[string]interface{}{
				"kind":            string(c.Kind),
				"from_status":     string(c.Status),
				"to_status":       string(review),
				"subject_user_id": c.SubjectUserID,
			},
		}); err != nil {
			return err
		}

		claimed, err = tx.Cases().GetByID(spanCtx, c.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			observability.ResolveConflicts().WithLabelValues(string(kind), "claim").Inc()
		}
		recordSpanError(span, err)
		return dto.CaseResponse{}, err
	}

	observability.CaseTransitions().WithLabelValues(string(claimed.Kind), string(claimed.Status)).Inc()
	r.invalidateStats(ctx, claimed.Kind)

	r.logger.Info().
		Uint("case_id", claimed.ID).
		Uint("actor_id", actor.ID).
		Str("status", string(claimed.Status)).
		Msg("moderation case claimed")

	return dto.NewCaseResponse(claimed), nil
}

func (r *caseResolver) Resolve(ctx context.Context, id uint, actor Actor, req dto.ResolveCaseRequest) (dto.CaseResponse, error) {
	if id == 0 {
		return dto.CaseResponse{}, validationError("case id is required")
	}
	if actor.ID == 0 {
		return dto.CaseResponse{}, validationError("actor is required")
	}
	if err := r.validator.Struct(req); err != nil {
		return dto.CaseResponse{}, err
	}

	resolution := models.Resolution(req.Resolution)
	notes := r.plainText(req.Notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return dto.CaseResponse{}, validationError("notes exceed %d characters", maxNotesLength)
	}

	spanCtx, span := r.tracer.Start(ctx, "moderation.resolve", trace.WithAttributes(
		attribute.Int64("case.id", int64(id)),
		attribute.Int64("actor.id", int64(actor.ID)),
		attribute.String("case.resolution", string(resolution)),
	))
	defer span.End()

	var (
		resolved models.ModerationCase
		outcome  EnforcementOutcome
		kind     models.CaseKind
	)
	err := r.store.Transaction(spanCtx, func(tx repository.ModerationStore) error {
		c, err := r.loadForUpdate(spanCtx, tx, id)
		if err != nil {
			return err
		}
		kind = c.Kind

		if c.IsTerminal() {
			return ErrAlreadyProcessed
		}
		next, ok := models.TerminalStatusFor(c.Kind, resolution)
		if !ok {
			return ErrInvalidResolution
		}

		reviewedAt := r.now().UTC()
		won, err := tx.Cases().Transition(spanCtx, c.ID, repository.CaseTransition{
			From:         models.OpenStatuses(c.Kind),
			To:           next,
			ReviewerID:   actor.ID,
			Resolution:   &resolution,
			Notes:        &notes,
			ReviewedAt:   &reviewedAt,
			ClearOpenKey: true,
		})
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyProcessed
		}

		outcome, err = r.enforcer.Apply(spanCtx, tx, c, resolution)
		if err != nil {
			observability.EnforcementFailures().WithLabelValues(string(resolution)).Inc()
			return err
		}

		detail := map[string]interface{}{
			"kind":            string(c.Kind),
			"from_status":     string(c.Status),
			"to_status":       string(next),
			"resolution":      string(resolution),
			"reason":          c.Reason,
			"subject_user_id": c.SubjectUserID,
			"changed":         outcome.Changed,
		}
		if outcome.Effect != "" {
			detail["effect"] = outcome.Effect
		}
		if c.HasTarget() {
			detail["case_target_type"] = *c.TargetType
			detail["case_target_id"] = *c.TargetID
		}
		if notes != "" {
			detail["notes"] = notes
		}

		if _, err := r.audit.Append(spanCtx, tx.Audit(), AuditEntry{
			Actor:      actor,
			Action:     auditActionPrefix(c.Kind) + "_" + string(next),
			TargetType: AuditTargetCase,
			TargetID:   c.AuditTargetID(),
			Detail:     detail,
		}); err != nil {
			return err
		}

		resolved, err = tx.Cases().GetByID(spanCtx, c.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			observability.ResolveConflicts().WithLabelValues(string(kind), "resolve").Inc()
		}
		recordSpanError(span, err)
		return dto.CaseResponse{}, err
	}

	observability.CaseTransitions().WithLabelValues(string(resolved.Kind), string(resolved.Status)).Inc()
	r.invalidateStats(ctx, resolved.Kind)
	r.notify(ctx, resolved, outcome)

	r.logger.Info().
		Uint("case_id", resolved.ID).
		Uint("actor_id", actor.ID).
		Str("resolution", string(resolution)).
		Str("status", string(resolved.Status)).
		Bool("changed", outcome.Changed).
		Msg("moderation case resolved")

	return dto.NewCaseResponse(resolved), nil
}

func (r *caseResolver) loadForUpdate(ctx context.Context, tx repository.ModerationStore, id uint) (models.ModerationCase, error) {
	c, err := tx.Cases().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ModerationCase{}, ErrCaseNotFound
		}
		return models.ModerationCase{}, err
	}
	return c, nil
}

// resolveSubject derives the account under review. Reports are about the
// target owner. Appeals and verification requests filed by a user are about
// that user; an explicit subject is only honoured when no user filed the case.
func (r *caseResolver) resolveSubject(ctx context.Context, tx repository.ModerationStore, c models.ModerationCase, req dto.SubmitCaseRequest) (uint, error) {
	var owner uint
	if c.HasTarget() {
		var err error
		owner, err = r.targets.Owner(ctx, tx, *c.TargetType, *c.TargetID)
		if err != nil {
			return 0, err
		}
	}

	subject := req.SubjectUserID
	if c.Kind != models.CaseKindReport && req.ReporterID != nil && *req.ReporterID != 0 {
		filer := *req.ReporterID
		if subject != 0 && subject != filer {
			return 0, validationError("%s can only be filed for your own account", c.Kind)
		}
		if c.HasTarget() && owner != filer {
			return 0, validationError("%s target is not owned by the submitting user", c.Kind)
		}
		subject = filer
	}

	if c.HasTarget() {
		if subject != 0 && subject != owner {
			return 0, validationError("subject does not own the target")
		}
		return owner, nil
	}
	if subject == 0 {
		return 0, validationError("subject_user_id is required")
	}

	if _, err := tx.Accounts().GetByID(ctx, subject); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: user %d", ErrTargetNotFound, subject)
		}
		return 0, err
	}
	return subject, nil
}

// plainText strips markup and returns the text as typed.
func (r *caseResolver) plainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(r.sanitizer.Sanitize(value)))
}

func (r *caseResolver) invalidateStats(ctx context.Context, kind models.CaseKind) {
	if r.stats == nil {
		return
	}
	r.stats.InvalidateStats(ctx, string(kind))
}

// notify is best-effort; the decision has already committed.
func (r *caseResolver) notify(ctx context.Context, c models.ModerationCase, outcome EnforcementOutcome) {
	if r.notifications == nil || outcome.NotificationType == "" || c.SubjectUserID == 0 {
		return
	}

	payload := map[string]interface{}{
		"case_id": c.ID,
		"kind":    string(c.Kind),
		"status":  string(c.Status),
	}
	if c.Resolution != nil {
		payload["resolution"] = string(*c.Resolution)
	}

	if _, err := r.notifications.Enqueue(ctx, dto.NotificationCreateRequest{
		UserID:  c.SubjectUserID,
		Type:    outcome.NotificationType,
		Message: outcome.Message,
		Payload: payload,
	}); err != nil {
		r.logger.Warn().
			Err(err).
			Uint("case_id", c.ID).
			Uint("user_id", c.SubjectUserID).
			Str("type", outcome.NotificationType).
			Msg("failed to dispatch moderation notification")
	}
}

func normalizeCaseReason(kind models.CaseKind, reason string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	if normalized == "" {
		return "", validationError("reason is required")
	}

	switch kind {
	case models.CaseKindReport:
		if !containsString(models.ReportReasons, normalized) {
			return "", validationError("unsupported report reason %q", reason)
		}
	case models.CaseKindAppeal:
		if !containsString(models.AppealTypes, normalized) {
			return "", validationError("unsupported appeal type %q", reason)
		}
	case models.CaseKindVerification:
	default:
		return "", validationError("unsupported case kind %q", kind)
	}
	return normalized, nil
}

func auditActionPrefix(kind models.CaseKind) string {
	if kind == models.CaseKindVerification {
		return "verification"
	}
	return string(kind)
}

func containsString(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
