package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
)

// Notification types emitted for resolved cases.
const (
	NotificationTypeWarning              = "moderation.warning"
	NotificationTypeContentRemoved       = "moderation.content_removed"
	NotificationTypeAccountSuspended     = "moderation.account_suspended"
	NotificationTypeReportDismissed      = "moderation.report_dismissed"
	NotificationTypeAppealApproved       = "moderation.appeal_approved"
	NotificationTypeAppealRejected       = "moderation.appeal_rejected"
	NotificationTypeVerificationApproved = "moderation.verification_approved"
	NotificationTypeVerificationRejected = "moderation.verification_rejected"
)

// EnforcementOutcome describes what a resolution did to the platform.
type EnforcementOutcome struct {
	// Effect names the mutation, empty when the resolution touches nothing.
	Effect string
	// Changed is false when the sanction was already in place.
	Changed          bool
	NotificationType string
	Message          string
}

// Enforcer applies the side effects of a case resolution.
type Enforcer interface {
	Apply(ctx context.Context, store repository.ModerationStore, c models.ModerationCase, resolution models.Resolution) (EnforcementOutcome, error)
}

type enforcer struct {
	targets *TargetRegistry
	now     func() time.Time
}

// NewEnforcer builds an enforcer that resolves targets through the registry.
func NewEnforcer(targets *TargetRegistry) Enforcer {
	if targets == nil {
		targets = NewTargetRegistry()
	}
	return &enforcer{targets: targets, now: time.Now}
}

func (e *enforcer) Apply(ctx context.Context, store repository.ModerationStore, c models.ModerationCase, resolution models.Resolution) (EnforcementOutcome, error) {
	if _, ok := models.TerminalStatusFor(c.Kind, resolution); !ok {
		return EnforcementOutcome{}, ErrInvalidResolution
	}

	switch c.Kind {
	case models.CaseKindReport:
		return e.applyReport(ctx, store, c, resolution)
	case models.CaseKindAppeal:
		return e.applyAppeal(ctx, store, c, resolution)
	case models.CaseKindVerification:
		return e.applyVerification(ctx, store, c, resolution)
	}
	return EnforcementOutcome{}, ErrInvalidResolution
}

func (e *enforcer) applyReport(ctx context.Context, store repository.ModerationStore, c models.ModerationCase, resolution models.Resolution) (EnforcementOutcome, error) {
	switch resolution {
	case models.ResolutionWarn:
		return EnforcementOutcome{
			NotificationType: NotificationTypeWarning,
			Message:          fmt.Sprintf("You received a warning for %s.", humanReason(c.Reason)),
		}, nil
	case models.ResolutionRemove:
		if !c.HasTarget() {
			return EnforcementOutcome{}, fmt.Errorf("%w: report has no target to remove", ErrInvalidResolution)
		}
		removable, ok := e.targets.Removable(*c.TargetType)
		if !ok {
			return EnforcementOutcome{}, fmt.Errorf("%w: %s cannot be removed", ErrInvalidResolution, *c.TargetType)
		}
		changed, err := removable.Remove(ctx, store, *c.TargetID)
		if err != nil {
			return EnforcementOutcome{}, err
		}
		return EnforcementOutcome{
			Effect:           "content_removed",
			Changed:          changed,
			NotificationType: NotificationTypeContentRemoved,
			Message:          fmt.Sprintf("Your %s was removed for %s.", *c.TargetType, humanReason(c.Reason)),
		}, nil
	case models.ResolutionSuspend:
		changed, err := store.Accounts().Suspend(ctx, c.SubjectUserID, c.Reason, e.now().UTC())
		if err != nil {
			return EnforcementOutcome{}, accountError(err, c.SubjectUserID)
		}
		return EnforcementOutcome{
			Effect:           "account_suspended",
			Changed:          changed,
			NotificationType: NotificationTypeAccountSuspended,
			Message:          fmt.Sprintf("Your account was suspended for %s.", humanReason(c.Reason)),
		}, nil
	default:
		return EnforcementOutcome{
			NotificationType: NotificationTypeReportDismissed,
			Message:          "A report about your account was reviewed and dismissed.",
		}, nil
	}
}

func (e *enforcer) applyAppeal(ctx context.Context, store repository.ModerationStore, c models.ModerationCase, resolution models.Resolution) (EnforcementOutcome, error) {
	if resolution != models.ResolutionApprove {
		return EnforcementOutcome{
			NotificationType: NotificationTypeAppealRejected,
			Message:          "Your appeal was reviewed and rejected.",
		}, nil
	}

	if c.Reason == models.AppealTypeContentRemoval && c.HasTarget() {
		if removable, ok := e.targets.Removable(*c.TargetType); ok {
			changed, err := removable.Restore(ctx, store, *c.TargetID)
			if err != nil {
				return EnforcementOutcome{}, err
			}
			return EnforcementOutcome{
				Effect:           "content_restored",
				Changed:          changed,
				NotificationType: NotificationTypeAppealApproved,
				Message:          fmt.Sprintf("Your appeal was approved and your %s was restored.", *c.TargetType),
			}, nil
		}
	}

	changed, err := store.Accounts().Unsuspend(ctx, c.SubjectUserID)
	if err != nil {
		return EnforcementOutcome{}, accountError(err, c.SubjectUserID)
	}
	return EnforcementOutcome{
		Effect:           "account_unsuspended",
		Changed:          changed,
		NotificationType: NotificationTypeAppealApproved,
		Message:          "Your appeal was approved and your account was reinstated.",
	}, nil
}

func (e *enforcer) applyVerification(ctx context.Context, store repository.ModerationStore, c models.ModerationCase, resolution models.Resolution) (EnforcementOutcome, error) {
	if resolution != models.ResolutionApprove {
		return EnforcementOutcome{
			NotificationType: NotificationTypeVerificationRejected,
			Message:          "Your verification request was not approved.",
		}, nil
	}

	changed, err := store.Accounts().SetVerified(ctx, c.SubjectUserID, true, e.now().UTC())
	if err != nil {
		return EnforcementOutcome{}, accountError(err, c.SubjectUserID)
	}
	return EnforcementOutcome{
		Effect:           "account_verified",
		Changed:          changed,
		NotificationType: NotificationTypeVerificationApproved,
		Message:          "Your account is now verified.",
	}, nil
}

func accountError(err error, userID uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: user %d", ErrTargetNotFound, userID)
	}
	return err
}

func humanReason(reason string) string {
	if reason == "" {
		return "a policy violation"
	}
	out := []rune(reason)
	for i, r := range out {
		if r == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}
