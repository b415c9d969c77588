package models

import (
	"fmt"
	"time"
)

// CaseKind distinguishes the three flavours of moderation work.
type CaseKind string

const (
	// CaseKindReport is a user report against content or an account.
	CaseKindReport CaseKind = "report"
	// CaseKindAppeal is a request to reverse an earlier sanction.
	CaseKindAppeal CaseKind = "appeal"
	// CaseKindVerification is a request for the verified badge.
	CaseKindVerification CaseKind = "verification_request"
)

// CaseStatus is the lifecycle state of a moderation case.
type CaseStatus string

const (
	CaseStatusPending     CaseStatus = "pending"
	CaseStatusReviewing   CaseStatus = "reviewing"
	CaseStatusUnderReview CaseStatus = "under_review"
	CaseStatusResolved    CaseStatus = "resolved"
	CaseStatusDismissed   CaseStatus = "dismissed"
	CaseStatusApproved    CaseStatus = "approved"
	CaseStatusRejected    CaseStatus = "rejected"
)

// Resolution is the action taken when a case reaches a terminal state.
type Resolution string

const (
	ResolutionWarn    Resolution = "warn"
	ResolutionRemove  Resolution = "remove"
	ResolutionSuspend Resolution = "suspend"
	ResolutionDismiss Resolution = "dismiss"
	ResolutionApprove Resolution = "approve"
	ResolutionReject  Resolution = "reject"
)

// Target types accepted in a case target reference.
const (
	TargetTypePost    = "post"
	TargetTypeComment = "comment"
	TargetTypeGroup   = "group"
	TargetTypeEvent   = "event"
	TargetTypeUser    = "user"
)

// Report reasons form a closed set.
var ReportReasons = []string{
	"spam",
	"harassment",
	"hate_speech",
	"violence",
	"nudity",
	"false_information",
	"copyright",
	"impersonation",
	"self_harm",
	"illegal",
	"other",
}

// Appeal types accepted as the reason of an appeal case.
const (
	AppealTypeSuspension     = "suspension"
	AppealTypeContentRemoval = "content_removal"
	AppealTypeOther          = "other"
)

// AppealTypes lists the accepted appeal reasons.
var AppealTypes = []string{AppealTypeSuspension, AppealTypeContentRemoval, AppealTypeOther}

// ModerationCase unifies reports, appeals and verification requests.
type ModerationCase struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Kind          CaseKind    `gorm:"size:32;not null;index" json:"kind"`
	SubjectUserID uint        `gorm:"not null;index" json:"subject_user_id"`
	ReporterID    *uint       `gorm:"index" json:"reporter_id,omitempty"`
	TargetType    *string     `gorm:"size:32;index:idx_case_target" json:"target_type,omitempty"`
	TargetID      *uint       `gorm:"index:idx_case_target" json:"target_id,omitempty"`
	Reason        string      `gorm:"size:64;not null;index" json:"reason"`
	Detail        string      `gorm:"type:text" json:"detail"`
	Status        CaseStatus  `gorm:"size:32;not null;index" json:"status"`
	Resolution    *Resolution `gorm:"size:32" json:"resolution,omitempty"`
	ReviewerID    *uint       `gorm:"index" json:"reviewer_id,omitempty"`
	Notes         string      `gorm:"type:text" json:"notes"`
	OpenKey       *string     `gorm:"size:191;uniqueIndex" json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ReviewedAt    *time.Time  `json:"reviewed_at,omitempty"`
}

// TableName pins the table name for the case record.
func (ModerationCase) TableName() string {
	return "moderation_cases"
}

// HasTarget reports whether the case references a concrete entity.
func (c ModerationCase) HasTarget() bool {
	return c.TargetType != nil && c.TargetID != nil && *c.TargetType != ""
}

// IsTerminal reports whether the case can no longer transition.
func (c ModerationCase) IsTerminal() bool {
	return c.Status.IsTerminal()
}

// AuditTargetID returns the case id in the form stored on audit entries.
func (c ModerationCase) AuditTargetID() string {
	return fmt.Sprintf("%d", c.ID)
}

// IsTerminal reports whether the status ends the case lifecycle.
func (s CaseStatus) IsTerminal() bool {
	switch s {
	case CaseStatusResolved, CaseStatusDismissed, CaseStatusApproved, CaseStatusRejected:
		return true
	}
	return false
}

// IsValid reports whether the kind is one of the known case kinds.
func (k CaseKind) IsValid() bool {
	_, ok := transitionTable[k]
	return ok
}

// RequiresUniqueOpenCase reports whether at most one open case may exist per subject and target.
func (k CaseKind) RequiresUniqueOpenCase() bool {
	return k == CaseKindAppeal || k == CaseKindVerification
}

// kindTransitions holds the state graph for one case kind.
type kindTransitions struct {
	review      CaseStatus
	resolutions map[Resolution]CaseStatus
}

var transitionTable = map[CaseKind]kindTransitions{
	CaseKindReport: {
		review: CaseStatusReviewing,
		resolutions: map[Resolution]CaseStatus{
			ResolutionWarn:    CaseStatusResolved,
			ResolutionRemove:  CaseStatusResolved,
			ResolutionSuspend: CaseStatusResolved,
			ResolutionDismiss: CaseStatusDismissed,
		},
	},
	CaseKindAppeal: {
		review: CaseStatusUnderReview,
		resolutions: map[Resolution]CaseStatus{
			ResolutionApprove: CaseStatusApproved,
			ResolutionReject:  CaseStatusRejected,
		},
	},
	CaseKindVerification: {
		resolutions: map[Resolution]CaseStatus{
			ResolutionApprove: CaseStatusApproved,
			ResolutionReject:  CaseStatusRejected,
		},
	},
}

// ReviewStatus returns the intermediate review state for the kind, if it has one.
func ReviewStatus(kind CaseKind) (CaseStatus, bool) {
	t, ok := transitionTable[kind]
	if !ok || t.review == "" {
		return "", false
	}
	return t.review, true
}

// TerminalStatusFor returns the terminal state a resolution leads to for the kind.
func TerminalStatusFor(kind CaseKind, resolution Resolution) (CaseStatus, bool) {
	t, ok := transitionTable[kind]
	if !ok {
		return "", false
	}
	status, ok := t.resolutions[resolution]
	return status, ok
}

// OpenStatuses returns the non-terminal states of the kind, pending first.
func OpenStatuses(kind CaseKind) []CaseStatus {
	statuses := []CaseStatus{CaseStatusPending}
	if review, ok := ReviewStatus(kind); ok {
		statuses = append(statuses, review)
	}
	return statuses
}

// StatusesFor lists every state reachable for the kind.
func StatusesFor(kind CaseKind) []CaseStatus {
	statuses := OpenStatuses(kind)
	seen := make(map[CaseStatus]struct{})
	for _, resolution := range ResolutionsFor(kind) {
		status := transitionTable[kind].resolutions[resolution]
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		statuses = append(statuses, status)
	}
	return statuses
}

// ResolutionsFor lists the resolutions accepted for the kind in a stable order.
func ResolutionsFor(kind CaseKind) []Resolution {
	ordered := []Resolution{ResolutionWarn, ResolutionRemove, ResolutionSuspend, ResolutionDismiss, ResolutionApprove, ResolutionReject}
	t, ok := transitionTable[kind]
	if !ok {
		return nil
	}
	result := make([]Resolution, 0, len(t.resolutions))
	for _, resolution := range ordered {
		if _, ok := t.resolutions[resolution]; ok {
			result = append(result, resolution)
		}
	}
	return result
}

// OpenCaseKey builds the uniqueness key held by an open appeal or verification request.
func OpenCaseKey(kind CaseKind, targetType *string, targetID *uint, subjectUserID uint) string {
	tt := "-"
	if targetType != nil && *targetType != "" {
		tt = *targetType
	}
	tid := "-"
	if targetID != nil {
		tid = fmt.Sprintf("%d", *targetID)
	}
	return fmt.Sprintf("%s:%s:%s:%d", kind, tt, tid, subjectUserID)
}
