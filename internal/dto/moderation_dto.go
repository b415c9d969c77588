package dto

import (
	"time"

	"github.com/noah-isme/modengine-api/internal/models"
)

// CaseTargetRequest references the entity a case is about.
type CaseTargetRequest struct {
	Type string `json:"type" validate:"required,oneof=post comment group event user"`
	ID   uint   `json:"id" validate:"required,gt=0"`
}

// SubmitCaseRequest opens a report, appeal or verification request.
type SubmitCaseRequest struct {
	Kind          string             `json:"kind" validate:"required,oneof=report appeal verification_request"`
	SubjectUserID uint               `json:"subject_user_id" validate:"omitempty,gt=0"`
	Target        *CaseTargetRequest `json:"target" validate:"omitempty"`
	Reason        string             `json:"reason" validate:"required,min=1,max=64"`
	Detail        string             `json:"detail" validate:"omitempty,max=5000"`
	ReporterID    *uint              `json:"-"`
}

// ResolveCaseRequest carries an admin decision on a case.
type ResolveCaseRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=warn remove suspend dismiss approve reject"`
	Notes      string `json:"notes" validate:"omitempty,max=2000"`
}

// CaseListRequest defines filters for listing cases.
type CaseListRequest struct {
	Kind          string
	Status        string
	Reason        string
	SubjectUserID uint
	Page          int
	PageSize      int
	Sort          string
}

// CaseTargetResponse serializes a case target reference.
type CaseTargetResponse struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

// CaseResponse serializes a moderation case.
type CaseResponse struct {
	ID            uint                `json:"id"`
	Kind          string              `json:"kind"`
	SubjectUserID uint                `json:"subject_user_id"`
	ReporterID    *uint               `json:"reporter_id,omitempty"`
	Target        *CaseTargetResponse `json:"target"`
	Reason        string              `json:"reason"`
	Detail        string              `json:"detail"`
	Status        string              `json:"status"`
	Resolution    *string             `json:"resolution"`
	ReviewerID    *uint               `json:"reviewer_id"`
	Notes         string              `json:"notes"`
	CreatedAt     time.Time           `json:"created_at"`
	ReviewedAt    *time.Time          `json:"reviewed_at"`
}

// CaseListResponse wraps a paginated case listing.
type CaseListResponse struct {
	Items      []CaseResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// CaseStatsResponse aggregates case counts.
type CaseStatsResponse struct {
	Kind        string           `json:"kind,omitempty"`
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	ByReason    map[string]int64 `json:"by_reason"`
	GeneratedAt time.Time        `json:"generated_at"`
	CacheHit    bool             `json:"cache_hit"`
}

// NewCaseResponse converts a case model into a DTO.
func NewCaseResponse(c models.ModerationCase) CaseResponse {
	response := CaseResponse{
		ID:            c.ID,
		Kind:          string(c.Kind),
		SubjectUserID: c.SubjectUserID,
		ReporterID:    c.ReporterID,
		Reason:        c.Reason,
		Detail:        c.Detail,
		Status:        string(c.Status),
		ReviewerID:    c.ReviewerID,
		Notes:         c.Notes,
		CreatedAt:     c.CreatedAt,
		ReviewedAt:    c.ReviewedAt,
	}
	if c.HasTarget() {
		response.Target = &CaseTargetResponse{Type: *c.TargetType, ID: *c.TargetID}
	}
	if c.Resolution != nil {
		resolution := string(*c.Resolution)
		response.Resolution = &resolution
	}
	return response
}
