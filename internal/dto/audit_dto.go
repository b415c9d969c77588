package dto

import (
	"time"

	"github.com/noah-isme/modengine-api/internal/models"
)

// AuditListRequest defines filters for audit log listing.
type AuditListRequest struct {
	Page         int
	PageSize     int
	ActorAdminID uint
	Action       string
	TargetType   string
	TargetID     string
	From         *time.Time
	To           *time.Time
}

// AuditEntryResponse serializes an audit log entry.
type AuditEntryResponse struct {
	ID           uint                   `json:"id"`
	EventID      string                 `json:"event_id"`
	ActorAdminID uint                   `json:"actor_admin_id"`
	ActorRole    string                 `json:"actor_role"`
	Action       string                 `json:"action"`
	TargetType   string                 `json:"target_type"`
	TargetID     string                 `json:"target_id"`
	Detail       map[string]interface{} `json:"detail"`
	IP           string                 `json:"ip"`
	Hash         string                 `json:"hash"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AuditListResponse wraps a paginated audit listing.
type AuditListResponse struct {
	Items      []AuditEntryResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// AuditVerifyResponse reports the integrity of one target's audit chain.
type AuditVerifyResponse struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Entries    int    `json:"entries"`
	Valid      bool   `json:"valid"`
	BrokenAt   *uint  `json:"broken_at,omitempty"`
}

// NewAuditEntryResponse converts an audit model into a DTO.
func NewAuditEntryResponse(entry models.AuditLogEntry) AuditEntryResponse {
	detail := map[string]interface{}{}
	for key, value := range entry.Detail {
		detail[key] = value
	}
	return AuditEntryResponse{
		ID:           entry.ID,
		EventID:      entry.EventID,
		ActorAdminID: entry.ActorAdminID,
		ActorRole:    entry.ActorRole,
		Action:       entry.Action,
		TargetType:   entry.TargetType,
		TargetID:     entry.TargetID,
		Detail:       detail,
		IP:           entry.IP,
		Hash:         entry.Hash,
		CreatedAt:    entry.CreatedAt,
	}
}
