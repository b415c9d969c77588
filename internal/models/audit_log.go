package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLogEntry is an immutable record of an administrative decision.
// Entries for the same target form a hash chain through PrevHash.
type AuditLogEntry struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	EventID      string            `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	ActorAdminID uint              `gorm:"not null;index" json:"actor_admin_id"`
	ActorRole    string            `gorm:"size:32;not null" json:"actor_role"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	TargetType   string            `gorm:"size:64;not null;index:idx_audit_target" json:"target_type"`
	TargetID     string            `gorm:"size:64;not null;index:idx_audit_target" json:"target_id"`
	Detail       datatypes.JSONMap `gorm:"type:json" json:"detail"`
	IP           string            `gorm:"size:64" json:"ip"`
	PrevHash     string            `gorm:"size:64" json:"prev_hash"`
	Hash         string            `gorm:"size:64;not null" json:"hash"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}

// TableName pins the audit table name.
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
