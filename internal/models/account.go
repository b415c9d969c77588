package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the platform account as seen by the moderation engine. Only the
// enforcement columns are written here; the rest belongs to the account service.
type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Username         string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	IsSuspended      bool           `gorm:"not null;default:false" json:"is_suspended"`
	SuspensionReason string         `gorm:"size:64" json:"suspension_reason"`
	SuspendedAt      *time.Time     `json:"suspended_at,omitempty"`
	IsVerified       bool           `gorm:"not null;default:false" json:"is_verified"`
	VerifiedAt       *time.Time     `json:"verified_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}
