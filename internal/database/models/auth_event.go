package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthEvent is an append-only record of authorization denials.
type AuthEvent struct {
	Base
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Permission     string     `gorm:"not null" json:"permission"`
	Outcome        string     `gorm:"not null" json:"outcome"`
	OccurredAt     time.Time  `gorm:"not null;index" json:"occurred_at"`
}

func (AuthEvent) TableName() string {
	return "auth_events"
}
