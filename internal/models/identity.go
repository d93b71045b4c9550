package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity is one client installation. ClientToken is the primary lookup key;
// DeviceSignature is the stored fingerprint, which is authoritative once the
// row exists (the wire value is never trusted to override it).
type Identity struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ClientToken     string    `gorm:"uniqueIndex;not null" json:"client_token"`
	DeviceSignature string    `gorm:"index;not null" json:"device_signature"`
	RoleID          uint      `gorm:"index;not null" json:"role_id"`
	Role            *Role     `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	BanReason       *string   `json:"ban_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (Identity) TableName() string {
	return "identities"
}
