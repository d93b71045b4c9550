package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents a logged metered request, kept for velocity analysis.
// Append-only; pruning is an administrative concern.
type RequestLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time  `gorm:"index" json:"timestamp"`
	IdentityID     *uuid.UUID `gorm:"type:uuid;index" json:"identity_id,omitempty"`
	Method         string     `json:"method"`
	Path           string     `gorm:"index" json:"path"`
	StatusCode     int        `gorm:"index" json:"status_code"`
	ResponseTimeMs int        `json:"response_time_ms"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
}

func (RequestLog) TableName() string {
	return "request_log"
}
