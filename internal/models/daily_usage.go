package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageDateLayout is the day bucket format. Days roll over at UTC midnight;
// absence of a row for today means zero usage.
const UsageDateLayout = "2006-01-02"

// DailyUsage is one identity's metered consumption for one day. Rows are
// created lazily on the first successful metered call of a day and the count
// only ever moves up within that day.
type DailyUsage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IdentityID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_usage_identity_date;not null" json:"identity_id"`
	UsageDate  string    `gorm:"type:varchar(10);uniqueIndex:idx_usage_identity_date;not null" json:"usage_date"`
	UsageCount int64     `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func (DailyUsage) TableName() string {
	return "daily_usage"
}

// UsageDay buckets t into its UTC day.
func UsageDay(t time.Time) string {
	return t.UTC().Format(UsageDateLayout)
}
