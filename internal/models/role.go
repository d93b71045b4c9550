package models

// Built-in role names seeded at startup.
const (
	RoleBanned = "banned"
	RoleGuest  = "guest"
	RoleAdmin  = "admin"
)

// UnlimitedQuota disables a limit when used as DailyLimit or VelocityLimit.
const UnlimitedQuota = -1

type Role struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"uniqueIndex;not null" json:"name"`
	DailyLimit    int64  `gorm:"not null" json:"daily_limit"`
	VelocityLimit int64  `gorm:"not null" json:"velocity_limit"`
	Description   string `json:"description"`
}

func (Role) TableName() string {
	return "roles"
}
