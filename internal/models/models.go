package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Info types a subscription can deliver.
const (
	InfoTypeWeather = "weather"
	InfoTypeNews    = "news"
	InfoTypeEvents  = "events"
)

// Subscription statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type User struct {
	ID         string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TelegramID int64          `gorm:"uniqueIndex;not null" json:"telegram_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Subscriptions []Subscription `gorm:"foreignKey:UserID" json:"subscriptions,omitempty"`
	ActionLogs    []ActionLog    `gorm:"foreignKey:UserID" json:"action_logs,omitempty"`
}

// Subscription is a recurring digest order. Exactly one of FrequencyHours
// or CronExpr is set: interval subscriptions fire every N hours, cron
// subscriptions follow a five-field cron spec in UTC.
type Subscription struct {
	ID             string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string         `gorm:"type:uuid;not null;index" json:"user_id"`
	InfoType       string         `gorm:"size:32;not null;index" json:"info_type"`
	Details        *string        `gorm:"size:255" json:"details,omitempty"`
	Category       *string        `gorm:"size:64" json:"category,omitempty"`
	FrequencyHours *int           `json:"frequency_hours,omitempty"`
	CronExpr       *string        `gorm:"size:64" json:"cron_expr,omitempty"`
	Status         string         `gorm:"size:16;not null;default:'active';index" json:"status"`
	LastSentAt     *time.Time     `json:"last_sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// ActionLog records every bot command and dialog step for auditing.
// UserID is nil for actions by users not yet registered.
type ActionLog struct {
	ID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    *string   `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Command   string    `gorm:"size:64;not null;index" json:"command"`
	Details   *string   `gorm:"size:250" json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IDs are assigned client-side; the column default covers rows inserted
// outside the application.

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (a *ActionLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ScheduleDescription renders the subscription schedule for display,
// e.g. "раз в 6 ч." or "ежедневно в 09:00".
func (s *Subscription) ScheduleDescription() string {
	if s.FrequencyHours != nil {
		return scheduleEvery(*s.FrequencyHours)
	}
	if s.CronExpr != nil {
		if hh, mm, ok := ParseDailyCron(*s.CronExpr); ok {
			return scheduleDaily(hh, mm)
		}
		return *s.CronExpr
	}
	return ""
}
