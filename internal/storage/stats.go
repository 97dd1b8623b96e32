// internal/storage/stats.go
package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"infopalbot/internal/models"
)

// Stats is the aggregate report served by the admin API.
type Stats struct {
	Users               int64            `json:"users"`
	ActiveSubscriptions map[string]int64 `json:"active_subscriptions"`
	ActionsLast24h      int64            `json:"actions_last_24h"`
}

type subscriptionCount struct {
	InfoType string
	Count    int64
}

// CollectStats aggregates user, subscription and action counts.
func CollectStats(ctx context.Context, db *gorm.DB) (*Stats, error) {
	stats := &Stats{ActiveSubscriptions: map[string]int64{}}

	if err := db.WithContext(ctx).Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}

	var counts []subscriptionCount
	err := db.WithContext(ctx).Model(&models.Subscription{}).
		Select("info_type, count(*) as count").
		Where("status = ?", models.StatusActive).
		Group("info_type").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.ActiveSubscriptions[c.InfoType] = c.Count
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	err = db.WithContext(ctx).Model(&models.ActionLog{}).
		Where("created_at >= ?", since).
		Count(&stats.ActionsLast24h).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}
