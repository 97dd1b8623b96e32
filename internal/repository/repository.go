package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"infopalbot/internal/models"
)

// MaxActiveSubscriptions is the per-user cap enforced by /subscribe.
const MaxActiveSubscriptions = 3

var ErrSubscriptionLimit = errors.New("subscription limit reached")

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// User operations

// EnsureUser returns the user for a Telegram ID, creating one if absent.
func (r *Repository) EnsureUser(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := r.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user = &models.User{TelegramID: telegramID}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		logrus.WithFields(logrus.Fields{"telegram_id": telegramID, "error": err}).Error("Failed to create user")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "telegram_id": telegramID}).Info("User created")
	return user, nil
}

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logrus.WithFields(logrus.Fields{"telegram_id": telegramID, "error": err}).Error("Failed to get user")
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logrus.WithFields(logrus.Fields{"user_id": id, "error": err}).Error("Failed to get user by ID")
		return nil, err
	}
	return &user, nil
}

// Subscription operations

// CreateSubscription saves a new active subscription, enforcing the
// per-user limit.
func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	active, err := r.GetActiveSubscriptionsByUser(ctx, sub.UserID)
	if err != nil {
		return err
	}
	if len(active) >= MaxActiveSubscriptions {
		return ErrSubscriptionLimit
	}
	sub.Status = models.StatusActive
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		logrus.WithFields(logrus.Fields{"user_id": sub.UserID, "error": err}).Error("Failed to create subscription")
		return err
	}
	logrus.WithFields(logrus.Fields{"subscription_id": sub.ID, "info_type": sub.InfoType}).Info("Subscription created")
	return nil
}

func (r *Repository) GetActiveSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.StatusActive).
		Order("created_at").
		Find(&subs).Error
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to get subscriptions")
		return nil, err
	}
	return subs, nil
}

func (r *Repository) GetActiveSubscriptionsByInfoType(ctx context.Context, infoType string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("info_type = ? AND status = ?", infoType, models.StatusActive).
		Find(&subs).Error
	if err != nil {
		logrus.WithFields(logrus.Fields{"info_type": infoType, "error": err}).Error("Failed to get subscriptions by type")
		return nil, err
	}
	return subs, nil
}

// GetAllActiveSubscriptions is used at startup to re-register scheduler jobs.
func (r *Repository) GetAllActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Find(&subs).Error
	if err != nil {
		logrus.WithField("error", err).Error("Failed to load active subscriptions")
		return nil, err
	}
	return subs, nil
}

func (r *Repository) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logrus.WithFields(logrus.Fields{"subscription_id": id, "error": err}).Error("Failed to get subscription")
		return nil, err
	}
	return &sub, nil
}

// FindDuplicateSubscription looks for an active subscription with the same
// info type, details and category. Nil details/category must match nil.
func (r *Repository) FindDuplicateSubscription(ctx context.Context, userID, infoType string, details, category *string) (*models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND info_type = ? AND status = ?", userID, infoType, models.StatusActive)
	if details != nil {
		query = query.Where("details = ?", *details)
	} else {
		query = query.Where("details IS NULL")
	}
	if category != nil {
		query = query.Where("category = ?", *category)
	} else {
		query = query.Where("category IS NULL")
	}

	var sub models.Subscription
	if err := query.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to check for duplicate subscription")
		return nil, err
	}
	return &sub, nil
}

// DeactivateSubscription is a soft delete: the row is kept for history,
// only the status flips.
func (r *Repository) DeactivateSubscription(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"status":     models.StatusInactive,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		logrus.WithFields(logrus.Fields{"subscription_id": id, "error": res.Error}).Error("Failed to deactivate subscription")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	logrus.WithField("subscription_id", id).Info("Subscription deactivated")
	return true, nil
}

// MarkSubscriptionSent records a successful delivery.
func (r *Repository) MarkSubscriptionSent(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("last_sent_at", at).Error
}

// Action log operations

// maxDetailsLen is the details column size in characters.
const maxDetailsLen = 250

// truncateDetails cuts the details string to the column size, counting
// runes so a multi-byte character is never split into invalid UTF-8.
func truncateDetails(details string) string {
	runes := []rune(details)
	if len(runes) > maxDetailsLen {
		return string(runes[:maxDetailsLen])
	}
	return details
}

// LogAction writes an audit record. Errors are returned but callers are
// expected to log and continue: auditing never aborts a command.
func (r *Repository) LogAction(ctx context.Context, userID *string, command string, details string) error {
	entry := &models.ActionLog{
		UserID:  userID,
		Command: command,
	}
	if details != "" {
		details = truncateDetails(details)
		entry.Details = &details
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		logrus.WithFields(logrus.Fields{"command": command, "error": err}).Error("Failed to write action log")
		return err
	}
	return nil
}

// LogUserAction resolves the internal user ID from a Telegram ID before
// writing the audit record. Unknown users are logged with a nil user ID.
func (r *Repository) LogUserAction(ctx context.Context, telegramID int64, command, details string) {
	var userID *string
	user, err := r.GetUserByTelegramID(ctx, telegramID)
	if err == nil && user != nil {
		userID = &user.ID
	}
	if err := r.LogAction(ctx, userID, command, details); err != nil {
		logrus.WithFields(logrus.Fields{"telegram_id": telegramID, "command": command}).Warn("Action not logged")
	}
}
