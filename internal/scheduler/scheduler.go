// Package scheduler drives recurring digest deliveries. Every active
// subscription gets its own cron job; jobs build a digest and hand it to
// the notification queue.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"infopalbot/internal/models"
	"infopalbot/internal/queue"
	"infopalbot/internal/repository"
)

// jobTimeout bounds a single digest build, upstream calls included.
const jobTimeout = 2 * time.Minute

// Clients bundles the upstream API clients a digest build may need.
type Clients struct {
	Weather WeatherSource
	News    NewsSource
	Events  EventsSource
}

type Scheduler struct {
	cron    *cron.Cron
	repo    *repository.Repository
	clients Clients
	queue   *queue.Queue

	mu      sync.Mutex
	entries map[string]cron.EntryID // subscription ID -> cron entry
}

func New(repo *repository.Repository, clients Clients, q *queue.Queue) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		repo:    repo,
		clients: clients,
		queue:   q,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers jobs for every active subscription and starts the cron
// loop. Individual registration failures are logged and skipped so one
// bad row cannot keep the rest of the schedule down.
func (s *Scheduler) Start(ctx context.Context) error {
	subs, err := s.repo.GetAllActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load active subscriptions: %w", err)
	}
	registered := 0
	for _, sub := range subs {
		if err := s.Register(sub); err != nil {
			logrus.WithFields(logrus.Fields{"subscription_id": sub.ID, "error": err}).Error("Failed to register subscription job")
			continue
		}
		registered++
	}
	s.cron.Start()
	logrus.WithFields(logrus.Fields{"jobs": registered, "total": len(subs)}).Info("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logrus.Info("Scheduler stopped")
}

// Register adds a cron job for a subscription. Re-registering replaces
// the existing job.
func (s *Scheduler) Register(sub models.Subscription) error {
	spec, err := specFor(&sub)
	if err != nil {
		return err
	}
	subID := sub.ID
	entryID, err := s.cron.AddFunc(spec, func() {
		s.runSubscription(subID)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	if old, ok := s.entries[subID]; ok {
		s.cron.Remove(old)
	}
	s.entries[subID] = entryID
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"subscription_id": subID, "spec": spec}).Info("Subscription job registered")
	return nil
}

// Unregister removes the job for a subscription, if any.
func (s *Scheduler) Unregister(subID string) {
	s.mu.Lock()
	entryID, ok := s.entries[subID]
	if ok {
		delete(s.entries, subID)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
		logrus.WithField("subscription_id", subID).Info("Subscription job removed")
	}
}

// Jobs reports the number of registered subscription jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) runSubscription(subID string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sub, err := s.repo.GetSubscription(ctx, subID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"subscription_id": subID, "error": err}).Error("Job could not load subscription")
		return
	}
	if sub == nil || sub.Status != models.StatusActive {
		// Deactivated after the job fired; drop the stale job.
		s.Unregister(subID)
		return
	}

	user, err := s.repo.GetUserByID(ctx, sub.UserID)
	if err != nil || user == nil {
		logrus.WithFields(logrus.Fields{"subscription_id": subID, "user_id": sub.UserID, "error": err}).Error("Job could not resolve user")
		return
	}

	text, err := s.buildDigest(ctx, sub)
	if err != nil {
		logrus.WithFields(logrus.Fields{"subscription_id": subID, "info_type": sub.InfoType, "error": err}).Error("Failed to build digest")
		return
	}

	s.queue.Enqueue(queue.Notification{
		ChatID:         user.TelegramID,
		Text:           text,
		DisablePreview: true,
		SubscriptionID: subID,
	})
}

// specFor translates a subscription schedule into a cron spec: interval
// subscriptions become @every durations, cron subscriptions pass their
// five-field expression through.
func specFor(sub *models.Subscription) (string, error) {
	switch {
	case sub.FrequencyHours != nil:
		if *sub.FrequencyHours < 1 {
			return "", fmt.Errorf("invalid frequency %d", *sub.FrequencyHours)
		}
		return fmt.Sprintf("@every %dh", *sub.FrequencyHours), nil
	case sub.CronExpr != nil:
		return *sub.CronExpr, nil
	default:
		return "", fmt.Errorf("subscription %s has no schedule", sub.ID)
	}
}
