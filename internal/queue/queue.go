package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Notification is one outbound Telegram message.
type Notification struct {
	ChatID         int64
	Text           string
	DisablePreview bool
	SubscriptionID string
}

// Sender delivers a rendered notification. Implemented by the Telegram
// bot wrapper.
type Sender interface {
	SendHTML(chatID int64, text string, disablePreview bool) error
}

// dedupWindow suppresses identical digests to the same chat. Covers
// overlapping scheduler runs producing the same content back to back.
const dedupWindow = 5 * time.Minute

// Queue buffers outbound notifications and delivers them through a
// fixed pool of workers.
type Queue struct {
	tasks    chan Notification
	recent   sync.Map // dedup key -> time.Time
	wg       sync.WaitGroup
	stopOnce sync.Once

	now func() time.Time // swapped in tests
}

func New(capacity int) *Queue {
	return &Queue{
		tasks: make(chan Notification, capacity),
		now:   time.Now,
	}
}

// Enqueue adds a notification unless an identical one was queued within
// the dedup window. Returns false when dropped.
func (q *Queue) Enqueue(n Notification) bool {
	key := dedupKey(n)
	now := q.now()
	q.pruneRecent(now)
	if v, ok := q.recent.Load(key); ok {
		if now.Sub(v.(time.Time)) < dedupWindow {
			logrus.WithFields(logrus.Fields{"chat_id": n.ChatID, "subscription_id": n.SubscriptionID}).Info("Duplicate notification dropped")
			return false
		}
	}
	q.recent.Store(key, now)
	q.tasks <- n
	return true
}

// pruneRecent drops dedup entries past the window so the map does not
// grow with every distinct digest ever sent.
func (q *Queue) pruneRecent(now time.Time) {
	q.recent.Range(func(key, v any) bool {
		if now.Sub(v.(time.Time)) >= dedupWindow {
			q.recent.Delete(key)
		}
		return true
	})
}

// Start launches the worker pool. onSent runs after each successful
// delivery (nil is allowed).
func (q *Queue) Start(workers int, sender Sender, onSent func(Notification)) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(sender, onSent)
	}
	logrus.WithField("workers", workers).Info("Notification queue started")
}

// Stop closes the queue and waits for in-flight deliveries.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}

// Len reports the number of queued notifications.
func (q *Queue) Len() int {
	return len(q.tasks)
}

func (q *Queue) worker(sender Sender, onSent func(Notification)) {
	defer q.wg.Done()
	for n := range q.tasks {
		start := time.Now()
		err := sender.SendHTML(n.ChatID, n.Text, n.DisablePreview)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"chat_id":         n.ChatID,
				"subscription_id": n.SubscriptionID,
				"error":           err,
			}).Error("Failed to deliver notification")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"chat_id":     n.ChatID,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Notification delivered")
		if onSent != nil {
			onSent(n)
		}
	}
}

func dedupKey(n Notification) string {
	sum := sha256.Sum256([]byte(n.Text))
	return fmt.Sprintf("%d:%s", n.ChatID, hex.EncodeToString(sum[:8]))
}
