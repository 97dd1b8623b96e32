// Package telegram runs the bot: long polling, command dispatch and
// outbound sends with rate-limit handling.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"infopalbot/internal/clients"
	"infopalbot/internal/dialog"
	"infopalbot/internal/repository"
	"infopalbot/internal/scheduler"
)

// sendMaxRetries bounds retries for a single outbound message.
const sendMaxRetries = 5

// WeatherAPI, NewsAPI and EventsAPI are the upstream calls the command
// handlers make, narrowed for fakes in tests.
type WeatherAPI interface {
	CurrentWeather(ctx context.Context, city string) (*clients.WeatherReport, error)
}

type NewsAPI interface {
	TopHeadlines(ctx context.Context, country, category string, pageSize int) ([]clients.Article, error)
}

type EventsAPI interface {
	Upcoming(ctx context.Context, location, categories string, pageSize int) ([]clients.Event, error)
}

type Bot struct {
	api     BotInterface
	updates UpdateSource

	repo    *repository.Repository
	sched   *scheduler.Scheduler
	weather WeatherAPI
	news    NewsAPI
	events  EventsAPI

	// Users asked for a city after a bare /weather; their next plain
	// message is treated as the city name.
	pendingWeather sync.Map // map[int64]bool
}

// New connects to the Telegram API and builds the bot.
func New(token string, repo *repository.Repository, sched *scheduler.Scheduler, weather WeatherAPI, news NewsAPI, events EventsAPI) (*Bot, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			ForceAttemptHTTP2:   true,
		},
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	logrus.WithField("username", api.Self.UserName).Info("Authorized on Telegram")

	return &Bot{
		api:     api,
		updates: api,
		repo:    repo,
		sched:   sched,
		weather: weather,
		news:    news,
		events:  events,
	}, nil
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.updates.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			logrus.Info("Bot update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	logrus.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID, "text": text}).Debug("Message received")

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// Plain text: dialog input first, then a pending /weather city.
	if dialog.IsActive(userID) {
		dialog.Process(userID, chatID, text, b.api)
		return
	}
	if _, ok := b.pendingWeather.LoadAndDelete(userID); ok {
		b.replyWeather(ctx, chatID, userID, text)
		return
	}
	b.sendText(chatID, "Я понимаю только команды. Список: /help")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "help":
		b.cmdHelp(ctx, chatID, userID)
	case "weather":
		b.cmdWeather(ctx, chatID, userID, args)
	case "news":
		b.cmdNews(ctx, chatID, userID, args)
	case "events":
		b.cmdEvents(ctx, chatID, userID, args)
	case "subscribe":
		b.cmdSubscribe(ctx, msg)
	case "mysubscriptions":
		b.cmdMySubscriptions(ctx, chatID, userID)
	case "unsubscribe":
		b.cmdUnsubscribe(ctx, chatID, userID)
	case "profile":
		b.cmdProfile(ctx, chatID, userID)
	case "cancel":
		b.cmdCancel(ctx, chatID, userID)
	default:
		b.sendText(chatID, "Неизвестная команда. Список: /help")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	data := cb.Data

	// Stop the client-side spinner regardless of what the data is.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "error": err}).Debug("Failed to answer callback query")
	}

	// Telegram omits Message for buttons older than 48 hours; there is no
	// chat to act on then.
	if cb.Message == nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "data": data}).Debug("Callback without message, ignoring")
		return
	}
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, "unsub:"):
		b.handleUnsubscribeChoice(ctx, chatID, userID, strings.TrimPrefix(data, "unsub:"))
	case strings.HasPrefix(data, "profile:"):
		b.handleProfileAction(ctx, chatID, userID, cb.Message.MessageID, strings.TrimPrefix(data, "profile:"))
	case data == dialog.CallbackCancel,
		strings.HasPrefix(data, dialog.PrefixInfoType),
		strings.HasPrefix(data, dialog.PrefixCategory),
		strings.HasPrefix(data, dialog.PrefixCity),
		strings.HasPrefix(data, dialog.PrefixFrequency):
		dialog.Process(userID, chatID, data, b.api)
	default:
		logrus.WithFields(logrus.Fields{"user_id": userID, "data": data}).Warn("Unhandled callback data")
	}
}

// SendHTML delivers an HTML message, retrying on rate limits with the
// Retry-After the API reports, or a growing delay otherwise.
func (b *Bot) SendHTML(chatID int64, text string, disablePreview bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = disablePreview

	var lastErr error
	for attempt := 1; attempt <= sendMaxRetries; attempt++ {
		_, err := b.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if apiErr, ok := err.(*tgbotapi.Error); ok && apiErr.Code == 429 {
			retryAfter := time.Duration(1+attempt*attempt) * time.Second
			if apiErr.RetryAfter > 0 {
				retryAfter = time.Duration(apiErr.RetryAfter) * time.Second
			}
			logrus.WithFields(logrus.Fields{"chat_id": chatID, "attempt": attempt, "retry_after": retryAfter}).Warn("Rate limited by Telegram")
			time.Sleep(retryAfter)
			continue
		}
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "attempt": attempt, "error": err}).Warn("Send failed")
		if attempt < sendMaxRetries {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
	}
	return fmt.Errorf("send to chat %d failed after %d attempts: %w", chatID, sendMaxRetries, lastErr)
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.SendHTML(chatID, text, true); err != nil {
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Error("Failed to send message")
	}
}
