// Package dialog runs the /subscribe conversation: info type, category,
// city and frequency, finishing with a saved subscription and a
// registered scheduler job. One dialog per user at a time.
package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"infopalbot/internal/catalog"
	"infopalbot/internal/models"
	"infopalbot/internal/repository"
	"infopalbot/internal/scheduler"
)

// Callback data prefixes routed to Process by the update loop.
const (
	PrefixInfoType  = "info:"
	PrefixCategory  = "cat:"
	PrefixCity      = "city:"
	PrefixFrequency = "freq:"
	CallbackCancel  = "dialog_cancel"
)

// CategoryAny is the category callback value meaning "no filter".
const CategoryAny = "any"

// State tracks one user's position in the subscription dialog.
type State struct {
	UserID     int64  // Telegram ID
	InternalID string // users.id
	ChatID     int64
	Stage      string // "info_type", "category", "city_search", "city_select", "frequency"
	InfoType   string
	Category   *string
	City       string // display name for weather, location slug for events
	StartedAt  time.Time

	timeoutCancel chan bool
	Messages      []int // message IDs for cleanup
}

// Sender is the part of *tgbotapi.BotAPI the dialog needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var (
	dialogs sync.Map // map[int64]*State

	repo    *repository.Repository
	sched   *scheduler.Scheduler
	cities  *catalog.Catalog
	timeout time.Duration
)

// Setup wires the dialog package dependencies. Must be called before the
// update loop starts.
func Setup(r *repository.Repository, s *scheduler.Scheduler, c *catalog.Catalog, dialogTimeout time.Duration) {
	repo = r
	sched = s
	cities = c
	timeout = dialogTimeout
}

// Start opens a new subscription dialog. Refused when one is already
// active or the user is at the subscription limit.
func Start(userID, chatID int64, internalID string, bot Sender) {
	if _, loaded := dialogs.Load(userID); loaded {
		logrus.WithField("user_id", userID).Info("Dialog already active")
		reply(bot, chatID, "Вы уже оформляете подписку. Завершите её или отправьте /cancel.", nil)
		return
	}

	ctx := context.Background()
	active, err := repo.GetActiveSubscriptionsByUser(ctx, internalID)
	if err != nil {
		reply(bot, chatID, "Не удалось проверить подписки, попробуйте позже.", nil)
		return
	}
	if len(active) >= repository.MaxActiveSubscriptions {
		reply(bot, chatID, fmt.Sprintf("У вас уже %d активных подписки — это максимум. Отпишитесь от одной через /unsubscribe.", repository.MaxActiveSubscriptions), nil)
		return
	}

	s := &State{
		UserID:        userID,
		InternalID:    internalID,
		ChatID:        chatID,
		Stage:         "info_type",
		StartedAt:     time.Now(),
		timeoutCancel: make(chan bool),
	}
	dialogs.Store(userID, s)
	logrus.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID}).Info("Subscription dialog started")

	sendInfoTypeSelection(bot, s)
	go monitorTimeout(userID, chatID, s, bot)
}

// IsActive reports whether the user has a dialog in progress.
func IsActive(userID int64) bool {
	_, ok := dialogs.Load(userID)
	return ok
}

// Process advances the dialog with a text or callback input.
func Process(userID, chatID int64, input string, bot Sender) {
	state, loaded := dialogs.Load(userID)
	if !loaded {
		logrus.WithField("user_id", userID).Debug("No active dialog")
		return
	}
	s := state.(*State)

	if input == CallbackCancel {
		Cancel(userID, chatID, bot)
		return
	}

	switch s.Stage {
	case "info_type":
		handleInfoType(s, input, bot)
	case "category":
		handleCategory(s, input, bot)
	case "city_search":
		handleCitySearch(s, input, bot)
	case "city_select":
		handleCitySelect(s, input, bot)
	case "frequency":
		handleFrequency(s, input, bot)
	}
}

// Cancel aborts the dialog and cleans up its messages.
func Cancel(userID, chatID int64, bot Sender) bool {
	state, loaded := dialogs.Load(userID)
	if !loaded {
		return false
	}
	s := state.(*State)
	select {
	case s.timeoutCancel <- true:
	default:
	}
	deleteMessages(s, bot)
	dialogs.Delete(userID)
	logrus.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID}).Info("Dialog cancelled")
	reply(bot, chatID, "Оформление подписки отменено.", nil)
	repo.LogUserAction(context.Background(), userID, "dialog_cancel", "")
	return true
}

func handleInfoType(s *State, input string, bot Sender) {
	if !strings.HasPrefix(input, PrefixInfoType) {
		return
	}
	infoType := strings.TrimPrefix(input, PrefixInfoType)

	switch infoType {
	case models.InfoTypeWeather:
		s.InfoType = infoType
		s.Stage = "city_search"
		dialogs.Store(s.UserID, s)
		replyTracked(bot, s, fmt.Sprintf("Введите название города (минимум %d буквы):", catalog.MinSearchLen), nil)
	case models.InfoTypeNews:
		s.InfoType = infoType
		s.Stage = "category"
		dialogs.Store(s.UserID, s)
		replyTracked(bot, s, "Выберите категорию новостей:", categoryKeyboard(catalog.NewsCategories))
	case models.InfoTypeEvents:
		s.InfoType = infoType
		s.Stage = "category"
		dialogs.Store(s.UserID, s)
		replyTracked(bot, s, "Выберите категорию событий:", categoryKeyboard(catalog.EventCategories))
	default:
		logrus.WithFields(logrus.Fields{"user_id": s.UserID, "input": input}).Warn("Unknown info type in dialog")
	}
}

func handleCategory(s *State, input string, bot Sender) {
	if !strings.HasPrefix(input, PrefixCategory) {
		return
	}
	category := strings.TrimPrefix(input, PrefixCategory)

	if category == CategoryAny {
		s.Category = nil
	} else {
		valid := catalog.NewsCategories
		if s.InfoType == models.InfoTypeEvents {
			valid = catalog.EventCategories
		}
		if _, ok := valid[category]; !ok {
			logrus.WithFields(logrus.Fields{"user_id": s.UserID, "category": category}).Warn("Unknown category in dialog")
			return
		}
		s.Category = &category
	}

	if s.InfoType == models.InfoTypeNews {
		// News digests are country-wide, no city step.
		s.Stage = "frequency"
		dialogs.Store(s.UserID, s)
		replyTracked(bot, s, "Как часто присылать дайджест?", frequencyKeyboard())
		return
	}

	s.Stage = "city_search"
	dialogs.Store(s.UserID, s)
	replyTracked(bot, s, fmt.Sprintf("Введите название города (минимум %d буквы):", catalog.MinSearchLen), nil)
}

func handleCitySearch(s *State, input string, bot Sender) {
	query := strings.TrimSpace(input)
	if len([]rune(query)) < catalog.MinSearchLen {
		replyTracked(bot, s, fmt.Sprintf("Слишком короткий запрос, введите минимум %d буквы.", catalog.MinSearchLen), nil)
		return
	}
	matches := cities.Search(query)
	if len(matches) == 0 {
		replyTracked(bot, s, "Город не найден. Попробуйте ещё раз:", nil)
		return
	}
	s.Stage = "city_select"
	dialogs.Store(s.UserID, s)
	replyTracked(bot, s, "Выберите город из списка:", cityKeyboard(matches))
}

func handleCitySelect(s *State, input string, bot Sender) {
	if !strings.HasPrefix(input, PrefixCity) {
		return
	}
	city := strings.TrimPrefix(input, PrefixCity)

	// Events are only available for cities with a KudaGo slug; the slug is
	// what gets stored.
	if s.InfoType == models.InfoTypeEvents {
		slug, ok := catalog.SlugFor(city)
		if !ok {
			s.Stage = "city_search"
			dialogs.Store(s.UserID, s)
			replyTracked(bot, s, "Для этого города события недоступны. Доступные города: "+strings.Join(catalog.SupportedEventCities(), ", ")+"\nВведите название города:", nil)
			return
		}
		city = slug
	}

	s.City = city
	s.Stage = "frequency"
	dialogs.Store(s.UserID, s)
	replyTracked(bot, s, "Как часто присылать дайджест?", frequencyKeyboard())
}

func handleFrequency(s *State, input string, bot Sender) {
	if !strings.HasPrefix(input, PrefixFrequency) {
		return
	}
	choice := strings.TrimPrefix(input, PrefixFrequency)

	sub := models.Subscription{
		UserID:   s.InternalID,
		InfoType: s.InfoType,
		Category: s.Category,
	}
	if s.City != "" {
		city := s.City
		sub.Details = &city
	}

	if choice == "daily" {
		expr := models.DailyCron(9, 0)
		sub.CronExpr = &expr
	} else {
		hours, err := strconv.Atoi(choice)
		if err != nil || hours < 1 {
			logrus.WithFields(logrus.Fields{"user_id": s.UserID, "choice": choice}).Warn("Bad frequency choice")
			return
		}
		sub.FrequencyHours = &hours
	}

	finishDialog(s, &sub, bot)
}

// finishDialog validates against duplicates and the limit, persists the
// subscription and registers its job.
func finishDialog(s *State, sub *models.Subscription, bot Sender) {
	ctx := context.Background()

	dup, err := repo.FindDuplicateSubscription(ctx, sub.UserID, sub.InfoType, sub.Details, sub.Category)
	if err != nil {
		replyTracked(bot, s, "Не удалось сохранить подписку, попробуйте позже.", nil)
		return
	}
	if dup != nil {
		closeDialog(s, bot, "Такая подписка у вас уже есть. Посмотреть все: /mysubscriptions")
		return
	}

	if err := repo.CreateSubscription(ctx, sub); err != nil {
		if err == repository.ErrSubscriptionLimit {
			closeDialog(s, bot, fmt.Sprintf("Достигнут лимит в %d активных подписки.", repository.MaxActiveSubscriptions))
			return
		}
		replyTracked(bot, s, "Не удалось сохранить подписку, попробуйте позже.", nil)
		return
	}

	if err := sched.Register(*sub); err != nil {
		logrus.WithFields(logrus.Fields{"subscription_id": sub.ID, "error": err}).Error("Failed to register job for new subscription")
	}

	repo.LogUserAction(ctx, s.UserID, "subscribe", fmt.Sprintf("type=%s details=%v category=%v", sub.InfoType, sub.Details, sub.Category))

	what := DescribeSubscription(sub)
	closeDialog(s, bot, fmt.Sprintf("✅ Подписка оформлена: %s, %s.", what, sub.ScheduleDescription()))
}

// closeDialog cancels the timeout, removes dialog messages and sends the
// final text.
func closeDialog(s *State, bot Sender, text string) {
	select {
	case s.timeoutCancel <- true:
	default:
	}
	deleteMessages(s, bot)
	dialogs.Delete(s.UserID)
	reply(bot, s.ChatID, text, nil)
}

// DescribeSubscription renders a short human label for a subscription,
// e.g. "погода в г. Москва".
func DescribeSubscription(sub *models.Subscription) string {
	switch sub.InfoType {
	case models.InfoTypeWeather:
		return "погода в г. " + deref(sub.Details)
	case models.InfoTypeNews:
		return "новости (" + categoryLabel(sub.Category, catalog.NewsCategories) + ")"
	case models.InfoTypeEvents:
		return fmt.Sprintf("события в г. %s (%s)",
			catalog.CityForSlug(deref(sub.Details)), categoryLabel(sub.Category, catalog.EventCategories))
	}
	return sub.InfoType
}

func categoryLabel(category *string, labels map[string]string) string {
	if category == nil {
		return "все"
	}
	if l, ok := labels[*category]; ok {
		return l
	}
	return *category
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func monitorTimeout(userID, chatID int64, s *State, bot Sender) {
	select {
	case <-time.After(timeout):
		if _, loaded := dialogs.Load(userID); loaded {
			logrus.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID}).Info("Dialog timed out")
			deleteMessages(s, bot)
			dialogs.Delete(userID)
			reply(bot, chatID, "Диалог прерван по таймауту. Начните заново: /subscribe", nil)
		}
	case <-s.timeoutCancel:
	}
}

func sendInfoTypeSelection(bot Sender, s *State) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌦 Погода", PrefixInfoType+models.InfoTypeWeather),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📰 Новости", PrefixInfoType+models.InfoTypeNews),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎉 События", PrefixInfoType+models.InfoTypeEvents),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", CallbackCancel),
		),
	)
	replyTracked(bot, s, "На что хотите подписаться?", &keyboard)
}

func categoryKeyboard(categories map[string]string) *tgbotapi.InlineKeyboardMarkup {
	var buttons [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, slug := range sortedKeys(categories) {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(categories[slug], PrefixCategory+slug))
		if len(row) == 2 {
			buttons = append(buttons, row)
			row = nil
		}
	}
	if len(row) > 0 {
		buttons = append(buttons, row)
	}
	buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Любая", PrefixCategory+CategoryAny),
	})
	buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", CallbackCancel),
	})
	keyboard := tgbotapi.NewInlineKeyboardMarkup(buttons...)
	return &keyboard
}

func cityKeyboard(names []string) *tgbotapi.InlineKeyboardMarkup {
	var buttons [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, name := range names {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(name, PrefixCity+name))
		if len(row) == 2 {
			buttons = append(buttons, row)
			row = nil
		}
	}
	if len(row) > 0 {
		buttons = append(buttons, row)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(buttons...)
	return &keyboard
}

func frequencyKeyboard() *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Раз в 3 часа", PrefixFrequency+"3"),
			tgbotapi.NewInlineKeyboardButtonData("Раз в 6 часов", PrefixFrequency+"6"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Раз в 12 часов", PrefixFrequency+"12"),
			tgbotapi.NewInlineKeyboardButtonData("Раз в сутки", PrefixFrequency+"24"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Ежедневно в 09:00", PrefixFrequency+"daily"),
		),
	)
	return &keyboard
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys)-1; i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[i] > keys[j] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func reply(bot Sender, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	sent, err := bot.Send(msg)
	if err != nil {
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Error("Failed to send dialog message")
	}
	return sent, err
}

// replyTracked remembers the message ID so the dialog can clean up after
// itself.
func replyTracked(bot Sender, s *State, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if sent, err := reply(bot, s.ChatID, text, keyboard); err == nil {
		s.Messages = append(s.Messages, sent.MessageID)
		dialogs.Store(s.UserID, s)
	}
}

func deleteMessages(s *State, bot Sender) {
	for _, msgID := range s.Messages {
		if _, err := bot.Request(tgbotapi.NewDeleteMessage(s.ChatID, msgID)); err != nil {
			logrus.WithFields(logrus.Fields{"chat_id": s.ChatID, "message_id": msgID, "error": err}).Debug("Failed to delete dialog message")
		}
	}
}
