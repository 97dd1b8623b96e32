// internal/telegram/commands.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"infopalbot/internal/catalog"
	"infopalbot/internal/clients"
	"infopalbot/internal/dialog"
	"infopalbot/internal/format"
	"infopalbot/internal/models"
)

// listPageSize caps items in on-demand /news and /events replies.
const listPageSize = 5

const helpText = `<b>Что я умею:</b>
/weather [город] — текущая погода
/news [категория] — главные новости
/events [город] — ближайшие события
/subscribe — оформить подписку на рассылку
/mysubscriptions — ваши подписки
/unsubscribe — отключить подписку
/profile — ваш профиль
/cancel — прервать текущий диалог`

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	// A fresh /start resets any half-finished conversation.
	b.pendingWeather.Delete(userID)
	if dialog.IsActive(userID) {
		dialog.Cancel(userID, chatID, b.api)
	}

	if _, err := b.repo.EnsureUser(ctx, userID); err != nil {
		b.sendText(chatID, "Не получилось зарегистрировать вас, попробуйте позже.")
		return
	}
	b.repo.LogUserAction(ctx, userID, "/start", "")

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = msg.From.UserName
	}
	b.sendText(chatID, fmt.Sprintf("Привет, %s! 👋\nЯ бот InfoPal: погода, новости и события по запросу или по подписке.\n\n%s",
		html.EscapeString(name), helpText))
}

func (b *Bot) cmdHelp(ctx context.Context, chatID, userID int64) {
	b.repo.LogUserAction(ctx, userID, "/help", "")
	b.sendText(chatID, helpText)
}

func (b *Bot) cmdWeather(ctx context.Context, chatID, userID int64, args string) {
	b.repo.LogUserAction(ctx, userID, "/weather", args)
	if args == "" {
		b.pendingWeather.Store(userID, true)
		b.sendText(chatID, "Введите название города:")
		return
	}
	b.replyWeather(ctx, chatID, userID, args)
}

func (b *Bot) replyWeather(ctx context.Context, chatID, userID int64, city string) {
	report, err := b.weather.CurrentWeather(ctx, city)
	if err != nil {
		var apiErr *clients.APIError
		switch {
		case errors.Is(err, clients.ErrNoAPIKey):
			b.sendText(chatID, "Сервис погоды временно недоступен.")
		case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
			b.sendText(chatID, fmt.Sprintf("Город «%s» не найден. Проверьте название.", html.EscapeString(city)))
		default:
			logrus.WithFields(logrus.Fields{"city": city, "error": err}).Error("Weather lookup failed")
			b.sendText(chatID, "Не удалось получить погоду, попробуйте позже.")
		}
		return
	}
	b.sendText(chatID, format.Weather(city, report))
}

func (b *Bot) cmdNews(ctx context.Context, chatID, userID int64, args string) {
	b.repo.LogUserAction(ctx, userID, "/news", args)

	category := strings.ToLower(args)
	if category != "" {
		if _, ok := catalog.NewsCategories[category]; !ok {
			b.sendText(chatID, "Неизвестная категория. Доступны: "+strings.Join(newsCategorySlugs(), ", "))
			return
		}
	}

	articles, err := b.news.TopHeadlines(ctx, "ru", category, listPageSize)
	if err != nil {
		if errors.Is(err, clients.ErrNoAPIKey) {
			b.sendText(chatID, "Сервис новостей временно недоступен.")
			return
		}
		logrus.WithFields(logrus.Fields{"category": category, "error": err}).Error("News lookup failed")
		b.sendText(chatID, "Не удалось получить новости, попробуйте позже.")
		return
	}
	if len(articles) == 0 {
		b.sendText(chatID, "Свежих новостей не нашлось.")
		return
	}

	header := "Главные новости"
	if label, ok := catalog.NewsCategories[category]; ok {
		header = "Новости: " + label
	}
	b.sendText(chatID, format.News(header, articles))
}

func (b *Bot) cmdEvents(ctx context.Context, chatID, userID int64, args string) {
	b.repo.LogUserAction(ctx, userID, "/events", args)

	if args == "" {
		b.sendText(chatID, "Укажите город, например: /events Москва\nДоступные города: "+strings.Join(catalog.SupportedEventCities(), ", "))
		return
	}
	slug, ok := catalog.SlugFor(args)
	if !ok {
		b.sendText(chatID, "События доступны только для: "+strings.Join(catalog.SupportedEventCities(), ", "))
		return
	}

	events, err := b.events.Upcoming(ctx, slug, "", listPageSize)
	if err != nil {
		logrus.WithFields(logrus.Fields{"location": slug, "error": err}).Error("Events lookup failed")
		b.sendText(chatID, "Не удалось получить события, попробуйте позже.")
		return
	}
	if len(events) == 0 {
		b.sendText(chatID, fmt.Sprintf("В г. %s пока нет ближайших событий.", catalog.CityForSlug(slug)))
		return
	}
	b.sendText(chatID, format.Events(catalog.CityForSlug(slug), events))
}

func (b *Bot) cmdSubscribe(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	user, err := b.repo.EnsureUser(ctx, userID)
	if err != nil {
		b.sendText(chatID, "Не получилось открыть диалог, попробуйте позже.")
		return
	}
	b.repo.LogUserAction(ctx, userID, "/subscribe", "")
	dialog.Start(userID, chatID, user.ID, b.api)
}

func (b *Bot) cmdMySubscriptions(ctx context.Context, chatID, userID int64) {
	b.repo.LogUserAction(ctx, userID, "/mysubscriptions", "")

	user, err := b.repo.GetUserByTelegramID(ctx, userID)
	if err != nil || user == nil {
		b.sendText(chatID, "Сначала отправьте /start.")
		return
	}
	subs, err := b.repo.GetActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		b.sendText(chatID, "Не удалось получить подписки, попробуйте позже.")
		return
	}
	if len(subs) == 0 {
		b.sendText(chatID, "У вас нет активных подписок. Оформить: /subscribe")
		return
	}

	var lines []string
	lines = append(lines, "<b>Ваши подписки:</b>")
	for i, sub := range subs {
		lines = append(lines, fmt.Sprintf("%d. %s — %s", i+1, dialog.DescribeSubscription(&sub), sub.ScheduleDescription()))
	}
	b.sendText(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdUnsubscribe(ctx context.Context, chatID, userID int64) {
	b.repo.LogUserAction(ctx, userID, "/unsubscribe", "")

	user, err := b.repo.GetUserByTelegramID(ctx, userID)
	if err != nil || user == nil {
		b.sendText(chatID, "Сначала отправьте /start.")
		return
	}
	subs, err := b.repo.GetActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		b.sendText(chatID, "Не удалось получить подписки, попробуйте позже.")
		return
	}
	if len(subs) == 0 {
		b.sendText(chatID, "У вас нет активных подписок.")
		return
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, sub := range subs {
		label := fmt.Sprintf("%d. %s", i+1, dialog.DescribeSubscription(&sub))
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, "unsub:"+sub.ID),
		})
	}
	b.sendWithKeyboard(chatID, "Какую подписку отключить?", tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) handleUnsubscribeChoice(ctx context.Context, chatID, userID int64, subID string) {
	user, err := b.repo.GetUserByTelegramID(ctx, userID)
	if err != nil || user == nil {
		b.sendText(chatID, "Сначала отправьте /start.")
		return
	}
	sub, err := b.repo.GetSubscription(ctx, subID)
	if err != nil {
		b.sendText(chatID, "Не удалось отключить подписку, попробуйте позже.")
		return
	}
	if sub == nil || sub.UserID != user.ID {
		b.sendText(chatID, "Подписка не найдена.")
		return
	}

	done, err := b.repo.DeactivateSubscription(ctx, subID)
	if err != nil {
		b.sendText(chatID, "Не удалось отключить подписку, попробуйте позже.")
		return
	}
	if !done {
		b.sendText(chatID, "Эта подписка уже отключена.")
		return
	}
	b.sched.Unregister(subID)
	b.repo.LogUserAction(ctx, userID, "unsubscribe", "subscription_id="+subID)
	b.sendText(chatID, "🔕 Подписка отключена: "+dialog.DescribeSubscription(sub))
}

func (b *Bot) cmdProfile(ctx context.Context, chatID, userID int64) {
	b.repo.LogUserAction(ctx, userID, "/profile", "")

	text, err := b.profileText(ctx, userID)
	if err != nil {
		b.sendText(chatID, "Сначала отправьте /start.")
		return
	}
	b.sendWithKeyboard(chatID, text, profileKeyboard())
}

// handleProfileAction serves the profile menu callbacks by editing the
// menu message in place.
func (b *Bot) handleProfileAction(ctx context.Context, chatID, userID int64, messageID int, action string) {
	switch {
	case action == "subs":
		b.showProfileSubs(ctx, chatID, userID, messageID)
	case strings.HasPrefix(action, "del:"):
		b.deleteProfileSub(ctx, chatID, userID, messageID, strings.TrimPrefix(action, "del:"))
	case action == "back":
		text, err := b.profileText(ctx, userID)
		if err != nil {
			return
		}
		b.editMessage(chatID, messageID, text, profileKeyboard())
	case action == "close":
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
			logrus.WithFields(logrus.Fields{"chat_id": chatID, "message_id": messageID, "error": err}).Debug("Failed to delete profile message")
		}
	}
}

func (b *Bot) showProfileSubs(ctx context.Context, chatID, userID int64, messageID int) {
	user, err := b.repo.GetUserByTelegramID(ctx, userID)
	if err != nil || user == nil {
		return
	}
	subs, err := b.repo.GetActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return
	}
	text, keyboard := profileSubsView(subs)
	b.editMessage(chatID, messageID, text, keyboard)
}

// deleteProfileSub deactivates one subscription from the profile menu and
// re-renders the remaining list in the same message.
func (b *Bot) deleteProfileSub(ctx context.Context, chatID, userID int64, messageID int, subID string) {
	user, err := b.repo.GetUserByTelegramID(ctx, userID)
	if err != nil || user == nil {
		return
	}
	sub, err := b.repo.GetSubscription(ctx, subID)
	if err != nil || sub == nil || sub.UserID != user.ID {
		return
	}
	done, err := b.repo.DeactivateSubscription(ctx, subID)
	if err != nil {
		return
	}
	if done {
		b.sched.Unregister(subID)
		b.repo.LogUserAction(ctx, userID, "unsubscribe", "subscription_id="+subID)
	}
	b.showProfileSubs(ctx, chatID, userID, messageID)
}

// profileSubsView renders the subscription list with a delete button per
// item plus the back row.
func profileSubsView(subs []models.Subscription) (string, tgbotapi.InlineKeyboardMarkup) {
	backRow := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "profile:back"),
	)
	if len(subs) == 0 {
		return "У вас нет активных подписок. Оформить: /subscribe", tgbotapi.NewInlineKeyboardMarkup(backRow)
	}

	lines := []string{"<b>Ваши подписки:</b>"}
	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, sub := range subs {
		lines = append(lines, fmt.Sprintf("%d. %s — %s", i+1, dialog.DescribeSubscription(&sub), sub.ScheduleDescription()))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("❌ %d. %s", i+1, dialog.DescribeSubscription(&sub)), "profile:del:"+sub.ID),
		))
	}
	buttons = append(buttons, backRow)
	return strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(buttons...)
}

func (b *Bot) profileText(ctx context.Context, userID int64) (string, error) {
	user, err := b.repo.GetUserByTelegramID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("user %d is not registered", userID)
	}
	subs, err := b.repo.GetActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("<b>👤 Ваш профиль</b>\n")
	sb.WriteString(fmt.Sprintf("Telegram ID: <code>%d</code>\n", user.TelegramID))
	sb.WriteString(fmt.Sprintf("Зарегистрирован: %s\n", user.CreatedAt.Format("02.01.2006")))
	sb.WriteString(fmt.Sprintf("Активных подписок: %d", len(subs)))
	return sb.String(), nil
}

func profileKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Мои подписки", "profile:subs"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Закрыть", "profile:close"),
		),
	)
}

func (b *Bot) editMessage(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "message_id": messageID, "error": err}).Error("Failed to edit message")
	}
}

func (b *Bot) cmdCancel(ctx context.Context, chatID, userID int64) {
	b.repo.LogUserAction(ctx, userID, "/cancel", "")

	if dialog.Cancel(userID, chatID, b.api) {
		return
	}
	if _, ok := b.pendingWeather.LoadAndDelete(userID); ok {
		b.sendText(chatID, "Хорошо, запрос погоды отменён.")
		return
	}
	b.sendText(chatID, "Сейчас нечего отменять.")
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "error": err}).Error("Failed to send keyboard message")
	}
}

func newsCategorySlugs() []string {
	slugs := make([]string, 0, len(catalog.NewsCategories))
	for slug := range catalog.NewsCategories {
		slugs = append(slugs, slug)
	}
	for i := 0; i < len(slugs)-1; i++ {
		for j := i + 1; j < len(slugs); j++ {
			if slugs[i] > slugs[j] {
				slugs[i], slugs[j] = slugs[j], slugs[i]
			}
		}
	}
	return slugs
}
