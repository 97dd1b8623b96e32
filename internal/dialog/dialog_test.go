package dialog

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"infopalbot/internal/catalog"
	"infopalbot/internal/models"
)

func strPtr(s string) *string { return &s }

// nullSender swallows outgoing messages, numbering them sequentially.
type nullSender struct{ msgID int }

func (n *nullSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	n.msgID++
	return tgbotapi.Message{MessageID: n.msgID}, nil
}

func (n *nullSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func testState(userID int64, stage, infoType string) *State {
	return &State{
		UserID:        userID,
		ChatID:        userID,
		Stage:         stage,
		InfoType:      infoType,
		StartedAt:     time.Now(),
		timeoutCancel: make(chan bool, 1),
	}
}

func TestDescribeSubscription(t *testing.T) {
	tests := []struct {
		name string
		sub  models.Subscription
		want string
	}{
		{
			name: "weather",
			sub:  models.Subscription{InfoType: models.InfoTypeWeather, Details: strPtr("Москва")},
			want: "погода в г. Москва",
		},
		{
			name: "news with known category",
			sub:  models.Subscription{InfoType: models.InfoTypeNews, Category: strPtr("science")},
			want: "новости (🔬 Наука)",
		},
		{
			name: "events",
			sub:  models.Subscription{InfoType: models.InfoTypeEvents, Details: strPtr("msk"), Category: strPtr("concert")},
			want: "события в г. Москва (🎵 Концерты)",
		},
		{
			name: "news without category",
			sub:  models.Subscription{InfoType: models.InfoTypeNews},
			want: "новости (все)",
		},
		{
			name: "unknown type falls back to the raw value",
			sub:  models.Subscription{InfoType: "horoscope"},
			want: "horoscope",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DescribeSubscription(&tt.sub); got != tt.want {
				t.Errorf("DescribeSubscription() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrequencyKeyboard(t *testing.T) {
	kb := frequencyKeyboard()

	var callbacks []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				callbacks = append(callbacks, *btn.CallbackData)
			}
		}
	}

	want := map[string]bool{
		"freq:3": true, "freq:6": true, "freq:12": true, "freq:24": true, "freq:daily": true,
	}
	if len(callbacks) != len(want) {
		t.Fatalf("got %d buttons, want %d: %v", len(callbacks), len(want), callbacks)
	}
	for _, cb := range callbacks {
		if !want[cb] {
			t.Errorf("unexpected callback %q", cb)
		}
	}
}

func TestCategoryKeyboardHasCancel(t *testing.T) {
	kb := categoryKeyboard(map[string]string{"business": "Бизнес", "science": "Наука"})

	last := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	if len(last) != 1 || last[0].CallbackData == nil || *last[0].CallbackData != CallbackCancel {
		t.Errorf("last row must be the cancel button, got %+v", last)
	}
}

func TestCityKeyboardTwoPerRow(t *testing.T) {
	kb := cityKeyboard([]string{"Москва", "Мончегорск", "Мостовской"})

	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("got %d rows, want 2", len(kb.InlineKeyboard))
	}
	if len(kb.InlineKeyboard[0]) != 2 || len(kb.InlineKeyboard[1]) != 1 {
		t.Errorf("unexpected row sizes: %d and %d", len(kb.InlineKeyboard[0]), len(kb.InlineKeyboard[1]))
	}
	if got := *kb.InlineKeyboard[0][0].CallbackData; got != PrefixCity+"Москва" {
		t.Errorf("callback = %q, want %q", got, PrefixCity+"Москва")
	}
}

func TestEventsDialogSearchesCityAndStoresSlug(t *testing.T) {
	Setup(nil, nil, catalog.Load(""), time.Minute)
	bot := &nullSender{}

	s := testState(7, "category", models.InfoTypeEvents)
	dialogs.Store(s.UserID, s)
	defer dialogs.Delete(s.UserID)

	Process(s.UserID, s.ChatID, PrefixCategory+"concert", bot)
	if s.Stage != "city_search" {
		t.Fatalf("after category stage = %q, want city_search", s.Stage)
	}

	Process(s.UserID, s.ChatID, "моск", bot)
	if s.Stage != "city_select" {
		t.Fatalf("after search stage = %q, want city_select", s.Stage)
	}

	Process(s.UserID, s.ChatID, PrefixCity+"Москва", bot)
	if s.Stage != "frequency" {
		t.Fatalf("after select stage = %q, want frequency", s.Stage)
	}
	if s.City != "msk" {
		t.Errorf("city = %q, want slug msk", s.City)
	}
}

func TestEventsDialogRejectsCityWithoutSlug(t *testing.T) {
	Setup(nil, nil, catalog.Load(""), time.Minute)
	bot := &nullSender{}

	s := testState(8, "city_select", models.InfoTypeEvents)
	dialogs.Store(s.UserID, s)
	defer dialogs.Delete(s.UserID)

	Process(s.UserID, s.ChatID, PrefixCity+"Воронеж", bot)
	if s.Stage != "city_search" {
		t.Errorf("stage = %q, want city_search after unsupported city", s.Stage)
	}
	if s.City != "" {
		t.Errorf("city = %q, want empty", s.City)
	}
}

func TestWeatherDialogKeepsCityName(t *testing.T) {
	Setup(nil, nil, catalog.Load(""), time.Minute)
	bot := &nullSender{}

	s := testState(9, "city_select", models.InfoTypeWeather)
	dialogs.Store(s.UserID, s)
	defer dialogs.Delete(s.UserID)

	Process(s.UserID, s.ChatID, PrefixCity+"Воронеж", bot)
	if s.Stage != "frequency" {
		t.Fatalf("stage = %q, want frequency", s.Stage)
	}
	if s.City != "Воронеж" {
		t.Errorf("city = %q, want display name", s.City)
	}
}
