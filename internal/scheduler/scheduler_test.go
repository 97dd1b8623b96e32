package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"infopalbot/internal/clients"
	"infopalbot/internal/models"
)

type fakeWeather struct {
	report *clients.WeatherReport
	err    error
}

func (f *fakeWeather) CurrentWeather(ctx context.Context, city string) (*clients.WeatherReport, error) {
	return f.report, f.err
}

type fakeNews struct {
	articles []clients.Article
	err      error
}

func (f *fakeNews) TopHeadlines(ctx context.Context, country, category string, pageSize int) ([]clients.Article, error) {
	return f.articles, f.err
}

type fakeEvents struct {
	events []clients.Event
	err    error
}

func (f *fakeEvents) Upcoming(ctx context.Context, location, categories string, pageSize int) ([]clients.Event, error) {
	return f.events, f.err
}

func TestSpecFor(t *testing.T) {
	three := 3
	zero := 0
	daily := "0 9 * * *"

	tests := []struct {
		name    string
		sub     models.Subscription
		want    string
		wantErr bool
	}{
		{name: "interval", sub: models.Subscription{FrequencyHours: &three}, want: "@every 3h"},
		{name: "daily cron", sub: models.Subscription{CronExpr: &daily}, want: "0 9 * * *"},
		{name: "zero hours", sub: models.Subscription{FrequencyHours: &zero}, wantErr: true},
		{name: "no schedule", sub: models.Subscription{ID: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := specFor(&tt.sub)
			if (err != nil) != tt.wantErr {
				t.Fatalf("specFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("specFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegisterUnregister(t *testing.T) {
	s := New(nil, Clients{}, nil)

	six := 6
	sub := models.Subscription{ID: "sub-1", FrequencyHours: &six}
	if err := s.Register(sub); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := s.Jobs(); got != 1 {
		t.Fatalf("Jobs() = %d, want 1", got)
	}

	// Re-registering replaces, not duplicates.
	if err := s.Register(sub); err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if got := s.Jobs(); got != 1 {
		t.Fatalf("Jobs() after re-register = %d, want 1", got)
	}

	s.Unregister("sub-1")
	if got := s.Jobs(); got != 0 {
		t.Errorf("Jobs() after Unregister = %d, want 0", got)
	}
	// Unknown ID is a no-op.
	s.Unregister("missing")
}

func TestRegisterRejectsBadCron(t *testing.T) {
	s := New(nil, Clients{}, nil)
	bad := "not a cron"
	if err := s.Register(models.Subscription{ID: "sub-1", CronExpr: &bad}); err == nil {
		t.Error("expected error for malformed cron expression")
	}
}

func TestBuildDigestWeather(t *testing.T) {
	report := &clients.WeatherReport{Name: "Москва"}
	report.Weather = []struct {
		Description string `json:"description"`
	}{{Description: "ясно"}}

	s := New(nil, Clients{Weather: &fakeWeather{report: report}}, nil)

	city := "Москва"
	sub := &models.Subscription{InfoType: models.InfoTypeWeather, Details: &city}
	text, err := s.buildDigest(context.Background(), sub)
	if err != nil {
		t.Fatalf("buildDigest: %v", err)
	}
	if !strings.Contains(text, "Москва") || !strings.Contains(text, "🔔") {
		t.Errorf("unexpected digest:\n%s", text)
	}
}

func TestBuildDigestWeatherMissingCity(t *testing.T) {
	s := New(nil, Clients{Weather: &fakeWeather{}}, nil)
	sub := &models.Subscription{ID: "sub-1", InfoType: models.InfoTypeWeather}
	if _, err := s.buildDigest(context.Background(), sub); err == nil {
		t.Error("expected error for weather subscription without a city")
	}
}

func TestBuildDigestNews(t *testing.T) {
	articles := []clients.Article{{Title: "Новость", URL: "https://example.com"}}
	s := New(nil, Clients{News: &fakeNews{articles: articles}}, nil)

	category := "science"
	sub := &models.Subscription{InfoType: models.InfoTypeNews, Category: &category}
	text, err := s.buildDigest(context.Background(), sub)
	if err != nil {
		t.Fatalf("buildDigest: %v", err)
	}
	if !strings.Contains(text, "Новость") || !strings.Contains(text, "Наука") {
		t.Errorf("unexpected digest:\n%s", text)
	}
}

func TestBuildDigestNewsEmptySkips(t *testing.T) {
	s := New(nil, Clients{News: &fakeNews{}}, nil)
	sub := &models.Subscription{InfoType: models.InfoTypeNews}
	if _, err := s.buildDigest(context.Background(), sub); err == nil {
		t.Error("expected error for empty headline list")
	}
}

func TestBuildDigestEvents(t *testing.T) {
	events := []clients.Event{{Title: "Концерт", SiteURL: "https://kudago.com/e/1"}}
	s := New(nil, Clients{Events: &fakeEvents{events: events}}, nil)

	slug := "msk"
	sub := &models.Subscription{InfoType: models.InfoTypeEvents, Details: &slug}
	text, err := s.buildDigest(context.Background(), sub)
	if err != nil {
		t.Fatalf("buildDigest: %v", err)
	}
	if !strings.Contains(text, "Концерт") || !strings.Contains(text, "Москва") {
		t.Errorf("unexpected digest:\n%s", text)
	}
}

func TestBuildDigestUpstreamError(t *testing.T) {
	s := New(nil, Clients{Weather: &fakeWeather{err: errors.New("boom")}}, nil)
	city := "Москва"
	sub := &models.Subscription{InfoType: models.InfoTypeWeather, Details: &city}
	if _, err := s.buildDigest(context.Background(), sub); err == nil {
		t.Error("expected upstream error to propagate")
	}
}

func TestBuildDigestUnknownType(t *testing.T) {
	s := New(nil, Clients{}, nil)
	sub := &models.Subscription{InfoType: "horoscope"}
	if _, err := s.buildDigest(context.Background(), sub); err == nil {
		t.Error("expected error for unknown info type")
	}
}
