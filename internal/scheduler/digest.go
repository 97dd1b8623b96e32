package scheduler

import (
	"context"
	"fmt"

	"infopalbot/internal/catalog"
	"infopalbot/internal/clients"
	"infopalbot/internal/format"
	"infopalbot/internal/models"
)

// digestPageSize caps items per scheduled digest.
const digestPageSize = 5

// Upstream sources, narrowed for fakes in tests.
type WeatherSource interface {
	CurrentWeather(ctx context.Context, city string) (*clients.WeatherReport, error)
}

type NewsSource interface {
	TopHeadlines(ctx context.Context, country, category string, pageSize int) ([]clients.Article, error)
}

type EventsSource interface {
	Upcoming(ctx context.Context, location, categories string, pageSize int) ([]clients.Event, error)
}

// buildDigest renders the digest text for one subscription. An empty
// upstream result is an error: the delivery is skipped rather than
// sending an empty message.
func (s *Scheduler) buildDigest(ctx context.Context, sub *models.Subscription) (string, error) {
	switch sub.InfoType {
	case models.InfoTypeWeather:
		if sub.Details == nil {
			return "", fmt.Errorf("weather subscription %s has no city", sub.ID)
		}
		report, err := s.clients.Weather.CurrentWeather(ctx, *sub.Details)
		if err != nil {
			return "", err
		}
		return format.WeatherDigest(*sub.Details, report), nil

	case models.InfoTypeNews:
		category := ""
		if sub.Category != nil {
			category = *sub.Category
		}
		articles, err := s.clients.News.TopHeadlines(ctx, "ru", category, digestPageSize)
		if err != nil {
			return "", err
		}
		if len(articles) == 0 {
			return "", fmt.Errorf("no headlines for category %q", category)
		}
		header := "Главные новости"
		if label, ok := catalog.NewsCategories[category]; ok {
			header = "Новости: " + label
		}
		return format.News(header, articles), nil

	case models.InfoTypeEvents:
		if sub.Details == nil {
			return "", fmt.Errorf("events subscription %s has no location", sub.ID)
		}
		category := ""
		if sub.Category != nil {
			category = *sub.Category
		}
		events, err := s.clients.Events.Upcoming(ctx, *sub.Details, category, digestPageSize)
		if err != nil {
			return "", err
		}
		if len(events) == 0 {
			return "", fmt.Errorf("no events for location %q", *sub.Details)
		}
		return format.Events(catalog.CityForSlug(*sub.Details), events), nil

	default:
		return "", fmt.Errorf("unknown info type %q", sub.InfoType)
	}
}
