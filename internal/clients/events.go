// internal/clients/events.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultEventsURL = "https://kudago.com/public-api/v1.4/events/"

const eventsCacheTTL = 30 * time.Minute

// Event is a single KudaGo event. Descriptions arrive as plain text
// because requests ask for text_format=text.
type Event struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SiteURL     string `json:"site_url"`
}

type eventsResponse struct {
	Results []Event `json:"results"`
}

// EventsClient fetches upcoming events from the public KudaGo API.
// No API key is required.
type EventsClient struct {
	BaseURL string
	HTTP    *http.Client
	Cache   Cache

	// now is swappable in tests; actual_since is derived from it.
	now func() time.Time
}

func NewEventsClient(cache Cache) *EventsClient {
	return &EventsClient{
		BaseURL: defaultEventsURL,
		HTTP:    newHTTPClient(),
		Cache:   cache,
		now:     time.Now,
	}
}

// Upcoming returns events for a KudaGo location slug, optionally filtered
// by category, ordered by start date.
func (c *EventsClient) Upcoming(ctx context.Context, location, categories string, pageSize int) ([]Event, error) {
	cacheKey := fmt.Sprintf("events:%s:%s:%d", location, categories, pageSize)
	var cached []Event
	if c.Cache != nil {
		if hit, err := c.Cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("location", location)
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("fields", "id,title,description,site_url")
	params.Set("actual_since", strconv.FormatInt(c.now().Unix(), 10))
	params.Set("text_format", "text")
	params.Set("order_by", "dates")
	if categories != "" {
		params.Set("categories", categories)
	}
	headers := map[string]string{"Accept-Language": "ru-RU,ru;q=0.9"}

	var resp eventsResponse
	if err := getJSON(ctx, c.HTTP, "kudago", c.BaseURL, params, headers, &resp); err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := c.Cache.SetJSON(ctx, cacheKey, resp.Results, eventsCacheTTL); err != nil {
			logrus.WithFields(logrus.Fields{"location": location, "error": err}).Warn("Failed to cache events")
		}
	}
	logrus.WithFields(logrus.Fields{"location": location, "count": len(resp.Results)}).Info("Fetched events")
	return resp.Results, nil
}
