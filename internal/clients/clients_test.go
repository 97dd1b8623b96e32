package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

const weatherBody = `{
	"name": "Москва",
	"weather": [{"description": "пасмурно"}],
	"main": {"temp": 5.2, "feels_like": 2.1, "humidity": 80},
	"wind": {"speed": 3.0, "deg": 180}
}`

func TestCurrentWeather(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"q":     q.Get("q"),
			"appid": q.Get("appid"),
			"units": q.Get("units"),
			"lang":  q.Get("lang"),
		}
		w.Write([]byte(weatherBody))
	}))
	defer srv.Close()

	c := NewWeatherClient("secret", nil)
	c.BaseURL = srv.URL

	report, err := c.CurrentWeather(context.Background(), "Москва")
	if err != nil {
		t.Fatalf("CurrentWeather: %v", err)
	}
	if report.Name != "Москва" || report.Main.Temp != 5.2 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Wind.Deg == nil || *report.Wind.Deg != 180 {
		t.Errorf("wind deg not decoded: %+v", report.Wind)
	}

	want := map[string]string{"q": "Москва", "appid": "secret", "units": "metric", "lang": "ru"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query param %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestCurrentWeatherNoAPIKey(t *testing.T) {
	c := NewWeatherClient("", nil)
	if _, err := c.CurrentWeather(context.Background(), "Москва"); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestCurrentWeatherCityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"cod": "404", "message": "city not found"}`))
	}))
	defer srv.Close()

	c := NewWeatherClient("secret", nil)
	c.BaseURL = srv.URL

	_, err := c.CurrentWeather(context.Background(), "Нетакогогорода")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "city not found" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestCurrentWeatherUsesCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(weatherBody))
	}))
	defer srv.Close()

	c := NewWeatherClient("secret", newMemCache())
	c.BaseURL = srv.URL

	for i := 0; i < 3; i++ {
		if _, err := c.CurrentWeather(context.Background(), "Москва"); err != nil {
			t.Fatalf("CurrentWeather: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(weatherBody))
	}))
	defer srv.Close()

	c := NewWeatherClient("secret", nil)
	c.BaseURL = srv.URL

	if _, err := c.CurrentWeather(context.Background(), "Москва"); err != nil {
		t.Fatalf("CurrentWeather after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
}

func TestTopHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("country") != "ru" || q.Get("category") != "science" || q.Get("pageSize") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"status": "ok", "articles": [{"title": "Новость", "url": "https://example.com", "source": {"name": "Example"}}]}`))
	}))
	defer srv.Close()

	c := NewNewsClient("secret", nil)
	c.BaseURL = srv.URL

	articles, err := c.TopHeadlines(context.Background(), "ru", "science", 5)
	if err != nil {
		t.Fatalf("TopHeadlines: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "Новость" || articles[0].Source.Name != "Example" {
		t.Errorf("unexpected articles: %+v", articles)
	}
}

func TestTopHeadlinesErrorInBody(t *testing.T) {
	// NewsAPI reports failures inside 200 responses.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "error", "code": "apiKeyInvalid", "message": "Your API key is invalid"}`))
	}))
	defer srv.Close()

	c := NewNewsClient("bad", nil)
	c.BaseURL = srv.URL

	_, err := c.TopHeadlines(context.Background(), "ru", "", 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Source != "newsapi:apiKeyInvalid" || apiErr.Message != "Your API key is invalid" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestTopHeadlinesEmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "articles": []}`))
	}))
	defer srv.Close()

	c := NewNewsClient("secret", nil)
	c.BaseURL = srv.URL

	articles, err := c.TopHeadlines(context.Background(), "ru", "", 5)
	if err != nil {
		t.Fatalf("TopHeadlines: %v", err)
	}
	if len(articles) != 0 {
		t.Errorf("expected no articles, got %+v", articles)
	}
}

func TestUpcoming(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("location") != "msk" {
			t.Errorf("location = %q, want msk", q.Get("location"))
		}
		if q.Get("actual_since") != "1709294400" {
			t.Errorf("actual_since = %q, want 1709294400", q.Get("actual_since"))
		}
		if q.Get("text_format") != "text" || q.Get("order_by") != "dates" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Accept-Language") == "" {
			t.Error("Accept-Language header not set")
		}
		w.Write([]byte(`{"results": [{"id": 1, "title": "Концерт", "description": "Описание", "site_url": "https://kudago.com/e/1"}]}`))
	}))
	defer srv.Close()

	c := NewEventsClient(nil)
	c.BaseURL = srv.URL
	c.now = func() time.Time { return now }

	events, err := c.Upcoming(context.Background(), "msk", "", 5)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Концерт" || events[0].SiteURL != "https://kudago.com/e/1" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestUpcomingPassesCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("categories"); got != "concert" {
			t.Errorf("categories = %q, want concert", got)
		}
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c := NewEventsClient(nil)
	c.BaseURL = srv.URL

	if _, err := c.Upcoming(context.Background(), "msk", "concert", 5); err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
}
