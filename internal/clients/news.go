// internal/clients/news.go
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

const defaultNewsURL = "https://newsapi.org/v2/top-headlines"

const newsCacheTTL = 30 * time.Minute

// Article is a single NewsAPI headline.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type newsResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []Article `json:"articles"`
}

// NewsClient fetches top headlines from NewsAPI.org.
type NewsClient struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
	Cache   Cache
}

func NewNewsClient(apiKey string, cache Cache) *NewsClient {
	return &NewsClient{
		APIKey:  apiKey,
		BaseURL: defaultNewsURL,
		HTTP:    newHTTPClient(),
		Cache:   cache,
	}
}

// TopHeadlines returns headlines for a country, optionally filtered by
// category. NewsAPI reports failures inside 200 bodies (status "error"),
// so both transports map to *APIError. An empty article list is not an
// error.
func (c *NewsClient) TopHeadlines(ctx context.Context, country, category string, pageSize int) ([]Article, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cacheKey := fmt.Sprintf("news:%s:%s:%d", country, category, pageSize)
	var cached []Article
	if c.Cache != nil {
		if hit, err := c.Cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("country", country)
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("apiKey", c.APIKey)
	if category != "" {
		params.Set("category", category)
	}

	var resp newsResponse
	if err := getJSON(ctx, c.HTTP, "newsapi", c.BaseURL, params, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		msg := resp.Message
		if msg == "" {
			msg = "unexpected response from NewsAPI"
		}
		return nil, &APIError{Message: msg, Source: "newsapi:" + resp.Code}
	}

	if c.Cache != nil {
		if err := c.Cache.SetJSON(ctx, cacheKey, resp.Articles, newsCacheTTL); err != nil {
			logrus.WithField("error", err).Warn("Failed to cache news")
		}
	}
	logrus.WithFields(logrus.Fields{"country": country, "category": category, "count": len(resp.Articles)}).Info("Fetched headlines")
	return resp.Articles, nil
}
