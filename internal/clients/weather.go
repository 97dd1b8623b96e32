// internal/clients/weather.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

const weatherCacheTTL = 10 * time.Minute

// WeatherReport is the subset of the OpenWeatherMap current-weather
// response the bot renders.
type WeatherReport struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   *int    `json:"deg"`
	} `json:"wind"`
}

// WeatherClient fetches current weather from OpenWeatherMap.
type WeatherClient struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
	Cache   Cache
}

func NewWeatherClient(apiKey string, cache Cache) *WeatherClient {
	return &WeatherClient{
		APIKey:  apiKey,
		BaseURL: defaultWeatherURL,
		HTTP:    newHTTPClient(),
		Cache:   cache,
	}
}

// CurrentWeather returns the weather for a city, metric units, Russian
// descriptions. Results are cached per city.
func (c *WeatherClient) CurrentWeather(ctx context.Context, city string) (*WeatherReport, error) {
	if c.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cacheKey := "weather:" + strings.ToLower(city)
	var report WeatherReport
	if c.Cache != nil {
		if hit, err := c.Cache.GetJSON(ctx, cacheKey, &report); err == nil && hit {
			return &report, nil
		}
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.APIKey)
	params.Set("units", "metric")
	params.Set("lang", "ru")

	if err := getJSON(ctx, c.HTTP, "openweathermap", c.BaseURL, params, nil, &report); err != nil {
		return nil, err
	}
	if len(report.Weather) == 0 {
		return nil, fmt.Errorf("openweathermap response has no weather block for %q", city)
	}

	if c.Cache != nil {
		if err := c.Cache.SetJSON(ctx, cacheKey, &report, weatherCacheTTL); err != nil {
			logrus.WithFields(logrus.Fields{"city": city, "error": err}).Warn("Failed to cache weather")
		}
	}
	logrus.WithField("city", city).Info("Fetched weather")
	return &report, nil
}
