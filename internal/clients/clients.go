// internal/clients/clients.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoAPIKey is returned when a client requiring a key is used without one.
var ErrNoAPIKey = errors.New("api key is not configured")

// APIError is a failure reported by an upstream service.
type APIError struct {
	StatusCode int
	Message    string
	Source     string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Source, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Cache is the subset of the Redis cache the clients need. A nil Cache
// disables caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const maxRetries = 3

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// getJSON performs a GET with retries on network errors and 5xx responses,
// decoding the body into dst. 4xx responses are returned as *APIError
// without retrying.
func getJSON(ctx context.Context, client *http.Client, source, rawURL string, params url.Values, headers map[string]string, dst interface{}) error {
	fullURL := rawURL
	if len(params) > 0 {
		fullURL = rawURL + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			logrus.WithFields(logrus.Fields{"source": source, "attempt": attempt, "error": err}).Warn("Request failed")
			lastErr = err
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			logrus.WithFields(logrus.Fields{"source": source, "status": resp.StatusCode, "attempt": attempt}).Warn("Server error from upstream")
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: upstreamMessage(body), Source: source}
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, Message: upstreamMessage(body), Source: source}
		}

		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", source, err)
		}
		return nil
	}
	return fmt.Errorf("%s request failed after %d attempts: %w", source, maxRetries, lastErr)
}

// upstreamMessage pulls a human-readable error out of an upstream body.
// Both OpenWeatherMap and KudaGo use "message"/"detail" fields.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
