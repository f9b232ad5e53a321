package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"battery-sizer/internal/model"
)

// HTTPSource fetches profiles from a JSON endpoint serving the same document
// JSONSource reads from disk.
type HTTPSource struct {
	URL    string
	APIKey string
	Client *http.Client
	Logger *slog.Logger
}

// NewHTTPSource creates a source with a 30s client timeout.
func NewHTTPSource(rawURL, apiKey string, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		URL:    rawURL,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: logger,
	}
}

// FetchError is a non-200 answer from the profile endpoint.
type FetchError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string
}

func (e *FetchError) Error() string {
	return e.Message
}

func (s *HTTPSource) Load(ctx context.Context) (model.Profiles, error) {
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return model.Profiles{}, fmt.Errorf("invalid profile url %q", s.URL)
	}
	log := s.Logger.With(slog.String("host", u.Host), slog.String("path", u.Path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Profiles{}, fmt.Errorf("failed to create request: %w", err)
	}
	if s.APIKey != "" {
		req.Header.Set("x-api-key", s.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("profile request failed", slog.Any("error", err), slog.Duration("elapsed", elapsed))
		return model.Profiles{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	log.Debug("profile response", slog.Int("status", resp.StatusCode), slog.Duration("elapsed", elapsed))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.Profiles{}, &FetchError{
			StatusCode: resp.StatusCode,
			Code:       "UNAUTHORIZED",
			Message:    "profile endpoint rejected the API key",
		}
	case http.StatusNotFound:
		return model.Profiles{}, &FetchError{
			StatusCode: resp.StatusCode,
			Code:       "NOT_FOUND",
			Message:    fmt.Sprintf("no profiles at %s", u.Path),
		}
	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		return model.Profiles{}, &FetchError{
			StatusCode: resp.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    fmt.Sprintf("rate limit exceeded, retry after: %s", retryAfter),
			RetryAfter: retryAfter,
		}
	default:
		return model.Profiles{}, &FetchError{
			StatusCode: resp.StatusCode,
			Code:       "API_ERROR",
			Message:    fmt.Sprintf("profile endpoint returned %d: %s", resp.StatusCode, resp.Status),
		}
	}

	var p model.Profiles
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return model.Profiles{}, fmt.Errorf("failed to decode response: %w", err)
	}
	log.Info("profiles fetched",
		slog.Int("demand_hours", len(p.DemandFraction)),
		slog.Int("pv_hours", len(p.PVFraction)))
	return p, nil
}
