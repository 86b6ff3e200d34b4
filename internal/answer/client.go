// Package answer talks to the service that answers legal questions.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/models"
	"go.uber.org/zap"
)

const genericFailure = "Network response was not ok"

// Answerer answers a single legal question.
type Answerer interface {
	Ask(ctx context.Context, question string) (*models.QueryResult, error)
}

type Config struct {
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	TopK       int
	Namespaces []string
}

// Client calls the Answer Service over HTTP. Transport errors and 502/503/504
// are retried up to MaxRetries times; everything else fails on the first
// attempt.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	topK       int
	namespaces []string
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		topK:       cfg.TopK,
		namespaces: cfg.Namespaces,
		logger:     logger,
	}
}

type queryRequest struct {
	Question   string   `json:"question"`
	TopK       int      `json:"top_k,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) Ask(ctx context.Context, question string) (*models.QueryResult, error) {
	payload, err := json.Marshal(queryRequest{
		Question:   question,
		TopK:       c.topK,
		Namespaces: c.namespaces,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying answer request",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindNetwork, genericFailure, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		result, retryable, err := c.do(ctx, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}

	c.logger.Error("Answer request failed", zap.String("endpoint", c.endpoint), zap.Error(lastErr))
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, payload []byte) (*models.QueryResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := genericFailure
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
			message = eb.Error
		}
		return nil, isTransientStatus(resp.StatusCode), &apperr.Error{
			Kind:       apperr.KindNetwork,
			Message:    message,
			StatusCode: resp.StatusCode,
		}
	}

	result, err := decodeResult(body)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}
	return result, false, nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type Health struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"services,omitempty"`
}

// Health queries the service's /health endpoint, which lives at the root of
// the endpoint's host.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	url, err := healthURL(c.endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && health.Status == "" {
		health.Status = "unhealthy"
	}
	return &health, nil
}

func healthURL(endpoint string) (string, error) {
	idx := strings.Index(endpoint, "/api/")
	if idx < 0 {
		return "", errors.New("endpoint has no /api/ path to derive the health URL from")
	}
	return endpoint[:idx] + "/health", nil
}
