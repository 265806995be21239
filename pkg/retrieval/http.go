package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

// HTTPRetriever queries an external search service with bounded retries.
// Transient statuses (502, 503, 504) back off exponentially; anything
// else fails immediately.
type HTTPRetriever struct {
	endpoint   string
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewHTTPRetriever creates a retriever posting search requests to
// endpoint.
func NewHTTPRetriever(endpoint string, logger *slog.Logger) *HTTPRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRetriever{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		logger:     logger.With("component", "retriever"),
	}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Passages []contracts.Passage `json:"passages"`
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, query string, topK int) ([]contracts.Passage, error) {
	delay := r.baseDelay
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrieval retry", "attempt", attempt, "delay", delay.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		passages, err := r.fetch(ctx, query, topK)
		if err == nil {
			return passages, nil
		}
		lastErr = err

		var re *RetrievalError
		if errors.As(err, &re) && re.Retryable {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Transport errors retry; everything else is final.
		if errors.As(err, &re) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *HTTPRetriever) fetch(ctx context.Context, query string, topK int) ([]contracts.Passage, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("retrieval: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &RetrievalError{
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("retrieval: decode response: %w", err)
	}
	return parsed.Passages, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
