package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SerperEndpoint is the Serper Google search API.
const SerperEndpoint = "https://google.serper.dev/search"

// Serper calls the Serper search API.
type Serper struct {
	APIKey   string
	Endpoint string
	client   *http.Client

	// Backoff on 429: starts at InitialBackoff, doubles up to MaxBackoff,
	// and gives up after MaxRateLimitRetries waits.
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	MaxRateLimitRetries int
}

// NewSerper constructs a Serper provider with a 10 second HTTP timeout.
func NewSerper(apiKey string) *Serper {
	return NewSerperWithClient(apiKey, &http.Client{Timeout: 10 * time.Second})
}

// NewSerperWithClient constructs a Serper provider using the supplied HTTP client.
func NewSerperWithClient(apiKey string, client *http.Client) *Serper {
	return &Serper{
		APIKey:              apiKey,
		Endpoint:            SerperEndpoint,
		client:              client,
		InitialBackoff:      time.Second,
		MaxBackoff:          30 * time.Second,
		MaxRateLimitRetries: 4,
	}
}

func (s *Serper) Available() bool { return s.APIKey != "" }

// Search posts a query and returns at most topK organic results.
func (s *Serper) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	payload, err := json.Marshal(map[string]any{"q": query, "num": topK})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var resp *http.Response
	delay := s.InitialBackoff
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", s.APIKey)

		resp, err = s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()
		if attempt >= s.MaxRateLimitRetries {
			return nil, fmt.Errorf("%w: serper rate limited", ErrUnavailable)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < s.MaxBackoff {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: serper http %d", ErrUnavailable, resp.StatusCode)
	}

	var response struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: decode serper response: %v", ErrUnavailable, err)
	}

	results := make([]Result, 0, len(response.Organic))
	for _, r := range response.Organic {
		results = append(results, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}
