// Package listing provides a client for the external match-listing API.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRateLimit  = 5 // requests per second
	DefaultMaxRetries = 3
)

// Client implements interfaces.ListingClient over the external match-listing API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	maxRetries int
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries overrides the retry ceiling for transient failures.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// NewClient creates a new listing API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents a listing API error.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("listing API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request, retrying transient failures with
// exponential backoff: on 429 and 5xx responses and network errors the request
// is tried up to maxRetries times in total; any other 4xx fails immediately.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	backoff := time.Second
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", path).Msg("listing API connection error")
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			} else if resp.StatusCode == http.StatusOK {
				if err := json.Unmarshal(body, result); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
				return nil
			} else if resp.StatusCode == http.StatusTooManyRequests {
				lastErr = &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
				backoff *= 2
			} else if resp.StatusCode >= 500 {
				lastErr = &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
			} else {
				return &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
			}
		}

		if attempt < c.maxRetries-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("listing API request failed after %d attempts: %w", c.maxRetries, lastErr)
}

// matchListResponse normalizes the several response shapes the listing API
// uses for its "all live" and "history" endpoints.
type matchListResponse struct {
	Data json.RawMessage `json:"data"`
}

func extractMatchList(raw []byte) []map[string]any {
	var asList []map[string]any
	if json.Unmarshal(raw, &asList) == nil {
		return asList
	}

	var wrapper matchListResponse
	if json.Unmarshal(raw, &wrapper) != nil {
		return nil
	}
	inner := json.RawMessage(raw)
	if wrapper.Data != nil {
		if json.Unmarshal(wrapper.Data, &asList) == nil {
			return asList
		}
		inner = wrapper.Data
	}

	var nested struct {
		Matches []map[string]any `json:"matches"`
		Content []map[string]any `json:"content"`
		List    []map[string]any `json:"list"`
	}
	if json.Unmarshal(inner, &nested) == nil {
		switch {
		case len(nested.Matches) > 0:
			return nested.Matches
		case len(nested.Content) > 0:
			return nested.Content
		case len(nested.List) > 0:
			return nested.List
		}
	}
	return nil
}

// descriptorFromRaw builds a match descriptor from one raw listing record.
// It reports false when a required field (liveId, black or white player) is
// missing, so the caller can discard the record instead of creating an
// unidentifiable match.
func descriptorFromRaw(raw map[string]any) (interfaces.MatchDescriptor, bool) {
	md := raw
	if inner, ok := raw["liveMatch"].(map[string]any); ok {
		md = inner
	}

	liveID := stringField(md, "liveId", "id")
	black := stringField(md, "pb", "blackPlayer")
	white := stringField(md, "pw", "whitePlayer")
	if liveID == "" || black == "" || white == "" {
		return interfaces.MatchDescriptor{}, false
	}

	tournament := stringField(md, "name", "eventName", "matchName")
	if tournament == "" {
		tournament = "Unknown Tournament"
	}

	return interfaces.MatchDescriptor{
		LiveID:     liveID,
		Source:     "listing",
		Tournament: tournament,
		Black:      black,
		White:      white,
	}, true
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return fmt.Sprintf("%v", t)
			}
		}
	}
	return ""
}

// GetLiveMatches returns all currently live match descriptors.
func (c *Client) GetLiveMatches(ctx context.Context) ([]interfaces.MatchDescriptor, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/all", nil, &raw); err != nil {
		return nil, err
	}
	items := extractMatchList(raw)
	out := make([]interfaces.MatchDescriptor, 0, len(items))
	for _, item := range items {
		if md, ok := descriptorFromRaw(item); ok {
			out = append(out, md)
		}
	}
	return out, nil
}

// GetHistory returns one page of completed match descriptors.
func (c *Client) GetHistory(ctx context.Context, page, size int) ([]interfaces.MatchDescriptor, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("size", fmt.Sprintf("%d", size))
	params.Set("live_type", "TOP_LIVE")

	var raw json.RawMessage
	if err := c.get(ctx, "/history", params, &raw); err != nil {
		return nil, err
	}
	items := extractMatchList(raw)
	out := make([]interfaces.MatchDescriptor, 0, len(items))
	for _, item := range items {
		if md, ok := descriptorFromRaw(item); ok {
			out = append(out, md)
		}
	}
	return out, nil
}

// situationResponse mirrors the listing API's per-match situation payload.
type situationResponse struct {
	Data      json.RawMessage `json:"data"`
	LiveMatch json.RawMessage `json:"liveMatch"`
	Moves     any             `json:"moves"`
}

// GetSituation returns the current move list and status for one live match.
func (c *Client) GetSituation(ctx context.Context, liveID string) (*interfaces.Situation, error) {
	params := url.Values{}
	params.Set("no_cache", "1")

	var raw json.RawMessage
	if err := c.get(ctx, "/situation/"+liveID, params, &raw); err != nil {
		return nil, err
	}

	var wrapper situationResponse
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode situation response: %w", err)
	}

	body := raw
	if wrapper.Data != nil {
		body = wrapper.Data
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode nested situation response: %w", err)
		}
	}

	var md map[string]any
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("failed to decode situation fields: %w", err)
	}
	if inner, ok := md["liveMatch"].(map[string]any); ok {
		md = inner
	}

	liveStatus, _ := md["liveStatus"].(float64)
	status := interfaces.Situation{}
	if liveStatus == 0 {
		status.Status = "live"
	} else {
		status.Status = "finished"
	}

	movesRaw := md["moves"]
	if movesRaw == nil {
		movesRaw = md["moveList"]
	}
	status.Moves = parseMoves(movesRaw)

	if wr, ok := md["winrate"].(float64); ok {
		status.Winrate = &wr
	}
	if sc, ok := md["score"].(float64); ok {
		status.ScoreLead = &sc
	} else if sc, ok := md["blackScore"].(float64); ok {
		status.ScoreLead = &sc
	}

	return &status, nil
}

var _ interfaces.ListingClient = (*Client)(nil)
