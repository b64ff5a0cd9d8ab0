// Package engine provides a client for the external Go-analysis engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:8600"
	DefaultAnalyzePath = "/analyze"
	DefaultHealthPath  = "/health"
	DefaultTimeout     = 60 * time.Second
)

// Client implements interfaces.EngineClient over the engine's HTTP analyze API.
type Client struct {
	baseURL     string
	analyzePath string
	healthPath  string
	httpClient  *http.Client
	logger      *common.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithAnalyzePath sets the analyze endpoint path.
func WithAnalyzePath(path string) ClientOption {
	return func(c *Client) {
		c.analyzePath = path
	}
}

// WithHealthPath sets the health endpoint path.
func WithHealthPath(path string) ClientOption {
	return func(c *Client) {
		c.healthPath = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPTimeout sets the HTTP client's own timeout, independent of any
// per-request context deadline the caller supplies.
func WithHTTPTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new engine client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		analyzePath: DefaultAnalyzePath,
		healthPath:  DefaultHealthPath,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		logger:      common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents an engine API error.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// analyzePayload mirrors the engine's JSON analysis request (§4.4).
type analyzePayload struct {
	ID               string              `json:"id"`
	Rules            string              `json:"rules"`
	Komi             float64             `json:"komi"`
	BoardXSize       int                 `json:"boardXSize"`
	BoardYSize       int                 `json:"boardYSize"`
	Moves            [][2]string         `json:"moves"`
	AnalyzeTurns     []int               `json:"analyzeTurns"`
	MaxVisits        int                 `json:"maxVisits"`
	IncludeOwnership bool                `json:"includeOwnership"`
	IncludePolicy    bool                `json:"includePolicy"`
	OverrideSettings overrideSettingsDoc `json:"overrideSettings"`
	Priority         int                 `json:"priority"`
}

type overrideSettingsDoc struct {
	ReportAnalysisWinratesAs string `json:"reportAnalysisWinratesAs"`
}

// defaultRootWinrate and defaultRootScoreLead are the even-game defaults
// used when the engine response omits rootInfo fields entirely.
const (
	defaultRootWinrate   = 0.5
	defaultRootScoreLead = 0.0
)

// analyzeResponse mirrors the engine's raw JSON analysis response.
// RootInfo's fields are pointers so a missing key can be told apart from an
// explicit zero value — encoding/json leaves a plain float64 at 0.0 either
// way, which would misreport an even game (winrate 0.5) as a certain loss.
type analyzeResponse struct {
	Error    string `json:"error"`
	RootInfo struct {
		Winrate   *float64 `json:"winrate"`
		ScoreLead *float64 `json:"scoreLead"`
	} `json:"rootInfo"`
	MoveInfos []struct {
		Move      string   `json:"move"`
		Visits    int      `json:"visits"`
		Winrate   float64  `json:"winrate"`
		ScoreLead float64  `json:"scoreLead"`
		Prior     float64  `json:"prior"`
		PV        []string `json:"pv"`
	} `json:"moveInfos"`
	Ownership []float64 `json:"ownership"`
}

// Analyze issues one analysis request and blocks until the engine responds,
// ctx is cancelled (preemption), or ctx's deadline elapses (timeout).
func (c *Client) Analyze(ctx context.Context, req interfaces.AnalyzeRequest) (*interfaces.AnalyzeResult, error) {
	analyzeTurns := req.AnalyzeTurns
	if len(analyzeTurns) == 0 {
		analyzeTurns = []int{len(req.Moves)}
	}

	payload := analyzePayload{
		ID:               req.ID,
		Rules:            req.Rules,
		Komi:             req.Komi,
		BoardXSize:       req.BoardXSize,
		BoardYSize:       req.BoardYSize,
		Moves:            req.Moves,
		AnalyzeTurns:     analyzeTurns,
		MaxVisits:        req.MaxVisits,
		IncludeOwnership: true,
		IncludePolicy:    true,
		OverrideSettings: overrideSettingsDoc{ReportAnalysisWinratesAs: "BLACK"},
		Priority:         req.Priority,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	url := c.baseURL + c.analyzePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("id", req.ID).Int("priority", req.Priority).Msg("engine analyze request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// ctx.Err() distinguishes cancellation (preemption) from a plain
		// timeout (deadline exceeded) for the caller.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to execute analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody), Endpoint: c.analyzePath}
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}

	if parsed.Error != "" {
		return &interfaces.AnalyzeResult{Failed: true}, nil
	}

	topMoves := make([]models.CandidateMove, 0, len(parsed.MoveInfos))
	for i, mi := range parsed.MoveInfos {
		if i >= 10 {
			break
		}
		topMoves = append(topMoves, models.CandidateMove{
			Move:      mi.Move,
			Visits:    mi.Visits,
			Winrate:   mi.Winrate,
			ScoreLead: mi.ScoreLead,
			Prior:     mi.Prior,
			PV:        mi.PV,
		})
	}

	winrate := defaultRootWinrate
	if parsed.RootInfo.Winrate != nil {
		winrate = *parsed.RootInfo.Winrate
	}
	scoreLead := defaultRootScoreLead
	if parsed.RootInfo.ScoreLead != nil {
		scoreLead = *parsed.RootInfo.ScoreLead
	}

	result := &interfaces.AnalyzeResult{
		Winrate:   winrate,
		ScoreLead: scoreLead,
		TopMoves:  topMoves,
		Ownership: unflattenOwnership(parsed.Ownership),
	}
	return result, nil
}

// unflattenOwnership reshapes the engine's flat row-major ownership array
// into a square grid, inferring the board size from its length — the engine
// response carries no explicit board-size field alongside ownership.
func unflattenOwnership(flat []float64) [][]float64 {
	if len(flat) == 0 {
		return nil
	}
	boardSize := int(math.Sqrt(float64(len(flat))))
	if boardSize*boardSize != len(flat) {
		return nil
	}
	grid := make([][]float64, boardSize)
	for y := 0; y < boardSize; y++ {
		row := make([]float64, boardSize)
		for x := 0; x < boardSize; x++ {
			row[x] = flat[y*boardSize+x]
		}
		grid[y] = row
	}
	return grid
}

// Health checks engine availability.
func (c *Client) Health(ctx context.Context) error {
	url := c.baseURL + c.healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: c.healthPath, Message: "unhealthy"}
	}
	return nil
}

var _ interfaces.EngineClient = (*Client)(nil)
