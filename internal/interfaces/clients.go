// Package interfaces defines service contracts for goshin.
package interfaces

import (
	"context"

	"github.com/ternarybob/goshin/internal/models"
)

// AnalyzeRequest is the document sent to the engine for one task.
type AnalyzeRequest struct {
	ID           string // cron_<match_id>_<move_number>
	Rules        string
	Komi         float64
	BoardXSize   int
	BoardYSize   int
	Moves        [][2]string // [player, coord] pairs
	AnalyzeTurns []int
	MaxVisits    int
	Priority     int
}

// AnalyzeResult is the parsed engine response (§4.4). Failed is true when
// the engine response carried an error field; the caller should treat it
// the same as a transport failure.
type AnalyzeResult struct {
	Failed    bool
	Winrate   float64
	ScoreLead float64
	TopMoves  []models.CandidateMove
	Ownership [][]float64
}

// EngineClient talks to the external Go-analysis engine.
type EngineClient interface {
	// Analyze issues one analysis request and blocks until the engine
	// responds, ctx is cancelled (preemption), or ctx's deadline elapses
	// (timeout). Cancellation and timeout must be distinguishable by the
	// caller via ctx.Err().
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)

	// Health checks engine availability.
	Health(ctx context.Context) error
}

// MatchDescriptor is one entry from the listing API's "all live" or
// "history" endpoints.
type MatchDescriptor struct {
	LiveID     string
	Source     string
	Tournament string
	Black      string
	White      string
}

// Situation is the current move list and status of one live match, as
// reported by the listing API's "situation" endpoint.
type Situation struct {
	Moves     []string
	Status    string // "live" or "finished"
	Winrate   *float64
	ScoreLead *float64
}

// ListingClient talks to the external match-listing API.
type ListingClient interface {
	// GetLiveMatches returns all currently live match descriptors.
	GetLiveMatches(ctx context.Context) ([]MatchDescriptor, error)

	// GetHistory returns one page of completed match descriptors.
	GetHistory(ctx context.Context, page, size int) ([]MatchDescriptor, error)

	// GetSituation returns the current move list and status for one live
	// match.
	GetSituation(ctx context.Context, liveID string) (*Situation, error)
}
