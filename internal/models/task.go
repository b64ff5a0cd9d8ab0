package models

import "time"

// Task status constants.
const (
	TaskStatusPending = "pending"
	TaskStatusRunning = "running"
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// Named priority levels (higher is more urgent).
const (
	PriorityLiveNew      = 1000
	PriorityUserView     = 500
	PriorityLiveBackfill = 100
	PriorityFinished     = 10
	PriorityHistorical   = 1
)

// DefaultMaxRetries is the retry_count ceiling at which a task becomes
// terminally failed.
const DefaultMaxRetries = 3

// Player tags.
const (
	PlayerBlack = "B"
	PlayerWhite = "W"
)

// CandidateMove is one entry of an analysis result's top-move list.
type CandidateMove struct {
	Move      string   `json:"move"`
	Visits    int      `json:"visits"`
	Winrate   float64  `json:"winrate"`
	ScoreLead float64  `json:"score_lead"`
	Prior     float64  `json:"prior"`
	PV        []string `json:"pv"`
}

// Task is a durable per-(match, move) analysis request (C1). Unique by
// (MatchID, MoveNumber); MoveNumber 0 denotes the empty starting position,
// k>0 denotes the position after the k-th move.
type Task struct {
	ID          string `json:"id"`
	MatchID     string `json:"match_id"`
	MoveNumber  int    `json:"move_number"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	ActualMove  string `json:"actual_move,omitempty"`
	ActualPlayer string `json:"actual_player,omitempty"`

	// Result fields, populated iff Status == TaskStatusSuccess.
	Winrate    float64          `json:"winrate"`
	ScoreLead  float64          `json:"score_lead"`
	TopMoves   []CandidateMove  `json:"top_moves,omitempty"`
	Ownership  [][]float64      `json:"ownership,omitempty"`

	// Classification, written by the delta classifier.
	DeltaWinrate    float64 `json:"delta_winrate"`
	DeltaScore      float64 `json:"delta_score"`
	IsBrilliant     bool    `json:"is_brilliant"`
	IsMistake       bool    `json:"is_mistake"`
	IsQuestionable  bool    `json:"is_questionable"`

	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	AnalyzedAt   *time.Time `json:"analyzed_at,omitempty"`
}

// ActualPlayerForMoveNumber returns "B" for odd move numbers and "W" for
// even ones, per the glossary's move-number convention (move k is played
// by Black when k is odd).
func ActualPlayerForMoveNumber(mn int) string {
	if mn%2 == 1 {
		return PlayerBlack
	}
	return PlayerWhite
}
