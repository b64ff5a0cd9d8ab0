// Package models defines the persisted domain types for goshin.
package models

import "time"

// Match statuses.
const (
	MatchStatusLive     = "live"
	MatchStatusFinished = "finished"
)

// Match defaults, per the listing API's typical board-game conventions.
const (
	DefaultBoardSize = 19
	DefaultKomi      = 7.5
	DefaultRules     = "chinese"
)

// Match is the durable record of one tracked professional match (C2).
// moves[i] is the move played at move number i+1. Created by the move
// poller on first sight; mutated only by the poller (moves, status, and the
// rollup fields when the listing API reports them) and the dispatcher
// (engine rollup fields). Never destroyed by the core.
type Match struct {
	MatchID      string    `json:"match_id"`
	Source       string    `json:"source"`
	SourceID     string    `json:"source_id"`
	Tournament   string    `json:"tournament"`
	Black        string    `json:"black"`
	White        string    `json:"white"`
	Status       string    `json:"status"` // "live" or "finished"
	Result       string    `json:"result,omitempty"`
	Moves        []string  `json:"moves"`
	MoveCount    int       `json:"move_count"`
	BoardSize    int       `json:"board_size"`
	Komi         float64   `json:"komi"`
	Rules        string    `json:"rules"`
	KatagoWinrate float64  `json:"katago_winrate"`
	KatagoScore   float64  `json:"katago_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewMatch builds a Match with spec defaults applied.
func NewMatch(matchID, source, sourceID string) *Match {
	return &Match{
		MatchID:   matchID,
		Source:    source,
		SourceID:  sourceID,
		Status:    MatchStatusLive,
		BoardSize: DefaultBoardSize,
		Komi:      DefaultKomi,
		Rules:     DefaultRules,
	}
}
