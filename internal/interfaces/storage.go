// Package interfaces defines service contracts for goshin.
package interfaces

import (
	"context"

	"github.com/ternarybob/goshin/internal/models"
)

// StorageManager coordinates the storage backends used by the core.
type StorageManager interface {
	TaskStore() TaskStore
	MatchStore() MatchStore
	Close() error
}

// TaskStore is the durable task queue (C1). See spec §4.1 for the exact
// contract each method must honor.
type TaskStore interface {
	// FetchPending atomically selects up to limit pending tasks ordered by
	// priority DESC, created_at ASC, flips them to running, and returns
	// them. A task is returned to at most one caller.
	FetchPending(ctx context.Context, limit int) ([]*models.Task, error)

	// PeekHighestPendingPriority returns the maximum priority among pending
	// tasks, and false if there are none. Never mutates.
	PeekHighestPendingPriority(ctx context.Context) (int, bool, error)

	// ResetStaleRunning bulk-transitions all running tasks back to pending,
	// returning the number reset. Called once on dispatcher startup.
	ResetStaleRunning(ctx context.Context) (int, error)

	// SaveResult marks a task success and fills its result fields. No-op if
	// the task no longer exists.
	SaveResult(ctx context.Context, taskID string, winrate, scoreLead float64, topMoves []models.CandidateMove, ownership [][]float64) error

	// MarkFailed increments retry_count and stores the error; terminal
	// failure at maxRetries. No-op if the task no longer exists.
	MarkFailed(ctx context.Context, taskID, errMsg string, maxRetries int) error

	// MarkPending forces running -> pending without incrementing retries.
	// Used by preemption.
	MarkPending(ctx context.Context, taskID string) error

	// CreatePending upserts one task per move number in moveNumbers for
	// matchID. moves, if supplied, supplies ActualMove/ActualPlayer for
	// move numbers within range. Returns the count of rows actually
	// inserted.
	CreatePending(ctx context.Context, matchID string, moveNumbers []int, priority int, moves []string) (int, error)

	// GetTask returns a single task by (matchID, moveNumber), or nil if
	// absent.
	GetTask(ctx context.Context, matchID string, moveNumber int) (*models.Task, error)

	// SaveClassification writes back the delta classifier's verdict for one
	// successful task. No-op if the task no longer exists.
	SaveClassification(ctx context.Context, taskID string, deltaWinrate, deltaScore float64, isBrilliant, isMistake, isQuestionable bool) error
}

// MatchStore is the durable match record (C2).
type MatchStore interface {
	// Upsert creates the match if absent, or updates its mutable fields
	// (moves, status, rollup values) if present.
	Upsert(ctx context.Context, match *models.Match) error

	// Get retrieves a match by id, or nil if absent.
	Get(ctx context.Context, matchID string) (*models.Match, error)

	// ListLive returns all matches with status "live".
	ListLive(ctx context.Context) ([]*models.Match, error)

	// UpdateRollup overwrites the match's most-recent win-rate/score-lead
	// rollup fields. Last-writer-wins; no ordering enforcement.
	UpdateRollup(ctx context.Context, matchID string, winrate, scoreLead float64) error
}
