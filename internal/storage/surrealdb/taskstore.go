package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
)

// taskSelectFields lists the fields selected from the task table.
const taskSelectFields = "id, match_id, move_number, status, priority, actual_move, actual_player, " +
	"winrate, score_lead, top_moves, ownership, delta_winrate, delta_score, " +
	"is_brilliant, is_mistake, is_questionable, error_message, retry_count, created_at, analyzed_at"

// TaskStore implements interfaces.TaskStore using SurrealDB. It assumes a
// single dispatcher process per store (§4.1, second realization): pickup is
// a plain ordered select followed by a conditional update, not SKIP LOCKED.
type TaskStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *surrealdb.DB, logger *common.Logger) *TaskStore {
	return &TaskStore{db: db, logger: logger}
}

func taskRecordID(matchID string, moveNumber int) string {
	return fmt.Sprintf("%s_%d", matchID, moveNumber)
}

func (s *TaskStore) FetchPending(ctx context.Context, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	selectSQL := "SELECT " + taskSelectFields + " FROM task WHERE status = $pending " +
		"ORDER BY priority DESC, created_at ASC LIMIT $limit"
	vars := map[string]any{"pending": models.TaskStatusPending, "limit": limit}

	candidates, err := surrealdb.Query[[]models.Task](ctx, s.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending tasks: %w", err)
	}
	if candidates == nil || len(*candidates) == 0 {
		return nil, nil
	}

	var claimed []*models.Task
	for i := range (*candidates)[0].Result {
		t := (*candidates)[0].Result[i]

		updateSQL := "UPDATE $rid SET status = $running WHERE status = $pending"
		updateVars := map[string]any{
			"rid":     surrealmodels.NewRecordID("task", t.ID),
			"running": models.TaskStatusRunning,
			"pending": models.TaskStatusPending,
		}
		updated, err := surrealdb.Query[[]models.Task](ctx, s.db, updateSQL, updateVars)
		if err != nil {
			return claimed, fmt.Errorf("failed to claim task %s: %w", t.ID, err)
		}
		if updated == nil || len(*updated) == 0 || len((*updated)[0].Result) == 0 {
			// Lost the race to another claimant; skip it.
			continue
		}

		t.Status = models.TaskStatusRunning
		claimed = append(claimed, &t)
	}
	return claimed, nil
}

func (s *TaskStore) PeekHighestPendingPriority(ctx context.Context) (int, bool, error) {
	sql := "SELECT math::max(priority) AS max_priority FROM task WHERE status = $pending GROUP ALL"
	vars := map[string]any{"pending": models.TaskStatusPending}

	type maxResult struct {
		MaxPriority int `json:"max_priority"`
	}

	results, err := surrealdb.Query[[]maxResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, false, fmt.Errorf("failed to peek highest pending priority: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].MaxPriority, true, nil
	}
	return 0, false, nil
}

func (s *TaskStore) ResetStaleRunning(ctx context.Context) (int, error) {
	sql := "UPDATE task SET status = $pending WHERE status = $running"
	results, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, map[string]any{
		"pending": models.TaskStatusPending,
		"running": models.TaskStatusRunning,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale running tasks: %w", err)
	}
	// UPDATE returns the records it changed; their number is the reset count.
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func (s *TaskStore) SaveResult(ctx context.Context, taskID string, winrate, scoreLead float64, topMoves []models.CandidateMove, ownership [][]float64) error {
	now := time.Now()
	sql := `UPDATE $rid SET status = $success, winrate = $winrate, score_lead = $score_lead,
		top_moves = $top_moves, ownership = $ownership, analyzed_at = $now, error_message = ""`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("task", taskID),
		"success":    models.TaskStatusSuccess,
		"winrate":    winrate,
		"score_lead": scoreLead,
		"top_moves":  topMoves,
		"ownership":  ownership,
		"now":        now,
	}
	if _, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save task result: %w", err)
	}
	return nil
}

func (s *TaskStore) MarkFailed(ctx context.Context, taskID, errMsg string, maxRetries int) error {
	task, err := s.getByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task for mark_failed: %w", err)
	}
	if task == nil {
		return nil
	}

	retryCount := task.RetryCount + 1
	status := models.TaskStatusPending
	if retryCount >= maxRetries {
		status = models.TaskStatusFailed
	}

	sql := "UPDATE $rid SET status = $status, error_message = $error, retry_count = $retry_count"
	vars := map[string]any{
		"rid":         surrealmodels.NewRecordID("task", taskID),
		"status":      status,
		"error":       errMsg,
		"retry_count": retryCount,
	}
	if _, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

func (s *TaskStore) MarkPending(ctx context.Context, taskID string) error {
	sql := "UPDATE $rid SET status = $pending WHERE status = $running"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("task", taskID),
		"pending": models.TaskStatusPending,
		"running": models.TaskStatusRunning,
	}
	if _, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark task pending: %w", err)
	}
	return nil
}

func (s *TaskStore) CreatePending(ctx context.Context, matchID string, moveNumbers []int, priority int, moves []string) (int, error) {
	inserted := 0
	for _, mn := range moveNumbers {
		existing, err := s.GetTask(ctx, matchID, mn)
		if err != nil {
			return inserted, fmt.Errorf("failed to check existing task %s/%d: %w", matchID, mn, err)
		}

		if existing != nil {
			if existing.Status == models.TaskStatusPending && priority > existing.Priority {
				sql := "UPDATE $rid SET priority = $priority"
				vars := map[string]any{
					"rid":      surrealmodels.NewRecordID("task", existing.ID),
					"priority": priority,
				}
				if _, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, vars); err != nil {
					return inserted, fmt.Errorf("failed to escalate task priority %s/%d: %w", matchID, mn, err)
				}
			}
			continue
		}

		task := &models.Task{
			ID:         taskRecordID(matchID, mn),
			MatchID:    matchID,
			MoveNumber: mn,
			Status:     models.TaskStatusPending,
			Priority:   priority,
			CreatedAt:  time.Now(),
		}
		if len(moves) > 0 && mn >= 1 && mn <= len(moves) {
			task.ActualMove = moves[mn-1]
			task.ActualPlayer = models.ActualPlayerForMoveNumber(mn)
		}

		sql := "UPSERT $rid CONTENT $task"
		vars := map[string]any{
			"rid":  surrealmodels.NewRecordID("task", task.ID),
			"task": task,
		}
		if _, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, vars); err != nil {
			return inserted, fmt.Errorf("failed to create pending task %s/%d: %w", matchID, mn, err)
		}
		inserted++
	}
	return inserted, nil
}

func (s *TaskStore) GetTask(ctx context.Context, matchID string, moveNumber int) (*models.Task, error) {
	return s.getByID(ctx, taskRecordID(matchID, moveNumber))
}

func (s *TaskStore) SaveClassification(ctx context.Context, taskID string, deltaWinrate, deltaScore float64, isBrilliant, isMistake, isQuestionable bool) error {
	sql := `UPDATE $rid SET delta_winrate = $delta_winrate, delta_score = $delta_score,
		is_brilliant = $is_brilliant, is_mistake = $is_mistake, is_questionable = $is_questionable`
	vars := map[string]any{
		"rid":             surrealmodels.NewRecordID("task", taskID),
		"delta_winrate":   deltaWinrate,
		"delta_score":     deltaScore,
		"is_brilliant":    isBrilliant,
		"is_mistake":      isMistake,
		"is_questionable": isQuestionable,
	}
	if _, err := surrealdb.Query[[]models.Task](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save task classification: %w", err)
	}
	return nil
}

func (s *TaskStore) getByID(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := surrealdb.Select[models.Task](ctx, s.db, surrealmodels.NewRecordID("task", taskID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

var _ interfaces.TaskStore = (*TaskStore)(nil)
