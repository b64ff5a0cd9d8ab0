// Package classifier computes move-quality deltas from consecutive analysis
// results (C5).
package classifier

import (
	"context"
	"fmt"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
)

// Classification thresholds on delta score, from the player's perspective.
const (
	brilliantThreshold    = 2.0
	mistakeThreshold      = -3.0
	questionableThreshold = -1.0
)

// Classifier writes the brilliant/mistake/questionable verdict for one task
// once its analysis succeeds, by comparing it to the previous move's result.
type Classifier struct {
	tasks   interfaces.TaskStore
	matches interfaces.MatchStore
	logger  *common.Logger
}

// New creates a new Classifier.
func New(tasks interfaces.TaskStore, matches interfaces.MatchStore, logger *common.Logger) *Classifier {
	return &Classifier{tasks: tasks, matches: matches, logger: logger}
}

// Classify runs immediately after a successful save_result for task. Moves
// are priced from Black's perspective in the store; actual_player == 'W'
// negates both deltas so positive always means "good for the mover".
// A previous task with no stored score lead reads as 0.0 (the zero value),
// so the score delta is then taken against 0.0.
func (c *Classifier) Classify(ctx context.Context, task *models.Task) error {
	if task.MoveNumber == 0 {
		return nil
	}

	prev, err := c.tasks.GetTask(ctx, task.MatchID, task.MoveNumber-1)
	if err != nil {
		return fmt.Errorf("failed to load previous task for classification: %w", err)
	}
	if prev == nil || prev.Status != models.TaskStatusSuccess {
		c.logger.Debug().
			Str("match_id", task.MatchID).
			Int("move_number", task.MoveNumber).
			Msg("classifier: previous move not yet successful, skipping")
		return nil
	}

	deltaWinrate := task.Winrate - prev.Winrate
	deltaScore := task.ScoreLead - prev.ScoreLead
	if task.ActualPlayer == models.PlayerWhite {
		deltaWinrate = -deltaWinrate
		deltaScore = -deltaScore
	}

	isBrilliant := deltaScore > brilliantThreshold
	isMistake := deltaScore < mistakeThreshold
	isQuestionable := deltaScore >= mistakeThreshold && deltaScore < questionableThreshold

	if err := c.tasks.SaveClassification(ctx, task.ID, deltaWinrate, deltaScore, isBrilliant, isMistake, isQuestionable); err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	task.DeltaWinrate = deltaWinrate
	task.DeltaScore = deltaScore
	task.IsBrilliant = isBrilliant
	task.IsMistake = isMistake
	task.IsQuestionable = isQuestionable

	if err := c.matches.UpdateRollup(ctx, task.MatchID, task.Winrate, task.ScoreLead); err != nil {
		return fmt.Errorf("failed to update match rollup: %w", err)
	}

	if isBrilliant || isMistake || isQuestionable {
		c.logger.Info().
			Str("match_id", task.MatchID).
			Int("move_number", task.MoveNumber).
			Float64("delta_score", deltaScore).
			Bool("brilliant", isBrilliant).
			Bool("mistake", isMistake).
			Bool("questionable", isQuestionable).
			Msg("classifier: move classified")
	}

	return nil
}
