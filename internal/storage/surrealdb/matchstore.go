package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
)

// MatchStore implements interfaces.MatchStore using SurrealDB.
type MatchStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewMatchStore creates a new MatchStore.
func NewMatchStore(db *surrealdb.DB, logger *common.Logger) *MatchStore {
	return &MatchStore{db: db, logger: logger}
}

func (s *MatchStore) Upsert(ctx context.Context, match *models.Match) error {
	existing, err := s.Get(ctx, match.MatchID)
	if err != nil {
		return fmt.Errorf("failed to check existing match: %w", err)
	}

	if existing == nil {
		sql := "UPSERT $rid CONTENT $match"
		vars := map[string]any{
			"rid":   surrealmodels.NewRecordID("match", match.MatchID),
			"match": match,
		}
		if _, err := surrealdb.Query[[]models.Match](ctx, s.db, sql, vars); err != nil {
			return fmt.Errorf("failed to upsert match: %w", err)
		}
		return nil
	}

	sql := `UPDATE $rid SET moves = $moves, move_count = $move_count, status = $status, result = $result,
		katago_winrate = $katago_winrate, katago_score = $katago_score`
	vars := map[string]any{
		"rid":            surrealmodels.NewRecordID("match", match.MatchID),
		"moves":          match.Moves,
		"move_count":     match.MoveCount,
		"status":         match.Status,
		"result":         match.Result,
		"katago_winrate": match.KatagoWinrate,
		"katago_score":   match.KatagoScore,
	}
	if _, err := surrealdb.Query[[]models.Match](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	return nil
}

func (s *MatchStore) Get(ctx context.Context, matchID string) (*models.Match, error) {
	match, err := surrealdb.Select[models.Match](ctx, s.db, surrealmodels.NewRecordID("match", matchID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return match, nil
}

func (s *MatchStore) ListLive(ctx context.Context) ([]*models.Match, error) {
	sql := "SELECT * FROM match WHERE status = $status ORDER BY created_at ASC"
	vars := map[string]any{"status": models.MatchStatusLive}
	results, err := surrealdb.Query[[]models.Match](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list live matches: %w", err)
	}

	var matches []*models.Match
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			matches = append(matches, &(*results)[0].Result[i])
		}
	}
	return matches, nil
}

func (s *MatchStore) UpdateRollup(ctx context.Context, matchID string, winrate, scoreLead float64) error {
	sql := "UPDATE $rid SET katago_winrate = $winrate, katago_score = $score"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("match", matchID),
		"winrate": winrate,
		"score":   scoreLead,
	}
	if _, err := surrealdb.Query[[]models.Match](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update match rollup: %w", err)
	}
	return nil
}

// isNotFoundError reports whether err is SurrealDB's "record not found"
// response to a Select on a missing record id.
func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

var _ interfaces.MatchStore = (*MatchStore)(nil)
