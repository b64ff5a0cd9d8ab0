// Package poller reconciles live match move lists against the task queue
// and match store (C3).
package poller

import (
	"context"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
)

// Poller discovers live matches and reconciles their move lists, creating
// analysis tasks for newly-appended moves.
type Poller struct {
	listing interfaces.ListingClient
	matches interfaces.MatchStore
	tasks   interfaces.TaskStore
	logger  *common.Logger
}

// New creates a new Poller.
func New(listing interfaces.ListingClient, matches interfaces.MatchStore, tasks interfaces.TaskStore, logger *common.Logger) *Poller {
	return &Poller{listing: listing, matches: matches, tasks: tasks, logger: logger}
}

// Run performs one reconciliation pass: discover newly-live matches, then
// reconcile the move list of every match currently recorded as live.
// Errors fetching one match are logged but never abort the
// sweep over the remaining matches.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.discover(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("poller: failed to discover live matches")
	}

	live, err := p.matches.ListLive(ctx)
	if err != nil {
		return err
	}

	for _, match := range live {
		if err := p.pollOne(ctx, match); err != nil {
			p.logger.Warn().Str("match_id", match.MatchID).Err(err).Msg("poller: failed to poll match, continuing")
		}
	}
	return nil
}

// discover creates a Match record (C2) on first sight of each currently
// live match from the external listing API.
func (p *Poller) discover(ctx context.Context) error {
	descriptors, err := p.listing.GetLiveMatches(ctx)
	if err != nil {
		return err
	}

	for _, d := range descriptors {
		existing, err := p.matches.Get(ctx, d.LiveID)
		if err != nil {
			p.logger.Warn().Str("live_id", d.LiveID).Err(err).Msg("poller: failed to check existing match, continuing")
			continue
		}
		if existing != nil {
			continue
		}

		match := models.NewMatch(d.LiveID, d.Source, d.LiveID)
		match.Tournament = d.Tournament
		match.Black = d.Black
		match.White = d.White

		if err := p.matches.Upsert(ctx, match); err != nil {
			p.logger.Warn().Str("live_id", d.LiveID).Err(err).Msg("poller: failed to create new match, continuing")
		}
	}
	return nil
}

// pollOne reconciles one live match's move list against its current
// situation and creates analysis tasks for anything new (§4.2).
func (p *Poller) pollOne(ctx context.Context, match *models.Match) error {
	situation, err := p.listing.GetSituation(ctx, match.SourceID)
	if err != nil {
		return err
	}

	oldCount := match.MoveCount
	oldStatus := match.Status
	newCount := len(situation.Moves)

	if len(situation.Moves) > 0 {
		match.Moves = situation.Moves
	}
	match.MoveCount = newCount
	match.Status = situation.Status
	if situation.Winrate != nil {
		match.KatagoWinrate = *situation.Winrate
	}
	if situation.ScoreLead != nil {
		match.KatagoScore = *situation.ScoreLead
	}

	if err := p.matches.Upsert(ctx, match); err != nil {
		return err
	}

	if newCount > oldCount {
		newMoveNumbers := make([]int, 0, newCount-oldCount)
		for mn := oldCount + 1; mn <= newCount; mn++ {
			newMoveNumbers = append(newMoveNumbers, mn)
		}
		created, err := p.tasks.CreatePending(ctx, match.MatchID, newMoveNumbers, models.PriorityLiveNew, match.Moves)
		if err != nil {
			return err
		}
		p.logger.Info().
			Str("match_id", match.MatchID).
			Int("old_count", oldCount).
			Int("new_count", newCount).
			Int("created", created).
			Msg("poller: new moves, created tasks")
	}

	if oldStatus != models.MatchStatusFinished && match.Status == models.MatchStatusFinished {
		allMoveNumbers := make([]int, 0, newCount+1)
		for mn := 0; mn <= newCount; mn++ {
			allMoveNumbers = append(allMoveNumbers, mn)
		}
		created, err := p.tasks.CreatePending(ctx, match.MatchID, allMoveNumbers, models.PriorityLiveBackfill, match.Moves)
		if err != nil {
			return err
		}
		if created > 0 {
			p.logger.Info().Str("match_id", match.MatchID).Int("created", created).Msg("poller: backfilled finished match")
		}
	}

	return nil
}
