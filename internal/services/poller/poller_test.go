package poller

import (
	"context"
	"testing"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
)

type fakeListing struct {
	live       []interfaces.MatchDescriptor
	situations map[string]*interfaces.Situation
	failFor    map[string]bool
}

func (f *fakeListing) GetLiveMatches(ctx context.Context) ([]interfaces.MatchDescriptor, error) {
	return f.live, nil
}
func (f *fakeListing) GetHistory(ctx context.Context, page, size int) ([]interfaces.MatchDescriptor, error) {
	return nil, nil
}
func (f *fakeListing) GetSituation(ctx context.Context, liveID string) (*interfaces.Situation, error) {
	if f.failFor[liveID] {
		return nil, errFake
	}
	return f.situations[liveID], nil
}

var errFake = &fakeErr{"fake error"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type fakeMatches struct {
	byID map[string]*models.Match
}

func newFakeMatches() *fakeMatches { return &fakeMatches{byID: map[string]*models.Match{}} }

func (f *fakeMatches) Upsert(ctx context.Context, match *models.Match) error {
	f.byID[match.MatchID] = match
	return nil
}
func (f *fakeMatches) Get(ctx context.Context, matchID string) (*models.Match, error) {
	return f.byID[matchID], nil
}
func (f *fakeMatches) ListLive(ctx context.Context) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range f.byID {
		if m.Status == models.MatchStatusLive {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeMatches) UpdateRollup(ctx context.Context, matchID string, winrate, scoreLead float64) error {
	if m, ok := f.byID[matchID]; ok {
		m.KatagoWinrate = winrate
		m.KatagoScore = scoreLead
	}
	return nil
}

type fakeTasks struct {
	created map[string][]int
	priors  map[string]int
}

func newFakeTasks() *fakeTasks { return &fakeTasks{created: map[string][]int{}, priors: map[string]int{}} }

func (f *fakeTasks) FetchPending(ctx context.Context, limit int) ([]*models.Task, error) { return nil, nil }
func (f *fakeTasks) PeekHighestPendingPriority(ctx context.Context) (int, bool, error) {
	return 0, false, nil
}
func (f *fakeTasks) ResetStaleRunning(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeTasks) SaveResult(ctx context.Context, taskID string, winrate, scoreLead float64, topMoves []models.CandidateMove, ownership [][]float64) error {
	return nil
}
func (f *fakeTasks) MarkFailed(ctx context.Context, taskID, errMsg string, maxRetries int) error {
	return nil
}
func (f *fakeTasks) MarkPending(ctx context.Context, taskID string) error { return nil }
func (f *fakeTasks) CreatePending(ctx context.Context, matchID string, moveNumbers []int, priority int, moves []string) (int, error) {
	f.created[matchID] = append(f.created[matchID], moveNumbers...)
	f.priors[matchID] = priority
	return len(moveNumbers), nil
}
func (f *fakeTasks) GetTask(ctx context.Context, matchID string, moveNumber int) (*models.Task, error) {
	return nil, nil
}
func (f *fakeTasks) SaveClassification(ctx context.Context, taskID string, deltaWinrate, deltaScore float64, isBrilliant, isMistake, isQuestionable bool) error {
	return nil
}

func testLogger() *common.Logger { return common.NewSilentLogger() }

func TestPoller_DiscoversNewLiveMatch(t *testing.T) {
	listing := &fakeListing{
		live: []interfaces.MatchDescriptor{{LiveID: "live-1", Source: "listing", Tournament: "LG Cup", Black: "A", White: "B"}},
		situations: map[string]*interfaces.Situation{
			"live-1": {Status: "live", Moves: []string{"D4"}},
		},
	}
	matches := newFakeMatches()
	tasks := newFakeTasks()
	p := New(listing, matches, tasks, testLogger())

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	match := matches.byID["live-1"]
	if match == nil {
		t.Fatal("expected match to be created on first sight")
	}
	if match.Tournament != "LG Cup" {
		t.Errorf("expected tournament LG Cup, got %s", match.Tournament)
	}
	if match.MoveCount != 1 {
		t.Errorf("expected move_count 1, got %d", match.MoveCount)
	}
	if nums := tasks.created["live-1"]; len(nums) != 1 || nums[0] != 1 {
		t.Errorf("expected task created for move 1, got %+v", nums)
	}
	if tasks.priors["live-1"] != models.PriorityLiveNew {
		t.Errorf("expected LIVE_NEW priority, got %d", tasks.priors["live-1"])
	}
}

func TestPoller_NewMovesCreateHighPriorityTasks(t *testing.T) {
	matches := newFakeMatches()
	existing := models.NewMatch("match-1", "listing", "live-1")
	existing.Status = models.MatchStatusLive
	existing.Moves = []string{"D4"}
	existing.MoveCount = 1
	matches.byID["match-1"] = existing

	listing := &fakeListing{
		situations: map[string]*interfaces.Situation{
			"live-1": {Status: "live", Moves: []string{"D4", "Q16", "C3"}},
		},
	}
	tasks := newFakeTasks()
	p := New(listing, matches, tasks, testLogger())

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	nums := tasks.created["match-1"]
	if len(nums) != 2 || nums[0] != 2 || nums[1] != 3 {
		t.Errorf("expected tasks for moves 2,3, got %+v", nums)
	}
}

func TestPoller_BackfillsOnFinishTransition(t *testing.T) {
	matches := newFakeMatches()
	existing := models.NewMatch("match-1", "listing", "live-1")
	existing.Status = models.MatchStatusLive
	existing.Moves = []string{"D4", "Q16"}
	existing.MoveCount = 2
	matches.byID["match-1"] = existing

	listing := &fakeListing{
		situations: map[string]*interfaces.Situation{
			"live-1": {Status: "finished", Moves: []string{"D4", "Q16"}},
		},
	}
	tasks := newFakeTasks()
	p := New(listing, matches, tasks, testLogger())

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if matches.byID["match-1"].Status != models.MatchStatusFinished {
		t.Error("expected match status updated to finished")
	}
	nums := tasks.created["match-1"]
	if len(nums) != 3 {
		t.Errorf("expected backfill for moves 0,1,2, got %+v", nums)
	}
}

func TestPoller_ErrorOnOneMatchDoesNotAbortSweep(t *testing.T) {
	matches := newFakeMatches()
	bad := models.NewMatch("match-bad", "listing", "live-bad")
	bad.Status = models.MatchStatusLive
	matches.byID["match-bad"] = bad
	good := models.NewMatch("match-good", "listing", "live-good")
	good.Status = models.MatchStatusLive
	matches.byID["match-good"] = good

	listing := &fakeListing{
		failFor: map[string]bool{"live-bad": true},
		situations: map[string]*interfaces.Situation{
			"live-good": {Status: "live", Moves: []string{"D4"}},
		},
	}
	tasks := newFakeTasks()
	p := New(listing, matches, tasks, testLogger())

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run should not abort on a single match error: %v", err)
	}
	if nums := tasks.created["match-good"]; len(nums) != 1 {
		t.Errorf("expected match-good to still be reconciled, got %+v", nums)
	}
}
