package classifier

import (
	"context"
	"testing"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/models"
)

type fakeTaskStore struct {
	tasks          map[string]*models.Task
	classified     map[string]bool
	classifyCalled int
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*models.Task{}, classified: map[string]bool{}}
}

func (f *fakeTaskStore) key(matchID string, moveNumber int) string {
	return matchID + "/" + string(rune('0'+moveNumber))
}

func (f *fakeTaskStore) FetchPending(ctx context.Context, limit int) ([]*models.Task, error) {
	return nil, nil
}
func (f *fakeTaskStore) PeekHighestPendingPriority(ctx context.Context) (int, bool, error) {
	return 0, false, nil
}
func (f *fakeTaskStore) ResetStaleRunning(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeTaskStore) SaveResult(ctx context.Context, taskID string, winrate, scoreLead float64, topMoves []models.CandidateMove, ownership [][]float64) error {
	return nil
}
func (f *fakeTaskStore) MarkFailed(ctx context.Context, taskID, errMsg string, maxRetries int) error {
	return nil
}
func (f *fakeTaskStore) MarkPending(ctx context.Context, taskID string) error { return nil }
func (f *fakeTaskStore) CreatePending(ctx context.Context, matchID string, moveNumbers []int, priority int, moves []string) (int, error) {
	return 0, nil
}
func (f *fakeTaskStore) GetTask(ctx context.Context, matchID string, moveNumber int) (*models.Task, error) {
	return f.tasks[f.key(matchID, moveNumber)], nil
}
func (f *fakeTaskStore) SaveClassification(ctx context.Context, taskID string, deltaWinrate, deltaScore float64, isBrilliant, isMistake, isQuestionable bool) error {
	for _, candidate := range f.tasks {
		if candidate.ID == taskID {
			candidate.DeltaWinrate = deltaWinrate
			candidate.DeltaScore = deltaScore
			candidate.IsBrilliant = isBrilliant
			candidate.IsMistake = isMistake
			candidate.IsQuestionable = isQuestionable
			break
		}
	}
	f.classifyCalled++
	return nil
}

func (f *fakeTaskStore) put(task *models.Task) {
	f.tasks[f.key(task.MatchID, task.MoveNumber)] = task
}

type fakeMatchStore struct {
	rollupWinrate, rollupScore float64
	rollupCalled               int
}

func (f *fakeMatchStore) Upsert(ctx context.Context, match *models.Match) error { return nil }
func (f *fakeMatchStore) Get(ctx context.Context, matchID string) (*models.Match, error) {
	return nil, nil
}
func (f *fakeMatchStore) ListLive(ctx context.Context) ([]*models.Match, error) { return nil, nil }
func (f *fakeMatchStore) UpdateRollup(ctx context.Context, matchID string, winrate, scoreLead float64) error {
	f.rollupWinrate = winrate
	f.rollupScore = scoreLead
	f.rollupCalled++
	return nil
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

func TestClassifier_MoveZero_NoOp(t *testing.T) {
	tasks := newFakeTaskStore()
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	task := &models.Task{ID: "m1_0", MatchID: "m1", MoveNumber: 0, Status: models.TaskStatusSuccess}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if tasks.classifyCalled != 0 {
		t.Error("expected no classification write for move 0")
	}
}

func TestClassifier_PreviousMissing_NoOp(t *testing.T) {
	tasks := newFakeTaskStore()
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	task := &models.Task{ID: "m1_1", MatchID: "m1", MoveNumber: 1, Status: models.TaskStatusSuccess}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if tasks.classifyCalled != 0 {
		t.Error("expected no classification write when previous task is missing")
	}
}

func TestClassifier_PreviousNotSuccessful_NoOp(t *testing.T) {
	tasks := newFakeTaskStore()
	tasks.put(&models.Task{ID: "m1_0", MatchID: "m1", MoveNumber: 0, Status: models.TaskStatusRunning})
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	task := &models.Task{ID: "m1_1", MatchID: "m1", MoveNumber: 1, Status: models.TaskStatusSuccess}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if tasks.classifyCalled != 0 {
		t.Error("expected no classification write when previous task didn't succeed")
	}
}

func TestClassifier_BlackMoveBrilliant(t *testing.T) {
	tasks := newFakeTaskStore()
	prev := &models.Task{ID: "m1_0", MatchID: "m1", MoveNumber: 0, Status: models.TaskStatusSuccess, Winrate: 0.5, ScoreLead: 0.0}
	tasks.put(prev)
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	task := &models.Task{
		ID: "m1_1", MatchID: "m1", MoveNumber: 1, Status: models.TaskStatusSuccess,
		ActualPlayer: models.PlayerBlack, Winrate: 0.55, ScoreLead: 3.5,
	}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !task.IsBrilliant || task.IsMistake || task.IsQuestionable {
		t.Errorf("expected brilliant classification, got %+v", task)
	}
	if task.DeltaScore != 3.5 {
		t.Errorf("expected delta_score 3.5, got %f", task.DeltaScore)
	}
	if matches.rollupCalled != 1 || matches.rollupWinrate != 0.55 {
		t.Errorf("expected rollup update with winrate 0.55, got %+v", matches)
	}
}

func TestClassifier_WhiteMoveNegatesDeltas(t *testing.T) {
	tasks := newFakeTaskStore()
	prev := &models.Task{ID: "m1_1", MatchID: "m1", MoveNumber: 1, Status: models.TaskStatusSuccess, Winrate: 0.55, ScoreLead: 3.5}
	tasks.put(prev)
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	// White played move 2; score lead dropped 3.5 -> -1.0 from Black's
	// perspective, a 4.5-point swing toward White, i.e. +4.5 for the mover.
	task := &models.Task{
		ID: "m1_2", MatchID: "m1", MoveNumber: 2, Status: models.TaskStatusSuccess,
		ActualPlayer: models.PlayerWhite, Winrate: 0.40, ScoreLead: -1.0,
	}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if task.DeltaScore != 4.5 {
		t.Errorf("expected negated delta_score 4.5, got %f", task.DeltaScore)
	}
	if !task.IsBrilliant {
		t.Error("expected brilliant classification for White's favorable swing")
	}
}

func TestClassifier_Mistake(t *testing.T) {
	tasks := newFakeTaskStore()
	prev := &models.Task{ID: "m1_0", MatchID: "m1", MoveNumber: 0, Status: models.TaskStatusSuccess, Winrate: 0.5, ScoreLead: 2.0}
	tasks.put(prev)
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	task := &models.Task{
		ID: "m1_1", MatchID: "m1", MoveNumber: 1, Status: models.TaskStatusSuccess,
		ActualPlayer: models.PlayerBlack, Winrate: 0.3, ScoreLead: -2.0,
	}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !task.IsMistake {
		t.Errorf("expected mistake classification, got %+v", task)
	}
}

func TestClassifier_Questionable(t *testing.T) {
	tasks := newFakeTaskStore()
	prev := &models.Task{ID: "m1_0", MatchID: "m1", MoveNumber: 0, Status: models.TaskStatusSuccess, Winrate: 0.5, ScoreLead: 2.0}
	tasks.put(prev)
	matches := &fakeMatchStore{}
	c := New(tasks, matches, testLogger())

	task := &models.Task{
		ID: "m1_1", MatchID: "m1", MoveNumber: 1, Status: models.TaskStatusSuccess,
		ActualPlayer: models.PlayerBlack, Winrate: 0.45, ScoreLead: 0.5,
	}
	if err := c.Classify(context.Background(), task); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !task.IsQuestionable || task.IsMistake || task.IsBrilliant {
		t.Errorf("expected questionable classification, got %+v", task)
	}
}
