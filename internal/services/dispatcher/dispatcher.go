// Package dispatcher implements the priority-ordered, preemptive analysis
// dispatcher (C4) — the system's hard core.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
	"github.com/ternarybob/goshin/internal/models"
	"github.com/ternarybob/goshin/internal/services/classifier"
)

// Config holds the dispatcher's tunables.
type Config struct {
	WindowSize       int
	RequestTimeout   time.Duration
	MaxVisits        int
	PreemptThreshold int
}

// inFlight tracks one outstanding analysis call owned exclusively by the
// control loop — no other goroutine reads or writes this map.
type inFlight struct {
	task     *models.Task
	priority int
	cancel   context.CancelFunc
}

// completionEvent is sent by a worker goroutine when its engine call
// finishes, is cancelled for preemption, or times out.
type completionEvent struct {
	taskID    string
	result    *interfaces.AnalyzeResult
	err       error
	preempted bool
}

// Dispatcher is the single cooperative loop maintaining a bounded window of
// concurrent in-flight analyses (§4.3). Safe for exactly one instance per
// process; multi-instance deployment requires a skip-locked store (§5).
type Dispatcher struct {
	tasks      interfaces.TaskStore
	matches    interfaces.MatchStore
	engine     interfaces.EngineClient
	classifier *classifier.Classifier
	logger     *common.Logger
	config     Config

	wg sync.WaitGroup
}

// New creates a new Dispatcher.
func New(
	tasks interfaces.TaskStore,
	matches interfaces.MatchStore,
	engine interfaces.EngineClient,
	clf *classifier.Classifier,
	logger *common.Logger,
	config Config,
) *Dispatcher {
	if config.WindowSize <= 0 {
		config.WindowSize = 16
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.PreemptThreshold <= 0 {
		config.PreemptThreshold = 500
	}
	return &Dispatcher{
		tasks:      tasks,
		matches:    matches,
		engine:     engine,
		classifier: clf,
		logger:     logger,
		config:     config,
	}
}

// safeGo launches a goroutine with panic recovery, tracked by the
// dispatcher's WaitGroup so Run can unwind cleanly on shutdown.
func (d *Dispatcher) safeGo(name string, fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in dispatcher goroutine")
			}
		}()
		fn()
	}()
}

// Run is the dispatcher's single long-lived cooperative loop. It blocks
// until ctx is cancelled, then waits for in-flight workers to unwind.
// Any still-running tasks remain "running" in the store and are recovered
// by ResetStaleRunning on the next startup.
func (d *Dispatcher) Run(ctx context.Context) error {
	if reset, err := d.tasks.ResetStaleRunning(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("dispatcher: failed to reset stale running tasks")
	} else if reset > 0 {
		d.logger.Info().Int("count", reset).Msg("dispatcher: reset stale running tasks on startup")
	}

	inFlightMap := make(map[string]*inFlight, d.config.WindowSize)
	completions := make(chan completionEvent, d.config.WindowSize)

	d.refill(ctx, inFlightMap, completions, d.config.WindowSize)

	for {
		if len(inFlightMap) == 0 {
			select {
			case <-ctx.Done():
				d.wg.Wait()
				return ctx.Err()
			case <-time.After(5 * time.Second):
				d.refill(ctx, inFlightMap, completions, d.config.WindowSize)
				continue
			}
		}

		select {
		case <-ctx.Done():
			d.wg.Wait()
			return ctx.Err()
		case event := <-completions:
			d.handleCompletion(ctx, inFlightMap, event)
			// Drain any other completions that arrived concurrently before
			// checking preemption, so a single wave of N completions only
			// triggers one preemption decision and one refill.
			draining := true
			for draining {
				select {
				case more := <-completions:
					d.handleCompletion(ctx, inFlightMap, more)
				default:
					draining = false
				}
			}

			d.maybePreempt(ctx, inFlightMap)

			open := d.config.WindowSize - len(inFlightMap)
			if open > 0 {
				d.refill(ctx, inFlightMap, completions, open)
			}
		}
	}
}

// handleCompletion removes a finished task from the window and persists its
// outcome. A preempted task is left alone — the preempter already called
// mark_pending.
func (d *Dispatcher) handleCompletion(ctx context.Context, inFlightMap map[string]*inFlight, event completionEvent) {
	entry, ok := inFlightMap[event.taskID]
	if !ok {
		return
	}
	delete(inFlightMap, event.taskID)

	if event.preempted {
		return
	}

	task := entry.task
	if event.err != nil {
		if err := d.tasks.MarkFailed(ctx, task.ID, event.err.Error(), models.DefaultMaxRetries); err != nil {
			d.logger.Warn().Str("task_id", task.ID).Err(err).Msg("dispatcher: failed to mark task failed")
		}
		return
	}

	if event.result.Failed {
		if err := d.tasks.MarkFailed(ctx, task.ID, "engine reported failure", models.DefaultMaxRetries); err != nil {
			d.logger.Warn().Str("task_id", task.ID).Err(err).Msg("dispatcher: failed to mark engine-failed task")
		}
		return
	}

	if err := d.tasks.SaveResult(ctx, task.ID, event.result.Winrate, event.result.ScoreLead, event.result.TopMoves, event.result.Ownership); err != nil {
		d.logger.Warn().Str("task_id", task.ID).Err(err).Msg("dispatcher: failed to save analysis result")
		return
	}

	task.Status = models.TaskStatusSuccess
	task.Winrate = event.result.Winrate
	task.ScoreLead = event.result.ScoreLead
	if err := d.classifier.Classify(ctx, task); err != nil {
		d.logger.Warn().Str("task_id", task.ID).Err(err).Msg("dispatcher: classification failed")
	}
}

// maybePreempt cancels the lowest-priority in-flight task if the highest
// pending priority exceeds it by at least PreemptThreshold. At most one
// task is preempted per call, preventing thrash.
func (d *Dispatcher) maybePreempt(ctx context.Context, inFlightMap map[string]*inFlight) {
	if len(inFlightMap) == 0 {
		return
	}

	highest, ok, err := d.tasks.PeekHighestPendingPriority(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("dispatcher: failed to peek highest pending priority")
		return
	}
	if !ok {
		return
	}

	var lowestKey string
	lowestPriority := 0
	first := true
	for key, entry := range inFlightMap {
		if first || entry.priority < lowestPriority {
			lowestKey = key
			lowestPriority = entry.priority
			first = false
		}
	}

	if highest-lowestPriority < d.config.PreemptThreshold {
		return
	}

	entry := inFlightMap[lowestKey]
	entry.cancel()
	delete(inFlightMap, lowestKey)

	if err := d.tasks.MarkPending(ctx, lowestKey); err != nil {
		d.logger.Warn().Str("task_id", lowestKey).Err(err).Msg("dispatcher: failed to mark preempted task pending")
	}

	d.logger.Info().
		Str("task_id", lowestKey).
		Int("preempted_priority", lowestPriority).
		Int("pending_priority", highest).
		Msg("dispatcher: preempted in-flight task for higher-priority work")
}

// refill tops up the window with up to n newly pending tasks.
func (d *Dispatcher) refill(ctx context.Context, inFlightMap map[string]*inFlight, completions chan completionEvent, n int) {
	if n <= 0 {
		return
	}

	tasks, err := d.tasks.FetchPending(ctx, n)
	if err != nil {
		d.logger.Warn().Err(err).Msg("dispatcher: failed to fetch pending tasks")
		return
	}

	for _, task := range tasks {
		taskCtx, cancel := context.WithTimeout(ctx, d.config.RequestTimeout)
		inFlightMap[task.ID] = &inFlight{task: task, priority: task.Priority, cancel: cancel}
		d.startTask(taskCtx, cancel, task, completions)
	}
}

// startTask launches one worker goroutine running the engine call for task.
func (d *Dispatcher) startTask(ctx context.Context, cancel context.CancelFunc, task *models.Task, completions chan<- completionEvent) {
	d.safeGo("analyze-"+task.ID, func() {
		match, err := d.matches.Get(ctx, task.MatchID)
		if err != nil || match == nil || len(match.Moves) < task.MoveNumber {
			cancel()
			completions <- completionEvent{taskID: task.ID, err: fmt.Errorf("no moves available for match %s at move %d", task.MatchID, task.MoveNumber)}
			return
		}

		moves := make([][2]string, task.MoveNumber)
		for i := 0; i < task.MoveNumber; i++ {
			player := models.PlayerBlack
			if i%2 == 1 {
				player = models.PlayerWhite
			}
			moves[i] = [2]string{player, match.Moves[i]}
		}

		req := interfaces.AnalyzeRequest{
			ID:         fmt.Sprintf("cron_%s_%d", task.MatchID, task.MoveNumber),
			Rules:      match.Rules,
			Komi:       match.Komi,
			BoardXSize: match.BoardSize,
			BoardYSize: match.BoardSize,
			Moves:      moves,
			MaxVisits:  d.config.MaxVisits,
			Priority:   task.Priority,
		}

		result, err := d.engine.Analyze(ctx, req)
		cancel()

		if err == context.Canceled {
			completions <- completionEvent{taskID: task.ID, preempted: true}
			return
		}
		completions <- completionEvent{taskID: task.ID, result: result, err: err}
	})
}

// RunSupervised restarts Run on any unexpected failure, waiting 10s between
// attempts, until ctx is cancelled (§4.6).
func (d *Dispatcher) RunSupervised(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("dispatcher loop panic: %v", r)
				}
			}()
			return d.Run(ctx)
		}()
		if err == context.Canceled || err == context.DeadlineExceeded {
			return
		}
		if err != nil {
			d.logger.Error().Err(err).Msg("dispatcher: loop exited unexpectedly, restarting in 10s")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}
