package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	taskStore  *TaskStore
	matchStore *MatchStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{"task", "match"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	// Leads with status so pending-task pickup (status, priority DESC,
	// created_at ASC) stays a prefix scan instead of a full table scan as
	// the task table grows. SurrealDB's DEFINE INDEX has no WHERE/partial
	// predicate, so a composite index stands in for the partial index this
	// pickup pattern would otherwise use.
	if _, err := surrealdb.Query[any](ctx, db,
		"DEFINE INDEX IF NOT EXISTS idx_task_pending_priority ON TABLE task COLUMNS status, priority, created_at", nil); err != nil {
		return nil, fmt.Errorf("failed to define task pickup index: %w", err)
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.taskStore = NewTaskStore(db, logger)
	m.matchStore = NewMatchStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) TaskStore() interfaces.TaskStore {
	return m.taskStore
}

func (m *Manager) MatchStore() interfaces.MatchStore {
	return m.matchStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
