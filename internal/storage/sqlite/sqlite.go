package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// DB returns the underlying database handle.
func (r *Repository) DB() *sql.DB { return r.db }

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	progress, result, err := marshalTaskBlobs(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (
			id, repository_url, branch, objective, model,
			status, environment_id, progress, result, error,
			created_at, started_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.RepositoryURL,
		t.Branch,
		t.Objective,
		t.Model,
		t.Status,
		t.EnvironmentID,
		progress,
		result,
		t.Error,
		t.CreatedAt.Unix(),
		unixOrNil(t.StartedAt),
		unixOrNil(t.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.") {
			return fmt.Errorf("task already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := taskSelectQuery + ` WHERE id = ?`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	return task, nil
}

// ListTasks returns all tasks ordered by creation time.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	query := taskSelectQuery + ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	progress, result, err := marshalTaskBlobs(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks SET
			repository_url = ?, branch = ?, objective = ?, model = ?,
			status = ?, environment_id = ?, progress = ?, result = ?, error = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		t.RepositoryURL,
		t.Branch,
		t.Objective,
		t.Model,
		t.Status,
		t.EnvironmentID,
		progress,
		result,
		t.Error,
		unixOrNil(t.StartedAt),
		unixOrNil(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	return nil
}

// DeleteTask removes a task from the repository.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted task from repository: %s", id)
	return nil
}

const taskSelectQuery = `
	SELECT id, repository_url, branch, objective, model,
	       status, environment_id, progress, result, error,
	       created_at, started_at, completed_at
	FROM tasks
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t                      model.Task
		status                 string
		progress               string
		result                 sql.NullString
		createdAt              int64
		startedAt, completedAt sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &t.RepositoryURL, &t.Branch, &t.Objective, &t.Model,
		&status, &t.EnvironmentID, &progress, &result, &t.Error,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0).UTC()
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0).UTC()
		t.CompletedAt = &ts
	}

	if err := json.Unmarshal([]byte(progress), &t.Progress); err != nil {
		return nil, fmt.Errorf("could not unmarshal progress: %w", err)
	}
	if result.Valid {
		t.Result = &model.TaskResult{}
		if err := json.Unmarshal([]byte(result.String), t.Result); err != nil {
			return nil, fmt.Errorf("could not unmarshal result: %w", err)
		}
	}

	return &t, nil
}

func marshalTaskBlobs(t model.Task) (progress string, result *string, err error) {
	entries := t.Progress
	if entries == nil {
		entries = []model.ProgressEntry{}
	}
	progressBytes, err := json.Marshal(entries)
	if err != nil {
		return "", nil, fmt.Errorf("could not marshal progress: %w", err)
	}

	if t.Result != nil {
		resultBytes, err := json.Marshal(t.Result)
		if err != nil {
			return "", nil, fmt.Errorf("could not marshal result: %w", err)
		}
		s := string(resultBytes)
		result = &s
	}

	return string(progressBytes), result, nil
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}
