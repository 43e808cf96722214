package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

const runColumns = `id, index_name, mode, focus, include_security, include_external, provider, model_id,
	success, error_message, plan_length, duration_seconds, started_at, ended_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateRun inserts one generation record. A zero ID is assigned.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.IndexName, run.Mode, run.Focus, run.IncludeSecurity, run.IncludeExternalDependencies,
		run.Provider, run.ModelID, run.Success, run.ErrorMessage, run.PlanLength, run.DurationSeconds,
		run.StartedAt, run.EndedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// ListRuns returns one page of runs, newest first, and the total match count.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*models.GenerationRun, int, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.IndexName != "" {
		conditions = append(conditions, fmt.Sprintf("index_name = $%d", argIdx))
		args = append(args, filter.IndexName)
		argIdx++
	}
	if filter.Mode != "" {
		conditions = append(conditions, fmt.Sprintf("mode = $%d", argIdx))
		args = append(args, filter.Mode)
		argIdx++
	}
	if filter.Success != nil {
		conditions = append(conditions, fmt.Sprintf("success = $%d", argIdx))
		args = append(args, *filter.Success)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM generation_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	limit, offset := paginate(filter.Page, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM generation_runs%s ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d`,
		runColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.GenerationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// GetRun returns one run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.GenerationRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM generation_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (*models.GenerationRun, error) {
	var r models.GenerationRun
	err := row.Scan(&r.ID, &r.IndexName, &r.Mode, &r.Focus, &r.IncludeSecurity, &r.IncludeExternalDependencies,
		&r.Provider, &r.ModelID, &r.Success, &r.ErrorMessage, &r.PlanLength, &r.DurationSeconds,
		&r.StartedAt, &r.EndedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MaxPage bounds the page number so the row offset cannot overflow.
const MaxPage = 100_000

// paginate normalizes a 1-based page clamped to [1, MaxPage] and a limit
// clamped to [1, 100].
func paginate(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	return limit, (page - 1) * limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
