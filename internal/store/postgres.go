package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/inboxlens/pkg/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	db     DB
	sealer TokenSealer
}

// NewPostgresStore creates a new PostgresStore. A nil sealer stores source
// tokens as given.
func NewPostgresStore(db DB, sealer TokenSealer) *PostgresStore {
	if sealer == nil {
		sealer = plainSealer{}
	}
	return &PostgresStore{db: db, sealer: sealer}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, type, batch_size, status, items_processed, success_count, error_count,
	error_detail, parent_job_id, chain_depth, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO jobs (id, type, batch_size, status, items_processed, success_count, error_count,
		   error_detail, parent_job_id, chain_depth, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.Type, job.BatchSize, job.Status, job.ItemsProcessed, job.SuccessCount, job.ErrorCount,
		nullJSON(job.ErrorDetail), job.ParentJobID, job.ChainDepth, job.StartedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// GetLatestJob returns the most recently created job of jobType, or of any
// type when jobType is empty.
func (s *PostgresStore) GetLatestJob(ctx context.Context, jobType string) (*models.Job, error) {
	q := psql.Select(jobColumns).From("jobs").OrderBy("created_at DESC", "id DESC").Limit(1)
	if jobType != "" {
		q = q.Where(sq.Eq{"type": jobType})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest job query: %w", err)
	}

	j, err := scanJob(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job: %w", err)
	}
	return j, nil
}

// ReclaimStaleJobs marks every running job of jobType failed with detail.
func (s *PostgresStore) ReclaimStaleJobs(ctx context.Context, jobType string, detail json.RawMessage) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error_detail = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE type = $1 AND status = 'running'`,
		jobType, nullJSON(detail))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FinishJob writes the terminal status and counters. The update is
// unconditional, so the last call wins.
func (s *PostgresStore) FinishJob(ctx context.Context, id uuid.UUID, fin JobFinish) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = $2, items_processed = $3, success_count = $4, error_count = $5,
		   error_detail = $6, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, fin.Status, fin.ItemsProcessed, fin.SuccessCount, fin.ErrorCount, nullJSON(fin.ErrorDetail))
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var detail []byte
	if err := row.Scan(&j.ID, &j.Type, &j.BatchSize, &j.Status, &j.ItemsProcessed, &j.SuccessCount,
		&j.ErrorCount, &detail, &j.ParentJobID, &j.ChainDepth, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(detail) > 0 {
		j.ErrorDetail = json.RawMessage(detail)
	}
	return &j, nil
}

// --- Metrics ---

func (s *PostgresStore) RecordMetricEvent(ctx context.Context, event *models.MetricEvent) error {
	payload := []byte(event.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO metric_events (id, name, payload, created_at) VALUES ($1, $2, $3, $4)`,
		event.ID, event.Name, payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("record metric event: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// nullJSON turns an empty raw message into a SQL NULL.
func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
