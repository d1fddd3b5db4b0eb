package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_jobs (
  id             TEXT        PRIMARY KEY,
  processor_type TEXT        NOT NULL,
  status         TEXT        NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL,
  record         JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_created ON batch_jobs (created_at);`

type JobRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewJobRepository(db *sql.DB, log *zap.Logger) *JobRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobRepository{db: db, log: log}
}

// EnsureSchema creates the table when missing.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save inserts or updates a job record
func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO batch_jobs (id, processor_type, status, created_at, record)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  record = EXCLUDED.record;`
	rec, err := domain.EncodeJob(j)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, j.ID, j.ProcessorType, j.Status, j.CreatedAt.UTC(), string(rec))
	return err
}

func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	var rec string
	err := r.db.QueryRowContext(ctx, `SELECT record::text FROM batch_jobs WHERE id=$1 LIMIT 1;`, id).Scan(&rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, err
	}
	return domain.DecodeJob([]byte(rec))
}

func (r *JobRepository) Exists(ctx context.Context, id domain.JobID) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM batch_jobs WHERE id=$1);`, id).Scan(&ok)
	return ok, err
}

func (r *JobRepository) ListIDs(ctx context.Context) ([]domain.JobID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM batch_jobs ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JobID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.JobID(id))
	}
	return out, rows.Err()
}

// List returns every job newest first; undecodable records are skipped.
func (r *JobRepository) List(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, record::text FROM batch_jobs ORDER BY created_at DESC, id DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Job
	for rows.Next() {
		var id, rec string
		if err := rows.Scan(&id, &rec); err != nil {
			return nil, err
		}
		j, err := domain.DecodeJob([]byte(rec))
		if err != nil {
			r.log.Warn("skipping unreadable job record", zap.String("job_id", id), zap.Error(err))
			continue
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *JobRepository) Delete(ctx context.Context, id domain.JobID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM batch_jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}
