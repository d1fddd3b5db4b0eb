package mysql

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
  id             VARCHAR(64)  NOT NULL PRIMARY KEY,
  processor_type VARCHAR(64)  NOT NULL,
  status         VARCHAR(32)  NOT NULL,
  created_at     DATETIME(6)  NOT NULL,
  record         JSON         NOT NULL,
  INDEX idx_batch_jobs_created (created_at)
);`

// JobRepository stores the versioned job record as a JSON column, with
// status and created_at copied out for listing.
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

// Save insert/update job record
func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO batch_jobs (id, processor_type, status, created_at, record)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 record=VALUES(record);`
	rec, err := domain.EncodeJob(j)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, j.ID, j.ProcessorType, j.Status, j.CreatedAt.UTC(), string(rec))
	return err
}

func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	const q = `SELECT record FROM batch_jobs WHERE id=? LIMIT 1;`
	var rec string
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, err
	}
	return domain.DecodeJob([]byte(rec))
}

func (r *JobRepository) Exists(ctx context.Context, id domain.JobID) (bool, error) {
	const q = `SELECT COUNT(*) FROM batch_jobs WHERE id=?;`
	var n int
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
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
	rows, err := r.db.QueryContext(ctx, `SELECT id, record FROM batch_jobs ORDER BY created_at DESC, id DESC;`)
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM batch_jobs WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return nil
}
