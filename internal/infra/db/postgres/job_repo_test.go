package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

const jobID = "aaaa0000-0000-4000-8000-000000000001"

func setupRepo(t *testing.T) (*JobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewJobRepository(db, zaptest.NewLogger(t)), mock
}

func record(t *testing.T, j *domain.Job) string {
	t.Helper()
	b, err := domain.EncodeJob(j)
	require.NoError(t, err)
	return string(b)
}

func TestJobRepositorySaveUpserts(t *testing.T) {
	r, mock := setupRepo(t)
	job := &domain.Job{
		ID:            jobID,
		ProcessorType: domain.ProcessorSecurityReview,
		Status:        domain.StatusValidating,
		CreatedAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
	}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WithArgs(jobID, "security-review", "validating", job.CreatedAt.UTC(), record(t, job)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Save(context.Background(), job))
}

func TestJobRepositoryGet(t *testing.T) {
	r, mock := setupRepo(t)
	ctx := context.Background()
	job := &domain.Job{ID: jobID, Status: domain.StatusCompleted, TotalItems: 3, ProcessedItems: 2, CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := regexp.QuoteMeta("SELECT record::text FROM batch_jobs WHERE id=$1")

	mock.ExpectQuery(q).WithArgs(jobID).WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(record(t, job)))
	got, err := r.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedItems)

	mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	boom := errors.New("connection reset")
	mock.ExpectQuery(q).WithArgs(jobID).WillReturnError(boom)
	_, err = r.Get(ctx, jobID)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrJobNotFound)
}

func TestJobRepositoryExists(t *testing.T) {
	r, mock := setupRepo(t)
	q := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM batch_jobs WHERE id=$1)")
	mock.ExpectQuery(q).WithArgs(jobID).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("other").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := r.Exists(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Exists(context.Background(), "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobRepositoryListSkipsBadRecord(t *testing.T) {
	r, mock := setupRepo(t)
	newer := &domain.Job{ID: "bbbb", Status: domain.StatusPending, CreatedAt: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)}
	older := &domain.Job{ID: "aaaa", Status: domain.StatusFailed, CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "record"}).
			AddRow("bbbb", record(t, newer)).
			AddRow("broken", "{not json").
			AddRow("aaaa", record(t, older)))

	jobs, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.JobID("bbbb"), jobs[0].ID)
	assert.Equal(t, domain.JobID("aaaa"), jobs[1].ID)
}

func TestJobRepositoryListIDs(t *testing.T) {
	r, mock := setupRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM batch_jobs ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("aaaa").AddRow("bbbb"))

	ids, err := r.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.JobID{"aaaa", "bbbb"}, ids)
}

func TestJobRepositoryDelete(t *testing.T) {
	r, mock := setupRepo(t)
	q := regexp.QuoteMeta("DELETE FROM batch_jobs WHERE id=$1")
	mock.ExpectExec(q).WithArgs(jobID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(jobID).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Delete(context.Background(), jobID))
	assert.ErrorIs(t, r.Delete(context.Background(), jobID), domain.ErrJobNotFound)
}
