package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

const ext = ".json"

// JobRepository keeps one JSON file per job in a directory. Writes are
// atomic (temp file + rename); there is no locking, so two processes
// mutating the same job is last-writer-wins.
type JobRepository struct {
	dir string
	log *zap.Logger
}

// NewJobRepository buat repo dan pastikan direktori ada
func NewJobRepository(dir string, log *zap.Logger) (*JobRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JobRepository{dir: dir, log: log}, nil
}

func (r *JobRepository) path(id domain.JobID) (string, error) {
	s := string(id)
	if s == "" || s != filepath.Base(s) || strings.HasPrefix(s, ".") {
		return "", &domain.ValidationError{Field: "job_id", Msg: fmt.Sprintf("invalid job id %q", s)}
	}
	return filepath.Join(r.dir, s+ext), nil
}

// Save writes the record atomically.
func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	p, err := r.path(j.ID)
	if err != nil {
		return err
	}
	data, err := domain.EncodeJob(j)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, ".tmp-"+string(j.ID)+"-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// Get loads one record.
func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	p, err := r.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, err
	}
	j, err := domain.DecodeJob(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return j, nil
}

// Exists reports whether a record file exists for id.
func (r *JobRepository) Exists(ctx context.Context, id domain.JobID) (bool, error) {
	p, err := r.path(id)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ListIDs returns stored ids in lexical order.
func (r *JobRepository) ListIDs(ctx context.Context) ([]domain.JobID, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}
	var ids []domain.JobID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, domain.JobID(strings.TrimSuffix(name, ext)))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// List loads every record; unreadable records are skipped with a warning.
func (r *JobRepository) List(ctx context.Context) ([]*domain.Job, error) {
	ids, err := r.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		j, err := r.Get(ctx, id)
		if err != nil {
			r.log.Warn("skipping unreadable job record", zap.String("job_id", string(id)), zap.Error(err))
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// Delete removes the record file.
func (r *JobRepository) Delete(ctx context.Context, id domain.JobID) error {
	p, err := r.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return err
	}
	return nil
}
