package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-batch/internal/application"
	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// Error codes recorded on a job for creation failures.
const (
	CodeInputBuildFailed = "input_build_failed"
	CodeUploadFailed     = "upload_failed"
	CodeSubmissionFailed = "submission_failed"
)

// Manager implements the batch job lifecycle use-cases.
// Every operation is synchronous; status moves only when CheckStatus runs.
// The job record on the Repository is the single source of truth and is
// read-modify-written without locking.
type Manager struct {
	Repo       domain.Repository
	Provider   domain.Provider
	Builder    domain.InputBuilder
	Processors domain.ProcessorRegistry
	Items      domain.ItemSource
	// Artifacts is optional; when set, result artifacts and raw outputs are mirrored to it.
	Artifacts domain.ArtifactStore
	Clock     application.Clock
	Log       *zap.Logger

	OutputsDir string
	ResultsDir string
	// CallTimeout bounds every provider call; zero means no bound.
	CallTimeout time.Duration
}

func (m *Manager) logger() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock.Now()
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.CallTimeout > 0 {
		return context.WithTimeout(ctx, m.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) load(ctx context.Context, idOrPrefix string) (*domain.Job, error) {
	r := &Resolver{Repo: m.Repo}
	id, err := r.Resolve(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	return m.Repo.Get(ctx, id)
}

//
// ==== USE CASES ====
//

// CreateForScope validates scope, looks up its items and creates a job for them.
func (m *Manager) CreateForScope(ctx context.Context, pt domain.ProcessorType, scope domain.Scope, cfg domain.ModelConfig) (*domain.Job, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if m.Items == nil {
		return nil, errors.New("no item source configured")
	}
	items, err := m.Items.Find(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("find items for %s: %w", scope, err)
	}
	return m.CreateJob(ctx, items, pt, scope, cfg)
}

// CreateJob builds, uploads and submits a batch for items. A failed
// upload or submission marks the job failed and is returned to the caller.
func (m *Manager) CreateJob(ctx context.Context, items []domain.Item, pt domain.ProcessorType, scope domain.Scope, cfg domain.ModelConfig) (*domain.Job, error) {
	if len(items) == 0 {
		return nil, &domain.NoItemsError{Scope: scope}
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if _, err := m.Processors.Lookup(pt); err != nil {
		return nil, err
	}
	cfg = domain.NewModelConfig(cfg.Model, cfg.Temperature, cfg.ReasoningEffort, cfg.MaxTokens, cfg.CompletionWindow)

	job := &domain.Job{
		ID:             domain.JobID(uuid.New().String()),
		ProcessorType:  pt,
		Scope:          scope,
		ConfigSnapshot: cfg,
		Status:         domain.StatusPending,
		TotalItems:     len(items),
		Errors:         []domain.JobError{},
		CreatedAt:      m.now(),
	}
	log := m.logger().With(zap.String("job_id", string(job.ID)))
	if err := m.Repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save new job: %w", err)
	}

	path, err := m.Builder.Build(job.ID, items, pt, cfg)
	if err != nil {
		return job, m.fail(ctx, job, CodeInputBuildFailed, err)
	}
	job.LocalInputPath = path

	uctx, cancel := m.callCtx(ctx)
	inputID, err := m.Provider.Upload(uctx, path)
	cancel()
	if err != nil {
		return job, m.fail(ctx, job, CodeUploadFailed, err)
	}
	job.ExternalInputID = inputID

	sctx, cancel := m.callCtx(ctx)
	batchID, err := m.Provider.Submit(sctx, inputID, cfg)
	cancel()
	if err != nil {
		return job, m.fail(ctx, job, CodeSubmissionFailed, err)
	}

	submitted := m.now()
	job.ExternalBatchID = batchID
	job.Status = domain.StatusValidating
	job.SubmittedAt = &submitted
	if err := m.Repo.Save(ctx, job); err != nil {
		return job, fmt.Errorf("save submitted job: %w", err)
	}
	log.Info("batch submitted",
		zap.String("processor", string(pt)),
		zap.String("scope", scope.String()),
		zap.Int("items", job.TotalItems),
		zap.String("external_batch_id", batchID),
	)
	return job, nil
}

// fail marks job failed, records cause and returns cause.
func (m *Manager) fail(ctx context.Context, job *domain.Job, code string, cause error) error {
	job.Status = domain.StatusFailed
	job.AddError("", code, cause.Error())
	if err := m.Repo.Save(ctx, job); err != nil {
		m.logger().Error("failed to persist job failure",
			zap.String("job_id", string(job.ID)), zap.Error(err))
	}
	m.logger().Warn("batch creation failed",
		zap.String("job_id", string(job.ID)), zap.String("code", code), zap.Error(cause))
	return cause
}

// CheckStatus refreshes a job from the provider. Provider failures are
// logged and the last persisted state is returned.
func (m *Manager) CheckStatus(ctx context.Context, idOrPrefix string) (*domain.Job, error) {
	job, err := m.load(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, job)
}

func (m *Manager) refresh(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job.ExternalBatchID == "" {
		return job, nil
	}

	pctx, cancel := m.callCtx(ctx)
	res, err := m.Provider.Poll(pctx, job.ExternalBatchID)
	cancel()
	if err != nil {
		m.logger().Warn("status check failed, keeping last known state",
			zap.String("job_id", string(job.ID)),
			zap.String("status", string(job.Status)),
			zap.Error(err),
		)
		return job, nil
	}

	prev := job.Status
	job.Status = res.Status
	if res.Status == domain.StatusCompleted {
		if job.CompletedAt == nil {
			t := m.now()
			job.CompletedAt = &t
		}
		if res.ExternalOutputID != "" {
			job.ExternalOutputID = res.ExternalOutputID
		}
		if res.ExternalErrorID != "" {
			job.ExternalErrorID = res.ExternalErrorID
		}
	}
	if res.Status.ReportsCounts() {
		job.ProcessedItems = res.Completed
		job.FailedItems = res.Failed
	}
	// provider errors are appended once, on the transition into failed
	if res.Status == domain.StatusFailed && prev != domain.StatusFailed {
		job.Errors = append(job.Errors, res.Errors...)
	}

	if err := m.Repo.Save(ctx, job); err != nil {
		return job, fmt.Errorf("save job %s: %w", job.ID, err)
	}
	if prev != job.Status {
		m.logger().Info("batch status changed",
			zap.String("job_id", string(job.ID)),
			zap.String("from", string(prev)),
			zap.String("to", string(job.Status)),
		)
	}
	return job, nil
}

// CancelJob cancels an in-flight job. Cancelling a terminal job is a no-op.
func (m *Manager) CancelJob(ctx context.Context, idOrPrefix string) (*domain.Job, error) {
	job, err := m.load(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		m.logger().Info("job already terminal, nothing to cancel",
			zap.String("job_id", string(job.ID)), zap.String("status", string(job.Status)))
		return job, nil
	}
	if !job.Status.IsCancellable() {
		return job, fmt.Errorf("%w: cannot cancel job %s in status %q", domain.ErrInvalidState, job.ID, job.Status)
	}
	if job.ExternalBatchID == "" {
		return job, fmt.Errorf("%w: job %s", domain.ErrNoExternalID, job.ID)
	}

	cctx, cancel := m.callCtx(ctx)
	err = m.Provider.Cancel(cctx, job.ExternalBatchID)
	cancel()
	if err != nil {
		return job, err
	}

	job.Status = domain.StatusCancelled
	if err := m.Repo.Save(ctx, job); err != nil {
		return job, fmt.Errorf("save job %s: %w", job.ID, err)
	}
	m.logger().Info("batch cancelled", zap.String("job_id", string(job.ID)))
	return job, nil
}

// RemoveJob deletes a job record and its local input/output files. Without
// force it asks confirm first, twice for a job that is still active.
// Files already removed stay removed when a later deletion fails.
func (m *Manager) RemoveJob(ctx context.Context, idOrPrefix string, force bool, confirm domain.Confirmer) (domain.RemoveResult, error) {
	job, err := m.load(ctx, idOrPrefix)
	if err != nil {
		return domain.RemoveResult{}, err
	}
	res := domain.RemoveResult{JobID: job.ID}

	if !force {
		if confirm == nil {
			return res, &domain.ValidationError{Field: "force", Msg: "removal needs confirmation or force"}
		}
		if job.Status.IsActive() {
			q := domain.Question{
				Kind: domain.QuestionRemoveActive,
				Text: fmt.Sprintf("Job %s is still %s; removing it does not cancel the remote batch. Remove anyway?", job.ID, job.Status),
			}
			ok, err := confirm.Confirm(ctx, q)
			if err != nil || !ok {
				return res, err
			}
		}
		ok, err := confirm.Confirm(ctx, domain.Question{Kind: domain.QuestionRemove, Text: describe(job)})
		if err != nil || !ok {
			return res, err
		}
	}

	var errs []error
	if err := m.Repo.Delete(ctx, job.ID); err != nil {
		return res, fmt.Errorf("delete job record %s: %w", job.ID, err)
	}
	res.Deleted = true

	for _, p := range []string{job.LocalInputPath, job.LocalOutputPath, m.errorsPath(job.ID)} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			}
			continue
		}
		res.RemovedFiles = append(res.RemovedFiles, p)
	}
	m.logger().Info("batch job removed",
		zap.String("job_id", string(job.ID)), zap.Strings("files", res.RemovedFiles))
	return res, errors.Join(errs...)
}

func describe(j *domain.Job) string {
	return fmt.Sprintf("Remove job %s (%s, scope %s, status %s, %d items, created %s)?",
		j.ID, j.ProcessorType, j.Scope, j.Status, j.TotalItems, j.CreatedAt.Format(time.RFC3339))
}

// ListJobs returns every job, newest first. Active jobs are refreshed
// best-effort before returning.
func (m *Manager) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	jobs, err := m.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := range jobs {
		if !j.Status.IsActive() {
			continue
		}
		updated, err := m.refresh(ctx, j)
		if err != nil {
			m.logger().Warn("refresh during list failed", zap.String("job_id", string(j.ID)), zap.Error(err))
			continue
		}
		jobs[i] = updated
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return jobs, nil
}

func (m *Manager) outputPath(id domain.JobID) string {
	return filepath.Join(m.OutputsDir, string(id)+"_output.jsonl")
}

func (m *Manager) errorsPath(id domain.JobID) string {
	return filepath.Join(m.OutputsDir, string(id)+"_errors.jsonl")
}
