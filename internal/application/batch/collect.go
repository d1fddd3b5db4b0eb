package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// Per-item error codes recorded by result collection.
const (
	CodeEmptyResponse        = "empty_response"
	CodeDecodeError          = "decode_error"
	CodeInvalidCorrelationID = "invalid_correlation_id"
	CodeDuplicateResult      = "duplicate_result"
	CodeArtifactWrite        = "artifact_write_error"
)

var errOutsideResults = errors.New("artifact path escapes the job results directory")

// Artifact is the JSON document written for each successfully parsed item.
type Artifact struct {
	Item       ArtifactItem       `json:"item"`
	Processing ArtifactProcessing `json:"processing"`
	Analysis   json.RawMessage    `json:"analysis"`
}

type ArtifactItem struct {
	FilePath string          `json:"file_path"`
	JobID    domain.JobID    `json:"job_id"`
	Org      string          `json:"org"`
	Repo     string          `json:"repo"`
	Kind     domain.ItemKind `json:"kind"`
	Number   int             `json:"number"`
}

type ArtifactProcessing struct {
	Processor   domain.ProcessorType `json:"processor"`
	Version     string               `json:"version"`
	Model       string               `json:"model"`
	ProcessedAt time.Time            `json:"processed_at"`
}

// CollectResults downloads and reconciles the output of a completed job.
// Per-item failures never abort the collection; the job counters are
// overwritten with what could actually be parsed.
func (m *Manager) CollectResults(ctx context.Context, idOrPrefix string) (*domain.Result, error) {
	job, err := m.CheckStatus(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrNotCompleted, job.ID, job.Status)
	}
	if job.ExternalOutputID == "" {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNoOutput, job.ID)
	}
	proc, err := m.Processors.Lookup(job.ProcessorType)
	if err != nil {
		return nil, err
	}

	outPath := m.outputPath(job.ID)
	if err := m.download(ctx, job.ExternalOutputID, outPath); err != nil {
		return nil, err
	}
	outcomes, err := m.Provider.Parse(outPath)
	if err != nil {
		return nil, fmt.Errorf("parse output of job %s: %w", job.ID, err)
	}
	if job.ExternalErrorID != "" {
		errPath := m.errorsPath(job.ID)
		if err := m.download(ctx, job.ExternalErrorID, errPath); err != nil {
			return nil, err
		}
		errOutcomes, err := m.Provider.Parse(errPath)
		if err != nil {
			return nil, fmt.Errorf("parse error file of job %s: %w", job.ID, err)
		}
		outcomes = append(outcomes, errOutcomes...)
	}
	job.LocalOutputPath = outPath

	c := &collector{m: m, job: job, proc: proc, seen: map[string]bool{}}
	for _, o := range outcomes {
		c.handle(ctx, o)
	}

	succeeded, failed := c.succeeded, c.failed
	if succeeded+failed > job.TotalItems {
		m.logger().Warn("collected more outcomes than submitted items",
			zap.String("job_id", string(job.ID)),
			zap.Int("total", job.TotalItems), zap.Int("succeeded", succeeded), zap.Int("failed", failed))
		if succeeded > job.TotalItems {
			succeeded = job.TotalItems
		}
		failed = job.TotalItems - succeeded
	}
	job.ProcessedItems = succeeded
	job.FailedItems = failed
	if err := m.Repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job %s: %w", job.ID, err)
	}
	m.mirror(ctx, outPath, fmt.Sprintf("%s/raw/%s", job.ID, filepath.Base(outPath)))

	m.logger().Info("batch results collected",
		zap.String("job_id", string(job.ID)),
		zap.Int("succeeded", succeeded), zap.Int("failed", failed))

	return &domain.Result{
		JobID:           job.ID,
		TotalItems:      job.TotalItems,
		SuccessfulItems: succeeded,
		FailedItems:     failed,
		Elapsed:         job.Elapsed(),
		ResultsDir:      m.jobResultsDir(job.ID),
		Errors:          job.Errors,
	}, nil
}

func (m *Manager) download(ctx context.Context, fileID, dest string) error {
	dctx, cancel := m.callCtx(ctx)
	defer cancel()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return m.Provider.Download(dctx, fileID, dest)
}

// mirror uploads a file to the artifact store when one is configured.
func (m *Manager) mirror(ctx context.Context, localPath, key string) {
	if m.Artifacts == nil {
		return
	}
	if _, err := m.Artifacts.Upload(ctx, localPath, key); err != nil {
		m.logger().Warn("artifact mirror upload failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) jobResultsDir(id domain.JobID) string {
	return filepath.Join(m.ResultsDir, string(id))
}

type collector struct {
	m         *Manager
	job       *domain.Job
	proc      domain.Processor
	seen      map[string]bool
	succeeded int
	failed    int
}

func (c *collector) reject(cid, code, msg string) {
	c.failed++
	c.job.AddError(cid, code, msg)
	c.m.logger().Debug("item failed",
		zap.String("job_id", string(c.job.ID)),
		zap.String("correlation_id", cid),
		zap.String("code", code),
		zap.String("message", msg),
	)
}

func (c *collector) handle(ctx context.Context, o domain.RawOutcome) {
	cid := o.CorrelationID
	if c.seen[cid] {
		c.job.AddError(cid, CodeDuplicateResult, "correlation id already collected")
		return
	}
	c.seen[cid] = true

	if o.Error != nil {
		c.reject(cid, o.Error.Code, o.Error.Message)
		return
	}
	if len(o.Choices) == 0 || strings.TrimSpace(o.Choices[0]) == "" {
		c.reject(cid, CodeEmptyResponse, "response has no usable choices")
		return
	}
	payload, err := c.proc.Decode(o.Choices[0])
	if err != nil {
		c.reject(cid, CodeDecodeError, err.Error())
		return
	}
	ref, err := domain.ParseCorrelationID(cid)
	if err != nil {
		c.reject(cid, CodeInvalidCorrelationID, err.Error())
		return
	}

	model := o.Model
	if model == "" {
		model = c.job.ConfigSnapshot.Model
	}
	path, err := c.writeArtifact(ref, model, payload)
	if errors.Is(err, errOutsideResults) {
		c.reject(cid, CodeInvalidCorrelationID, err.Error())
		return
	}
	if err != nil {
		c.reject(cid, CodeArtifactWrite, err.Error())
		return
	}
	c.succeeded++
	rel, _ := filepath.Rel(c.m.ResultsDir, path)
	c.m.mirror(ctx, path, filepath.ToSlash(rel))
}

func (c *collector) writeArtifact(ref domain.ItemRef, model string, payload json.RawMessage) (string, error) {
	root := c.m.jobResultsDir(c.job.ID)
	dir := filepath.Join(root, ref.Org, ref.Repo)
	if rel, err := filepath.Rel(root, dir); err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s/%s", errOutsideResults, ref.Org, ref.Repo)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.json", ref.Kind, ref.Number))
	a := Artifact{
		Item: ArtifactItem{
			FilePath: path,
			JobID:    c.job.ID,
			Org:      ref.Org,
			Repo:     ref.Repo,
			Kind:     ref.Kind,
			Number:   ref.Number,
		},
		Processing: ArtifactProcessing{
			Processor:   c.proc.Type(),
			Version:     c.proc.Version(),
			Model:       model,
			ProcessedAt: c.m.now(),
		},
		Analysis: payload,
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}
