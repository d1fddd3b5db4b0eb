package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bryanwahyu/automaton-batch/internal/application"
	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// memRepo keeps encoded records so callers never share pointers with it.
type memRepo struct {
	mu          sync.Mutex
	recs        map[domain.JobID][]byte
	listIDCalls int
}

var _ domain.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo { return &memRepo{recs: map[domain.JobID][]byte{}} }

func (r *memRepo) Save(ctx context.Context, j *domain.Job) error {
	b, err := domain.EncodeJob(j)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[j.ID] = b
	return nil
}

func (r *memRepo) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.Lock()
	b, ok := r.recs[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return domain.DecodeJob(b)
}

func (r *memRepo) Exists(ctx context.Context, id domain.JobID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.recs[id]
	return ok, nil
}

func (r *memRepo) ListIDs(ctx context.Context) ([]domain.JobID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listIDCalls++
	ids := make([]domain.JobID, 0, len(r.recs))
	for id := range r.recs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memRepo) List(ctx context.Context) ([]*domain.Job, error) {
	ids, _ := r.ListIDs(ctx)
	var out []*domain.Job
	for _, id := range ids {
		j, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, id domain.JobID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	delete(r.recs, id)
	return nil
}

func (r *memRepo) raw(id domain.JobID) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.recs[id]...)
}

// MockProvider is a mock implementation of Provider
type MockProvider struct {
	mock.Mock
}

var _ domain.Provider = (*MockProvider)(nil)

func (m *MockProvider) Upload(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Submit(ctx context.Context, inputID string, cfg domain.ModelConfig) (string, error) {
	args := m.Called(ctx, inputID, cfg)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Poll(ctx context.Context, batchID string) (domain.PollResult, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(domain.PollResult), args.Error(1)
}

func (m *MockProvider) Cancel(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

func (m *MockProvider) Download(ctx context.Context, fileID, destPath string) error {
	args := m.Called(ctx, fileID, destPath)
	return args.Error(0)
}

func (m *MockProvider) Parse(path string) ([]domain.RawOutcome, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawOutcome), args.Error(1)
}

// fileBuilder writes one line per item.
type fileBuilder struct {
	dir string
	err error
}

func (b *fileBuilder) Build(id domain.JobID, items []domain.Item, pt domain.ProcessorType, cfg domain.ModelConfig) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	var lines []string
	for _, it := range items {
		lines = append(lines, domain.CorrelationID(it.Ref()))
	}
	p := filepath.Join(b.dir, string(id)+".jsonl")
	return p, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// okProcessor accepts exactly {"ok": <bool>}.
type okProcessor struct{}

func (okProcessor) Type() domain.ProcessorType       { return domain.ProcessorSecurityReview }
func (okProcessor) Version() string                  { return "0.1.0" }
func (okProcessor) SystemPrompt() string             { return "system" }
func (okProcessor) UserPrompt(it domain.Item) string { return it.Title }
func (okProcessor) Schema() (json.Marshaler, error)  { return json.RawMessage(`{}`), nil }

func (okProcessor) Decode(content string) (json.RawMessage, error) {
	var v struct {
		OK bool `json:"ok"`
	}
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

type registry map[domain.ProcessorType]domain.Processor

func (r registry) Lookup(pt domain.ProcessorType) (domain.Processor, error) {
	p, ok := r[pt]
	if !ok {
		return nil, &domain.UnsupportedProcessorError{Type: pt}
	}
	return p, nil
}

type staticItems []domain.Item

func (s staticItems) Find(ctx context.Context, scope domain.Scope) ([]domain.Item, error) {
	var out []domain.Item
	for _, it := range s {
		if (scope.Org == "" || it.Org == scope.Org) && (scope.Repo == "" || it.Repo == scope.Repo) &&
			(scope.Number == 0 || it.Number == scope.Number) {
			out = append(out, it)
		}
	}
	return out, nil
}

type recordingStore struct {
	mu   sync.Mutex
	keys []string
}

func (s *recordingStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "mem://" + key, nil
}

// answers replies to confirmation questions in order.
type answers struct {
	replies []bool
	asked   []domain.Question
}

func (a *answers) Confirm(ctx context.Context, q domain.Question) (bool, error) {
	a.asked = append(a.asked, q)
	if len(a.asked) > len(a.replies) {
		return false, nil
	}
	return a.replies[len(a.asked)-1], nil
}

type fixture struct {
	m    *Manager
	repo *memRepo
	prov *MockProvider
	dir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo := newMemRepo()
	prov := &MockProvider{}
	t.Cleanup(func() { prov.AssertExpectations(t) })
	m := &Manager{
		Repo:       repo,
		Provider:   prov,
		Builder:    &fileBuilder{dir: filepath.Join(dir, "inputs")},
		Processors: registry{domain.ProcessorSecurityReview: okProcessor{}},
		Clock:      &application.FixedClock{T: t0},
		Log:        zaptest.NewLogger(t),
		OutputsDir: filepath.Join(dir, "outputs"),
		ResultsDir: filepath.Join(dir, "results"),
	}
	return &fixture{m: m, repo: repo, prov: prov, dir: dir}
}

func (f *fixture) seed(t *testing.T, j *domain.Job) *domain.Job {
	t.Helper()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = t0
	}
	if j.ProcessorType == "" {
		j.ProcessorType = domain.ProcessorSecurityReview
	}
	require.NoError(t, f.repo.Save(context.Background(), j))
	return j
}

func testItems(n int) []domain.Item {
	out := make([]domain.Item, n)
	for i := range out {
		out[i] = domain.Item{Org: "o", Repo: "r", Kind: domain.KindIssue, Number: i + 1, Title: fmt.Sprintf("item %d", i+1)}
	}
	return out
}
