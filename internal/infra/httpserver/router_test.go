package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
	"github.com/bryanwahyu/automaton-batch/internal/middleware"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateJob(ctx context.Context, items []domain.Item, pt domain.ProcessorType, scope domain.Scope, cfg domain.ModelConfig) (*domain.Job, error) {
	args := m.Called(ctx, items, pt, scope, cfg)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockService) CreateForScope(ctx context.Context, pt domain.ProcessorType, scope domain.Scope, cfg domain.ModelConfig) (*domain.Job, error) {
	args := m.Called(ctx, pt, scope, cfg)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockService) CheckStatus(ctx context.Context, idOrPrefix string) (*domain.Job, error) {
	args := m.Called(ctx, idOrPrefix)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockService) CollectResults(ctx context.Context, idOrPrefix string) (*domain.Result, error) {
	args := m.Called(ctx, idOrPrefix)
	res, _ := args.Get(0).(*domain.Result)
	return res, args.Error(1)
}

func (m *MockService) CancelJob(ctx context.Context, idOrPrefix string) (*domain.Job, error) {
	args := m.Called(ctx, idOrPrefix)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockService) RemoveJob(ctx context.Context, idOrPrefix string, force bool, confirm domain.Confirmer) (domain.RemoveResult, error) {
	args := m.Called(ctx, idOrPrefix, force, confirm)
	return args.Get(0).(domain.RemoveResult), args.Error(1)
}

func (m *MockService) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	args := m.Called(ctx)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Error(1)
}

const jobID = "3f2a9c1e-0000-4000-8000-000000000001"

type testServer struct {
	svc     *MockService
	metrics *middleware.Metrics
	handler http.Handler
}

func newTestServer(t *testing.T, keys map[string]string) *testServer {
	t.Helper()
	svc := &MockService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	metrics := middleware.NewMetrics()
	h := NewRouter(Options{
		Service:    svc,
		Defaults:   domain.NewModelConfig("gpt-4.1-mini", 0.2, "", 1000, ""),
		Processors: []domain.ProcessorType{domain.ProcessorProductLabeling, domain.ProcessorSecurityReview},
		Metrics:    metrics,
		Log:        zaptest.NewLogger(t),
		APIKeys:    keys,
	})
	return &testServer{svc: svc, metrics: metrics, handler: h}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{&domain.ValidationError{Field: "org", Msg: "bad"}, http.StatusBadRequest},
		{&domain.UnsupportedProcessorError{Type: "x"}, http.StatusBadRequest},
		{&domain.AmbiguousIdentifierError{Input: "a", Matches: []domain.JobID{"a1", "a2"}}, http.StatusConflict},
		{&domain.NoItemsError{Scope: domain.Scope{Org: "acme"}}, http.StatusNotFound},
		{&domain.NotFoundError{Input: "ff"}, http.StatusNotFound},
		{fmt.Errorf("%w: job x", domain.ErrNotCompleted), http.StatusConflict},
		{fmt.Errorf("%w: job x", domain.ErrNoOutput), http.StatusConflict},
		{fmt.Errorf("%w: expired", domain.ErrInvalidState), http.StatusConflict},
		{domain.NewExternalError(domain.ErrSubmission, fmt.Errorf("%w: 429", domain.ErrQuotaExceeded)), http.StatusTooManyRequests},
		{domain.NewExternalError(domain.ErrDownload, errors.New("eof")), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, StatusFor(tt.err), tt.err.Error())
	}
}

func TestCreateForScope(t *testing.T) {
	s := newTestServer(t, nil)
	want := domain.NewModelConfig("o4-mini", 0.2, "low", 1000, "")
	s.svc.On("CreateForScope", mock.Anything, domain.ProcessorSecurityReview, domain.Scope{Org: "acme", Repo: "api"}, want).
		Return(&domain.Job{ID: jobID, Status: domain.StatusValidating}, nil)

	rec := s.do(http.MethodPost, "/v1/batches", `{"processor":"security-review","org":"acme","repo":"api","model":"o4-mini","reasoning_effort":"low"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, jobID, decodeBody(t, rec)["job_id"])
	assert.Equal(t, uint64(1), s.metrics.JobsCreated.Load())
}

func TestCreateWithItemsOverridesTemperature(t *testing.T) {
	s := newTestServer(t, nil)
	items := []domain.Item{{Org: "acme", Repo: "api", Kind: domain.KindIssue, Number: 1, Title: "t"}}
	want := domain.NewModelConfig("gpt-4.1-mini", 0, "", 1000, "")
	s.svc.On("CreateJob", mock.Anything, items, domain.ProcessorProductLabeling, domain.Scope{Org: "acme"}, want).
		Return(&domain.Job{ID: jobID}, nil)

	rec := s.do(http.MethodPost, "/v1/batches",
		`{"processor":"product-labeling","org":"acme","temperature":0,"items":[{"org":"acme","repo":"api","kind":"issue","number":1,"title":"t"}]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)

	for _, body := range []string{
		`{"processor":"sentiment","org":"acme"}`,
		`{"processor":"security-review","org":"acme_corp"}`,
		`{"processor":"security-review","org":"acme","number":3}`,
		`{"processor":"security-review","unknown":true}`,
		`not json`,
	} {
		rec := s.do(http.MethodPost, "/v1/batches", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	s.svc.AssertNotCalled(t, "CreateForScope", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateFailureReturnsJob(t *testing.T) {
	s := newTestServer(t, nil)
	failed := &domain.Job{ID: jobID, Status: domain.StatusFailed}
	s.svc.On("CreateForScope", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(failed, domain.NewExternalError(domain.ErrUpload, errors.New("connection reset")))

	rec := s.do(http.MethodPost, "/v1/batches", `{"processor":"security-review","org":"acme"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "connection reset")
	assert.Equal(t, "failed", body["job"].(map[string]any)["status"])
	assert.Equal(t, uint64(1), s.metrics.JobsCreateFail.Load())
}

func TestCreateNoItems(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("CreateForScope", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &domain.NoItemsError{Scope: domain.Scope{Org: "acme", Repo: "api", Number: 9}})

	rec := s.do(http.MethodPost, "/v1/batches", `{"processor":"security-review","org":"acme","repo":"api","number":9}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAmbiguousPrefix(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("CheckStatus", mock.Anything, "3f").
		Return(nil, &domain.AmbiguousIdentifierError{Input: "3f", Matches: []domain.JobID{"3f1", "3f2"}})

	rec := s.do(http.MethodGet, "/v1/batches/3f", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"3f1", "3f2"}, body["matches"])
	assert.NotContains(t, body, "more")
}

func TestStatusAmbiguousPrefixCapsMatches(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("CheckStatus", mock.Anything, "3f").
		Return(nil, &domain.AmbiguousIdentifierError{Input: "3f", Matches: []domain.JobID{"3f1", "3f2", "3f3", "3f4", "3f5"}})

	rec := s.do(http.MethodGet, "/v1/batches/3f", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"3f1", "3f2", "3f3"}, body["matches"])
	assert.Equal(t, float64(2), body["more"])
	assert.Contains(t, body["error"], "(and 2 more)")
}

func TestStatusRejectsBadRef(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/v1/batches/not-a-job", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollect(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("CollectResults", mock.Anything, jobID).
		Return(&domain.Result{JobID: jobID, TotalItems: 3, SuccessfulItems: 2, FailedItems: 1}, nil)

	rec := s.do(http.MethodPost, "/v1/batches/"+jobID+"/collect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["successful_items"])
	assert.Equal(t, uint64(2), s.metrics.ItemsSucceeded.Load())
}

func TestCollectNotCompleted(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("CollectResults", mock.Anything, jobID).Return(nil, fmt.Errorf("%w: job is in_progress", domain.ErrNotCompleted))

	rec := s.do(http.MethodPost, "/v1/batches/"+jobID+"/collect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancel(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("CancelJob", mock.Anything, jobID).Return(&domain.Job{ID: jobID, Status: domain.StatusCancelled}, nil)

	rec := s.do(http.MethodPost, "/v1/batches/"+jobID+"/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), s.metrics.JobsCancelled.Load())
}

func TestRemoveConfirmations(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("RemoveJob", mock.Anything, jobID, false, queryConfirmer{remove: true, active: true}).
		Return(domain.RemoveResult{JobID: jobID, Deleted: true}, nil).Once()
	s.svc.On("RemoveJob", mock.Anything, jobID, false, queryConfirmer{}).
		Return(domain.RemoveResult{JobID: jobID}, nil).Once()
	s.svc.On("RemoveJob", mock.Anything, jobID, true, queryConfirmer{}).
		Return(domain.RemoveResult{JobID: jobID, Deleted: true}, nil).Once()

	rec := s.do(http.MethodDelete, "/v1/batches/"+jobID+"?confirm=true&confirm_active=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/v1/batches/"+jobID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodDelete, "/v1/batches/"+jobID+"?force=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2), s.metrics.JobsRemoved.Load())
}

func TestQueryConfirmer(t *testing.T) {
	c := queryConfirmer{remove: true}
	ok, err := c.Confirm(context.Background(), domain.Question{Kind: domain.QuestionRemoveActive})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Confirm(context.Background(), domain.Question{Kind: domain.QuestionRemove})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListFiltersAndLimits(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("ListJobs", mock.Anything).Return([]*domain.Job{
		{ID: "c", Status: domain.StatusCompleted},
		{ID: "b", Status: domain.StatusInProgress},
		{ID: "a", Status: domain.StatusCompleted},
	}, nil)

	rec := s.do(http.MethodGet, "/v1/batches?status=COMPLETED&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "c", jobs[0]["job_id"])
}

func TestListEmpty(t *testing.T) {
	s := newTestServer(t, nil)
	s.svc.On("ListJobs", mock.Anything).Return(nil, nil)

	rec := s.do(http.MethodGet, "/v1/batches", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAuthAndPublicEndpoints(t *testing.T) {
	s := newTestServer(t, map[string]string{"ci": "secret"})

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/batches", "").Code)

	s.svc.On("ListJobs", mock.Anything).Return([]*domain.Job{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/batches", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
