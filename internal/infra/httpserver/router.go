package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
	"github.com/bryanwahyu/automaton-batch/internal/middleware"
)

// Service is the batch lifecycle as the HTTP layer sees it.
type Service interface {
	CreateJob(ctx context.Context, items []domain.Item, pt domain.ProcessorType, scope domain.Scope, cfg domain.ModelConfig) (*domain.Job, error)
	CreateForScope(ctx context.Context, pt domain.ProcessorType, scope domain.Scope, cfg domain.ModelConfig) (*domain.Job, error)
	CheckStatus(ctx context.Context, idOrPrefix string) (*domain.Job, error)
	CollectResults(ctx context.Context, idOrPrefix string) (*domain.Result, error)
	CancelJob(ctx context.Context, idOrPrefix string) (*domain.Job, error)
	RemoveJob(ctx context.Context, idOrPrefix string, force bool, confirm domain.Confirmer) (domain.RemoveResult, error)
	ListJobs(ctx context.Context) ([]*domain.Job, error)
}

type Options struct {
	Service    Service
	Defaults   domain.ModelConfig
	Processors []domain.ProcessorType
	Metrics    *middleware.Metrics
	Log        *zap.Logger

	APIKeys     map[string]string
	RateLimit   float64
	Burst       int
	CORSOrigins []string
	Checkers    map[string]middleware.HealthChecker
}

type Router struct {
	svc        Service
	defaults   domain.ModelConfig
	processors []domain.ProcessorType
	metrics    *middleware.Metrics
	log        *zap.Logger
}

func NewRouter(o Options) http.Handler {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = middleware.NewMetrics()
	}
	r := &Router{svc: o.Service, defaults: o.Defaults, processors: o.Processors, metrics: o.Metrics, log: o.Log}

	origins := o.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.RequestLogger(o.Log))
	mux.Use(o.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(o.APIKeys))
	mux.Use(middleware.RateLimitMiddleware(o.RateLimit, o.Burst))

	mux.Get("/health", middleware.HealthHandler(o.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler(o.Checkers))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", o.Metrics.Handler)

	mux.Route("/v1/batches", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreate))
		rt.Get("/", r.wrap(r.handleList))
		rt.Get("/{id}", r.wrap(r.handleStatus))
		rt.Post("/{id}/collect", r.wrap(r.handleCollect))
		rt.Post("/{id}/cancel", r.wrap(r.handleCancel))
		rt.Delete("/{id}", r.wrap(r.handleRemove))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := StatusFor(err)
			if status >= 500 {
				r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			}
			body := map[string]any{"error": err.Error()}
			var amb *domain.AmbiguousIdentifierError
			if errors.As(err, &amb) {
				shown, more := amb.Shown()
				body["matches"] = shown
				if more > 0 {
					body["more"] = more
				}
			}
			writeJSON(w, status, body)
		}
	}
}

// StatusFor maps the error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	var (
		verr  *domain.ValidationError
		uperr *domain.UnsupportedProcessorError
		amb   *domain.AmbiguousIdentifierError
		noit  *domain.NoItemsError
		ext   *domain.ExternalServiceError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &uperr):
		return http.StatusBadRequest
	case errors.As(err, &amb):
		return http.StatusConflict
	case errors.As(err, &noit), errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotCompleted), errors.Is(err, domain.ErrNoOutput),
		errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrNoExternalID):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.As(err, &ext):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

type createRequest struct {
	Processor       string        `json:"processor"`
	Org             string        `json:"org"`
	Repo            string        `json:"repo"`
	Number          int           `json:"number"`
	Items           []domain.Item `json:"items"`
	Model           string        `json:"model"`
	Temperature     *float32      `json:"temperature"`
	ReasoningEffort string        `json:"reasoning_effort"`
	MaxTokens       int           `json:"max_tokens"`
}

// modelConfig overlays request overrides on the configured defaults.
func (r *Router) modelConfig(b createRequest) domain.ModelConfig {
	d := r.defaults
	model, temp, effort, maxTokens := d.Model, d.Temperature, d.ReasoningEffort, d.MaxTokens
	if b.Model != "" {
		model = b.Model
	}
	if b.Temperature != nil {
		temp = *b.Temperature
	}
	if b.ReasoningEffort != "" {
		effort = b.ReasoningEffort
	}
	if b.MaxTokens > 0 {
		maxTokens = b.MaxTokens
	}
	return domain.NewModelConfig(model, temp, effort, maxTokens, d.CompletionWindow)
}

// POST /v1/batches
// Body: {"processor": "...", "org": "...", "repo": "...", "number": 0, "items": [...]}
// Without items the scope is looked up in the item inventory.
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body createRequest
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return &domain.ValidationError{Msg: "invalid request body: " + err.Error()}
	}
	pt := domain.ProcessorType(middleware.SanitizeString(body.Processor))
	if err := middleware.ValidateProcessor(pt, r.processors); err != nil {
		return err
	}
	scope := domain.Scope{Org: body.Org, Repo: body.Repo, Number: body.Number}
	if err := middleware.ValidateScope(scope); err != nil {
		return err
	}
	cfg := r.modelConfig(body)

	var (
		job *domain.Job
		err error
	)
	if len(body.Items) > 0 {
		job, err = r.svc.CreateJob(req.Context(), body.Items, pt, scope, cfg)
	} else {
		job, err = r.svc.CreateForScope(req.Context(), pt, scope, cfg)
	}
	if err != nil {
		r.metrics.JobsCreateFail.Add(1)
		if job != nil {
			// the job was recorded as failed; return it with the error
			return writeJSON(w, StatusFor(err), map[string]any{"error": err.Error(), "job": job})
		}
		return err
	}
	r.metrics.JobsCreated.Add(1)
	return writeJSON(w, http.StatusCreated, job)
}

// GET /v1/batches?status=&limit=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	jobs, err := r.svc.ListJobs(req.Context())
	if err != nil {
		return err
	}
	q := req.URL.Query()
	if st := q.Get("status"); st != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if strings.EqualFold(string(j.Status), st) {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	limit = middleware.ValidateLimit(limit)
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return writeJSON(w, http.StatusOK, jobs)
}

func jobRef(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateJobRef(id); err != nil {
		return "", err
	}
	return id, nil
}

// GET /v1/batches/{id}
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id, err := jobRef(req)
	if err != nil {
		return err
	}
	job, err := r.svc.CheckStatus(req.Context(), id)
	if err != nil {
		return err
	}
	r.metrics.StatusChecks.Add(1)
	return writeJSON(w, http.StatusOK, job)
}

// POST /v1/batches/{id}/collect
func (r *Router) handleCollect(w http.ResponseWriter, req *http.Request) error {
	id, err := jobRef(req)
	if err != nil {
		return err
	}
	res, err := r.svc.CollectResults(req.Context(), id)
	if err != nil {
		return err
	}
	r.metrics.RecordCollect(res.SuccessfulItems, res.FailedItems)
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/batches/{id}/cancel
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id, err := jobRef(req)
	if err != nil {
		return err
	}
	job, err := r.svc.CancelJob(req.Context(), id)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusCancelled {
		r.metrics.JobsCancelled.Add(1)
	}
	return writeJSON(w, http.StatusOK, job)
}

// DELETE /v1/batches/{id}?force=true
// DELETE /v1/batches/{id}?confirm=true[&confirm_active=true]
func (r *Router) handleRemove(w http.ResponseWriter, req *http.Request) error {
	id, err := jobRef(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	force := q.Get("force") == "true"
	c := queryConfirmer{
		remove: q.Get("confirm") == "true",
		active: q.Get("confirm_active") == "true",
	}
	res, err := r.svc.RemoveJob(req.Context(), id, force, c)
	if err != nil {
		return err
	}
	if !res.Deleted {
		return writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "removal not confirmed; pass confirm=true (and confirm_active=true for active jobs) or force=true",
			"job_id": res.JobID,
		})
	}
	r.metrics.JobsRemoved.Add(1)
	return writeJSON(w, http.StatusOK, res)
}

// queryConfirmer answers removal questions from query parameters.
type queryConfirmer struct {
	remove bool
	active bool
}

func (c queryConfirmer) Confirm(_ context.Context, q domain.Question) (bool, error) {
	if q.Kind == domain.QuestionRemoveActive {
		return c.active, nil
	}
	return c.remove, nil
}
