package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics holds request and batch counters. Safe for concurrent use.
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	JobsCreated    atomic.Uint64
	JobsCreateFail atomic.Uint64
	JobsCollected  atomic.Uint64
	JobsCancelled  atomic.Uint64
	JobsRemoved    atomic.Uint64
	ItemsSucceeded atomic.Uint64
	ItemsFailed    atomic.Uint64
	StatusChecks   atomic.Uint64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// RecordCollect adds the outcome of one result collection.
func (m *Metrics) RecordCollect(succeeded, failed int) {
	m.JobsCollected.Add(1)
	m.ItemsSucceeded.Add(uint64(succeeded))
	m.ItemsFailed.Add(uint64(failed))
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"batch": map[string]interface{}{
			"jobs_created":       m.JobsCreated.Load(),
			"jobs_create_failed": m.JobsCreateFail.Load(),
			"jobs_collected":     m.JobsCollected.Load(),
			"jobs_cancelled":     m.JobsCancelled.Load(),
			"jobs_removed":       m.JobsRemoved.Load(),
			"items_succeeded":    m.ItemsSucceeded.Load(),
			"items_failed":       m.ItemsFailed.Load(),
			"status_checks":      m.StatusChecks.Load(),
		},
		"uptime_seconds": time.Since(m.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_gc":      mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
