package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the SQL job store.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

// DirHealthChecker checks that a data directory exists and is writable.
type DirHealthChecker struct {
	Dir string
}

func (d *DirHealthChecker) Check(ctx context.Context) error {
	fi, err := os.Stat(d.Dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", d.Dir)
	}
	f, err := os.CreateTemp(d.Dir, ".health-*")
	if err != nil {
		return fmt.Errorf("%s not writable: %w", d.Dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// runChecks reports ok=false if any checker fails.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) (map[string]CheckStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok := true
	out := make(map[string]CheckStatus, len(checkers))
	for name, c := range checkers {
		if err := c.Check(ctx); err != nil {
			ok = false
			out[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		out[name] = CheckStatus{Status: "healthy"}
	}
	return out, ok
}

func writeStatus(w http.ResponseWriter, ok bool, hs HealthStatus) {
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(hs)
}

// HealthHandler runs every checker and reports 503 with per-check detail if any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks, ok := runChecks(r.Context(), checkers)
		hs := HealthStatus{Status: "healthy", Timestamp: time.Now().UTC(), Checks: checks}
		if !ok {
			hs.Status = "unhealthy"
		}
		writeStatus(w, ok, hs)
	}
}

// ReadinessHandler answers ready/not_ready without check detail.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ok := runChecks(r.Context(), checkers)
		hs := HealthStatus{Status: "ready", Timestamp: time.Now().UTC()}
		if !ok {
			hs.Status = "not_ready"
		}
		writeStatus(w, ok, hs)
	}
}

// LivenessHandler only proves the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}
