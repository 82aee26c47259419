package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"shortlink-service/queue"
)

var (
	requestCount atomic.Int64
	errorCount   atomic.Int64
	startTime    = time.Now()
)

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /health - simple liveness check.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Readiness handles GET /ready - readiness check with dependencies.
func Readiness(pg, rds Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dbHealthy := pg.Ping(ctx) == nil
		redisHealthy := rds.Ping(ctx) == nil

		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, map[string]interface{}{
			"status":    map[string]bool{"database": dbHealthy, "redis": redisHealthy},
			"ready":     dbHealthy && redisHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Metrics handles GET /metrics - application metrics. The ingestion block is
// the observability signal for the backpressure policy: under overload the
// dropped counter climbs while redirects stay fast.
func Metrics(clicks *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"uptime_seconds": int64(time.Since(startTime).Seconds()),
			"requests": map[string]interface{}{
				"total":  requestCount.Load(),
				"errors": errorCount.Load(),
			},
			"ingestion": map[string]interface{}{
				"queue_depth":    clicks.Len(),
				"queue_capacity": clicks.Cap(),
				"dropped_events": clicks.Dropped(),
			},
			"cache": map[string]interface{}{
				"l1_size": CacheSize(),
			},
			"memory": map[string]interface{}{
				"alloc_mb": float64(m.Alloc) / 1024 / 1024,
				"sys_mb":   float64(m.Sys) / 1024 / 1024,
				"num_gc":   m.NumGC,
			},
			"runtime": map[string]interface{}{
				"goroutines": runtime.NumGoroutine(),
				"cpu_count":  runtime.NumCPU(),
			},
		})
	}
}

// IncrementRequestCount increments the request counter.
func IncrementRequestCount() {
	requestCount.Add(1)
}

// IncrementErrorCount increments the error counter.
func IncrementErrorCount() {
	errorCount.Add(1)
}
