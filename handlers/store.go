package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"shortlink-service/models"
)

// LinkStore is the resolution store consumed by the HTTP layer. The only
// mutation that must be linearizable is CreateLink; implementations back it
// with an atomic conditional insert.
type LinkStore interface {
	CreateLink(ctx context.Context, link *models.Link) error
	GetLinkByCode(ctx context.Context, shortCode string) (*models.Link, error)
	ListLinks(ctx context.Context, offset, limit int) ([]*models.Link, error)
	DeactivateLink(ctx context.Context, shortCode string) error
}

// AnalyticsStore serves aggregated rollups written by the aggregator workers.
type AnalyticsStore interface {
	GetTotalClicks(ctx context.Context, shortCode string) (int64, error)
	GetClicksSince(ctx context.Context, shortCode string, since time.Time) (int64, error)
	GetDailySeries(ctx context.Context, shortCode string, since time.Time) ([]models.TimePoint, error)
	GetUniqueVisitors(ctx context.Context, shortCode string) (int64, error)
	GetDeviceBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error)
	GetBrowserBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error)
	GetCountryBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error)
	GetReferrerBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error)
}

// CacheBackend is the subset of the Redis wrapper the handlers use: the L2
// link cache and the realtime click counters.
type CacheBackend interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetInt(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
