package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"shortlink-service/models"
)

const breakdownLimit = 10

type AnalyticsResponse struct {
	ShortCode       string                  `json:"short_code"`
	TotalClicks     int64                   `json:"total_clicks"`
	UniqueVisitors  int64                   `json:"unique_visitors"`
	RealtimeClicks  int64                   `json:"realtime_clicks"`
	ClicksToday     int64                   `json:"clicks_today"`
	ClicksThisWeek  int64                   `json:"clicks_this_week"`
	ClicksThisMonth int64                   `json:"clicks_this_month"`
	Daily           []models.TimePoint      `json:"daily"`
	Devices         []models.BreakdownEntry `json:"devices"`
	Browsers        []models.BreakdownEntry `json:"browsers"`
	Countries       []models.BreakdownEntry `json:"countries"`
	Referrers       []models.BreakdownEntry `json:"referrers"`
}

// GetAnalytics handles GET /api/analytics/{code}. Totals come from the daily
// rollups; week and month figures are range sums over the same table, so
// they stay consistent with the daily series.
func GetAnalytics(links LinkStore, stats AnalyticsStore, cache CacheBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := mux.Vars(r)["code"]
		ctx := r.Context()

		if _, err := links.GetLinkByCode(ctx, shortCode); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				writeError(w, http.StatusNotFound, "link not found")
				return
			}
			log.Error().Err(err).Str("code", shortCode).Msg("failed to get link for analytics")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		resp := AnalyticsResponse{
			ShortCode: shortCode,
			Daily:     []models.TimePoint{},
			Devices:   []models.BreakdownEntry{},
			Browsers:  []models.BreakdownEntry{},
			Countries: []models.BreakdownEntry{},
			Referrers: []models.BreakdownEntry{},
		}

		now := time.Now().UTC()
		today := now.Truncate(24 * time.Hour)

		total, err := stats.GetTotalClicks(ctx, shortCode)
		if err != nil {
			log.Error().Err(err).Str("code", shortCode).Msg("failed to get total clicks")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		resp.TotalClicks = total

		if unique, err := stats.GetUniqueVisitors(ctx, shortCode); err == nil {
			resp.UniqueVisitors = unique
		} else {
			log.Warn().Err(err).Str("code", shortCode).Msg("failed to get unique visitors")
		}

		if n, err := stats.GetClicksSince(ctx, shortCode, today); err == nil {
			resp.ClicksToday = n
		}
		if n, err := stats.GetClicksSince(ctx, shortCode, today.AddDate(0, 0, -6)); err == nil {
			resp.ClicksThisWeek = n
		}
		if n, err := stats.GetClicksSince(ctx, shortCode, today.AddDate(0, 0, -29)); err == nil {
			resp.ClicksThisMonth = n
		}

		if daily, err := stats.GetDailySeries(ctx, shortCode, today.AddDate(0, 0, -29)); err == nil && daily != nil {
			resp.Daily = daily
		}
		if entries, err := stats.GetDeviceBreakdown(ctx, shortCode, breakdownLimit); err == nil && entries != nil {
			resp.Devices = entries
		}
		if entries, err := stats.GetBrowserBreakdown(ctx, shortCode, breakdownLimit); err == nil && entries != nil {
			resp.Browsers = entries
		}
		if entries, err := stats.GetCountryBreakdown(ctx, shortCode, breakdownLimit); err == nil && entries != nil {
			resp.Countries = entries
		}
		if entries, err := stats.GetReferrerBreakdown(ctx, shortCode, breakdownLimit); err == nil && entries != nil {
			resp.Referrers = entries
		}

		// Realtime counter includes clicks the aggregator has not flushed yet.
		if n, err := cache.GetInt(ctx, "clicks:realtime:"+shortCode); err == nil {
			resp.RealtimeClicks = n
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
