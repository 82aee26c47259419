package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"shortlink-service/models"
	"shortlink-service/queue"
	"shortlink-service/utils"
)

// TrackClick handles POST /api/track/{code} — explicit click registration
// for clients that perform the redirect themselves (e.g. a frontend that
// resolves the destination and navigates). Same ingestion path as the
// redirect handler.
func TrackClick(store LinkStore, clicks *queue.Queue, cache CacheBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := mux.Vars(r)["code"]

		link, err := store.GetLinkByCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				writeError(w, http.StatusNotFound, "link not found")
				return
			}
			log.Error().Err(err).Str("code", shortCode).Msg("failed to get link for tracking")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		if !link.IsActive {
			writeError(w, http.StatusNotFound, "link not found")
			return
		}

		ipAddr := utils.ExtractIP(r)
		userAgent := r.UserAgent()
		event := models.ClickEvent{
			ShortCode:   shortCode,
			ClickedAt:   time.Now().UTC(),
			IPAddress:   ipAddr,
			VisitorHash: utils.HashVisitor(ipAddr, userAgent),
			UserAgent:   userAgent,
			Referer:     r.Referer(),
		}
		if !clicks.Offer(event) {
			log.Warn().Str("code", shortCode).Msg("click buffer full, tracked event dropped")
		}

		if _, err := cache.IncrBy(r.Context(), "clicks:realtime:"+shortCode, 1); err != nil {
			log.Debug().Err(err).Str("code", shortCode).Msg("realtime counter increment failed")
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "tracked"})
	}
}
