package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"shortlink-service/models"
	"shortlink-service/queue"
	"shortlink-service/utils"
)

// HandleRedirect serves GET /{code}. This is the critical path: the 302 is
// written as soon as the destination is known, and click ingestion happens
// after the response with no way to add latency or failure risk to it.
func HandleRedirect(store LinkStore, clicks *queue.Queue, cache CacheBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if len(path) <= 1 {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		shortCode := path[1:]
		if idx := strings.IndexByte(shortCode, '/'); idx >= 0 {
			shortCode = shortCode[:idx]
		}
		if shortCode == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		originalURL, found := cacheGet(shortCode)
		if !found {
			// Collapse concurrent misses for the same code into one query.
			v, err, _ := lookupGroup.Do(shortCode, func() (interface{}, error) {
				queryCtx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
				defer cancel()
				return store.GetLinkByCode(queryCtx, shortCode)
			})
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					writeError(w, http.StatusNotFound, "not found")
					return
				}
				log.Error().Err(err).Str("code", shortCode).Msg("redirect lookup failed")
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}

			link := v.(*models.Link)
			if !link.IsActive {
				writeError(w, http.StatusNotFound, "not found")
				return
			}

			originalURL = link.OriginalURL
			CacheSet(shortCode, originalURL)
			go func() {
				bgCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				if err := cache.Set(bgCtx, "link:"+shortCode, originalURL, 1*time.Hour); err != nil {
					log.Debug().Err(err).Str("code", shortCode).Msg("redis link cache set failed")
				}
			}()
		}

		// Direct header write is faster than http.Redirect on this path.
		w.Header().Set("Location", originalURL)
		w.WriteHeader(http.StatusFound)

		// Capture request fields before the goroutine; the request may be
		// reused by the server once the handler returns.
		ipAddr := utils.ExtractIP(r)
		userAgent := r.UserAgent()
		referer := r.Referer()
		clickedAt := time.Now().UTC()

		go func() {
			event := models.ClickEvent{
				ShortCode:   shortCode,
				ClickedAt:   clickedAt,
				IPAddress:   ipAddr,
				VisitorHash: utils.HashVisitor(ipAddr, userAgent),
				UserAgent:   userAgent,
				Referer:     referer,
			}
			if !clicks.Offer(event) {
				log.Warn().Str("code", shortCode).Int64("dropped", clicks.Dropped()).
					Msg("click buffer full, event dropped")
			}

			bgCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if _, err := cache.IncrBy(bgCtx, "clicks:realtime:"+shortCode, 1); err != nil {
				log.Debug().Err(err).Str("code", shortCode).Msg("realtime counter increment failed")
			}
		}()
	}
}
