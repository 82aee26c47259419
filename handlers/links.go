package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"shortlink-service/models"
	"shortlink-service/shortcode"
	"shortlink-service/utils"
)

const createRetries = 5

type CreateLinkRequest struct {
	OriginalURL string `json:"original_url"`
	CustomAlias string `json:"custom_alias,omitempty"`
}

type LinkResponse struct {
	ShortCode     string    `json:"short_code"`
	ShortURL      string    `json:"short_url"`
	OriginalURL   string    `json:"original_url"`
	IsCustomAlias bool      `json:"is_custom_alias"`
	IsActive      bool      `json:"is_active"`
	ClickCount    int64     `json:"click_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type LinkDetailResponse struct {
	LinkResponse
	Stats *models.LinkStats `json:"stats"`
}

type ListLinksResponse struct {
	Links []LinkResponse `json:"links"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

func linkResponse(link *models.Link, baseURL string) LinkResponse {
	return LinkResponse{
		ShortCode:     link.ShortCode,
		ShortURL:      baseURL + "/" + link.ShortCode,
		OriginalURL:   link.OriginalURL,
		IsCustomAlias: link.IsCustomAlias,
		IsActive:      link.IsActive,
		ClickCount:    link.ClickCount,
		CreatedAt:     link.CreatedAt,
	}
}

// CreateLink handles POST /api/urls/.
//
// With a custom alias the conditional insert either wins or reports the
// alias taken (409). With generated codes a conflict means a random
// collision, retried with fresh codes up to createRetries before giving up
// with 503 — retrying the whole request is then likely to succeed.
func CreateLink(store LinkStore, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		originalURL, err := utils.NormalizeURL(req.OriginalURL)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid url")
			return
		}

		link := &models.Link{OriginalURL: originalURL}

		if req.CustomAlias != "" {
			alias, err := shortcode.ValidateAlias(req.CustomAlias)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "invalid alias")
				return
			}
			link.ShortCode = alias
			link.IsCustomAlias = true

			if err := store.CreateLink(r.Context(), link); err != nil {
				if errors.Is(err, models.ErrCodeTaken) {
					writeError(w, http.StatusConflict, "alias already taken")
					return
				}
				log.Error().Err(err).Str("alias", alias).Msg("failed to create link")
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
		} else {
			if err := createWithGeneratedCode(r.Context(), store, link); err != nil {
				if errors.Is(err, models.ErrExhaustedRetries) {
					writeError(w, http.StatusServiceUnavailable, "could not allocate a short code, retry")
					return
				}
				log.Error().Err(err).Msg("failed to create link")
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
		}

		CacheSet(link.ShortCode, link.OriginalURL)
		writeJSON(w, http.StatusCreated, linkResponse(link, baseURL))
	}
}

func createWithGeneratedCode(ctx context.Context, store LinkStore, link *models.Link) error {
	for i := 0; i < createRetries; i++ {
		link.ShortCode = shortcode.Generate()
		err := store.CreateLink(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrCodeTaken) {
			return err
		}
	}
	return models.ErrExhaustedRetries
}

// GetLink handles GET /api/urls/{code}. This is the administrative lookup:
// it returns deactivated records too.
func GetLink(store LinkStore, stats AnalyticsStore, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := mux.Vars(r)["code"]

		link, err := store.GetLinkByCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				writeError(w, http.StatusNotFound, "link not found")
				return
			}
			log.Error().Err(err).Str("code", shortCode).Msg("failed to get link")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		linkStats := &models.LinkStats{ShortCode: shortCode}
		if total, err := stats.GetTotalClicks(r.Context(), shortCode); err == nil {
			linkStats.TotalClicks = total
		}
		if unique, err := stats.GetUniqueVisitors(r.Context(), shortCode); err == nil {
			linkStats.UniqueVisitors = unique
		}

		writeJSON(w, http.StatusOK, LinkDetailResponse{
			LinkResponse: linkResponse(link, baseURL),
			Stats:        linkStats,
		})
	}
}

// ListLinks handles GET /api/urls?page=&limit=.
func ListLinks(store LinkStore, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := 1, 20
		if v := r.URL.Query().Get("page"); v != "" {
			if p, err := strconv.Atoi(v); err == nil && p > 0 {
				page = p
			}
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 100 {
				limit = l
			}
		}

		links, err := store.ListLinks(r.Context(), (page-1)*limit, limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to list links")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		resp := ListLinksResponse{Links: make([]LinkResponse, 0, len(links)), Page: page, Limit: limit}
		for _, link := range links {
			resp.Links = append(resp.Links, linkResponse(link, baseURL))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// DeactivateLink handles DELETE /api/urls/{code}. Soft delete: the record
// and its code survive, resolution stops. Idempotent on repeat calls.
func DeactivateLink(store LinkStore, cache CacheBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := mux.Vars(r)["code"]

		if err := store.DeactivateLink(r.Context(), shortCode); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				writeError(w, http.StatusNotFound, "link not found")
				return
			}
			log.Error().Err(err).Str("code", shortCode).Msg("failed to deactivate link")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		CacheInvalidate(shortCode)
		if err := cache.Delete(r.Context(), "link:"+shortCode); err != nil {
			log.Debug().Err(err).Str("code", shortCode).Msg("redis link cache delete failed")
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
