package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"shortlink-service/models"
)

// l1Cache is an in-memory cache of code -> destination URL for active links.
// sync.Map is optimized for the read-heavy redirect workload. Entries live
// until deactivation removes them; destination URLs are immutable.
var l1Cache sync.Map

// lookupGroup collapses concurrent cache-miss lookups for the same code into
// a single store query.
var lookupGroup singleflight.Group

func cacheGet(shortCode string) (string, bool) {
	val, ok := l1Cache.Load(shortCode)
	if !ok {
		return "", false
	}
	url, ok := val.(string)
	return url, ok
}

// CacheSet stores a destination URL in the in-memory cache.
func CacheSet(shortCode, url string) {
	l1Cache.Store(shortCode, url)
}

// CacheInvalidate removes a code from the in-memory cache, used when a link
// is deactivated.
func CacheInvalidate(shortCode string) {
	l1Cache.Delete(shortCode)
}

// CacheSize returns the number of cached entries, for /metrics.
func CacheSize() int {
	count := 0
	l1Cache.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// ActiveLinkSource lists active links for cache pre-population.
type ActiveLinkSource interface {
	GetActiveLinks(ctx context.Context) ([]*models.Link, error)
}

// PrewarmCache loads all active links into the L1 cache at startup so the
// steady-state redirect path rarely touches the database.
func PrewarmCache(store ActiveLinkSource) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	links, err := store.GetActiveLinks(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to prewarm link cache")
		return
	}

	for _, link := range links {
		CacheSet(link.ShortCode, link.OriginalURL)
	}

	log.Info().Int("links", len(links)).Msg("prewarmed link cache")
}
