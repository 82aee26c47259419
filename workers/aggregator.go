// Package workers contains the click aggregator pool that drains the event
// buffer, enriches events and persists the raw log plus rollups.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"shortlink-service/enrich"
	"shortlink-service/models"
	"shortlink-service/queue"
)

// Store is the persistence surface the aggregator writes to. All rollup
// increments are atomic at the storage layer, so multiple workers flushing
// batches for the same (code, day) bucket never lose updates.
type Store interface {
	BatchInsertClickEvents(ctx context.Context, events []*models.ClickEvent) error
	IncrementDailyRollup(ctx context.Context, shortCode string, day time.Time, n int64) error
	IncrementDeviceRollup(ctx context.Context, shortCode, key string, n int64) error
	IncrementBrowserRollup(ctx context.Context, shortCode, key string, n int64) error
	IncrementCountryRollup(ctx context.Context, shortCode, key string, n int64) error
	IncrementReferrerRollup(ctx context.Context, shortCode, key string, n int64) error
	IncrementClickCount(ctx context.Context, shortCode string, delta int64) error
}

type Config struct {
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	GeoTimeout   time.Duration
	FlushTimeout time.Duration // budget for the final flush on shutdown
}

type Pool struct {
	store  Store
	geo    enrich.GeoResolver
	clicks *queue.Queue
	cfg    Config
}

func NewPool(store Store, geo enrich.GeoResolver, clicks *queue.Queue, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.GeoTimeout <= 0 {
		cfg.GeoTimeout = 250 * time.Millisecond
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 10 * time.Second
	}
	return &Pool{store: store, geo: geo, clicks: clicks, cfg: cfg}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has flushed its remaining batch.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}

	log.Info().Int("workers", p.cfg.Workers).Msg("started click aggregator workers")

	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("click aggregator workers stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	batch := make([]*models.ClickEvent, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case event := <-p.clicks.Events():
			enriched := p.enrich(ctx, event)
			batch = append(batch, &enriched)

			if len(batch) >= p.cfg.BatchSize {
				p.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Final flush runs on a fresh context; ctx is already
			// cancelled and would fail every write.
			flushCtx, cancel := context.WithTimeout(context.Background(), p.cfg.FlushTimeout)
			defer cancel()
			p.drainRemaining(flushCtx, batch)
			return
		}
	}
}

// drainRemaining flushes the in-progress batch plus whatever is still
// buffered, best-effort within the shutdown budget.
func (p *Pool) drainRemaining(ctx context.Context, batch []*models.ClickEvent) {
	for {
		select {
		case event := <-p.clicks.Events():
			enriched := p.enrich(ctx, event)
			batch = append(batch, &enriched)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			p.flush(ctx, batch)
			return
		default:
			p.flush(ctx, batch)
			return
		}
	}
}

// enrich fills in the derived fields. Enrichment failures never drop the
// event: a failed geo lookup leaves the country empty and the event is
// persisted anyway.
func (p *Pool) enrich(ctx context.Context, event models.ClickEvent) models.ClickEvent {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	class := enrich.ClassifyUserAgent(event.UserAgent)
	event.DeviceType = class.DeviceType
	event.Browser = class.Browser
	event.OS = class.OS

	geoCtx, cancel := context.WithTimeout(ctx, p.cfg.GeoTimeout)
	defer cancel()
	country, err := p.geo.Country(geoCtx, event.IPAddress)
	if err != nil {
		log.Debug().Err(err).Str("code", event.ShortCode).Msg("geo lookup failed, persisting without country")
	} else {
		event.Country = country
	}

	// The raw IP was only needed for geo enrichment; drop it before the
	// event reaches storage.
	event.IPAddress = ""

	return event
}

func (p *Pool) flush(ctx context.Context, events []*models.ClickEvent) {
	if len(events) == 0 {
		return
	}

	if err := p.store.BatchInsertClickEvents(ctx, events); err != nil {
		log.Error().Err(err).Int("events", len(events)).Msg("failed to insert click events")
		return
	}

	type dayKey struct {
		code string
		day  time.Time
	}
	type dimKey struct {
		code string
		key  string
	}

	daily := make(map[dayKey]int64)
	devices := make(map[dimKey]int64)
	browsers := make(map[dimKey]int64)
	countries := make(map[dimKey]int64)
	referrers := make(map[dimKey]int64)
	perCode := make(map[string]int64)

	for _, event := range events {
		day := event.ClickedAt.UTC().Truncate(24 * time.Hour)
		daily[dayKey{event.ShortCode, day}]++
		perCode[event.ShortCode]++

		if event.DeviceType != "" {
			devices[dimKey{event.ShortCode, event.DeviceType}]++
		}
		if event.Browser != "" {
			browsers[dimKey{event.ShortCode, event.Browser}]++
		}
		if event.Country != "" {
			countries[dimKey{event.ShortCode, event.Country}]++
		}
		if event.Referer != "" {
			referrers[dimKey{event.ShortCode, event.Referer}]++
		}
	}

	for k, n := range daily {
		if err := p.store.IncrementDailyRollup(ctx, k.code, k.day, n); err != nil {
			log.Error().Err(err).Str("code", k.code).Msg("failed to update daily rollup")
		}
	}
	for k, n := range devices {
		if err := p.store.IncrementDeviceRollup(ctx, k.code, k.key, n); err != nil {
			log.Error().Err(err).Str("code", k.code).Msg("failed to update device rollup")
		}
	}
	for k, n := range browsers {
		if err := p.store.IncrementBrowserRollup(ctx, k.code, k.key, n); err != nil {
			log.Error().Err(err).Str("code", k.code).Msg("failed to update browser rollup")
		}
	}
	for k, n := range countries {
		if err := p.store.IncrementCountryRollup(ctx, k.code, k.key, n); err != nil {
			log.Error().Err(err).Str("code", k.code).Msg("failed to update country rollup")
		}
	}
	for k, n := range referrers {
		if err := p.store.IncrementReferrerRollup(ctx, k.code, k.key, n); err != nil {
			log.Error().Err(err).Str("code", k.code).Msg("failed to update referrer rollup")
		}
	}

	// Display-cache bump; the click log and rollups above are the source
	// of truth.
	for code, n := range perCode {
		if err := p.store.IncrementClickCount(ctx, code, n); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("failed to bump click count")
		}
	}
}
