package handlers

import (
	"context"
	"sync"
	"time"

	"shortlink-service/models"
)

// memStore is an in-memory LinkStore with the same linearizable
// conditional-insert semantics as the Postgres implementation.
type memStore struct {
	mu    sync.Mutex
	links map[string]*models.Link
	err   error // when set, every call fails with it
}

func newMemStore() *memStore {
	return &memStore{links: make(map[string]*models.Link)}
}

func (s *memStore) CreateLink(ctx context.Context, link *models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, exists := s.links[link.ShortCode]; exists {
		return models.ErrCodeTaken
	}
	link.IsActive = true
	link.CreatedAt = time.Now().UTC()
	stored := *link
	s.links[link.ShortCode] = &stored
	return nil
}

func (s *memStore) GetLinkByCode(ctx context.Context, shortCode string) (*models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	link, ok := s.links[shortCode]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *link
	return &copied, nil
}

func (s *memStore) ListLinks(ctx context.Context, offset, limit int) ([]*models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var links []*models.Link
	for _, link := range s.links {
		copied := *link
		links = append(links, &copied)
	}
	if offset >= len(links) {
		return nil, nil
	}
	end := offset + limit
	if end > len(links) {
		end = len(links)
	}
	return links[offset:end], nil
}

func (s *memStore) DeactivateLink(ctx context.Context, shortCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	link, ok := s.links[shortCode]
	if !ok {
		return models.ErrNotFound
	}
	link.IsActive = false
	return nil
}

// memStats is a canned AnalyticsStore.
type memStats struct {
	total     int64
	unique    int64
	since     map[string]int64 // keyed by since-date "2006-01-02"
	daily     []models.TimePoint
	devices   []models.BreakdownEntry
	browsers  []models.BreakdownEntry
	countries []models.BreakdownEntry
	referrers []models.BreakdownEntry
}

func (s *memStats) GetTotalClicks(ctx context.Context, shortCode string) (int64, error) {
	return s.total, nil
}

func (s *memStats) GetClicksSince(ctx context.Context, shortCode string, since time.Time) (int64, error) {
	if s.since == nil {
		return s.total, nil
	}
	return s.since[since.Format("2006-01-02")], nil
}

func (s *memStats) GetDailySeries(ctx context.Context, shortCode string, since time.Time) ([]models.TimePoint, error) {
	return s.daily, nil
}

func (s *memStats) GetUniqueVisitors(ctx context.Context, shortCode string) (int64, error) {
	return s.unique, nil
}

func (s *memStats) GetDeviceBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return s.devices, nil
}

func (s *memStats) GetBrowserBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return s.browsers, nil
}

func (s *memStats) GetCountryBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return s.countries, nil
}

func (s *memStats) GetReferrerBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return s.referrers, nil
}

// memCache is an in-memory CacheBackend.
type memCache struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string]string), counters: make(map[string]int64)}
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.counters, key)
	return nil
}

func (c *memCache) GetInt(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

func (c *memCache) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] += delta
	return c.counters[key], nil
}
