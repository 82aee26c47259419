package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shortlink-service/models"
	"shortlink-service/queue"
)

// fakeStore records every write the pool makes, guarded by a mutex so
// concurrent workers can flush into it.
type fakeStore struct {
	mu         sync.Mutex
	events     []*models.ClickEvent
	daily      map[string]int64 // "code|2006-01-02"
	devices    map[string]int64 // "code|key"
	browsers   map[string]int64
	countries  map[string]int64
	referrers  map[string]int64
	clickCount map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		daily:      make(map[string]int64),
		devices:    make(map[string]int64),
		browsers:   make(map[string]int64),
		countries:  make(map[string]int64),
		referrers:  make(map[string]int64),
		clickCount: make(map[string]int64),
	}
}

func (s *fakeStore) BatchInsertClickEvents(ctx context.Context, events []*models.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		copied := *e
		s.events = append(s.events, &copied)
	}
	return nil
}

func (s *fakeStore) IncrementDailyRollup(ctx context.Context, shortCode string, day time.Time, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[shortCode+"|"+day.Format("2006-01-02")] += n
	return nil
}

func (s *fakeStore) IncrementDeviceRollup(ctx context.Context, shortCode, key string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[shortCode+"|"+key] += n
	return nil
}

func (s *fakeStore) IncrementBrowserRollup(ctx context.Context, shortCode, key string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.browsers[shortCode+"|"+key] += n
	return nil
}

func (s *fakeStore) IncrementCountryRollup(ctx context.Context, shortCode, key string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countries[shortCode+"|"+key] += n
	return nil
}

func (s *fakeStore) IncrementReferrerRollup(ctx context.Context, shortCode, key string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrers[shortCode+"|"+key] += n
	return nil
}

func (s *fakeStore) IncrementClickCount(ctx context.Context, shortCode string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clickCount[shortCode] += delta
	return nil
}

func (s *fakeStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *fakeStore) dailySum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, n := range s.daily {
		total += n
	}
	return total
}

type fixedGeo struct{ country string }

func (g fixedGeo) Country(ctx context.Context, ip string) (string, error) {
	return g.country, nil
}

type failingGeo struct{}

func (failingGeo) Country(ctx context.Context, ip string) (string, error) {
	return "", errors.New("geo backend down")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func runPool(t *testing.T, pool *Pool) (context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()
	return cancel, done
}

func stopPool(t *testing.T, cancel context.CancelFunc, done chan struct{}) {
	t.Helper()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestPoolAggregatesAcrossWorkers(t *testing.T) {
	store := newFakeStore()
	clicks := queue.New(1000)

	pool := NewPool(store, fixedGeo{country: "DE"}, clicks, Config{
		Workers:      3,
		BatchSize:    7,
		BatchTimeout: 10 * time.Millisecond,
	})
	cancel, done := runPool(t, pool)

	// 60 events for two codes over two distinct days.
	day1 := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
	const total = 60
	for i := 0; i < total; i++ {
		code := "aaaaaa"
		if i%3 == 0 {
			code = "bbbbbb"
		}
		day := day1
		if i%2 == 0 {
			day = day2
		}
		if !clicks.Offer(models.ClickEvent{
			ShortCode: code,
			ClickedAt: day,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/118.0",
			IPAddress: "198.51.100.7",
		}) {
			t.Fatal("offer rejected with empty buffer")
		}
	}

	waitFor(t, func() bool { return store.eventCount() == total })
	stopPool(t, cancel, done)

	// Every event lands in exactly one daily bucket regardless of which
	// worker flushed it.
	if got := store.dailySum(); got != total {
		t.Fatalf("sum of daily rollups = %d, want %d", got, total)
	}
	if store.daily["bbbbbb|2026-08-20"]+store.daily["bbbbbb|2026-08-21"] != 20 {
		t.Fatalf("daily rollups for bbbbbb = %v", store.daily)
	}
	if store.clickCount["aaaaaa"] != 40 || store.clickCount["bbbbbb"] != 20 {
		t.Fatalf("click counts = %v", store.clickCount)
	}
	if store.countries["aaaaaa|DE"] != 40 {
		t.Fatalf("country rollup = %v", store.countries)
	}
	if store.devices["aaaaaa|desktop"] != 40 {
		t.Fatalf("device rollup = %v", store.devices)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, e := range store.events {
		if e.EventID == "" {
			t.Fatal("persisted event missing id")
		}
		if e.IPAddress != "" {
			t.Fatal("raw IP leaked into storage")
		}
	}
}

func TestPoolShutdownFlushesPartialBatch(t *testing.T) {
	store := newFakeStore()
	clicks := queue.New(100)

	// Large batch size and long timeout: nothing would flush without the
	// shutdown drain.
	pool := NewPool(store, fixedGeo{}, clicks, Config{
		Workers:      2,
		BatchSize:    1000,
		BatchTimeout: time.Hour,
	})
	cancel, done := runPool(t, pool)

	for i := 0; i < 9; i++ {
		clicks.Offer(models.ClickEvent{ShortCode: "drains", ClickedAt: time.Now().UTC()})
	}
	waitFor(t, func() bool { return clicks.Len() == 0 })

	stopPool(t, cancel, done)

	if got := store.eventCount(); got != 9 {
		t.Fatalf("persisted %d events after shutdown, want 9", got)
	}
	if store.clickCount["drains"] != 9 {
		t.Fatalf("click count = %d, want 9", store.clickCount["drains"])
	}
}

func TestPoolGeoFailureKeepsEvent(t *testing.T) {
	store := newFakeStore()
	clicks := queue.New(10)

	pool := NewPool(store, failingGeo{}, clicks, Config{
		Workers:      1,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	})
	cancel, done := runPool(t, pool)
	defer stopPool(t, cancel, done)

	clicks.Offer(models.ClickEvent{
		ShortCode: "nogeoz",
		ClickedAt: time.Now().UTC(),
		IPAddress: "203.0.113.9",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1",
	})

	waitFor(t, func() bool { return store.eventCount() == 1 })

	store.mu.Lock()
	event := store.events[0]
	store.mu.Unlock()

	if event.Country != "" {
		t.Fatalf("country = %q, want empty on geo failure", event.Country)
	}
	if event.DeviceType != "mobile" {
		t.Fatalf("device = %q, want mobile (UA enrichment must still run)", event.DeviceType)
	}
	if event.IPAddress != "" {
		t.Fatal("raw IP leaked into storage")
	}
	if len(store.countries) != 0 {
		t.Fatalf("country rollups written on geo failure: %v", store.countries)
	}
}

func TestPoolSlowGeoDoesNotStall(t *testing.T) {
	store := newFakeStore()
	clicks := queue.New(10)

	pool := NewPool(store, blockingGeo{}, clicks, Config{
		Workers:      1,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		GeoTimeout:   20 * time.Millisecond,
	})
	cancel, done := runPool(t, pool)
	defer stopPool(t, cancel, done)

	start := time.Now()
	clicks.Offer(models.ClickEvent{ShortCode: "slowgo", ClickedAt: time.Now().UTC(), IPAddress: "203.0.113.9"})
	waitFor(t, func() bool { return store.eventCount() == 1 })

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("event took %v to persist, geo timeout not enforced", elapsed)
	}
}

// blockingGeo hangs until the lookup context is cancelled.
type blockingGeo struct{}

func (blockingGeo) Country(ctx context.Context, ip string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
