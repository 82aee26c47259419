package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// GeoResolver resolves an IP address to an ISO country code. Implementations
// must tolerate failure; callers treat an error as "no country" and persist
// the event anyway.
type GeoResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// HTTPGeoResolver queries an external geolocation endpoint
// (GET {endpoint}/{ip} returning {"countryCode": "US"}). Results are cached
// in-process with a TTL so repeat visitors don't re-trigger lookups.
type HTTPGeoResolver struct {
	endpoint string
	client   *http.Client
	cache    *gocache.Cache
}

func NewHTTPGeoResolver(endpoint string, timeout time.Duration) *HTTPGeoResolver {
	return &HTTPGeoResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cache:    gocache.New(1*time.Hour, 10*time.Minute),
	}
}

func (g *HTTPGeoResolver) Country(ctx context.Context, ip string) (string, error) {
	if ip == "" {
		return "", nil
	}
	if cached, ok := g.cache.Get(ip); ok {
		return cached.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/"+ip, nil)
	if err != nil {
		return "", fmt.Errorf("build geo request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		CountryCode string `json:"countryCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode geo response: %w", err)
	}

	g.cache.Set(ip, body.CountryCode, gocache.DefaultExpiration)
	return body.CountryCode, nil
}

// NoopGeoResolver disables geo enrichment. Used when no endpoint is
// configured.
type NoopGeoResolver struct{}

func (NoopGeoResolver) Country(ctx context.Context, ip string) (string, error) {
	return "", nil
}
